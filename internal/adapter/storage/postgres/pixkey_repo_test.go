package postgres

import (
	"context"
	"testing"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pixKeyColumns() []string {
	return []string{"id", "wallet_id", "key_value", "key_type", "is_active", "created_at"}
}

func newTestPixKey(walletID uuid.UUID) *domain.PixKey {
	return &domain.PixKey{
		ID:        uuid.New(),
		WalletID:  walletID,
		KeyValue:  "user@example.com",
		KeyType:   domain.PixKeyTypeEmail,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPixKeyRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPixKeyRepo(mock)
	k := newTestPixKey(uuid.New())

	mock.ExpectExec("INSERT INTO pix_keys").
		WithArgs(k.ID, k.WalletID, k.KeyValue, string(k.KeyType), k.Active, k.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), k)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPixKeyRepo_GetActiveByValue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPixKeyRepo(mock)
	k := newTestPixKey(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM pix_keys WHERE key_value .+ is_active").
		WithArgs(k.KeyValue).
		WillReturnRows(pgxmock.NewRows(pixKeyColumns()).
			AddRow(k.ID, k.WalletID, k.KeyValue, string(k.KeyType), k.Active, k.CreatedAt))

	result, err := repo.GetActiveByValue(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, k.WalletID, result.WalletID)
	assert.Equal(t, domain.PixKeyTypeEmail, result.KeyType)
	assert.True(t, result.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPixKeyRepo_GetActiveByValue_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPixKeyRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM pix_keys WHERE key_value .+ is_active").
		WithArgs("ghost@example.com").
		WillReturnRows(pgxmock.NewRows(pixKeyColumns()))

	result, err := repo.GetActiveByValue(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPixKeyRepo_ListByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPixKeyRepo(mock)
	walletID := uuid.New()
	k := newTestPixKey(walletID)

	mock.ExpectQuery("SELECT .+ FROM pix_keys WHERE wallet_id").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows(pixKeyColumns()).
			AddRow(k.ID, k.WalletID, k.KeyValue, string(k.KeyType), k.Active, k.CreatedAt))

	keys, err := repo.ListByWallet(context.Background(), walletID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, k.KeyValue, keys[0].KeyValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPixKeyRepo_Deactivate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPixKeyRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE pix_keys SET is_active").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Deactivate(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPixKeyRepo_Deactivate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPixKeyRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE pix_keys SET is_active").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Deactivate(context.Background(), id)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pix key not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
