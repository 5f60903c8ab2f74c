package postgres

import (
	"context"
	"errors"
	"fmt"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PixKeyRepo implements ports.PixKeyRepository.
type PixKeyRepo struct {
	pool Pool
}

// NewPixKeyRepo creates a new PixKeyRepo.
func NewPixKeyRepo(pool Pool) *PixKeyRepo {
	return &PixKeyRepo{pool: pool}
}

// Create inserts a new Pix key. The partial unique index on active
// key values surfaces duplicates as SQLSTATE 23505.
func (r *PixKeyRepo) Create(ctx context.Context, k *domain.PixKey) error {
	query := `INSERT INTO pix_keys (id, wallet_id, key_value, key_type, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		k.ID, k.WalletID, k.KeyValue, string(k.KeyType), k.Active, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pix key: %w", err)
	}
	return nil
}

// GetActiveByValue fetches the active key registered under value.
func (r *PixKeyRepo) GetActiveByValue(ctx context.Context, value string) (*domain.PixKey, error) {
	query := `SELECT id, wallet_id, key_value, key_type, is_active, created_at
		FROM pix_keys WHERE key_value = $1 AND is_active`

	k := &domain.PixKey{}
	var keyType string
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&k.ID, &k.WalletID, &k.KeyValue, &keyType, &k.Active, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active pix key: %w", err)
	}
	k.KeyType = domain.PixKeyType(keyType)
	return k, nil
}

// ListByWallet returns every key registered for a wallet, newest first.
func (r *PixKeyRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.PixKey, error) {
	query := `SELECT id, wallet_id, key_value, key_type, is_active, created_at
		FROM pix_keys WHERE wallet_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list pix keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.PixKey
	for rows.Next() {
		var k domain.PixKey
		var keyType string
		if err := rows.Scan(&k.ID, &k.WalletID, &k.KeyValue, &keyType, &k.Active, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pix key: %w", err)
		}
		k.KeyType = domain.PixKeyType(keyType)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Deactivate releases a key. Inactive rows stay for audit.
func (r *PixKeyRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE pix_keys SET is_active = FALSE WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate pix key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pix key not found: %s", id)
	}
	return nil
}
