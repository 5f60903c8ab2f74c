package postgres

import (
	"context"
	"errors"
	"fmt"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transferColumns = `id, end_to_end_id, idempotency_key, from_wallet_id, to_pix_key, amount_cents,
		status, rejection_reason, created_at, updated_at, confirmed_at, rejected_at, version`

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Create inserts a new transfer within a database transaction. The
// unique constraints on end_to_end_id and idempotency_key arbitrate
// concurrent creation (SQLSTATE 23505).
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.PixTransfer) error {
	query := `INSERT INTO pix_transfers (id, end_to_end_id, idempotency_key, from_wallet_id, to_pix_key, amount_cents,
		status, rejection_reason, created_at, updated_at, confirmed_at, rejected_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.EndToEndID, t.IdempotencyKey, t.FromWalletID, t.ToPixKey, t.Amount.Cents,
		string(t.Status), t.RejectionReason, t.CreatedAt, t.UpdatedAt, t.ConfirmedAt, t.RejectedAt, t.Version,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer by UUID.
func (r *TransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PixTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM pix_transfers WHERE id = $1`
	return r.scanTransfer(r.pool.QueryRow(ctx, query, id))
}

// GetByEndToEndID fetches a transfer by its settlement identifier.
func (r *TransferRepo) GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM pix_transfers WHERE end_to_end_id = $1`
	return r.scanTransfer(r.pool.QueryRow(ctx, query, endToEndID))
}

// GetByIdempotencyKey fetches a transfer by its client idempotency key.
func (r *TransferRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PixTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM pix_transfers WHERE idempotency_key = $1`
	return r.scanTransfer(r.pool.QueryRow(ctx, query, key))
}

// GetByEndToEndIDForUpdate fetches a transfer with pessimistic locking.
// This MUST be called within a transaction.
func (r *TransferRepo) GetByEndToEndIDForUpdate(ctx context.Context, tx pgx.Tx, endToEndID string) (*domain.PixTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM pix_transfers WHERE end_to_end_id = $1 FOR UPDATE`
	return r.scanTransfer(tx.QueryRow(ctx, query, endToEndID))
}

// UpdateStatus persists the transfer's status fields guarded by its
// version.
func (r *TransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, t *domain.PixTransfer) error {
	query := `UPDATE pix_transfers
		SET status = $1, rejection_reason = $2, confirmed_at = $3, rejected_at = $4, updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7`

	tag, err := tx.Exec(ctx, query,
		string(t.Status), t.RejectionReason, t.ConfirmedAt, t.RejectedAt, t.UpdatedAt, t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	t.Version++
	return nil
}

// ListByWallet returns the most recent transfers sent from a wallet.
func (r *TransferRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.PixTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM pix_transfers
		WHERE from_wallet_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.PixTransfer
	for rows.Next() {
		var t domain.PixTransfer
		var status string
		if err := rows.Scan(
			&t.ID, &t.EndToEndID, &t.IdempotencyKey, &t.FromWalletID, &t.ToPixKey, &t.Amount.Cents,
			&status, &t.RejectionReason, &t.CreatedAt, &t.UpdatedAt, &t.ConfirmedAt, &t.RejectedAt, &t.Version,
		); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.Status = domain.PixTransferStatus(status)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *TransferRepo) scanTransfer(row pgx.Row) (*domain.PixTransfer, error) {
	t := &domain.PixTransfer{}
	var status string
	err := row.Scan(
		&t.ID, &t.EndToEndID, &t.IdempotencyKey, &t.FromWalletID, &t.ToPixKey, &t.Amount.Cents,
		&status, &t.RejectionReason, &t.CreatedAt, &t.UpdatedAt, &t.ConfirmedAt, &t.RejectedAt, &t.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	t.Status = domain.PixTransferStatus(status)
	return t, nil
}
