package postgres

import (
	"context"
	"fmt"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create appends a ledger entry within a database transaction. Entries
// are never updated or deleted.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, wallet_id, amount_cents, entry_type, description, transaction_id, balance_after_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.WalletID, e.Amount.Cents, string(e.Type),
		e.Description, e.TransactionID, e.BalanceAfter.Cents, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByWallet returns the most recent entries for a wallet.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT id, wallet_id, amount_cents, entry_type, description, transaction_id, balance_after_cents, created_at
		FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// ListUntil returns all entries with created_at <= until in ascending
// order, for point-in-time balance replay.
func (r *LedgerRepo) ListUntil(ctx context.Context, walletID uuid.UUID, until time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT id, wallet_id, amount_cents, entry_type, description, transaction_id, balance_after_cents, created_at
		FROM ledger_entries WHERE wallet_id = $1 AND created_at <= $2 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, walletID, until)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries until: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var entryType string
		if err := rows.Scan(
			&e.ID, &e.WalletID, &e.Amount.Cents, &entryType,
			&e.Description, &e.TransactionID, &e.BalanceAfter.Cents, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = domain.EntryType(entryType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
