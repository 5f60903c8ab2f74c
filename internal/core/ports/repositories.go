package ports

import (
	"context"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// UpdateBalance persists the new balance guarded by the expected
	// version. Returns domain.ErrVersionConflict when the row moved.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance domain.Money, expectedVersion int64) error
}

// LedgerRepository defines persistence for append-only ledger entries.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerEntry, error)
	// ListUntil returns entries with CreatedAt <= until in ascending
	// order, for point-in-time balance replay.
	ListUntil(ctx context.Context, walletID uuid.UUID, until time.Time) ([]domain.LedgerEntry, error)
}

// PixKeyRepository defines persistence operations for Pix keys.
type PixKeyRepository interface {
	Create(ctx context.Context, key *domain.PixKey) error
	GetActiveByValue(ctx context.Context, value string) (*domain.PixKey, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.PixKey, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// TransferRepository defines persistence operations for Pix transfers.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transfer *domain.PixTransfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PixTransfer, error)
	GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PixTransfer, error)
	GetByEndToEndIDForUpdate(ctx context.Context, tx pgx.Tx, endToEndID string) (*domain.PixTransfer, error)
	// UpdateStatus persists status, terminal timestamps and rejection
	// reason, guarded by the transfer's version.
	UpdateStatus(ctx context.Context, tx pgx.Tx, transfer *domain.PixTransfer) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.PixTransfer, error)
}

// IdempotencyRepository defines the authoritative idempotency store.
type IdempotencyRepository interface {
	// Create inserts the record unless one already exists for its
	// (scope, key) pair. Returns false when an existing record won.
	Create(ctx context.Context, record *domain.IdempotencyRecord) (bool, error)
	Get(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	List(ctx context.Context, walletID *uuid.UUID, limit int) ([]domain.AuditLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	// BeginSerializable opens a SERIALIZABLE transaction for
	// balance-mutating paths.
	BeginSerializable(ctx context.Context) (pgx.Tx, error)
}
