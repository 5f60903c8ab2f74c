package ports

import (
	"context"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
)

// IdempotencyCache is the shared fast path for idempotency lookups,
// sitting between the in-process record cache and the database.
type IdempotencyCache interface {
	// GetRecord returns the cached record for (scope, key), nil on miss.
	GetRecord(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error)
	// PutRecord caches the record under its (scope, key) for ttl.
	PutRecord(ctx context.Context, record *domain.IdempotencyRecord, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// WalletService defines wallet lifecycle and balance mutations.
// Deposit/Withdraw are the user-facing entry points; Credit/Debit are
// used by the transfer pipeline; the Locked variants require the caller
// to already hold the wallet lease.
type WalletService interface {
	CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	RegisterPixKey(ctx context.Context, walletID uuid.UUID, keyValue string, keyType domain.PixKeyType) (*domain.PixKey, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (domain.Money, error)
	GetBalanceAt(ctx context.Context, walletID uuid.UUID, at time.Time) (domain.Money, error)
	GetLedger(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerEntry, error)
	ListPixKeys(ctx context.Context, walletID uuid.UUID) ([]domain.PixKey, error)

	Deposit(ctx context.Context, req MutationRequest) (*domain.LedgerEntry, error)
	Withdraw(ctx context.Context, req MutationRequest) (*domain.LedgerEntry, error)
	Credit(ctx context.Context, req MutationRequest) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, req MutationRequest) (*domain.LedgerEntry, error)
	CreditLocked(ctx context.Context, req MutationRequest) (*domain.LedgerEntry, error)
	DebitLocked(ctx context.Context, req MutationRequest) (*domain.LedgerEntry, error)

	Stats() WalletStats
	CleanupLocks() int
}

// MutationRequest holds validated input for one balance mutation.
// TransactionID is generated for deposits and withdrawals when empty;
// transfer paths always supply it.
type MutationRequest struct {
	WalletID      uuid.UUID
	Amount        domain.Money
	Description   string
	TransactionID string
}

// WalletStats aggregates the engine's operation counters.
type WalletStats struct {
	WalletsCreated       int64
	DepositsProcessed    int64
	WithdrawalsProcessed int64
	PixKeysRegistered    int64
	ActiveLocks          int
	TotalOperations      int64
}

// IdempotencyService stores and replays completed request outcomes.
type IdempotencyService interface {
	// Find returns the live record for (scope, key), nil when absent
	// or expired.
	Find(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error)
	// SaveFirst records the outcome unless a record already exists;
	// the stored winner is returned either way.
	SaveFirst(ctx context.Context, scope, key string, requestBody, responseBody []byte, statusCode int) (*domain.IdempotencyRecord, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Stats() ProcessingStats
}

// ProcessingStats reports the idempotency layer's in-memory footprint.
type ProcessingStats struct {
	CacheSize         int
	LockCount         int
	CleanupInProgress bool
}

// TransferService owns the transfer state machine and its financial
// effects.
type TransferService interface {
	CreateTransfer(ctx context.Context, req CreateTransferRequest) (*domain.PixTransfer, error)
	// TransitionTo moves endToEndID to target and applies the ledger
	// effect. Returns false when the transfer is unknown or already
	// terminal; such events are absorbed by the caller.
	TransitionTo(ctx context.Context, endToEndID string, target domain.PixTransferStatus, reason string) (bool, error)
	GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PixTransfer, error)
	Stats() TransferStats
	CleanupStates() int
}

// CreateTransferRequest holds validated input for transfer creation.
type CreateTransferRequest struct {
	EndToEndID     string
	IdempotencyKey string
	FromWalletID   uuid.UUID
	ToPixKey       string
	Amount         domain.Money
}

// TransferStats aggregates transfer counters and in-memory state.
type TransferStats struct {
	TotalTransfers      int64
	SuccessfulTransfers int64
	FailedTransfers     int64
	ActiveTransfers     int64
	StatesInMemory      int
	WalletLocks         int
	SuccessRate         float64
}

// PixService is the transfer orchestrator: initiation with idempotency
// and retries, and webhook settlement.
type PixService interface {
	Initiate(ctx context.Context, req InitiateTransferRequest) (*TransferResult, error)
	// HandleWebhook settles a provider event. Duplicate, unknown and
	// late events are absorbed; only infrastructure failures error.
	// Returns true when the event transitioned a transfer, false when
	// it was absorbed.
	HandleWebhook(ctx context.Context, event domain.WebhookEvent) (bool, error)
	FindByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error)
	WebhookStats() WebhookStats
}

// InitiateTransferRequest holds validated input for transfer initiation.
// RequestBody is the raw HTTP payload used for idempotent replay
// detection.
type InitiateTransferRequest struct {
	IdempotencyKey string
	FromWalletID   uuid.UUID
	ToPixKey       string
	Amount         domain.Money
	RequestBody    []byte
}

// TransferResult is an initiation outcome. Created is false when an
// idempotent replay returned a previously created transfer.
type TransferResult struct {
	Transfer *domain.PixTransfer
	Created  bool
}

// WebhookStats aggregates webhook delivery counters.
type WebhookStats struct {
	TotalEvents     int64
	DuplicateEvents int64
	UniqueEvents    int64
	DuplicateRate   float64
}

// MonitoringService aggregates subsystem statistics and coordinates
// resource cleanup.
type MonitoringService interface {
	AtomicStats() AtomicStats
	SystemHealth() SystemHealth
	Cleanup(ctx context.Context) (*CleanupResult, error)
}

// AtomicStats snapshots every subsystem's counters at once.
type AtomicStats struct {
	Transfers   TransferStats
	Wallets     WalletStats
	Idempotency ProcessingStats
	Webhooks    WebhookStats
}

// SystemHealth is the derived health view of the service.
type SystemHealth struct {
	SystemLoad       float64
	ConcurrencyLevel int64
	ErrorRate        float64
	HealthStatus     string
}

// CleanupResult reports one full cleanup pass.
type CleanupResult struct {
	StartTime      time.Time
	EndTime        time.Time
	DurationMS     int64
	ExpiredRecords int64
	EvictedStates  int
	ReleasedLocks  int
	Message        string
}

// AuditService records security-relevant actions asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
	Close()
}
