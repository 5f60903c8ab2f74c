package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation mimics the error PostgreSQL raises when a unique
// constraint arbitrates a race. Services detect it via SQLSTATE 23505.
func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID {
			return fmt.Errorf("insert wallet: %w", uniqueViolation("wallets_user_unique"))
		}
	}
	clone := *w
	r.wallets[w.ID] = &clone
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	clone := *w
	return &clone, nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			clone := *w
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance domain.Money, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok || w.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{}
}

func (r *inMemoryLedgerRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.WalletID == entry.WalletID && e.TransactionID == entry.TransactionID {
			return fmt.Errorf("insert ledger entry: %w", uniqueViolation("ledger_entries_tx_unique"))
		}
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryLedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.WalletID == walletID {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *inMemoryLedgerRepo) ListUntil(ctx context.Context, walletID uuid.UUID, until time.Time) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.WalletID == walletID && !e.CreatedAt.After(until) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- In-Memory Pix Key Repo ---

type inMemoryPixKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.PixKey
}

func newInMemoryPixKeyRepo() *inMemoryPixKeyRepo {
	return &inMemoryPixKeyRepo{keys: make(map[uuid.UUID]*domain.PixKey)}
}

func (r *inMemoryPixKeyRepo) Create(ctx context.Context, key *domain.PixKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.Active && k.KeyValue == key.KeyValue {
			return fmt.Errorf("insert pix key: %w", uniqueViolation("idx_pix_keys_active_value"))
		}
	}
	clone := *key
	r.keys[key.ID] = &clone
	return nil
}

func (r *inMemoryPixKeyRepo) GetActiveByValue(ctx context.Context, value string) (*domain.PixKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.Active && k.KeyValue == value {
			clone := *k
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPixKeyRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.PixKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PixKey
	for _, k := range r.keys {
		if k.WalletID == walletID {
			result = append(result, *k)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *inMemoryPixKeyRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("pix key not found")
	}
	k.Active = false
	return nil
}

// --- In-Memory Transfer Repo ---

type inMemoryTransferRepo struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]*domain.PixTransfer
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{transfers: make(map[uuid.UUID]*domain.PixTransfer)}
}

func (r *inMemoryTransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.PixTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transfers {
		if existing.EndToEndID == t.EndToEndID {
			return fmt.Errorf("insert transfer: %w", uniqueViolation("pix_transfers_e2e_unique"))
		}
		if existing.IdempotencyKey == t.IdempotencyKey {
			return fmt.Errorf("insert transfer: %w", uniqueViolation("pix_transfers_idem_unique"))
		}
	}
	clone := *t
	r.transfers[t.ID] = &clone
	return nil
}

func (r *inMemoryTransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PixTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (r *inMemoryTransferRepo) GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transfers {
		if t.EndToEndID == endToEndID {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransferRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PixTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transfers {
		if t.IdempotencyKey == key {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransferRepo) GetByEndToEndIDForUpdate(ctx context.Context, tx pgx.Tx, endToEndID string) (*domain.PixTransfer, error) {
	return r.GetByEndToEndID(ctx, endToEndID)
}

func (r *inMemoryTransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, t *domain.PixTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.transfers[t.ID]
	if !ok || stored.Version != t.Version {
		return domain.ErrVersionConflict
	}
	stored.Status = t.Status
	stored.RejectionReason = t.RejectionReason
	stored.ConfirmedAt = t.ConfirmedAt
	stored.RejectedAt = t.RejectedAt
	stored.UpdatedAt = t.UpdatedAt
	stored.Version = t.Version + 1
	t.Version++
	return nil
}

func (r *inMemoryTransferRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.PixTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PixTransfer
	for _, t := range r.transfers {
		if t.FromWalletID == walletID {
			result = append(result, *t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func recordKey(scope, key string) string { return scope + ":" + key }

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := recordKey(rec.Scope, rec.Key)
	if existing, ok := r.records[k]; ok && existing.ExpiresAt.After(rec.CreatedAt) {
		return false, nil
	}
	clone := *rec
	r.records[k] = &clone
	return true, nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[recordKey(scope, key)]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (r *inMemoryIdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for k, rec := range r.records {
		if !rec.ExpiresAt.After(now) {
			delete(r.records, k)
			removed++
		}
	}
	return removed, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.RWMutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *inMemoryAuditRepo) List(ctx context.Context, walletID *uuid.UUID, limit int) ([]domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.AuditLog
	for _, l := range r.logs {
		if walletID != nil && (l.WalletID == nil || *l.WalletID != *walletID) {
			continue
		}
		result = append(result, l)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

func (t *inMemoryTransactor) BeginSerializable(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing. The
// repos above apply writes immediately, so commit and rollback do
// nothing; atomicity in tests comes from the version guards.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
