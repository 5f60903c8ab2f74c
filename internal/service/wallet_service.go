package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pix-wallet-service/config"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultLedgerPageSize = 50

// WalletServiceImpl implements ports.WalletService. Every balance
// mutation runs under the wallet's lease, inside a SERIALIZABLE
// transaction with the row locked, guarded by the wallet version, and
// retried on transient conflicts.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	keyRepo    ports.PixKeyRepository
	transactor ports.DBTransactor
	leases     *LeaseRegistry
	cfg        config.PixConfig
	log        zerolog.Logger
	now        func() time.Time

	walletsCreated       atomic.Int64
	depositsProcessed    atomic.Int64
	withdrawalsProcessed atomic.Int64
	pixKeysRegistered    atomic.Int64
}

// NewWalletService creates a new WalletServiceImpl. The lease registry
// is shared with the transfer pipeline so both sides contend on the
// same per-wallet lease.
func NewWalletService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	keyRepo ports.PixKeyRepository,
	transactor ports.DBTransactor,
	leases *LeaseRegistry,
	cfg config.PixConfig,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		keyRepo:    keyRepo,
		transactor: transactor,
		leases:     leases,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateWallet provisions an empty wallet for userID. One wallet per
// user; the unique index on user_id arbitrates concurrent creation.
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.Validation("user id must not be empty")
	}

	existing, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing wallet: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateUser(userID)
	}

	now := s.now()
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   domain.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ErrDuplicateUser(userID)
		}
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	walletNumber := s.walletsCreated.Add(1)
	s.log.Info().
		Int64("wallet_number", walletNumber).
		Str("wallet_id", wallet.ID.String()).
		Str("user_id", userID).
		Msg("wallet created")

	return wallet, nil
}

// RegisterPixKey attaches a new active Pix key to the wallet.
func (s *WalletServiceImpl) RegisterPixKey(ctx context.Context, walletID uuid.UUID, keyValue string, keyType domain.PixKeyType) (*domain.PixKey, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound(walletID.String())
	}

	existing, err := s.keyRepo.GetActiveByValue(ctx, keyValue)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing key: %w", err))
	}
	if existing != nil {
		return nil, apperror.Validation("Pix key already registered and active: " + keyValue)
	}

	key, err := domain.NewPixKey(walletID, keyValue, keyType, s.now())
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Validation("Pix key already registered and active: " + keyValue)
		}
		return nil, apperror.InternalError(fmt.Errorf("create pix key: %w", err))
	}

	keyNumber := s.pixKeysRegistered.Add(1)
	s.log.Info().
		Int64("key_number", keyNumber).
		Str("key_id", key.ID.String()).
		Str("wallet_id", walletID.String()).
		Str("key_type", string(keyType)).
		Msg("pix key registered")

	return key, nil
}

// GetWallet fetches a wallet by ID.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound(walletID.String())
	}
	return wallet, nil
}

// GetBalance returns the wallet's current balance.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, walletID uuid.UUID) (domain.Money, error) {
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return domain.Zero, err
	}
	return wallet.Balance, nil
}

// GetBalanceAt replays the ledger and returns the balance as of at.
func (s *WalletServiceImpl) GetBalanceAt(ctx context.Context, walletID uuid.UUID, at time.Time) (domain.Money, error) {
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return domain.Zero, err
	}
	entries, err := s.ledgerRepo.ListUntil(ctx, walletID, at)
	if err != nil {
		return domain.Zero, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	balance, err := domain.BalanceAt(entries, at)
	if err != nil {
		return domain.Zero, apperror.InternalError(fmt.Errorf("replay ledger: %w", err))
	}
	return balance, nil
}

// GetLedger returns the wallet's most recent ledger entries.
func (s *WalletServiceImpl) GetLedger(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLedgerPageSize
	}
	entries, err := s.ledgerRepo.ListByWallet(ctx, walletID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	return entries, nil
}

// ListPixKeys returns every key registered to the wallet.
func (s *WalletServiceImpl) ListPixKeys(ctx context.Context, walletID uuid.UUID) ([]domain.PixKey, error) {
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	keys, err := s.keyRepo.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pix keys: %w", err))
	}
	return keys, nil
}

// Deposit credits external funds into the wallet.
func (s *WalletServiceImpl) Deposit(ctx context.Context, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	depositNumber := s.depositsProcessed.Add(1)
	if req.Description == "" {
		req.Description = "Deposit"
	}
	if req.TransactionID == "" {
		req.TransactionID = fmt.Sprintf("DEP-%d-%s", depositNumber, uuid.NewString()[:8])
	}

	s.log.Info().
		Int64("deposit_number", depositNumber).
		Str("wallet_id", req.WalletID.String()).
		Int64("amount_cents", req.Amount.Cents).
		Msg("processing deposit")

	entry, err := s.Credit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("deposit_number", depositNumber).
		Str("wallet_id", req.WalletID.String()).
		Str("transaction_id", entry.TransactionID).
		Int64("balance_after_cents", entry.BalanceAfter.Cents).
		Msg("deposit processed")

	return entry, nil
}

// Withdraw debits funds out of the wallet.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	withdrawalNumber := s.withdrawalsProcessed.Add(1)
	if req.Description == "" {
		req.Description = "Withdrawal"
	}
	if req.TransactionID == "" {
		req.TransactionID = fmt.Sprintf("WDR-%d-%s", withdrawalNumber, uuid.NewString()[:8])
	}

	s.log.Info().
		Int64("withdrawal_number", withdrawalNumber).
		Str("wallet_id", req.WalletID.String()).
		Int64("amount_cents", req.Amount.Cents).
		Msg("processing withdrawal")

	entry, err := s.Debit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("withdrawal_number", withdrawalNumber).
		Str("wallet_id", req.WalletID.String()).
		Str("transaction_id", entry.TransactionID).
		Int64("balance_after_cents", entry.BalanceAfter.Cents).
		Msg("withdrawal processed")

	return entry, nil
}

// Credit acquires the wallet lease and applies a credit.
func (s *WalletServiceImpl) Credit(ctx context.Context, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	release, err := s.leases.Acquire(ctx, req.WalletID.String(), s.cfg.WalletLeaseTimeout)
	if err != nil {
		return nil, apperror.ErrTransientConflict(err)
	}
	defer release()
	return s.CreditLocked(ctx, req)
}

// Debit acquires the wallet lease and applies a debit.
func (s *WalletServiceImpl) Debit(ctx context.Context, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	release, err := s.leases.Acquire(ctx, req.WalletID.String(), s.cfg.WalletLeaseTimeout)
	if err != nil {
		return nil, apperror.ErrTransientConflict(err)
	}
	defer release()
	return s.DebitLocked(ctx, req)
}

// CreditLocked applies a credit. The caller must hold the wallet lease.
func (s *WalletServiceImpl) CreditLocked(ctx context.Context, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	return s.mutateWithRetry(ctx, domain.EntryTypeCredit, req)
}

// DebitLocked applies a debit. The caller must hold the wallet lease.
func (s *WalletServiceImpl) DebitLocked(ctx context.Context, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	return s.mutateWithRetry(ctx, domain.EntryTypeDebit, req)
}

func (s *WalletServiceImpl) mutateWithRetry(ctx context.Context, entryType domain.EntryType, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		entry, err := s.mutate(ctx, entryType, req)
		if err == nil {
			return entry, nil
		}
		if !isRetriable(err) {
			return nil, err
		}
		lastErr = err

		s.log.Warn().
			Err(err).
			Str("wallet_id", req.WalletID.String()).
			Int("attempt", attempt).
			Msg("balance mutation conflicted, retrying")

		if attempt < s.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, apperror.ErrTransientConflict(ctx.Err())
			case <-time.After(s.cfg.RetryDelay):
			}
		}
	}
	return nil, apperror.ErrTransientConflict(lastErr)
}

// isRetriable reports whether a mutation failure is worth another
// attempt: optimistic version conflicts and serialization aborts.
func isRetriable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) ||
		apperror.IsCode(err, apperror.CodeTransientConflict)
}

// mutate runs one balance mutation attempt end to end: SERIALIZABLE
// transaction, row lock, domain arithmetic, version-guarded balance
// write and ledger append.
func (s *WalletServiceImpl) mutate(ctx context.Context, entryType domain.EntryType, req ports.MutationRequest) (*domain.LedgerEntry, error) {
	// The Pix per-transfer ceiling applies to transfers only; the
	// engine takes any positive amount so deposits and withdrawals
	// are unbounded.
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("")
	}

	dbTx, err := s.transactor.BeginSerializable(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, req.WalletID)
	if err != nil {
		return nil, pgMutationError("lock wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound(req.WalletID.String())
	}

	var newBalance domain.Money
	if entryType == domain.EntryTypeCredit {
		newBalance, err = wallet.ApplyCredit(req.Amount)
	} else {
		newBalance, err = wallet.ApplyDebit(req.Amount)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			return nil, apperror.ErrInsufficientFunds()
		case errors.Is(err, domain.ErrAmountNotPositive):
			return nil, apperror.ErrInvalidAmount("")
		default:
			return nil, apperror.InternalError(fmt.Errorf("apply %s: %w", entryType, err))
		}
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance, wallet.Version); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		return nil, pgMutationError("update balance", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Amount:        domain.SignedAmount(entryType, req.Amount),
		Type:          entryType,
		Description:   req.Description,
		TransactionID: req.TransactionID,
		BalanceAfter:  newBalance,
		CreatedAt:     s.now(),
	}
	if err := s.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, pgMutationError("append ledger entry", err)
	}

	// Serialization failures surface at commit time.
	if err := dbTx.Commit(ctx); err != nil {
		return nil, pgMutationError("commit tx", err)
	}
	return entry, nil
}

// Stats snapshots the engine's counters.
func (s *WalletServiceImpl) Stats() ports.WalletStats {
	deposits := s.depositsProcessed.Load()
	withdrawals := s.withdrawalsProcessed.Load()
	return ports.WalletStats{
		WalletsCreated:       s.walletsCreated.Load(),
		DepositsProcessed:    deposits,
		WithdrawalsProcessed: withdrawals,
		PixKeysRegistered:    s.pixKeysRegistered.Load(),
		ActiveLocks:          s.leases.Len(),
		TotalOperations:      deposits + withdrawals,
	}
}

// CleanupLocks drops idle wallet leases and reports how many went away.
func (s *WalletServiceImpl) CleanupLocks() int {
	released := s.leases.Cleanup()
	s.log.Info().
		Int("released", released).
		Int("remaining", s.leases.Len()).
		Msg("wallet lease cleanup completed")
	return released
}
