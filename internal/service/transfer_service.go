package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pix-wallet-service/config"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransferServiceImpl implements ports.TransferService.
//
// Creation debits the source first and inserts the transfer row after;
// when the insert loses a uniqueness race the debit is compensated and
// the winning row returned. Settlement claims the in-memory state by
// compare-and-swap, then applies the terminal status and its ledger
// effect in one SERIALIZABLE transaction.
type TransferServiceImpl struct {
	transferRepo ports.TransferRepository
	walletRepo   ports.WalletRepository
	ledgerRepo   ports.LedgerRepository
	keyRepo      ports.PixKeyRepository
	wallets      ports.WalletService
	transactor   ports.DBTransactor
	states       *transferStateMap
	walletLeases *LeaseRegistry
	cfg          config.PixConfig
	log          zerolog.Logger
	now          func() time.Time

	totalTransfers      atomic.Int64
	successfulTransfers atomic.Int64
	failedTransfers     atomic.Int64
	activeTransfers     atomic.Int64
}

// NewTransferService creates a new TransferServiceImpl. walletLeases
// must be the same registry the wallet service uses, so creation and
// settlement contend on the same per-wallet lease as deposits and
// withdrawals.
func NewTransferService(
	transferRepo ports.TransferRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	keyRepo ports.PixKeyRepository,
	wallets ports.WalletService,
	transactor ports.DBTransactor,
	walletLeases *LeaseRegistry,
	cfg config.PixConfig,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		transferRepo: transferRepo,
		walletRepo:   walletRepo,
		ledgerRepo:   ledgerRepo,
		keyRepo:      keyRepo,
		wallets:      wallets,
		transactor:   transactor,
		states:       newTransferStateMap(cfg.TransferStateTTL, cfg.MaxTransferStates),
		walletLeases: walletLeases,
		cfg:          cfg,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateTransfer debits the source wallet and persists a PENDING
// transfer. The in-memory state entry is registered first; a concurrent
// creation of the same endToEndID returns the already persisted row.
func (s *TransferServiceImpl) CreateTransfer(ctx context.Context, req ports.CreateTransferRequest) (*domain.PixTransfer, error) {
	transferNumber := s.totalTransfers.Add(1)
	s.activeTransfers.Add(1)
	defer s.activeTransfers.Add(-1)

	transfer, err := domain.NewPixTransfer(req.EndToEndID, req.IdempotencyKey, req.FromWalletID, req.ToPixKey, req.Amount, s.cfg.MaxAmountCents, s.now())
	if err != nil {
		s.failedTransfers.Add(1)
		return nil, transferValidationError(err)
	}

	s.log.Info().
		Int64("transfer_number", transferNumber).
		Str("end_to_end_id", req.EndToEndID).
		Str("from_wallet_id", req.FromWalletID.String()).
		Int64("amount_cents", req.Amount.Cents).
		Msg("starting transfer creation")

	if created := s.states.PutIfAbsent(req.EndToEndID, domain.PixTransferStatusPending); !created {
		s.log.Info().Str("end_to_end_id", req.EndToEndID).Msg("concurrent transfer creation detected")
		existing, err := s.transferRepo.GetByEndToEndID(ctx, req.EndToEndID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("load existing transfer: %w", err))
		}
		if existing == nil {
			return nil, apperror.ErrIllegalState("transfer state exists but record not found: " + req.EndToEndID)
		}
		return existing, nil
	}

	release, err := s.walletLeases.Acquire(ctx, req.FromWalletID.String(), s.cfg.TransferLeaseTimeout)
	if err != nil {
		s.states.Remove(req.EndToEndID)
		s.failedTransfers.Add(1)
		return nil, apperror.ErrTransientConflict(err)
	}
	defer release()

	debit := ports.MutationRequest{
		WalletID:      req.FromWalletID,
		Amount:        req.Amount,
		Description:   "Pix transfer - " + req.EndToEndID,
		TransactionID: req.EndToEndID,
	}
	if _, err := s.wallets.DebitLocked(ctx, debit); err != nil {
		s.states.Remove(req.EndToEndID)
		s.failedTransfers.Add(1)
		return nil, err
	}

	if err := s.persistTransfer(ctx, transfer); err != nil {
		if apperror.IsCode(err, apperror.CodeDataIntegrityViolation) {
			s.log.Warn().
				Str("end_to_end_id", req.EndToEndID).
				Msg("constraint violation during transfer creation, compensating debit")
			s.compensateDebit(ctx, transfer)
			s.states.Remove(req.EndToEndID)
			return s.lookupAfterConflict(ctx, req)
		}
		s.compensateDebit(ctx, transfer)
		s.states.Remove(req.EndToEndID)
		s.failedTransfers.Add(1)
		return nil, err
	}

	s.successfulTransfers.Add(1)
	s.log.Info().
		Int64("transfer_number", transferNumber).
		Str("end_to_end_id", transfer.EndToEndID).
		Str("transfer_id", transfer.ID.String()).
		Msg("transfer created")

	return transfer, nil
}

func (s *TransferServiceImpl) persistTransfer(ctx context.Context, transfer *domain.PixTransfer) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.transferRepo.Create(ctx, dbTx, transfer); err != nil {
		return pgMutationError("insert transfer", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return pgMutationError("commit transfer", err)
	}
	return nil
}

// compensateDebit returns the already committed debit to the source
// wallet. Failure leaves an orphaned debit and is loud about it.
func (s *TransferServiceImpl) compensateDebit(ctx context.Context, transfer *domain.PixTransfer) {
	refund := ports.MutationRequest{
		WalletID:      transfer.FromWalletID,
		Amount:        transfer.Amount,
		Description:   "Pix credit - " + transfer.RefundTransactionID(),
		TransactionID: transfer.RefundTransactionID(),
	}
	if _, err := s.wallets.CreditLocked(ctx, refund); err != nil {
		s.log.Error().
			Err(err).
			Str("end_to_end_id", transfer.EndToEndID).
			Int64("amount_cents", transfer.Amount.Cents).
			Msg("compensating credit failed, source debit is orphaned")
		return
	}
	s.log.Info().
		Str("end_to_end_id", transfer.EndToEndID).
		Int64("amount_cents", transfer.Amount.Cents).
		Msg("source debit compensated")
}

func (s *TransferServiceImpl) lookupAfterConflict(ctx context.Context, req ports.CreateTransferRequest) (*domain.PixTransfer, error) {
	existing, err := s.transferRepo.GetByEndToEndID(ctx, req.EndToEndID)
	if err == nil && existing == nil {
		existing, err = s.transferRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load transfer after conflict: %w", err))
	}
	if existing == nil {
		return nil, apperror.ErrIllegalState("transfer should exist after constraint violation")
	}
	return existing, nil
}

// ledgerEffect is the credit a terminal transition applies: the
// destination wallet on CONFIRMED, the source wallet on REJECTED.
type ledgerEffect struct {
	walletID      uuid.UUID
	transactionID string
	description   string
}

// TransitionTo moves endToEndID to target and applies the ledger effect
// in the same transaction as the status write. Returns false when the
// transfer is unknown or already terminal; the caller absorbs such
// events.
func (s *TransferServiceImpl) TransitionTo(ctx context.Context, endToEndID string, target domain.PixTransferStatus, reason string) (bool, error) {
	if target != domain.PixTransferStatusConfirmed && target != domain.PixTransferStatusRejected {
		s.log.Warn().Str("target", string(target)).Msg("unsupported transition target")
		return false, nil
	}

	current, tracked := s.states.Get(endToEndID)
	if !tracked {
		// The entry expired or another instance created the transfer;
		// the database row is authoritative.
		transfer, err := s.transferRepo.GetByEndToEndID(ctx, endToEndID)
		if err != nil {
			return false, apperror.InternalError(fmt.Errorf("reload transfer state: %w", err))
		}
		if transfer == nil {
			s.log.Warn().Str("end_to_end_id", endToEndID).Msg("transition for unknown transfer absorbed")
			return false, nil
		}
		if transfer.IsTerminal() {
			return false, nil
		}
		s.states.PutIfAbsent(endToEndID, domain.PixTransferStatusPending)
		current = domain.PixTransferStatusPending
	}

	if current != domain.PixTransferStatusPending ||
		!s.states.CompareAndSwap(endToEndID, domain.PixTransferStatusPending, target) {
		s.log.Info().
			Str("end_to_end_id", endToEndID).
			Str("target", string(target)).
			Msg("transfer already settled, transition absorbed")
		return false, nil
	}

	// The CAS is claimed. Every failure path below must either finish
	// the settlement or hand the claim back.
	transfer, err := s.transferRepo.GetByEndToEndID(ctx, endToEndID)
	if err != nil {
		s.states.CompareAndSwap(endToEndID, target, domain.PixTransferStatusPending)
		return false, apperror.InternalError(fmt.Errorf("load transfer: %w", err))
	}
	if transfer == nil {
		s.states.Remove(endToEndID)
		return false, nil
	}

	effect, err := s.resolveEffect(ctx, transfer, target)
	if err != nil {
		s.states.CompareAndSwap(endToEndID, target, domain.PixTransferStatusPending)
		return false, err
	}

	release, err := s.walletLeases.Acquire(ctx, effect.walletID.String(), s.cfg.TransferLeaseTimeout)
	if err != nil {
		s.states.CompareAndSwap(endToEndID, target, domain.PixTransferStatusPending)
		return false, apperror.ErrTransientConflict(err)
	}
	defer release()

	settled, err := s.settleWithRetry(ctx, endToEndID, target, reason, effect)
	if err != nil {
		s.states.CompareAndSwap(endToEndID, target, domain.PixTransferStatusPending)
		return false, err
	}
	if !settled {
		return false, nil
	}

	s.log.Info().
		Str("end_to_end_id", endToEndID).
		Str("status", string(target)).
		Str("credited_wallet_id", effect.walletID.String()).
		Msg("transfer settled")

	return true, nil
}

// resolveEffect decides which wallet the terminal credit lands on.
func (s *TransferServiceImpl) resolveEffect(ctx context.Context, transfer *domain.PixTransfer, target domain.PixTransferStatus) (ledgerEffect, error) {
	if target == domain.PixTransferStatusRejected {
		refundID := transfer.RefundTransactionID()
		return ledgerEffect{
			walletID:      transfer.FromWalletID,
			transactionID: refundID,
			description:   "Pix credit - " + refundID,
		}, nil
	}

	key, err := s.keyRepo.GetActiveByValue(ctx, transfer.ToPixKey)
	if err != nil {
		return ledgerEffect{}, apperror.InternalError(fmt.Errorf("resolve destination key: %w", err))
	}
	if key == nil {
		return ledgerEffect{}, apperror.ErrDestinationNotFound(transfer.ToPixKey)
	}
	return ledgerEffect{
		walletID:      key.WalletID,
		transactionID: transfer.EndToEndID,
		description:   "Pix credit - " + transfer.EndToEndID,
	}, nil
}

// settleWithRetry retries the settlement transaction on version
// conflicts and serialization aborts. Returns false when the row turned
// out terminal or gone; the state map is already resynchronized then.
func (s *TransferServiceImpl) settleWithRetry(ctx context.Context, endToEndID string, target domain.PixTransferStatus, reason string, effect ledgerEffect) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		settled, err := s.settleOnce(ctx, endToEndID, target, reason, effect)
		if err == nil {
			return settled, nil
		}
		if !isRetriable(err) {
			return false, err
		}
		lastErr = err

		s.log.Warn().
			Err(err).
			Str("end_to_end_id", endToEndID).
			Int("attempt", attempt).
			Msg("settlement conflicted, retrying")

		if attempt < s.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return false, apperror.ErrTransientConflict(ctx.Err())
			case <-time.After(s.cfg.RetryDelay):
			}
		}
	}
	return false, apperror.ErrTransientConflict(lastErr)
}

// settleOnce runs one settlement attempt: lock the transfer row, write
// the terminal status, credit the effect wallet and append its ledger
// entry, all in one SERIALIZABLE transaction.
func (s *TransferServiceImpl) settleOnce(ctx context.Context, endToEndID string, target domain.PixTransferStatus, reason string, effect ledgerEffect) (bool, error) {
	dbTx, err := s.transactor.BeginSerializable(ctx)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transfer, err := s.transferRepo.GetByEndToEndIDForUpdate(ctx, dbTx, endToEndID)
	if err != nil {
		return false, pgMutationError("lock transfer", err)
	}
	if transfer == nil {
		s.states.Remove(endToEndID)
		return false, nil
	}
	if transfer.IsTerminal() {
		// The in-memory claim was stale; mirror the durable state.
		s.states.Set(endToEndID, transfer.Status)
		return false, nil
	}

	now := s.now()
	if target == domain.PixTransferStatusConfirmed {
		err = transfer.Confirm(now)
	} else {
		err = transfer.Reject(reason, now)
	}
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("apply transition: %w", err))
	}

	if err := s.transferRepo.UpdateStatus(ctx, dbTx, transfer); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return false, err
		}
		return false, pgMutationError("update transfer status", err)
	}

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, effect.walletID)
	if err != nil {
		return false, pgMutationError("lock effect wallet", err)
	}
	if wallet == nil {
		return false, apperror.InternalError(fmt.Errorf("effect wallet vanished: %s", effect.walletID))
	}

	newBalance, err := wallet.ApplyCredit(transfer.Amount)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("apply settlement credit: %w", err))
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance, wallet.Version); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return false, err
		}
		return false, pgMutationError("update effect balance", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Amount:        transfer.Amount,
		Type:          domain.EntryTypeCredit,
		Description:   effect.description,
		TransactionID: effect.transactionID,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}
	if err := s.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		return false, pgMutationError("append settlement entry", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, pgMutationError("commit settlement", err)
	}
	return true, nil
}

// GetByEndToEndID fetches a transfer by its settlement identifier.
// Returns nil when no transfer exists.
func (s *TransferServiceImpl) GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error) {
	transfer, err := s.transferRepo.GetByEndToEndID(ctx, endToEndID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load transfer: %w", err))
	}
	return transfer, nil
}

// GetByIdempotencyKey fetches a transfer by its client idempotency key.
// Returns nil when no transfer exists.
func (s *TransferServiceImpl) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PixTransfer, error) {
	transfer, err := s.transferRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load transfer: %w", err))
	}
	return transfer, nil
}

// Stats snapshots the transfer counters and in-memory footprint.
func (s *TransferServiceImpl) Stats() ports.TransferStats {
	total := s.totalTransfers.Load()
	successful := s.successfulTransfers.Load()
	failed := s.failedTransfers.Load()
	rate := 0.0
	if total > 0 {
		rate = float64(successful) / float64(total) * 100
	}
	return ports.TransferStats{
		TotalTransfers:      total,
		SuccessfulTransfers: successful,
		FailedTransfers:     failed,
		ActiveTransfers:     s.activeTransfers.Load(),
		StatesInMemory:      s.states.Len(),
		WalletLocks:         s.walletLeases.Len(),
		SuccessRate:         rate,
	}
}

// CleanupStates drops expired and terminal state entries.
func (s *TransferServiceImpl) CleanupStates() int {
	evicted := s.states.Cleanup()
	s.log.Info().
		Int("evicted", evicted).
		Int("remaining", s.states.Len()).
		Msg("transfer state cleanup completed")
	return evicted
}

func transferValidationError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAmountNotPositive):
		return apperror.ErrInvalidAmount("")
	case errors.Is(err, domain.ErrAmountAboveLimit):
		return apperror.ErrAmountOutOfRange("")
	default:
		return apperror.Validation(err.Error())
	}
}
