package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"pix-wallet-service/config"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
)

// PixServiceImpl implements ports.PixService. It translates client
// requests and provider webhooks into transfer-service operations,
// layering request idempotency on top: initiations replay by
// idempotency key, webhook events dedupe by event id.
type PixServiceImpl struct {
	transfers ports.TransferService
	idemp     ports.IdempotencyService
	keyRepo   ports.PixKeyRepository
	cfg       config.PixConfig
	log       zerolog.Logger
	now       func() time.Time

	webhookEvents     atomic.Int64
	duplicateWebhooks atomic.Int64
}

// NewPixService creates a new PixServiceImpl.
func NewPixService(
	transfers ports.TransferService,
	idemp ports.IdempotencyService,
	keyRepo ports.PixKeyRepository,
	cfg config.PixConfig,
	log zerolog.Logger,
) *PixServiceImpl {
	return &PixServiceImpl{
		transfers: transfers,
		idemp:     idemp,
		keyRepo:   keyRepo,
		cfg:       cfg,
		log:       log.With().Str("component", "pix_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Initiate starts a transfer. Re-sending the same idempotency key with
// the same payload returns the already created transfer; reusing the
// key with a different payload is rejected.
func (s *PixServiceImpl) Initiate(ctx context.Context, req ports.InitiateTransferRequest) (*ports.TransferResult, error) {
	record, err := s.idemp.Find(ctx, domain.IdempotencyScopeTransfer, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && !record.MatchesRequest(req.RequestBody) {
		return nil, apperror.ErrIllegalState("idempotency key reused with a different payload: " + req.IdempotencyKey)
	}

	existing, err := s.transfers.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Info().
			Str("idempotency_key", req.IdempotencyKey).
			Str("end_to_end_id", existing.EndToEndID).
			Msg("idempotent replay of transfer initiation")
		return &ports.TransferResult{Transfer: existing, Created: false}, nil
	}

	destination, err := s.keyRepo.GetActiveByValue(ctx, req.ToPixKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve destination key: %w", err))
	}
	if destination == nil {
		return nil, apperror.ErrDestinationNotFound(req.ToPixKey)
	}

	transfer, endToEndID, err := s.createWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	// The returned row carries this attempt's endToEndID only when the
	// insert won; an adopted winner means some concurrent initiation
	// created the transfer first.
	created := transfer.EndToEndID == endToEndID
	if created {
		s.recordInitiation(ctx, req, transfer)
	}
	return &ports.TransferResult{Transfer: transfer, Created: created}, nil
}

func (s *PixServiceImpl) createWithRetry(ctx context.Context, req ports.InitiateTransferRequest) (*domain.PixTransfer, string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		endToEndID := domain.NewEndToEndID(s.now())
		transfer, err := s.transfers.CreateTransfer(ctx, ports.CreateTransferRequest{
			EndToEndID:     endToEndID,
			IdempotencyKey: req.IdempotencyKey,
			FromWalletID:   req.FromWalletID,
			ToPixKey:       req.ToPixKey,
			Amount:         req.Amount,
		})
		if err == nil {
			return transfer, endToEndID, nil
		}
		if !initiateRetriable(err) {
			return nil, "", err
		}
		lastErr = err

		s.log.Warn().
			Err(err).
			Str("idempotency_key", req.IdempotencyKey).
			Int("attempt", attempt).
			Msg("transfer creation conflicted, retrying")

		if attempt < s.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, "", apperror.ErrTransientConflict(ctx.Err())
			case <-time.After(s.cfg.RetryDelay):
			}
		}
	}
	return nil, "", lastErr
}

// initiateRetriable reports whether a failed creation attempt is worth
// repeating with a fresh endToEndID. The transfer service compensates
// the debit and drops its state entry before surfacing these, so a new
// attempt starts clean.
func initiateRetriable(err error) bool {
	return apperror.IsCode(err, apperror.CodeTransientConflict) ||
		apperror.IsCode(err, apperror.CodeDataIntegrityViolation)
}

// recordInitiation stores the replayable outcome. The transfer row is
// the arbiter of idempotency either way, so a failure here only costs
// a later replay the fast path.
func (s *PixServiceImpl) recordInitiation(ctx context.Context, req ports.InitiateTransferRequest, transfer *domain.PixTransfer) {
	response, err := json.Marshal(transfer)
	if err != nil {
		s.log.Warn().Err(err).Str("end_to_end_id", transfer.EndToEndID).Msg("marshaling transfer for idempotency record failed")
		return
	}
	_, err = s.idemp.SaveFirst(ctx, domain.IdempotencyScopeTransfer, req.IdempotencyKey, req.RequestBody, response, http.StatusCreated)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("idempotency_key", req.IdempotencyKey).
			Str("end_to_end_id", transfer.EndToEndID).
			Msg("recording initiation outcome failed")
	}
}

// HandleWebhook settles a provider event. Duplicate events, unknown
// event types and transitions on missing or already terminal transfers
// are absorbed without error; the provider must not keep redelivering.
// The returned bool is true only when the event moved a transfer to a
// terminal state, so callers can count settlements without counting
// redeliveries.
func (s *PixServiceImpl) HandleWebhook(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	total := s.webhookEvents.Add(1)

	record, err := s.idemp.Find(ctx, domain.IdempotencyScopeWebhook, event.EventID)
	if err != nil {
		return false, err
	}
	if record != nil {
		duplicates := s.duplicateWebhooks.Add(1)
		s.log.Info().
			Str("event_id", event.EventID).
			Str("end_to_end_id", event.EndToEndID).
			Int64("duplicate_events", duplicates).
			Msg("duplicate webhook event absorbed")
		return false, nil
	}

	target, ok := domain.ParseWebhookStatus(event.EventType)
	if !ok {
		s.log.Warn().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Msg("unknown webhook event type dropped")
		return false, nil
	}

	reason := event.Reason
	if reason == "" {
		reason = "Processed via webhook event: " + event.EventID
	}

	transitioned, err := s.transfers.TransitionTo(ctx, event.EndToEndID, target, reason)
	if err != nil {
		return false, err
	}
	if !transitioned {
		s.log.Info().
			Str("event_id", event.EventID).
			Str("end_to_end_id", event.EndToEndID).
			Str("event_type", event.EventType).
			Msg("webhook event absorbed, transfer missing or already terminal")
	}

	if _, err := s.idemp.SaveFirst(ctx, domain.IdempotencyScopeWebhook, event.EventID, []byte(event.EndToEndID), []byte("processed"), http.StatusOK); err != nil {
		return transitioned, err
	}

	s.log.Info().
		Str("event_id", event.EventID).
		Str("end_to_end_id", event.EndToEndID).
		Int64("total_events", total).
		Bool("transitioned", transitioned).
		Msg("webhook event processed")
	return transitioned, nil
}

// FindByEndToEndID returns the transfer, nil when unknown.
func (s *PixServiceImpl) FindByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error) {
	return s.transfers.GetByEndToEndID(ctx, endToEndID)
}

// WebhookStats reports delivery counters since process start.
func (s *PixServiceImpl) WebhookStats() ports.WebhookStats {
	total := s.webhookEvents.Load()
	duplicates := s.duplicateWebhooks.Load()
	stats := ports.WebhookStats{
		TotalEvents:     total,
		DuplicateEvents: duplicates,
		UniqueEvents:    total - duplicates,
	}
	if total > 0 {
		stats.DuplicateRate = float64(duplicates) / float64(total) * 100
	}
	return stats
}
