package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/internal/core/ports/mocks"
	"pix-wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type pixTestDeps struct {
	svc       *PixServiceImpl
	transfers *mocks.MockTransferService
	idemp     *mocks.MockIdempotencyService
	keyRepo   *mocks.MockPixKeyRepository
	ctrl      *gomock.Controller
}

func setupPixService(t *testing.T) *pixTestDeps {
	ctrl := gomock.NewController(t)
	d := &pixTestDeps{
		transfers: mocks.NewMockTransferService(ctrl),
		idemp:     mocks.NewMockIdempotencyService(ctrl),
		keyRepo:   mocks.NewMockPixKeyRepository(ctrl),
		ctrl:      ctrl,
	}
	d.svc = NewPixService(d.transfers, d.idemp, d.keyRepo, testPixConfig(), zerolog.Nop())
	return d
}

func initiateRequest(fromID uuid.UUID) ports.InitiateTransferRequest {
	return ports.InitiateTransferRequest{
		IdempotencyKey: "key-1",
		FromWalletID:   fromID,
		ToPixKey:       "dest@example.com",
		Amount:         domain.NewMoney(10000),
		RequestBody:    []byte(`{"fromWalletId":"a","toPixKey":"dest@example.com","amount":100.00}`),
	}
}

// ==================== Initiate Tests ====================

func TestPixService_Initiate_CreatesTransfer(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	fromID := uuid.New()
	req := initiateRequest(fromID)

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(nil, nil)
	d.transfers.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.keyRepo.EXPECT().GetActiveByValue(ctx, "dest@example.com").Return(&domain.PixKey{
		ID: uuid.New(), WalletID: uuid.New(), KeyValue: "dest@example.com", Active: true,
	}, nil)
	d.transfers.EXPECT().CreateTransfer(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, creq ports.CreateTransferRequest) (*domain.PixTransfer, error) {
			assert.Len(t, creq.EndToEndID, 32)
			assert.True(t, strings.HasPrefix(creq.EndToEndID, "E"))
			assert.Equal(t, "key-1", creq.IdempotencyKey)
			assert.Equal(t, fromID, creq.FromWalletID)
			assert.Equal(t, int64(10000), creq.Amount.Cents)
			tr := newPendingTransfer(creq.EndToEndID, creq.FromWalletID, creq.Amount.Cents)
			tr.IdempotencyKey = creq.IdempotencyKey
			return tr, nil
		})
	d.idemp.EXPECT().SaveFirst(ctx, domain.IdempotencyScopeTransfer, "key-1",
		req.RequestBody, gomock.Any(), http.StatusCreated).Return(nil, nil)

	result, err := d.svc.Initiate(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Created)
	assert.Equal(t, domain.PixTransferStatusPending, result.Transfer.Status)
}

func TestPixService_Initiate_ReplaysExistingTransfer(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	fromID := uuid.New()
	req := initiateRequest(fromID)
	existing := newPendingTransfer(testEndToEndID, fromID, 10000)

	// The idempotency record was lost but the transfer row survived; the
	// row stays the arbiter.
	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(nil, nil)
	d.transfers.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(existing, nil)

	result, err := d.svc.Initiate(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, existing.ID, result.Transfer.ID)
}

func TestPixService_Initiate_KeyReuseWithDifferentPayload(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	req := initiateRequest(uuid.New())

	stored := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "key-1",
		[]byte(`{"amount":999.99}`), nil, http.StatusCreated, time.Now().UTC())
	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(stored, nil)

	_, err := d.svc.Initiate(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeIllegalState))
}

func TestPixService_Initiate_DestinationNotFound(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	req := initiateRequest(uuid.New())

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(nil, nil)
	d.transfers.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.keyRepo.EXPECT().GetActiveByValue(ctx, "dest@example.com").Return(nil, nil)

	_, err := d.svc.Initiate(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeDestinationNotFound))
}

func TestPixService_Initiate_RetriesTransientConflict(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	fromID := uuid.New()
	req := initiateRequest(fromID)

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(nil, nil)
	d.transfers.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.keyRepo.EXPECT().GetActiveByValue(ctx, "dest@example.com").Return(&domain.PixKey{
		ID: uuid.New(), WalletID: uuid.New(), Active: true,
	}, nil)

	var attemptIDs []string
	d.transfers.EXPECT().CreateTransfer(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, creq ports.CreateTransferRequest) (*domain.PixTransfer, error) {
			attemptIDs = append(attemptIDs, creq.EndToEndID)
			return nil, apperror.ErrTransientConflict(errors.New("wallet lease timed out"))
		})
	d.transfers.EXPECT().CreateTransfer(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, creq ports.CreateTransferRequest) (*domain.PixTransfer, error) {
			attemptIDs = append(attemptIDs, creq.EndToEndID)
			tr := newPendingTransfer(creq.EndToEndID, creq.FromWalletID, creq.Amount.Cents)
			tr.IdempotencyKey = creq.IdempotencyKey
			return tr, nil
		})
	d.idemp.EXPECT().SaveFirst(ctx, domain.IdempotencyScopeTransfer, "key-1",
		req.RequestBody, gomock.Any(), http.StatusCreated).Return(nil, nil)

	result, err := d.svc.Initiate(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Created)

	// Each attempt gets a fresh settlement identifier.
	require.Len(t, attemptIDs, 2)
	assert.NotEqual(t, attemptIDs[0], attemptIDs[1])
}

func TestPixService_Initiate_AdoptedWinnerIsNotCreated(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	fromID := uuid.New()
	req := initiateRequest(fromID)

	// A concurrent initiation with the same key won; its row is adopted
	// and no idempotency record is written for this attempt.
	winner := newPendingTransfer("E17566128000009999999999ffffffff", fromID, 10000)

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(nil, nil)
	d.transfers.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.keyRepo.EXPECT().GetActiveByValue(ctx, "dest@example.com").Return(&domain.PixKey{
		ID: uuid.New(), WalletID: uuid.New(), Active: true,
	}, nil)
	d.transfers.EXPECT().CreateTransfer(ctx, gomock.Any()).Return(winner, nil)

	result, err := d.svc.Initiate(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, winner.ID, result.Transfer.ID)
}

func TestPixService_Initiate_NonRetriableFailureSurfaces(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	req := initiateRequest(uuid.New())

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeTransfer, "key-1").Return(nil, nil)
	d.transfers.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.keyRepo.EXPECT().GetActiveByValue(ctx, "dest@example.com").Return(&domain.PixKey{
		ID: uuid.New(), WalletID: uuid.New(), Active: true,
	}, nil)
	d.transfers.EXPECT().CreateTransfer(ctx, gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds())

	_, err := d.svc.Initiate(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientFunds))
}

// ==================== HandleWebhook Tests ====================

func TestPixService_HandleWebhook_Settles(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeWebhook, "evt-1").Return(nil, nil)
	d.transfers.EXPECT().TransitionTo(ctx, testEndToEndID, domain.PixTransferStatusConfirmed,
		"Processed via webhook event: evt-1").Return(true, nil)
	d.idemp.EXPECT().SaveFirst(ctx, domain.IdempotencyScopeWebhook, "evt-1",
		[]byte(testEndToEndID), []byte("processed"), http.StatusOK).Return(nil, nil)

	transitioned, err := d.svc.HandleWebhook(ctx, domain.WebhookEvent{
		EventID:    "evt-1",
		EndToEndID: testEndToEndID,
		EventType:  "CONFIRMED",
	})
	require.NoError(t, err)
	assert.True(t, transitioned)

	stats := d.svc.WebhookStats()
	assert.Equal(t, int64(1), stats.TotalEvents)
	assert.Equal(t, int64(0), stats.DuplicateEvents)
	assert.Equal(t, int64(1), stats.UniqueEvents)
}

func TestPixService_HandleWebhook_RejectionCarriesReason(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeWebhook, "evt-2").Return(nil, nil)
	d.transfers.EXPECT().TransitionTo(ctx, testEndToEndID, domain.PixTransferStatusRejected,
		"DESTINATION_OFFLINE").Return(true, nil)
	d.idemp.EXPECT().SaveFirst(ctx, domain.IdempotencyScopeWebhook, "evt-2",
		[]byte(testEndToEndID), []byte("processed"), http.StatusOK).Return(nil, nil)

	transitioned, err := d.svc.HandleWebhook(ctx, domain.WebhookEvent{
		EventID:    "evt-2",
		EndToEndID: testEndToEndID,
		EventType:  "REJECTED",
		Reason:     "DESTINATION_OFFLINE",
	})
	require.NoError(t, err)
	assert.True(t, transitioned)
}

func TestPixService_HandleWebhook_DuplicateAbsorbed(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	gomock.InOrder(
		d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeWebhook, "evt-1").Return(nil, nil),
		d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeWebhook, "evt-1").Return(
			domain.NewIdempotencyRecord(domain.IdempotencyScopeWebhook, "evt-1",
				[]byte(testEndToEndID), []byte("processed"), http.StatusOK, time.Now().UTC()), nil),
	)
	// Only the first delivery reaches the transfer pipeline.
	d.transfers.EXPECT().TransitionTo(ctx, testEndToEndID, domain.PixTransferStatusConfirmed, gomock.Any()).Return(true, nil)
	d.idemp.EXPECT().SaveFirst(ctx, domain.IdempotencyScopeWebhook, "evt-1",
		gomock.Any(), gomock.Any(), http.StatusOK).Return(nil, nil)

	event := domain.WebhookEvent{EventID: "evt-1", EndToEndID: testEndToEndID, EventType: "CONFIRMED"}
	first, err := d.svc.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.True(t, first)

	// The redelivery settles nothing.
	second, err := d.svc.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.False(t, second)

	stats := d.svc.WebhookStats()
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.DuplicateEvents)
	assert.Equal(t, int64(1), stats.UniqueEvents)
	assert.InDelta(t, 50.0, stats.DuplicateRate, 0.001)
}

func TestPixService_HandleWebhook_UnknownEventTypeDropped(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeWebhook, "evt-3").Return(nil, nil)

	transitioned, err := d.svc.HandleWebhook(ctx, domain.WebhookEvent{
		EventID:    "evt-3",
		EndToEndID: testEndToEndID,
		EventType:  "SETTLED",
	})
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestPixService_HandleWebhook_AbsorbedTransitionStillDeduped(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	d.idemp.EXPECT().Find(ctx, domain.IdempotencyScopeWebhook, "evt-4").Return(nil, nil)
	d.transfers.EXPECT().TransitionTo(ctx, testEndToEndID, domain.PixTransferStatusConfirmed, gomock.Any()).
		Return(false, nil)
	d.idemp.EXPECT().SaveFirst(ctx, domain.IdempotencyScopeWebhook, "evt-4",
		gomock.Any(), gomock.Any(), http.StatusOK).Return(nil, nil)

	transitioned, err := d.svc.HandleWebhook(ctx, domain.WebhookEvent{
		EventID:    "evt-4",
		EndToEndID: testEndToEndID,
		EventType:  "CONFIRMED",
	})
	require.NoError(t, err)
	assert.False(t, transitioned)
}

// ==================== Lookup Tests ====================

func TestPixService_FindByEndToEndID(t *testing.T) {
	d := setupPixService(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	transfer := newPendingTransfer(testEndToEndID, uuid.New(), 10000)

	d.transfers.EXPECT().GetByEndToEndID(ctx, testEndToEndID).Return(transfer, nil)

	got, err := d.svc.FindByEndToEndID(ctx, testEndToEndID)
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, got.ID)
}
