package handler

import (
	"strings"
	"time"

	"pix-wallet-service/internal/adapter/http/dto"
	"pix-wallet-service/internal/adapter/http/middleware"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/apperror"
	"pix-wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey carries the client idempotency key for transfer
// initiation.
const HeaderIdempotencyKey = "Idempotency-Key"

// PixHandler handles transfer initiation and provider webhooks.
type PixHandler struct {
	pixSvc ports.PixService
}

// NewPixHandler creates a new PixHandler.
func NewPixHandler(pixSvc ports.PixService) *PixHandler {
	return &PixHandler{pixSvc: pixSvc}
}

// InitiateTransfer handles POST /pix/transfers. The raw body bytes are
// kept aside before binding: the idempotency layer hashes them to
// detect a key reused with a different payload.
func (h *PixHandler) InitiateTransfer(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" {
		response.Error(c, apperror.Validation("Idempotency-Key header is required"))
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	var req dto.TransferRequest
	if err := binding.JSON.BindBody(raw, &req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	fromWalletID, err := uuid.Parse(req.FromWalletID)
	if err != nil {
		response.Error(c, apperror.Validation("fromWalletId must be a UUID"))
		return
	}

	amount, err := domain.MoneyFromString(req.Amount.String())
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount(""))
		return
	}

	result, err := h.pixSvc.Initiate(c.Request.Context(), ports.InitiateTransferRequest{
		IdempotencyKey: key,
		FromWalletID:   fromWalletID,
		ToPixKey:       strings.TrimSpace(req.ToPixKey),
		Amount:         amount,
		RequestBody:    raw,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Created {
		middleware.RecordTransfer(string(result.Transfer.Status))
		response.Created(c, toTransferResponse(result.Transfer))
		return
	}
	response.OK(c, toTransferResponse(result.Transfer))
}

// HandleWebhook handles POST /pix/webhook. Settlement events are
// forgiving on the wire: duplicates, unknown event types and events for
// already-settled transfers all acknowledge with 200 so the provider
// stops retrying.
func (h *PixHandler) HandleWebhook(c *gin.Context) {
	var req dto.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	transitioned, err := h.pixSvc.HandleWebhook(c.Request.Context(), domain.WebhookEvent{
		EventID:    req.EventID,
		EndToEndID: req.EndToEndID,
		EventType:  req.EventType,
		Reason:     req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	ack := dto.WebhookAck{EndToEndID: req.EndToEndID, Status: "ABSORBED"}
	if transfer, err := h.pixSvc.FindByEndToEndID(c.Request.Context(), req.EndToEndID); err == nil && transfer != nil {
		ack.Status = string(transfer.Status)
		// Absorbed redeliveries must not inflate the settlement counter.
		if transitioned {
			middleware.RecordTransfer(string(transfer.Status))
		}
	}
	response.OK(c, ack)
}

func toTransferResponse(t *domain.PixTransfer) dto.TransferResponse {
	return dto.TransferResponse{
		ID:              t.ID.String(),
		EndToEndID:      t.EndToEndID,
		IdempotencyKey:  t.IdempotencyKey,
		FromWalletID:    t.FromWalletID.String(),
		ToPixKey:        t.ToPixKey,
		Amount:          dto.MoneyPayload{Cents: t.Amount.Cents},
		Status:          string(t.Status),
		RejectionReason: t.RejectionReason,
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.UTC().Format(time.RFC3339),
		ConfirmedAt:     formatTimePtr(t.ConfirmedAt),
		RejectedAt:      formatTimePtr(t.RejectedAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
