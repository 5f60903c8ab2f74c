package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"pix-wallet-service/internal/adapter/http/dto"
	"pix-wallet-service/internal/adapter/http/middleware"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/apperror"
	"pix-wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet lifecycle and balance endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// CreateWallet handles POST /wallets.
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	wallet, err := h.walletSvc.CreateWallet(c.Request.Context(), req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toWalletResponse(wallet))
}

// RegisterPixKey handles POST /wallets/:id/pix-keys.
func (h *WalletHandler) RegisterPixKey(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	var req dto.RegisterPixKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	keyType, err := domain.ParsePixKeyType(req.KeyType)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	key, err := h.walletSvc.RegisterPixKey(c.Request.Context(), walletID, strings.TrimSpace(req.KeyValue), keyType)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPixKeyResponse(key))
}

// ListPixKeys handles GET /wallets/:id/pix-keys.
func (h *WalletHandler) ListPixKeys(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	keys, err := h.walletSvc.ListPixKeys(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.PixKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, toPixKeyResponse(&keys[i]))
	}
	response.OK(c, out)
}

// GetBalance handles GET /wallets/:id/balance. An optional ?at=RFC3339
// query replays the ledger for the balance at that instant.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	raw := c.Query("at")
	if raw == "" {
		balance, err := h.walletSvc.GetBalance(c.Request.Context(), walletID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, dto.BalanceResponse{
			WalletID:  walletID.String(),
			Balance:   balance.Float64(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		response.Error(c, apperror.Validation("at must be an RFC3339 timestamp"))
		return
	}

	balance, err := h.walletSvc.GetBalanceAt(c.Request.Context(), walletID, at)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{
		WalletID:  walletID.String(),
		Balance:   balance.Float64(),
		Timestamp: at.UTC().Format(time.RFC3339),
	})
}

// GetLedger handles GET /wallets/:id/ledger. The service caps the page
// size when ?limit is absent or non-positive.
func (h *WalletHandler) GetLedger(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.walletSvc.GetLedger(c.Request.Context(), walletID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toLedgerEntryResponse(&entries[i]))
	}
	response.OK(c, out)
}

// Deposit handles POST /wallets/:id/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	h.mutate(c, h.walletSvc.Deposit)
}

// Withdraw handles POST /wallets/:id/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	h.mutate(c, h.walletSvc.Withdraw)
}

func (h *WalletHandler) mutate(c *gin.Context, op func(context.Context, ports.MutationRequest) (*domain.LedgerEntry, error)) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	var req dto.MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := domain.MoneyFromString(req.Amount.String())
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount(""))
		return
	}

	entry, err := op(c.Request.Context(), ports.MutationRequest{
		WalletID:    walletID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.RecordLedgerEntry(string(entry.Type))
	response.OK(c, dto.MutationResponse{
		WalletID:      entry.WalletID.String(),
		Balance:       entry.BalanceAfter.Float64(),
		TransactionID: entry.TransactionID,
	})
}

// walletIDParam parses the :id path parameter. On failure it writes the
// validation error and reports false.
func walletIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func toWalletResponse(w *domain.Wallet) dto.WalletResponse {
	return dto.WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID,
		Balance:   dto.MoneyPayload{Cents: w.Balance.Cents},
		Version:   w.Version,
		CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: w.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toPixKeyResponse(k *domain.PixKey) dto.PixKeyResponse {
	return dto.PixKeyResponse{
		ID:        k.ID.String(),
		WalletID:  k.WalletID.String(),
		KeyValue:  k.KeyValue,
		KeyType:   string(k.KeyType),
		Active:    k.Active,
		CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toLedgerEntryResponse(e *domain.LedgerEntry) dto.LedgerEntryResponse {
	return dto.LedgerEntryResponse{
		ID:            e.ID.String(),
		WalletID:      e.WalletID.String(),
		Amount:        dto.MoneyPayload{Cents: e.Amount.Cents},
		Type:          string(e.Type),
		Description:   e.Description,
		TransactionID: e.TransactionID,
		BalanceAfter:  dto.MoneyPayload{Cents: e.BalanceAfter.Cents},
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
