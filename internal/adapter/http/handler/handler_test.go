package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pix-wallet-service/internal/adapter/http/middleware"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/internal/core/ports/mocks"
	"pix-wallet-service/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func postJSON(c *gin.Context, path string, body string) {
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// --- Wallet Handler Tests ---

func TestCreateWallet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	now := time.Now()
	walletID := uuid.New()
	mockWallet.EXPECT().CreateWallet(gomock.Any(), "user-1").Return(&domain.Wallet{
		ID:        walletID,
		UserID:    "user-1",
		Balance:   domain.Money{Cents: 0},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/wallets", `{"userId":"user-1"}`)

	h.CreateWallet(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, walletID.String(), resp["id"])
	assert.Equal(t, "user-1", resp["userId"])
	balance := resp["balance"].(map[string]interface{})
	assert.Equal(t, float64(0), balance["cents"])
	assert.Equal(t, float64(1), resp["version"])
}

func TestCreateWallet_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/wallets", `{}`)

	h.CreateWallet(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeValidationError, resp["error_code"])
	assert.NotEmpty(t, resp["request_id"])
}

func TestCreateWallet_DuplicateUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	mockWallet.EXPECT().CreateWallet(gomock.Any(), "user-1").Return(nil, apperror.ErrDuplicateUser("user-1"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/wallets", `{"userId":"user-1"}`)

	h.CreateWallet(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeDuplicateUser, resp["error_code"])
}

func TestRegisterPixKey_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	keyID := uuid.New()
	mockWallet.EXPECT().
		RegisterPixKey(gomock.Any(), walletID, "user@example.com", domain.PixKeyTypeEmail).
		Return(&domain.PixKey{
			ID:        keyID,
			WalletID:  walletID,
			KeyValue:  "user@example.com",
			KeyType:   domain.PixKeyTypeEmail,
			Active:    true,
			CreatedAt: time.Now(),
		}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	postJSON(c, "/wallets/"+walletID.String()+"/pix-keys", `{"keyValue":"user@example.com","keyType":"EMAIL"}`)

	h.RegisterPixKey(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, keyID.String(), resp["id"])
	assert.Equal(t, "user@example.com", resp["keyValue"])
	assert.Equal(t, "EMAIL", resp["keyType"])
	assert.Equal(t, true, resp["active"])
}

func TestRegisterPixKey_BadWalletID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	postJSON(c, "/wallets/not-a-uuid/pix-keys", `{"keyValue":"user@example.com","keyType":"EMAIL"}`)

	h.RegisterPixKey(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeValidationError, resp["error_code"])
}

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	mockWallet.EXPECT().GetBalance(gomock.Any(), walletID).Return(domain.Money{Cents: 12345}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/wallets/"+walletID.String()+"/balance", nil)

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, walletID.String(), resp["walletId"])
	assert.Equal(t, 123.45, resp["balance"])
	assert.NotEmpty(t, resp["timestamp"])
}

func TestGetBalance_At(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	at, _ := time.Parse(time.RFC3339, "2026-01-02T15:04:05Z")
	mockWallet.EXPECT().GetBalanceAt(gomock.Any(), walletID, at).Return(domain.Money{Cents: 5000}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/wallets/"+walletID.String()+"/balance?at=2026-01-02T15:04:05Z", nil)

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, float64(50), resp["balance"])
}

func TestGetBalance_BadAtParam(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/wallets/"+walletID.String()+"/balance?at=yesterday", nil)

	h.GetBalance(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeValidationError, resp["error_code"])
}

func TestGetBalance_WalletNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	mockWallet.EXPECT().GetBalance(gomock.Any(), walletID).
		Return(domain.Money{}, apperror.ErrWalletNotFound(walletID.String()))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/wallets/"+walletID.String()+"/balance", nil)

	h.GetBalance(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeWalletNotFound, resp["error_code"])
}

func TestDeposit_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	mockWallet.EXPECT().Deposit(gomock.Any(), ports.MutationRequest{
		WalletID:    walletID,
		Amount:      domain.Money{Cents: 10050},
		Description: "top up",
	}).Return(&domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        domain.Money{Cents: 10050},
		Type:          domain.EntryTypeCredit,
		Description:   "top up",
		TransactionID: "tx-1",
		BalanceAfter:  domain.Money{Cents: 10050},
		CreatedAt:     time.Now(),
	}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	postJSON(c, "/wallets/"+walletID.String()+"/deposit", `{"amount":100.50,"description":"top up"}`)

	h.Deposit(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, walletID.String(), resp["walletId"])
	assert.Equal(t, 100.5, resp["balance"])
	assert.Equal(t, "tx-1", resp["transactionId"])
}

func TestDeposit_NonNumericAmountRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	postJSON(c, "/wallets/"+walletID.String()+"/deposit", `{"amount":"lots"}`)

	h.Deposit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeValidationError, resp["error_code"])
}

func TestDeposit_ExponentAmountRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	postJSON(c, "/wallets/"+walletID.String()+"/deposit", `{"amount":1e3}`)

	h.Deposit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeInvalidAmount, resp["error_code"])
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	mockWallet.EXPECT().Withdraw(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientFunds())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	postJSON(c, "/wallets/"+walletID.String()+"/withdraw", `{"amount":50.00}`)

	h.Withdraw(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeInsufficientFunds, resp["error_code"])
}

func TestGetLedger_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	walletID := uuid.New()
	entries := []domain.LedgerEntry{
		{ID: uuid.New(), WalletID: walletID, Amount: domain.Money{Cents: 1000}, Type: domain.EntryTypeCredit, TransactionID: "tx-1", BalanceAfter: domain.Money{Cents: 1000}, CreatedAt: time.Now()},
		{ID: uuid.New(), WalletID: walletID, Amount: domain.Money{Cents: -300}, Type: domain.EntryTypeDebit, TransactionID: "tx-2", BalanceAfter: domain.Money{Cents: 700}, CreatedAt: time.Now()},
	}
	mockWallet.EXPECT().GetLedger(gomock.Any(), walletID, 10).Return(entries, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/wallets/"+walletID.String()+"/ledger?limit=10", nil)

	h.GetLedger(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "CREDIT", resp[0]["type"])
	assert.Equal(t, "DEBIT", resp[1]["type"])
}

// --- Pix Handler Tests ---

func pendingTransfer(walletID uuid.UUID) *domain.PixTransfer {
	return &domain.PixTransfer{
		ID:             uuid.New(),
		EndToEndID:     "E2026082512345678901234567890123",
		IdempotencyKey: "idem-1",
		FromWalletID:   walletID,
		ToPixKey:       "user@example.com",
		Amount:         domain.Money{Cents: 10000},
		Status:         domain.PixTransferStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func TestInitiateTransfer_MissingIdempotencyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/transfers", `{"fromWalletId":"`+uuid.NewString()+`","toPixKey":"user@example.com","amount":100}`)

	h.InitiateTransfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeValidationError, resp["error_code"])
	assert.Contains(t, resp["message"], "Idempotency-Key")
}

func TestInitiateTransfer_Created(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	walletID := uuid.New()
	transfer := pendingTransfer(walletID)

	mockPix.EXPECT().Initiate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.InitiateTransferRequest) (*ports.TransferResult, error) {
			assert.Equal(t, "idem-1", req.IdempotencyKey)
			assert.Equal(t, walletID, req.FromWalletID)
			assert.Equal(t, "user@example.com", req.ToPixKey)
			assert.Equal(t, int64(10000), req.Amount.Cents)
			assert.NotEmpty(t, req.RequestBody)
			return &ports.TransferResult{Transfer: transfer, Created: true}, nil
		},
	)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/transfers", `{"fromWalletId":"`+walletID.String()+`","toPixKey":"user@example.com","amount":100.00}`)
	c.Request.Header.Set(HeaderIdempotencyKey, "idem-1")

	h.InitiateTransfer(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, transfer.EndToEndID, resp["endToEndId"])
	assert.Equal(t, "PENDING", resp["status"])
	amount := resp["amount"].(map[string]interface{})
	assert.Equal(t, float64(10000), amount["cents"])
}

func TestInitiateTransfer_ReplayReturns200(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	walletID := uuid.New()
	transfer := pendingTransfer(walletID)
	mockPix.EXPECT().Initiate(gomock.Any(), gomock.Any()).
		Return(&ports.TransferResult{Transfer: transfer, Created: false}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/transfers", `{"fromWalletId":"`+walletID.String()+`","toPixKey":"user@example.com","amount":100.00}`)
	c.Request.Header.Set(HeaderIdempotencyKey, "idem-1")

	h.InitiateTransfer(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, transfer.EndToEndID, resp["endToEndId"])
}

func TestInitiateTransfer_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	walletID := uuid.New()
	mockPix.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientFunds())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/transfers", `{"fromWalletId":"`+walletID.String()+`","toPixKey":"user@example.com","amount":100.00}`)
	c.Request.Header.Set(HeaderIdempotencyKey, "idem-1")

	h.InitiateTransfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeInsufficientFunds, resp["error_code"])
}

func TestHandleWebhook_Confirmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	walletID := uuid.New()
	transfer := pendingTransfer(walletID)
	now := time.Now()
	require.NoError(t, transfer.Confirm(now))

	mockPix.EXPECT().HandleWebhook(gomock.Any(), domain.WebhookEvent{
		EventID:    "evt-1",
		EndToEndID: transfer.EndToEndID,
		EventType:  "CONFIRMED",
	}).Return(true, nil)
	mockPix.EXPECT().FindByEndToEndID(gomock.Any(), transfer.EndToEndID).Return(transfer, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/webhook", `{"endToEndId":"`+transfer.EndToEndID+`","eventId":"evt-1","eventType":"CONFIRMED"}`)

	h.HandleWebhook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, transfer.EndToEndID, resp["endToEndId"])
	assert.Equal(t, "CONFIRMED", resp["status"])
}

func TestHandleWebhook_UnknownTransferAbsorbed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	mockPix.EXPECT().HandleWebhook(gomock.Any(), gomock.Any()).Return(false, nil)
	mockPix.EXPECT().FindByEndToEndID(gomock.Any(), "E9999").Return(nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/webhook", `{"endToEndId":"E9999","eventId":"evt-x","eventType":"CONFIRMED"}`)

	h.HandleWebhook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "ABSORBED", resp["status"])
}

// A redelivered settlement event acks with the transfer's status but
// must not count another settlement.
func TestHandleWebhook_RedeliveryDoesNotCountSettlement(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	walletID := uuid.New()
	transfer := pendingTransfer(walletID)
	require.NoError(t, transfer.Confirm(time.Now()))

	counter := middleware.TransfersTotal.WithLabelValues(string(domain.PixTransferStatusConfirmed))
	before := testutil.ToFloat64(counter)

	body := `{"endToEndId":"` + transfer.EndToEndID + `","eventId":"evt-1","eventType":"CONFIRMED"}`

	mockPix.EXPECT().HandleWebhook(gomock.Any(), gomock.Any()).Return(true, nil)
	mockPix.EXPECT().FindByEndToEndID(gomock.Any(), transfer.EndToEndID).Return(transfer, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/webhook", body)
	h.HandleWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	mockPix.EXPECT().HandleWebhook(gomock.Any(), gomock.Any()).Return(false, nil)
	mockPix.EXPECT().FindByEndToEndID(gomock.Any(), transfer.EndToEndID).Return(transfer, nil)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	postJSON(c, "/pix/webhook", body)
	h.HandleWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "CONFIRMED", resp["status"])
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandleWebhook_MissingEventID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPix := mocks.NewMockPixService(ctrl)
	h := NewPixHandler(mockPix)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/pix/webhook", `{"endToEndId":"E1234","eventType":"CONFIRMED"}`)

	h.HandleWebhook(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, apperror.CodeValidationError, resp["error_code"])
}

// --- Monitoring Handler Tests ---

func TestAtomicStats_NumbersRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMon := mocks.NewMockMonitoringService(ctrl)
	h := NewMonitoringHandler(mockMon)

	stats := ports.AtomicStats{
		Wallets:     ports.WalletStats{WalletsCreated: 3, TotalOperations: 9},
		Transfers:   ports.TransferStats{TotalTransfers: 5, SuccessfulTransfers: 4, SuccessRate: 80},
		Idempotency: ports.ProcessingStats{CacheSize: 2},
		Webhooks:    ports.WebhookStats{TotalEvents: 7, DuplicateEvents: 2, UniqueEvents: 5},
	}
	mockMon.EXPECT().AtomicStats().Return(stats).Times(2)

	for i := 1; i <= 2; i++ {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/monitoring/atomic-stats", nil)

		h.AtomicStats(c)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, float64(i), resp["monitoringRequestNumber"])
		wallets := resp["walletStats"].(map[string]interface{})
		assert.Equal(t, float64(3), wallets["walletsCreated"])
		transfers := resp["transferStats"].(map[string]interface{})
		assert.Equal(t, float64(80), transfers["successRate"])
	}
}

func TestSystemHealth_CombinesSuccessRate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMon := mocks.NewMockMonitoringService(ctrl)
	h := NewMonitoringHandler(mockMon)

	mockMon.EXPECT().SystemHealth().Return(ports.SystemHealth{
		SystemLoad:       40,
		ConcurrencyLevel: 4,
		ErrorRate:        10,
		HealthStatus:     "HEALTHY",
	})
	mockMon.EXPECT().AtomicStats().Return(ports.AtomicStats{
		Transfers: ports.TransferStats{SuccessRate: 90},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitoring/system-health", nil)

	h.SystemHealth(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, float64(40), resp["systemLoad"])
	assert.Equal(t, float64(90), resp["successRate"])
	assert.Equal(t, "HEALTHY", resp["healthStatus"])
}

func TestCleanup_ReturnsSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMon := mocks.NewMockMonitoringService(ctrl)
	h := NewMonitoringHandler(mockMon)

	start := time.Now().Add(-50 * time.Millisecond)
	end := time.Now()
	mockMon.EXPECT().Cleanup(gomock.Any()).Return(&ports.CleanupResult{
		StartTime:      start,
		EndTime:        end,
		DurationMS:     50,
		ExpiredRecords: 12,
		EvictedStates:  3,
		ReleasedLocks:  2,
		Message:        "cleanup completed",
	}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/monitoring/cleanup", nil)

	h.Cleanup(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, float64(50), resp["durationMs"])
	assert.Equal(t, float64(12), resp["expiredRecords"])
	assert.Equal(t, "cleanup completed", resp["message"])
}

func TestCleanup_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMon := mocks.NewMockMonitoringService(ctrl)
	h := NewMonitoringHandler(mockMon)

	mockMon.EXPECT().Cleanup(gomock.Any()).Return(nil, errors.New("db down"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/monitoring/cleanup", nil)

	h.Cleanup(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Health Handler Tests ---

func TestHealthCheck_AllHealthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()

	rd := mocks.NewMockHealthChecker(ctrl)
	rd.EXPECT().Ping(gomock.Any()).Return(nil)
	rd.EXPECT().Name().Return("redis").AnyTimes()

	r := gin.New()
	r.GET("/health", HealthCheck(pg, rd))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_DependencyDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))
	pg.EXPECT().Name().Return("postgresql").AnyTimes()

	r := gin.New()
	r.GET("/health", HealthCheck(pg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "degraded", resp["status"])
}
