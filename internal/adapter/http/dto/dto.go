package dto

import (
	"encoding/json"
	"time"
)

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	UserID string `json:"userId" binding:"required,min=1,max=100"`
}

// RegisterPixKeyRequest is the request body for attaching a Pix key.
type RegisterPixKeyRequest struct {
	KeyValue string `json:"keyValue" binding:"required,max=140"`
	KeyType  string `json:"keyType" binding:"required,pix_key_type"`
}

// MutationRequest is the request body for deposits and withdrawals.
// Amount is a major-unit decimal; json.Number keeps it away from
// float64 on the way in.
type MutationRequest struct {
	Amount      json.Number `json:"amount" binding:"required"`
	Description string      `json:"description,omitempty" binding:"omitempty,max=255"`
}

// TransferRequest is the request body for Pix transfer initiation.
// The idempotency key travels in the Idempotency-Key header, not here.
type TransferRequest struct {
	FromWalletID string      `json:"fromWalletId" binding:"required,uuid"`
	ToPixKey     string      `json:"toPixKey" binding:"required,max=140"`
	Amount       json.Number `json:"amount" binding:"required"`
}

// WebhookRequest is the provider settlement notification body.
// OccurredAt is accepted for audit purposes; settlement ordering is
// decided by the transfer state machine, not by event timestamps.
type WebhookRequest struct {
	EndToEndID string     `json:"endToEndId" binding:"required,max=64"`
	EventID    string     `json:"eventId" binding:"required,max=100"`
	EventType  string     `json:"eventType" binding:"required,max=32"`
	Reason     string     `json:"reason,omitempty" binding:"omitempty,max=255"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

// MoneyPayload renders an exact minor-unit amount.
type MoneyPayload struct {
	Cents int64 `json:"cents"`
}

// WalletResponse is the wallet resource representation.
type WalletResponse struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Balance   MoneyPayload `json:"balance"`
	Version   int64        `json:"version"`
	CreatedAt string       `json:"createdAt"`
	UpdatedAt string       `json:"updatedAt"`
}

// PixKeyResponse is the Pix key resource representation.
type PixKeyResponse struct {
	ID        string `json:"id"`
	WalletID  string `json:"walletId"`
	KeyValue  string `json:"keyValue"`
	KeyType   string `json:"keyType"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt"`
}

// BalanceResponse reports a wallet balance in major units at a point
// in time.
type BalanceResponse struct {
	WalletID  string  `json:"walletId"`
	Balance   float64 `json:"balance"`
	Timestamp string  `json:"timestamp"`
}

// MutationResponse reports the outcome of a deposit or withdrawal.
type MutationResponse struct {
	WalletID      string  `json:"walletId"`
	Balance       float64 `json:"balance"`
	TransactionID string  `json:"transactionId"`
}

// TransferResponse is the transfer resource representation.
type TransferResponse struct {
	ID              string       `json:"id"`
	EndToEndID      string       `json:"endToEndId"`
	IdempotencyKey  string       `json:"idempotencyKey"`
	FromWalletID    string       `json:"fromWalletId"`
	ToPixKey        string       `json:"toPixKey"`
	Amount          MoneyPayload `json:"amount"`
	Status          string       `json:"status"`
	RejectionReason *string      `json:"rejectionReason,omitempty"`
	CreatedAt       string       `json:"createdAt"`
	UpdatedAt       string       `json:"updatedAt"`
	ConfirmedAt     *string      `json:"confirmedAt,omitempty"`
	RejectedAt      *string      `json:"rejectedAt,omitempty"`
}

// WebhookAck acknowledges a webhook delivery. Duplicate and unknown
// events receive the same body as first deliveries.
type WebhookAck struct {
	EndToEndID string `json:"endToEndId"`
	Status     string `json:"status"`
}

// LedgerEntryResponse is one immutable ledger line.
type LedgerEntryResponse struct {
	ID            string       `json:"id"`
	WalletID      string       `json:"walletId"`
	Amount        MoneyPayload `json:"amount"`
	Type          string       `json:"type"`
	Description   string       `json:"description,omitempty"`
	TransactionID string       `json:"transactionId"`
	BalanceAfter  MoneyPayload `json:"balanceAfter"`
	CreatedAt     string       `json:"createdAt"`
}

// WalletStatsPayload mirrors the wallet engine counters.
type WalletStatsPayload struct {
	WalletsCreated       int64 `json:"walletsCreated"`
	DepositsProcessed    int64 `json:"depositsProcessed"`
	WithdrawalsProcessed int64 `json:"withdrawalsProcessed"`
	PixKeysRegistered    int64 `json:"pixKeysRegistered"`
	ActiveLocks          int   `json:"activeLocks"`
	TotalOperations      int64 `json:"totalOperations"`
}

// TransferStatsPayload mirrors the transfer pipeline counters.
type TransferStatsPayload struct {
	TotalTransfers      int64   `json:"totalTransfers"`
	SuccessfulTransfers int64   `json:"successfulTransfers"`
	FailedTransfers     int64   `json:"failedTransfers"`
	ActiveTransfers     int64   `json:"activeTransfers"`
	StatesInMemory      int     `json:"statesInMemory"`
	WalletLocks         int     `json:"walletLocks"`
	SuccessRate         float64 `json:"successRate"`
}

// IdempotencyStatsPayload mirrors the idempotency layer counters.
type IdempotencyStatsPayload struct {
	CacheSize         int  `json:"cacheSize"`
	LockCount         int  `json:"lockCount"`
	CleanupInProgress bool `json:"cleanupInProgress"`
}

// WebhookStatsPayload mirrors the webhook delivery counters.
type WebhookStatsPayload struct {
	TotalEvents     int64   `json:"totalEvents"`
	DuplicateEvents int64   `json:"duplicateEvents"`
	UniqueEvents    int64   `json:"uniqueEvents"`
	DuplicateRate   float64 `json:"duplicateRate"`
}

// AtomicStatsResponse is one aggregated monitoring snapshot.
type AtomicStatsResponse struct {
	Timestamp               string                  `json:"timestamp"`
	MonitoringRequestNumber int64                   `json:"monitoringRequestNumber"`
	WalletStats             WalletStatsPayload      `json:"walletStats"`
	TransferStats           TransferStatsPayload    `json:"transferStats"`
	IdempotencyStats        IdempotencyStatsPayload `json:"idempotencyStats"`
	WebhookStats            WebhookStatsPayload     `json:"webhookStats"`
}

// SystemHealthResponse is the derived health view of the service.
type SystemHealthResponse struct {
	SystemLoad       float64 `json:"systemLoad"`
	ConcurrencyLevel int64   `json:"concurrencyLevel"`
	ErrorRate        float64 `json:"errorRate"`
	SuccessRate      float64 `json:"successRate"`
	HealthStatus     string  `json:"healthStatus"`
	Timestamp        string  `json:"timestamp"`
}

// CleanupResponse reports one on-demand cleanup pass.
type CleanupResponse struct {
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	DurationMS     int64  `json:"durationMs"`
	ExpiredRecords int64  `json:"expiredRecords"`
	EvictedStates  int    `json:"evictedStates"`
	ReleasedLocks  int    `json:"releasedLocks"`
	Message        string `json:"message"`
}
