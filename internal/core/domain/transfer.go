package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PixTransferStatus is the lifecycle state of a transfer.
// PENDING is the only non-terminal state.
type PixTransferStatus string

const (
	PixTransferStatusPending   PixTransferStatus = "PENDING"
	PixTransferStatusConfirmed PixTransferStatus = "CONFIRMED"
	PixTransferStatusRejected  PixTransferStatus = "REJECTED"
)

// PixTransfer records one outbound transfer from a wallet to a Pix key.
// The source wallet is debited at creation; the terminal state decides
// whether the destination is credited or the source refunded.
type PixTransfer struct {
	ID              uuid.UUID         `json:"id"`
	EndToEndID      string            `json:"endToEndId"`
	IdempotencyKey  string            `json:"idempotencyKey"`
	FromWalletID    uuid.UUID         `json:"fromWalletId"`
	ToPixKey        string            `json:"toPixKey"`
	Amount          Money             `json:"amount"`
	Status          PixTransferStatus `json:"status"`
	RejectionReason *string           `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	ConfirmedAt     *time.Time        `json:"confirmedAt,omitempty"`
	RejectedAt      *time.Time        `json:"rejectedAt,omitempty"`
	Version         int64             `json:"version"`
}

// NewPixTransfer validates inputs and builds a PENDING transfer.
// maxCents bounds the amount; zero or negative selects the default
// Pix limit.
func NewPixTransfer(endToEndID, idempotencyKey string, fromWalletID uuid.UUID, toPixKey string, amount Money, maxCents int64, now time.Time) (*PixTransfer, error) {
	if endToEndID == "" {
		return nil, ErrMissingEndToEndID
	}
	if idempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}
	if fromWalletID == uuid.Nil {
		return nil, ErrMissingWalletID
	}
	if strings.TrimSpace(toPixKey) == "" {
		return nil, ErrMissingPixKey
	}
	if err := amount.ValidatePix(maxCents); err != nil {
		return nil, err
	}
	return &PixTransfer{
		ID:             uuid.New(),
		EndToEndID:     endToEndID,
		IdempotencyKey: idempotencyKey,
		FromWalletID:   fromWalletID,
		ToPixKey:       toPixKey,
		Amount:         amount,
		Status:         PixTransferStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Confirm moves the transfer to CONFIRMED. Only PENDING transfers can
// be confirmed; terminal states never change again.
func (t *PixTransfer) Confirm(now time.Time) error {
	if t.Status != PixTransferStatusPending {
		return fmt.Errorf("%w: cannot confirm from %s", ErrTransferNotPending, t.Status)
	}
	t.Status = PixTransferStatusConfirmed
	t.ConfirmedAt = &now
	t.UpdatedAt = now
	return nil
}

// Reject moves the transfer to REJECTED and records the reason.
func (t *PixTransfer) Reject(reason string, now time.Time) error {
	if t.Status != PixTransferStatusPending {
		return fmt.Errorf("%w: cannot reject from %s", ErrTransferNotPending, t.Status)
	}
	t.Status = PixTransferStatusRejected
	t.RejectionReason = &reason
	t.RejectedAt = &now
	t.UpdatedAt = now
	return nil
}

// IsPending reports whether the transfer still awaits settlement.
func (t *PixTransfer) IsPending() bool {
	return t.Status == PixTransferStatusPending
}

// IsTerminal reports whether the transfer reached a final state.
func (t *PixTransfer) IsTerminal() bool {
	return t.Status == PixTransferStatusConfirmed || t.Status == PixTransferStatusRejected
}

// RefundTransactionID is the ledger transaction id used when a
// rejected transfer returns funds to the source wallet.
func (t *PixTransfer) RefundTransactionID() string {
	return t.EndToEndID + "-REFUND"
}

// NewEndToEndID builds a 32-character settlement identifier: the
// literal "E", the current Unix milliseconds, and 18 hex characters of
// random entropy. Uniqueness is probabilistic; the storage layer keeps
// a unique index as the backstop.
func NewEndToEndID(now time.Time) string {
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("E%d%s", now.UnixMilli(), entropy[:18])
}

// ParseWebhookStatus maps a provider event type onto the target
// transfer status. Unknown event types return false; callers absorb
// them without failing the webhook.
func ParseWebhookStatus(eventType string) (PixTransferStatus, bool) {
	switch strings.ToUpper(eventType) {
	case "CONFIRMED":
		return PixTransferStatusConfirmed, true
	case "REJECTED":
		return PixTransferStatusRejected, true
	default:
		return "", false
	}
}
