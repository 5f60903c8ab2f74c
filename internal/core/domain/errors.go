package domain

import "errors"

// Sentinel errors returned by domain constructors and entity methods.
// Services translate these into transport-facing error codes.
var (
	ErrAmountEmpty       = errors.New("amount is empty")
	ErrAmountMalformed   = errors.New("amount is not a valid decimal")
	ErrAmountOverflow    = errors.New("amount overflows the representable range")
	ErrAmountNotPositive = errors.New("amount must be positive")
	ErrAmountAboveLimit  = errors.New("amount exceeds the Pix transfer limit")

	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrMissingUserID         = errors.New("user id is required")
	ErrMissingEndToEndID     = errors.New("end-to-end id is required")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrMissingWalletID       = errors.New("wallet id is required")
	ErrMissingPixKey         = errors.New("pix key is required")

	ErrKeyValueEmpty   = errors.New("key value cannot be empty")
	ErrUnknownKeyType  = errors.New("unknown pix key type")
	ErrInvalidKeyValue = errors.New("key value does not match its type")

	ErrTransferNotPending = errors.New("transfer is not pending")

	ErrVersionConflict = errors.New("row version conflict")
)
