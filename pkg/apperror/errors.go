package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced by the core. Handlers map them to HTTP
// statuses; tests and clients match on the code string.
const (
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeAmountOutOfRange       = "AMOUNT_OUT_OF_RANGE"
	CodeWalletNotFound         = "WALLET_NOT_FOUND"
	CodeDestinationNotFound    = "DESTINATION_NOT_FOUND"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeDuplicateUser          = "DUPLICATE_USER"
	CodeIllegalState           = "ILLEGAL_STATE"
	CodeTransientConflict      = "TRANSIENT_CONFLICT"
	CodeDataIntegrityViolation = "DATA_INTEGRITY_VIOLATION"
	CodeValidationError        = "VALIDATION_ERROR"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternalError          = "INTERNAL_ERROR"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// IsCode reports whether err is (or wraps) an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Amounts ----

func ErrInvalidAmount(message string) *AppError {
	if message == "" {
		message = "Amount must be positive"
	}
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}

func ErrAmountOutOfRange(message string) *AppError {
	if message == "" {
		message = "Amount exceeds the Pix transfer limit"
	}
	return New(CodeAmountOutOfRange, message, http.StatusBadRequest)
}

// ---- Wallets & Pix keys ----

func ErrWalletNotFound(walletID string) *AppError {
	return New(CodeWalletNotFound, fmt.Sprintf("Wallet not found: %s", walletID), http.StatusNotFound)
}

func ErrDestinationNotFound(pixKey string) *AppError {
	return New(CodeDestinationNotFound, fmt.Sprintf("Destination Pix key not found or inactive: %s", pixKey), http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusBadRequest)
}

func ErrDuplicateUser(userID string) *AppError {
	return New(CodeDuplicateUser, fmt.Sprintf("User already has a wallet: %s", userID), http.StatusBadRequest)
}

// ---- Transfer lifecycle ----

func ErrIllegalState(message string) *AppError {
	return New(CodeIllegalState, message, http.StatusConflict)
}

// ---- Coordination ----

// ErrTransientConflict marks retriable coordination failures: lease timeout,
// serialization abort, optimistic-version mismatch.
func ErrTransientConflict(err error) *AppError {
	return Wrap(CodeTransientConflict, "Operation conflicted, retry later", http.StatusServiceUnavailable, err)
}

// ErrDataIntegrityViolation marks a uniqueness conflict. Idempotent paths
// absorb it by re-reading the winning row.
func ErrDataIntegrityViolation(err error) *AppError {
	return Wrap(CodeDataIntegrityViolation, "Conflicting record already exists", http.StatusConflict, err)
}

// ---- System ----

// InternalError wraps an unexpected error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternalError, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request-binding validation error.
func Validation(message string) *AppError {
	return New(CodeValidationError, message, http.StatusBadRequest)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}
