package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Idempotency scopes. Records are unique per (scope, key), so the same
// key can be reused across unrelated operations.
const (
	IdempotencyScopeTransfer = "transfer"
	IdempotencyScopeWebhook  = "webhook"
)

// IdempotencyRecordTTL is how long a stored response stays replayable.
const IdempotencyRecordTTL = 24 * time.Hour

// IdempotencyRecord stores the outcome of a completed request so an
// exact retry replays the response instead of re-executing. A retry
// that reuses the key with a different body is detected through
// RequestHash.
type IdempotencyRecord struct {
	ID           uuid.UUID `json:"id"`
	Scope        string    `json:"scope"`
	Key          string    `json:"key"`
	RequestHash  string    `json:"requestHash"`
	ResponseBody []byte    `json:"responseBody"`
	StatusCode   int       `json:"statusCode"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// HashRequest produces the canonical SHA-256 hex digest used to detect
// key reuse with a different payload.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NewIdempotencyRecord builds a record that expires IdempotencyRecordTTL
// after now.
func NewIdempotencyRecord(scope, key string, requestBody, responseBody []byte, statusCode int, now time.Time) *IdempotencyRecord {
	return &IdempotencyRecord{
		ID:           uuid.New(),
		Scope:        scope,
		Key:          key,
		RequestHash:  HashRequest(requestBody),
		ResponseBody: responseBody,
		StatusCode:   statusCode,
		CreatedAt:    now,
		ExpiresAt:    now.Add(IdempotencyRecordTTL),
	}
}

// IsExpired reports whether the record is past its expiry at now.
func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// MatchesRequest reports whether body hashes to the stored request hash.
func (r *IdempotencyRecord) MatchesRequest(body []byte) bool {
	return r.RequestHash == HashRequest(body)
}
