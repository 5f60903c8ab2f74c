package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create inserts a record unless a live one already exists for its
// (scope, key) pair. An expired row is replaced in place, so a stale
// record never blocks a fresh write. Returns false when a live record
// won the race.
func (r *IdempotencyRepo) Create(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error) {
	query := `INSERT INTO idempotency_records (id, scope, idempotency_key, request_hash, response_body, response_status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scope, idempotency_key) DO UPDATE
		SET id = EXCLUDED.id, request_hash = EXCLUDED.request_hash, response_body = EXCLUDED.response_body,
			response_status = EXCLUDED.response_status, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at <= EXCLUDED.created_at`

	tag, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Scope, rec.Key, rec.RequestHash,
		rec.ResponseBody, rec.StatusCode, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert idempotency record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches a record by scope and key. Expiry is the caller's
// concern.
func (r *IdempotencyRepo) Get(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT id, scope, idempotency_key, request_hash, response_body, response_status, created_at, expires_at
		FROM idempotency_records WHERE scope = $1 AND idempotency_key = $2`

	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, scope, key).Scan(
		&rec.ID, &rec.Scope, &rec.Key, &rec.RequestHash,
		&rec.ResponseBody, &rec.StatusCode, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// DeleteExpired removes records past their expiry and reports how many
// went away.
func (r *IdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM idempotency_records WHERE expires_at <= $1`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
