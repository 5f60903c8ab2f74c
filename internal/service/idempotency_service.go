package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"pix-wallet-service/config"
	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
)

// keyLeaseIdleTTL is how long an unused per-key lease survives before
// the over-cap eviction may reclaim it.
const keyLeaseIdleTTL = 10 * time.Minute

// IdempotencyServiceImpl implements ports.IdempotencyService with three
// layers: an in-process record cache, an optional shared Redis cache,
// and the database (scope, key) unique index as the final arbiter.
type IdempotencyServiceImpl struct {
	repo   ports.IdempotencyRepository
	cache  *recordCache
	redis  ports.IdempotencyCache // nil disables the shared layer
	leases *LeaseRegistry
	cfg    config.PixConfig
	log    zerolog.Logger
	now    func() time.Time

	cleanupInProgress atomic.Bool
}

// NewIdempotencyService creates a new IdempotencyServiceImpl. Pass a
// nil redis cache to run on the in-process cache and database alone.
func NewIdempotencyService(
	repo ports.IdempotencyRepository,
	redis ports.IdempotencyCache,
	cfg config.PixConfig,
	log zerolog.Logger,
) *IdempotencyServiceImpl {
	return &IdempotencyServiceImpl{
		repo:   repo,
		cache:  newRecordCache(cfg.IdempotencyCacheTTL, cfg.IdempotencyCacheSize),
		redis:  redis,
		leases: NewLeaseRegistry(keyLeaseIdleTTL, cfg.IdempotencyMaxLocks),
		cfg:    cfg,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Find returns the live record for (scope, key), nil when absent or
// expired. Local cache first, then Redis, then the database.
func (s *IdempotencyServiceImpl) Find(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	if record := s.cache.Get(scope, key); record != nil {
		return record, nil
	}

	if s.redis != nil {
		record, err := s.redis.GetRecord(ctx, scope, key)
		if err != nil {
			s.log.Warn().Err(err).Str("scope", scope).Msg("redis idempotency lookup failed, falling through to DB")
		}
		if record != nil && !record.IsExpired(s.now()) {
			s.cache.Put(scope, key, record)
			return record, nil
		}
	}

	record, err := s.repo.Get(ctx, scope, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if record == nil || record.IsExpired(s.now()) {
		return nil, nil
	}

	s.cache.Put(scope, key, record)
	return record, nil
}

// SaveFirst records the outcome unless a record already exists for
// (scope, key). The per-key lease serializes writers on this instance;
// the unique index arbitrates across instances. The stored winner is
// returned either way.
func (s *IdempotencyServiceImpl) SaveFirst(ctx context.Context, scope, key string, requestBody, responseBody []byte, statusCode int) (*domain.IdempotencyRecord, error) {
	release, err := s.leases.Acquire(ctx, cacheKey(scope, key), s.cfg.IdempotencyLeaseTimeout)
	if err != nil {
		return nil, apperror.ErrTransientConflict(err)
	}
	defer release()

	existing, err := s.Find(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	record := domain.NewIdempotencyRecord(scope, key, requestBody, responseBody, statusCode, s.now())
	inserted, err := s.repo.Create(ctx, record)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, apperror.InternalError(fmt.Errorf("save idempotency record: %w", err))
		}
		inserted = false
	}
	if !inserted {
		s.log.Debug().Str("scope", scope).Msg("idempotency write lost the race, returning the stored record")
		winner, err := s.repo.Get(ctx, scope, key)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reload idempotency record: %w", err))
		}
		if winner == nil {
			return nil, apperror.InternalError(fmt.Errorf("idempotency record missing after conflict: %s", cacheKey(scope, key)))
		}
		record = winner
	}

	s.cache.Put(scope, key, record)
	s.cacheShared(ctx, record)
	return record, nil
}

// cacheShared mirrors the record into Redis, best-effort.
func (s *IdempotencyServiceImpl) cacheShared(ctx context.Context, record *domain.IdempotencyRecord) {
	if s.redis == nil {
		return
	}
	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.redis.PutRecord(ctx, record, ttl); err != nil {
		s.log.Warn().Err(err).Str("scope", record.Scope).Msg("failed to cache idempotency record in redis")
	}
}

// CleanupExpired deletes expired rows and evicts stale cache and lease
// entries. Concurrent calls are collapsed into one pass.
func (s *IdempotencyServiceImpl) CleanupExpired(ctx context.Context) (int64, error) {
	if !s.cleanupInProgress.CompareAndSwap(false, true) {
		s.log.Debug().Msg("idempotency cleanup already in progress, skipping")
		return 0, nil
	}
	defer s.cleanupInProgress.Store(false)

	deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("delete expired idempotency records: %w", err))
	}
	evicted := s.cache.Cleanup()
	released := s.leases.Cleanup()

	s.log.Info().
		Int64("deleted", deleted).
		Int("cache_evicted", evicted).
		Int("leases_released", released).
		Msg("idempotency cleanup completed")

	return deleted, nil
}

// Stats reports the layer's in-memory footprint.
func (s *IdempotencyServiceImpl) Stats() ports.ProcessingStats {
	return ports.ProcessingStats{
		CacheSize:         s.cache.Len(),
		LockCount:         s.leases.Len(),
		CleanupInProgress: s.cleanupInProgress.Load(),
	}
}
