package service

import (
	"context"
	"time"

	"pix-wallet-service/internal/core/ports"

	"github.com/rs/zerolog"
)

// Health status labels derived from transfer outcomes and lock
// pressure.
const (
	HealthCritical  = "CRITICAL"
	HealthWarning   = "WARNING"
	HealthExcellent = "EXCELLENT"
	HealthGood      = "GOOD"
)

// MonitoringServiceImpl implements ports.MonitoringService by
// aggregating the counters every subsystem already keeps.
type MonitoringServiceImpl struct {
	wallets   ports.WalletService
	transfers ports.TransferService
	idemp     ports.IdempotencyService
	pix       ports.PixService
	log       zerolog.Logger
	now       func() time.Time
}

// NewMonitoringService creates a new MonitoringServiceImpl.
func NewMonitoringService(
	wallets ports.WalletService,
	transfers ports.TransferService,
	idemp ports.IdempotencyService,
	pix ports.PixService,
	log zerolog.Logger,
) *MonitoringServiceImpl {
	return &MonitoringServiceImpl{
		wallets:   wallets,
		transfers: transfers,
		idemp:     idemp,
		pix:       pix,
		log:       log.With().Str("component", "monitoring_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AtomicStats snapshots all subsystem counters in one call.
func (s *MonitoringServiceImpl) AtomicStats() ports.AtomicStats {
	return ports.AtomicStats{
		Transfers:   s.transfers.Stats(),
		Wallets:     s.wallets.Stats(),
		Idempotency: s.idemp.Stats(),
		Webhooks:    s.pix.WebhookStats(),
	}
}

// SystemHealth derives a coarse health view from lock pressure and
// transfer outcomes. Load saturates at 100 when ten or more leases and
// key locks are held at once.
func (s *MonitoringServiceImpl) SystemHealth() ports.SystemHealth {
	walletStats := s.wallets.Stats()
	transferStats := s.transfers.Stats()
	idempStats := s.idemp.Stats()

	totalActiveLocks := walletStats.ActiveLocks + transferStats.WalletLocks + idempStats.LockCount
	systemLoad := float64(totalActiveLocks) / 10 * 100
	if systemLoad > 100 {
		systemLoad = 100
	}

	var errorRate float64
	if transferStats.TotalTransfers > 0 {
		errorRate = float64(transferStats.FailedTransfers) / float64(transferStats.TotalTransfers) * 100
	}

	return ports.SystemHealth{
		SystemLoad:       systemLoad,
		ConcurrencyLevel: transferStats.ActiveTransfers + int64(walletStats.ActiveLocks),
		ErrorRate:        errorRate,
		HealthStatus:     healthStatus(errorRate, systemLoad, transferStats.SuccessRate),
	}
}

func healthStatus(errorRate, systemLoad, successRate float64) string {
	switch {
	case errorRate > 10:
		return HealthCritical
	case errorRate > 5 || systemLoad > 80:
		return HealthWarning
	case successRate > 95 && systemLoad < 50:
		return HealthExcellent
	default:
		return HealthGood
	}
}

// Cleanup sweeps expired idempotency records, stale transfer states and
// idle wallet leases, in that order. The same pass runs on the
// scheduler and on demand through the monitoring endpoint.
func (s *MonitoringServiceImpl) Cleanup(ctx context.Context) (*ports.CleanupResult, error) {
	start := s.now()
	s.log.Info().Msg("starting atomic cleanup")

	expired, err := s.idemp.CleanupExpired(ctx)
	if err != nil {
		return nil, err
	}
	evicted := s.transfers.CleanupStates()
	released := s.wallets.CleanupLocks()

	end := s.now()
	result := &ports.CleanupResult{
		StartTime:      start,
		EndTime:        end,
		DurationMS:     end.Sub(start).Milliseconds(),
		ExpiredRecords: expired,
		EvictedStates:  evicted,
		ReleasedLocks:  released,
		Message:        "Atomic cleanup completed successfully",
	}

	s.log.Info().
		Int64("duration_ms", result.DurationMS).
		Int64("expired_records", expired).
		Int("evicted_states", evicted).
		Int("released_locks", released).
		Msg("atomic cleanup finished")
	return result, nil
}
