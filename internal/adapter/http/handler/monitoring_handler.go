package handler

import (
	"sync/atomic"
	"time"

	"pix-wallet-service/internal/adapter/http/dto"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler exposes the operational surface: aggregated
// counters, derived health and on-demand cleanup.
type MonitoringHandler struct {
	monitoringSvc ports.MonitoringService
	requests      atomic.Int64
}

// NewMonitoringHandler creates a new MonitoringHandler.
func NewMonitoringHandler(monitoringSvc ports.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{monitoringSvc: monitoringSvc}
}

// AtomicStats handles GET /monitoring/atomic-stats. Every subsystem's
// counters are snapshotted in one call.
func (h *MonitoringHandler) AtomicStats(c *gin.Context) {
	stats := h.monitoringSvc.AtomicStats()
	response.OK(c, dto.AtomicStatsResponse{
		Timestamp:               time.Now().UTC().Format(time.RFC3339),
		MonitoringRequestNumber: h.requests.Add(1),
		WalletStats:             toWalletStatsPayload(stats.Wallets),
		TransferStats:           toTransferStatsPayload(stats.Transfers),
		IdempotencyStats:        toIdempotencyStatsPayload(stats.Idempotency),
		WebhookStats:            toWebhookStatsPayload(stats.Webhooks),
	})
}

// SystemHealth handles GET /monitoring/system-health.
func (h *MonitoringHandler) SystemHealth(c *gin.Context) {
	health := h.monitoringSvc.SystemHealth()
	transfers := h.monitoringSvc.AtomicStats().Transfers
	response.OK(c, dto.SystemHealthResponse{
		SystemLoad:       health.SystemLoad,
		ConcurrencyLevel: health.ConcurrencyLevel,
		ErrorRate:        health.ErrorRate,
		SuccessRate:      transfers.SuccessRate,
		HealthStatus:     health.HealthStatus,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

// Cleanup handles POST /monitoring/cleanup: one on-demand sweep of
// expired idempotency records, stale transfer states and idle leases.
func (h *MonitoringHandler) Cleanup(c *gin.Context) {
	result, err := h.monitoringSvc.Cleanup(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.CleanupResponse{
		StartTime:      result.StartTime.UTC().Format(time.RFC3339Nano),
		EndTime:        result.EndTime.UTC().Format(time.RFC3339Nano),
		DurationMS:     result.DurationMS,
		ExpiredRecords: result.ExpiredRecords,
		EvictedStates:  result.EvictedStates,
		ReleasedLocks:  result.ReleasedLocks,
		Message:        result.Message,
	})
}

func toWalletStatsPayload(s ports.WalletStats) dto.WalletStatsPayload {
	return dto.WalletStatsPayload{
		WalletsCreated:       s.WalletsCreated,
		DepositsProcessed:    s.DepositsProcessed,
		WithdrawalsProcessed: s.WithdrawalsProcessed,
		PixKeysRegistered:    s.PixKeysRegistered,
		ActiveLocks:          s.ActiveLocks,
		TotalOperations:      s.TotalOperations,
	}
}

func toTransferStatsPayload(s ports.TransferStats) dto.TransferStatsPayload {
	return dto.TransferStatsPayload{
		TotalTransfers:      s.TotalTransfers,
		SuccessfulTransfers: s.SuccessfulTransfers,
		FailedTransfers:     s.FailedTransfers,
		ActiveTransfers:     s.ActiveTransfers,
		StatesInMemory:      s.StatesInMemory,
		WalletLocks:         s.WalletLocks,
		SuccessRate:         s.SuccessRate,
	}
}

func toIdempotencyStatsPayload(s ports.ProcessingStats) dto.IdempotencyStatsPayload {
	return dto.IdempotencyStatsPayload{
		CacheSize:         s.CacheSize,
		LockCount:         s.LockCount,
		CleanupInProgress: s.CleanupInProgress,
	}
}

func toWebhookStatsPayload(s ports.WebhookStats) dto.WebhookStatsPayload {
	return dto.WebhookStatsPayload{
		TotalEvents:     s.TotalEvents,
		DuplicateEvents: s.DuplicateEvents,
		UniqueEvents:    s.UniqueEvents,
		DuplicateRate:   s.DuplicateRate,
	}
}
