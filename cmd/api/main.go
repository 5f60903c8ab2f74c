package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pix-wallet-service/config"
	httpHandler "pix-wallet-service/internal/adapter/http/handler"
	pgStorage "pix-wallet-service/internal/adapter/storage/postgres"
	redisStorage "pix-wallet-service/internal/adapter/storage/redis"
	"pix-wallet-service/internal/core/ports"
	"pix-wallet-service/internal/service"
	"pix-wallet-service/pkg/logger"

	"github.com/joho/godotenv"
)

// walletLeaseIdleTTL is how long an unused per-wallet lease survives
// before the registry may evict it.
const walletLeaseIdleTTL = 10 * time.Minute

func main() {
	// Load .env if present (local development convenience)
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Pix Wallet Service")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	keyRepo := pgStorage.NewPixKeyRepo(pool)
	transferRepo := pgStorage.NewTransferRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Health checkers (Redis appended below when enabled)
	healthCheckers := []ports.HealthChecker{pgStorage.NewHealthCheck(pool)}

	// Redis is optional: without it the idempotency store runs on the
	// local cache + PostgreSQL only, and rate limiting is unavailable.
	var idempotencyCache ports.IdempotencyCache
	var rateLimitStore *redisStorage.RateLimitStore
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempotencyCache = redisStorage.NewIdempotencyCache(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))

		if cfg.RateLimit.Enabled {
			rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		}
	} else {
		log.Warn().Msg("Redis disabled, idempotency cache and rate limiting unavailable")
	}

	// Per-wallet lease registry, shared by the wallet engine and the
	// transfer orchestrator so both serialize on the same entries.
	walletLeases := service.NewLeaseRegistry(walletLeaseIdleTTL, cfg.Pix.MaxWalletLocks)

	// Initialize business services
	walletSvc := service.NewWalletService(walletRepo, ledgerRepo, keyRepo, transactor, walletLeases, cfg.Pix, log)
	idempotencySvc := service.NewIdempotencyService(idempotencyRepo, idempotencyCache, cfg.Pix, log)
	transferSvc := service.NewTransferService(
		transferRepo,
		walletRepo,
		ledgerRepo,
		keyRepo,
		walletSvc,
		transactor,
		walletLeases,
		cfg.Pix,
		log,
	)
	pixSvc := service.NewPixService(transferSvc, idempotencySvc, keyRepo, cfg.Pix, log)
	monitoringSvc := service.NewMonitoringService(walletSvc, transferSvc, idempotencySvc, pixSvc, log)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		PixSvc:         pixSvc,
		MonitoringSvc:  monitoringSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// Scheduled cleanup of expired idempotency records, settled transfer
	// states and idle leases.
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Pix.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if result, err := monitoringSvc.Cleanup(cleanupCtx); err != nil {
					log.Warn().Err(err).Msg("Scheduled cleanup failed")
				} else {
					log.Info().
						Int64("expired_records", result.ExpiredRecords).
						Int("evicted_states", result.EvictedStates).
						Int("released_locks", result.ReleasedLocks).
						Msg("Scheduled cleanup completed")
				}
				cancel()
			case <-stopCleanup:
				return
			}
		}
	}()

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	close(stopCleanup)
	auditSvc.Close()

	log.Info().Msg("Server exited")
}
