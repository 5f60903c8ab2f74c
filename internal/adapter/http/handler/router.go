package handler

import (
	"pix-wallet-service/internal/adapter/http/middleware"
	redisStore "pix-wallet-service/internal/adapter/storage/redis"
	"pix-wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	PixSvc         ports.PixService
	MonitoringSvc  ports.MonitoringService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	r.Use(middleware.Metrics())

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (pings PostgreSQL, and Redis when enabled)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus exposition
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Wallet routes ---
	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := r.Group("/wallets")
	{
		wallets.POST("", rl("wallets"), walletHandler.CreateWallet)
		wallets.POST("/:id/pix-keys", rl("wallets"), walletHandler.RegisterPixKey)
		wallets.GET("/:id/pix-keys", rl("wallets"), walletHandler.ListPixKeys)
		wallets.GET("/:id/balance", rl("wallets"), walletHandler.GetBalance)
		wallets.GET("/:id/ledger", rl("wallets"), walletHandler.GetLedger)
		wallets.POST("/:id/deposit", rl("mutations"), walletHandler.Deposit)
		wallets.POST("/:id/withdraw", rl("mutations"), walletHandler.Withdraw)
	}

	// --- Pix transfer routes ---
	pixHandler := NewPixHandler(deps.PixSvc)
	pix := r.Group("/pix")
	{
		pix.POST("/transfers", rl("transfers"), pixHandler.InitiateTransfer)
		pix.POST("/webhook", rl("webhook"), pixHandler.HandleWebhook)
	}

	// --- Monitoring routes ---
	monitoringHandler := NewMonitoringHandler(deps.MonitoringSvc)
	monitoring := r.Group("/monitoring")
	{
		monitoring.GET("/atomic-stats", rl("monitoring"), monitoringHandler.AtomicStats)
		monitoring.GET("/system-health", rl("monitoring"), monitoringHandler.SystemHealth)
		monitoring.POST("/cleanup", rl("monitoring"), monitoringHandler.Cleanup)
	}

	return r
}
