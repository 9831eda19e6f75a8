package handler

import (
	"agent-wallet-bridge/internal/adapter/http/middleware"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc         ports.AuthService
	TokenSvc        ports.TokenService
	OperationSvc    ports.OperationService
	LedgerSvc       ports.LedgerService
	Locker          ports.UserLocker
	WithdrawalSvc   ports.WithdrawalService
	PaymentSvc      ports.PaymentService
	CompensationSvc ports.CompensationService
	ModerationSvc   ports.ModerationService
	RateLimitStore  middleware.Limiter // nil = rate limiting disabled
	RateLimit       middleware.RateLimitRule
	MaxBodyBytes    int64
	HealthCheckers  []ports.HealthChecker
	AuditSvc        ports.AuditService // nil = audit logging disabled
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	rules := middleware.RateLimitRules(deps.RateLimit)

	// rl returns the group's limiter, or a no-op when no store is wired.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	v1.POST("/auth/token", rl(middleware.GroupAuth), authHandler.IssueToken)

	// --- Client routes (bearer JWT) ---
	api := v1.Group("", middleware.JWTAuth(deps.TokenSvc))

	taskHandler := NewTaskHandler(deps.OperationSvc)
	api.POST("/tasks", rl(middleware.GroupTasks), taskHandler.Submit)

	walletHandler := NewWalletHandler(deps.LedgerSvc, deps.Locker)
	wallets := api.Group("/wallets/:user_id")
	{
		wallets.GET("/balance", rl(middleware.GroupWallets), walletHandler.GetBalance)
		wallets.GET("/transactions", rl(middleware.GroupWallets), walletHandler.ListTransactions)
		wallets.POST("/adjust", rl(middleware.GroupAdjust), walletHandler.Adjust)
	}

	requestHandler := NewRequestHandler(deps.WithdrawalSvc, deps.PaymentSvc, deps.CompensationSvc)
	withdrawals := api.Group("/withdrawals")
	{
		withdrawals.POST("", rl(middleware.GroupRequests), requestHandler.CreateWithdrawal)
		withdrawals.POST("/:id/refund", rl(middleware.GroupRequests), requestHandler.RefundWithdrawal)
		withdrawals.GET("/by-message", rl(middleware.GroupWallets), requestHandler.WithdrawalByMessage)
	}

	payments := api.Group("/payments")
	{
		payments.POST("", rl(middleware.GroupRequests), requestHandler.CreatePayment)
		payments.GET("/by-message", rl(middleware.GroupWallets), requestHandler.PaymentByMessage)
	}

	compensations := api.Group("/compensations")
	{
		compensations.POST("", rl(middleware.GroupRequests), requestHandler.CreateCompensation)
		compensations.GET("/by-message", rl(middleware.GroupWallets), requestHandler.CompensationByMessage)
	}

	moderationHandler := NewModerationHandler(deps.ModerationSvc)
	api.POST("/moderation/callback", rl(middleware.GroupModeration), moderationHandler.Callback)

	return r
}
