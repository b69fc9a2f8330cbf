package handler

import (
	"time"

	"payment-reconciler/internal/adapter/http/middleware"
	redisStore "payment-reconciler/internal/adapter/storage/redis"
	"payment-reconciler/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	IPNSvc         ports.IPNService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	SweepAge       time.Duration
	SweepLimit     int
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments")
	{
		payments.POST("", rl(middleware.GroupPayments), paymentHandler.CreatePayment)
		payments.GET("/:order_id", rl(middleware.GroupStatus), paymentHandler.GetPayment)
		payments.GET("/:order_id/status", rl(middleware.GroupStatus), paymentHandler.CheckStatus)
	}
	v1.GET("/transaction-status", rl(middleware.GroupStatus), paymentHandler.TransactionStatus)

	pesapalHandler := NewPesapalHandler(deps.PaymentSvc)
	pesapal := v1.Group("/pesapal", rl(middleware.GroupNotifications))
	{
		pesapal.GET("/callback", pesapalHandler.Callback)
		pesapal.GET("/ipn", pesapalHandler.IPN)
		pesapal.POST("/ipn", pesapalHandler.IPN)
	}

	adminHandler := NewAdminHandler(deps.PaymentSvc, deps.IPNSvc, deps.ReportingSvc, deps.SweepAge, deps.SweepLimit)
	admin := v1.Group("/admin", middleware.JWTAuth(deps.TokenSvc, deps.Logger), rl(middleware.GroupAdmin))
	{
		admin.GET("/payments", adminHandler.ListPayments)
		admin.GET("/payments/:order_id/transactions", adminHandler.ListTransactions)
		admin.POST("/ipn", adminHandler.RegisterIPN)
		admin.GET("/ipn", adminHandler.ListIPNs)
		admin.POST("/reconcile", adminHandler.Reconcile)
		admin.GET("/stats", adminHandler.Stats)
	}

	return r
}
