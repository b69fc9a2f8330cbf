package main

import (
	"context"
	"fmt"
	"net/http"

	"payment-reconciler/config"
	"payment-reconciler/internal/adapter/gateway/pesapal"
	"payment-reconciler/internal/adapter/queue"
	pgStorage "payment-reconciler/internal/adapter/storage/postgres"
	redisStorage "payment-reconciler/internal/adapter/storage/redis"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/internal/service"
	"payment-reconciler/pkg/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired services shared by every command.
type app struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
	rdb  *goredis.Client

	gateway      *pesapal.Client
	tasks        *asynq.Client
	payments     *service.PaymentServiceImpl
	notifier     *service.NotifyService
	ipns         ports.IPNService
	reporting    ports.ReportingService
	tokens       ports.TokenService
	audit        ports.AuditService
	rateLimits   *redisStorage.RateLimitStore
	healthChecks []ports.HealthChecker
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}

// newGateway builds the Pesapal client from configuration.
func newGateway(cfg *config.Config, log zerolog.Logger) *pesapal.Client {
	return pesapal.NewClient(pesapal.Config{
		BaseURL:        cfg.Pesapal.APIBaseURL(),
		ConsumerKey:    cfg.Pesapal.ConsumerKey,
		ConsumerSecret: cfg.Pesapal.ConsumerSecret,
		Timeout:        cfg.Pesapal.RequestTimeout,
	}, logger.Component(log, "pesapal"))
}

// newApp connects to PostgreSQL and Redis and wires every service.
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	// Repositories
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	historyRepo := pgStorage.NewHistoryRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Adapters
	gateway := newGateway(cfg, log)
	tasks := asynq.NewClient(redisStorage.AsynqOpt(cfg.Redis))
	scheduler := queue.NewClient(tasks, queue.Options{
		Queue:      cfg.Reconcile.Queue,
		MaxRetries: cfg.Reconcile.MaxRetries,
		RetryDelay: cfg.Reconcile.RetryDelay,

		NotifyRetries: cfg.Notify.MaxRetries,
	}, logger.Component(log, "queue"))

	// Services
	sigSvc := service.NewHMACSignatureService()
	verifier := service.NewNotificationVerifier(sigSvc, cfg.Pesapal.SignatureSecret)
	notifier := service.NewNotifyService(
		cfg.Notify.URL,
		cfg.Notify.Secret,
		sigSvc,
		&http.Client{Timeout: cfg.Notify.Timeout},
		scheduler,
		logger.Component(log, "notify"),
	)
	reconciler := service.NewReconciliationService(
		paymentRepo, eventRepo, historyRepo, txRepo, transactor, notifier,
		logger.Component(log, "reconciler"),
	)
	payments := service.NewPaymentService(
		paymentRepo,
		eventRepo,
		historyRepo,
		txRepo,
		transactor,
		reconciler,
		gateway,
		redisStorage.NewSubmissionLock(rdb),
		scheduler,
		verifier,
		service.PaymentServiceConfig{
			CallbackURL:                cfg.Pesapal.CallbackURL,
			NotificationID:             cfg.Pesapal.IPNID,
			SubmitTimeout:              cfg.Pesapal.SubmitTimeout,
			StatusTimeout:              cfg.Pesapal.StatusTimeout,
			NotificationTimeout:        cfg.Pesapal.IPNTimeout,
			AllowUnsignedNotifications: cfg.Pesapal.AllowUnsignedIPN,
		},
		logger.Component(log, "payments"),
	)

	return &app{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		rdb:        rdb,
		gateway:    gateway,
		tasks:      tasks,
		payments:   payments,
		notifier:   notifier,
		ipns:       service.NewIPNService(gateway, logger.Component(log, "ipn")),
		reporting:  service.NewReportingService(paymentRepo),
		tokens:     service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer),
		audit:      service.NewAuditService(auditRepo, logger.Component(log, "audit")),
		rateLimits: redisStorage.NewRateLimitStore(rdb),
		healthChecks: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
		},
	}, nil
}

// Close releases every connection held by the app.
func (a *app) Close() {
	if err := a.tasks.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing task client")
	}
	if err := a.rdb.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing redis")
	}
	a.pool.Close()
}
