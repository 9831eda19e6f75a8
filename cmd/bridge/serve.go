package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"agent-wallet-bridge/config"
	"agent-wallet-bridge/internal/adapter/agent"
	httpHandler "agent-wallet-bridge/internal/adapter/http/handler"
	"agent-wallet-bridge/internal/adapter/http/middleware"
	pgStorage "agent-wallet-bridge/internal/adapter/storage/postgres"
	redisStorage "agent-wallet-bridge/internal/adapter/storage/redis"
	"agent-wallet-bridge/internal/adapter/telegram"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/scheduler"
	"agent-wallet-bridge/internal/service"
	"agent-wallet-bridge/internal/worker"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the operation worker and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("queue", cfg.Worker.Backend).
		Msg("Starting agent wallet bridge")

	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret must be set")
	}

	// Storage
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	compensationRepo := pgStorage.NewCompensationRepo(pool)
	accountRepo := pgStorage.NewAccountRepo(pool)
	referralRepo := pgStorage.NewReferralRepo(pool)
	loyaltyRepo := pgStorage.NewLoyaltyRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	var queue ports.TaskQueue
	switch strings.ToLower(cfg.Worker.Backend) {
	case "memory":
		queue = worker.NewMemoryQueue(cfg.Worker.PollTimeout)
	case "", "redis":
		queue = redisStorage.NewTaskQueue(rdb, cfg.Worker.QueueKey, cfg.Worker.PollTimeout)
	default:
		return fmt.Errorf("unknown worker backend %q", cfg.Worker.Backend)
	}

	// Outbound
	agentClient, err := agent.New(cfg.Agent, log)
	if err != nil {
		return fmt.Errorf("agent client: %w", err)
	}

	notifier, bot, err := buildNotifier(cfg.Telegram, log)
	if err != nil {
		return err
	}

	// Core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return fmt.Errorf("encryption service: %w", err)
	}
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, log)
	locker := service.NewUserLocker()
	rules := service.RulesFromConfig(cfg.Wallet)
	scan := service.ScanLimits{PageSize: cfg.Agent.PageSize, MaxPages: cfg.Agent.MaxScanPages}

	ledgerSvc := service.NewLedgerService(walletRepo, txRepo, transactor, log)
	referralHook := service.NewReferralHook(referralRepo, config.Dec(cfg.Wallet.ReferralPercent), log)
	loyaltyHook := service.NewLoyaltyHook(loyaltyRepo, config.Dec(cfg.Wallet.LoyaltyUnit))

	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, ledgerSvc, transactor, locker, notifier, rules, log)
	paymentSvc := service.NewPaymentService(paymentRepo, ledgerSvc, transactor, locker, notifier, rules, log)
	compensationSvc := service.NewCompensationService(compensationRepo, txRepo, ledgerSvc, transactor, locker, notifier, rules, log)
	moderationSvc := service.NewModerationService(
		withdrawalSvc,
		paymentSvc,
		compensationSvc,
		redisStorage.NewCallbackGuard(rdb),
		cfg.Redis.CallbackGuardTTL,
		auditSvc,
		log,
	)
	operationSvc := service.NewOperationService(
		queue,
		agentClient,
		accountRepo,
		ledgerSvc,
		referralHook,
		loyaltyHook,
		encSvc,
		locker,
		notifier,
		scan,
		log,
	)
	reconcileSvc := service.NewReconcileService(accountRepo, agentClient, scan, log)
	authSvc := service.NewAuthService(cfg.Clients, hashSvc, tokenSvc, auditSvc)

	// Background loops
	var wg sync.WaitGroup
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	w := worker.New(queue, operationSvc.Handlers(), notifier, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(workerCtx)
	}()

	sched := scheduler.New(log)
	jobs := []scheduler.Job{
		scheduler.RenewJob(agentClient, cfg.Scheduler.RenewInterval, cfg.Scheduler.JobTimeout),
		scheduler.ReconcileJob(reconcileSvc, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.JobTimeout, log),
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	sched.Start()

	if bot != nil {
		listener := telegram.NewListener(bot, moderationSvc, cfg.Telegram.StaffChatID, log)
		updateCfg := tgbotapi.NewUpdate(0)
		updateCfg.Timeout = 30
		updates := bot.GetUpdatesChan(updateCfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.Run(workerCtx, updates)
		}()
	}

	// HTTP
	backlogKey := cfg.Worker.QueueKey
	if strings.EqualFold(cfg.Worker.Backend, "memory") {
		backlogKey = ""
	}
	healthCheckers := []ports.HealthChecker{
		pgStorage.NewSchemaHealth(pool),
		redisStorage.NewQueueHealth(rdb, backlogKey, cfg.Worker.MaxBacklog),
		agentClient,
	}

	gin.SetMode(cfg.Server.Mode)
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:         authSvc,
		TokenSvc:        tokenSvc,
		OperationSvc:    operationSvc,
		LedgerSvc:       ledgerSvc,
		Locker:          locker,
		WithdrawalSvc:   withdrawalSvc,
		PaymentSvc:      paymentSvc,
		CompensationSvc: compensationSvc,
		ModerationSvc:   moderationSvc,
		RateLimitStore:  redisStorage.NewRateLimitStore(rdb),
		RateLimit:       middleware.RateLimitRule{Limit: cfg.Server.RateLimit, Window: cfg.Server.RateWindow},
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		HealthCheckers:  healthCheckers,
		AuditSvc:        auditSvc,
		Logger:          log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Scheduler did not stop in time")
	}
	if bot != nil {
		bot.StopReceivingUpdates()
	}
	stopWorker()
	wg.Wait()
	if err := auditSvc.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Audit entries not flushed")
	}

	log.Info().Msg("Bridge exited")
	return runErr
}

// buildNotifier returns the Telegram notifier, or a log-only one when the
// bot is disabled. The bot is nil in the latter case.
func buildNotifier(cfg config.TelegramConfig, log zerolog.Logger) (ports.Notifier, *tgbotapi.BotAPI, error) {
	if !cfg.Enabled {
		log.Warn().Msg("Telegram disabled, notifications go to the log")
		return telegram.NewLogNotifier(cfg.StaffChatID, log), nil, nil
	}
	bot, err := telegram.NewBot(cfg.Token)
	if err != nil {
		return nil, nil, err
	}
	return telegram.NewNotifier(bot, cfg.StaffChatID, log), bot, nil
}
