package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_airtime_bot/internal/config"
	"tg_airtime_bot/internal/domain"
	"tg_airtime_bot/internal/feature/admin"
	"tg_airtime_bot/internal/feature/user"
	"tg_airtime_bot/internal/flow"
	"tg_airtime_bot/internal/health"
	"tg_airtime_bot/internal/logging"
	"tg_airtime_bot/internal/membership"
	"tg_airtime_bot/internal/metrics"
	"tg_airtime_bot/internal/router"
	"tg_airtime_bot/internal/store"
	"tg_airtime_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 30 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	webhookSetupTimeout     = 10 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	httpShutdownTimeout     = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
		"channels": len(cfg.Channels),
		"webhook":  cfg.UsesWebhook(),
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	recorder := metrics.NewPrometheus()

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}
	api := tgClient.API()

	amounts, err := flow.NewAmountPolicy(cfg.AirtimeMin, cfg.AirtimeMax, cfg.AirtimeStep)
	if err != nil {
		logger.WithError(err).Error("amount policy error")
		fmt.Fprintf(os.Stderr, "amount policy error: %v\n", err)
		os.Exit(1)
	}

	userRepository := domain.NewUserRepository(mongoManager.Users())
	ledger := domain.NewLedger(
		domain.NewRequestRepository(mongoManager.AirtimeRequests()),
		domain.NewTransactionRepository(mongoManager.Transactions()),
		domain.WithUserCounter(mongoManager.Users()),
	)

	engine, err := flow.NewEngine(flow.Deps{
		Messenger:  api,
		Membership: membership.NewOracle(api, cfg.Channels, logger, membership.WithMetrics(recorder)),
		Registrar:  user.NewRegistrar(mongoManager.Users(), logger),
		Users:      userRepository,
		Ledger:     ledger,
		Amounts:    amounts,
		Animation:  flow.Animation{Frames: flow.DefaultFrames(), Delay: cfg.ProgressFrameDelay},
		Metrics:    recorder,
		Logger:     logger,
	})
	if err != nil {
		logger.WithError(err).Error("flow engine setup error")
		fmt.Fprintf(os.Stderr, "flow engine setup error: %v\n", err)
		os.Exit(1)
	}

	adminService := admin.NewService(
		cfg.AdminID,
		mongoManager.Stats(),
		userRepository,
		api,
		logger,
		admin.WithConcurrency(cfg.BroadcastConcurrency),
		admin.WithMetrics(recorder),
	)

	updateRouter := router.New(engine, adminService, api, recorder, logger)
	dispatcher := router.NewDispatcher(updateRouter.Handle, router.DispatcherOptions{
		Metrics: recorder,
		Logger:  logger,
	})
	tgClient.Route(dispatcher)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	serverOpts := []health.Option{health.WithMetrics(recorder.Handler())}
	if cfg.UsesWebhook() {
		serverOpts = append(serverOpts, health.WithWebhook(config.WebhookPath, tgClient.WebhookHandler(cfg.WebhookSecret)))
	}
	httpServer := health.NewServer(cfg.HTTPPort, mongoManager, logger, serverOpts...)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.ListenAndServe()
	}()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	if cfg.UsesWebhook() {
		setupCtx, cancelSetup := context.WithTimeout(context.Background(), webhookSetupTimeout)
		err := tgClient.RegisterWebhook(setupCtx, cfg.WebhookEndpoint(), cfg.WebhookSecret)
		cancelSetup()
		if err != nil {
			logger.WithError(err).Error("webhook registration error")
			fmt.Fprintf(os.Stderr, "webhook registration error: %v\n", err)
			os.Exit(1)
		}
		close(tgDone)
	} else {
		setupCtx, cancelSetup := context.WithTimeout(context.Background(), webhookSetupTimeout)
		if err := tgClient.DeleteWebhook(setupCtx); err != nil {
			logging.Warn("failed to clear webhook before polling", logging.Fields{"event": "webhook_clear_error", "error": err})
		}
		cancelSetup()

		go func() {
			tgClient.Start(telegramCtx)
			close(tgDone)
		}()
	}

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping intake")
	case err := <-httpDone:
		if err != nil {
			logger.WithError(err).Error("http server stopped unexpectedly")
		}
	case <-pollingStopped(cfg, tgDone):
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}
	cancelHTTP()

	dispatcher.Close()
	logger.WithField("event", "dispatcher_stopped").Info("update dispatcher stopped")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// pollingStopped returns tgDone in long-poll mode. Webhook mode has no
// polling loop, so it returns a channel that never fires.
func pollingStopped(cfg config.Config, tgDone chan struct{}) <-chan struct{} {
	if cfg.UsesWebhook() {
		return nil
	}
	return tgDone
}
