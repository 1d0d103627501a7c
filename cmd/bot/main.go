package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"wifree_bot/internal/catalog"
	"wifree_bot/internal/config"
	"wifree_bot/internal/conversation"
	"wifree_bot/internal/domain"
	"wifree_bot/internal/feature/admin"
	"wifree_bot/internal/feature/plans"
	"wifree_bot/internal/feature/status"
	"wifree_bot/internal/feature/wallet"
	"wifree_bot/internal/health"
	"wifree_bot/internal/ledger"
	"wifree_bot/internal/logging"
	"wifree_bot/internal/money"
	"wifree_bot/internal/router"
	"wifree_bot/internal/store"
	"wifree_bot/internal/sweep"
	"wifree_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
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
	}).Info("configuration loaded")

	smsFee, err := money.Parse(cfg.SMSFee)
	if err != nil {
		logger.WithError(err).Error("invalid sms fee")
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", config.KeySMSFee, err)
		os.Exit(1)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := manager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	accountRepo := domain.NewAccountRepository(manager.Accounts())
	paymentRepo := domain.NewPaymentRepository(manager.Payments())
	noticeRepo := domain.NewNoticeRepository(manager.Notices())
	statsProvider := store.NewStatsProvider(manager.Accounts(), manager.Payments())

	fees := catalog.NewFeeConfig(smsFee)
	ledgerService := ledger.NewService(accountRepo, paymentRepo, logger)
	engine := conversation.NewEngine(logger)
	dispatcher := router.New(engine, accountRepo, cfg.AdminChatID, logger)

	bank := plans.BankDetails{
		Name:          cfg.BankName,
		AccountNumber: cfg.BankAccountNumber,
		AccountName:   cfg.BankAccountName,
	}
	walletBank := wallet.BankDetails{
		Name:          cfg.BankName,
		AccountNumber: cfg.BankAccountNumber,
		AccountName:   cfg.BankAccountName,
	}

	status.New(accountRepo, noticeRepo, logger).Register(dispatcher)

	planFeature := plans.New(accountRepo, ledgerService, fees, engine, bank, cfg.AdminChatID, logger)
	if err := planFeature.Register(dispatcher); err != nil {
		logger.WithError(err).Error("plan feature setup error")
		fmt.Fprintf(os.Stderr, "plan feature setup error: %v\n", err)
		os.Exit(1)
	}

	walletFeature := wallet.New(accountRepo, ledgerService, engine, walletBank, cfg.AdminChatID, logger)
	if err := walletFeature.Register(dispatcher); err != nil {
		logger.WithError(err).Error("wallet feature setup error")
		fmt.Fprintf(os.Stderr, "wallet feature setup error: %v\n", err)
		os.Exit(1)
	}

	adminFeature := admin.New(accountRepo, paymentRepo, noticeRepo, statsProvider, ledgerService, fees, engine, logger)
	if err := adminFeature.Register(dispatcher); err != nil {
		logger.WithError(err).Error("admin feature setup error")
		fmt.Fprintf(os.Stderr, "admin feature setup error: %v\n", err)
		os.Exit(1)
	}

	tgClient, err := telegram.NewClient(cfg, dispatcher, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	sweeper := sweep.New(accountRepo, tgClient, logger)
	scheduler := cron.New()
	if err := sweeper.Schedule(scheduler); err != nil {
		logger.WithError(err).Error("sweep schedule error")
		fmt.Fprintf(os.Stderr, "sweep schedule error: %v\n", err)
		os.Exit(1)
	}
	scheduler.Start()

	healthServer := health.NewServer(cfg.HTTPPort, manager, statsProvider, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
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

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()
	logger.WithField("event", "sweeps_stopped").Info("scheduled sweeps stopped")

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := manager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
