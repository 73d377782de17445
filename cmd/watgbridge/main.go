package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watgbridge/internal/config"
	"watgbridge/internal/constants"
	"watgbridge/internal/database"
	"watgbridge/internal/features"
	"watgbridge/internal/metrics"
	"watgbridge/internal/retry"
	"watgbridge/internal/service"
	"watgbridge/internal/tracing"
	"watgbridge/internal/version"
	"watgbridge/pkg/media"
	"watgbridge/pkg/telegram"
	"watgbridge/pkg/whatsapp"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

var (
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVer {
		info := version.Get()
		fmt.Printf("watgbridge %s\nBuild Time: %s\nGit Commit: %s\n", info.Version, info.BuildTime, info.Commit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithField("version", version.Short()).Info("Starting watgbridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(cfg.LogLevel, logger)

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	waClient := whatsapp.NewClient(watypes.ClientConfig{
		BaseURL:     cfg.WhatsApp.APIBaseURL,
		APIKey:      cfg.WhatsApp.APIKey,
		SessionName: cfg.WhatsApp.SessionName,
		Timeout:     cfg.WhatsApp.Timeout,
		RetryCount:  cfg.WhatsApp.RetryCount,
	})

	tgClient := telegram.NewClient(
		cfg.Telegram.BotToken,
		cfg.Telegram.APIBaseURL,
		time.Duration(cfg.Telegram.HTTPTimeoutSec)*time.Second,
	)

	mediaHandler, err := media.NewHandler(cfg.Media, cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.APIKey, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media handler: %w", err)
	}
	transcoder := media.NewTranscoder(cfg.Media.FFmpegPath, cfg.Media.TempDir, logger)

	registry := metrics.NewRegistry()
	bridgeMetrics := metrics.NewBridgeMetrics(registry)
	flags := features.NewFlagManager(cfg.Features)

	bridge := service.NewBridge(waClient, tgClient, db, mediaHandler, transcoder, flags, bridgeMetrics, cfg.Telegram, logger)
	if err := bridge.Warm(ctx); err != nil {
		return fmt.Errorf("failed to warm mapping caches: %w", err)
	}

	topics := service.NewTopicManager(bridge, waClient, tgClient, flags, cfg.Telegram.SupergroupID, logger)
	contacts := service.NewContactService(bridge, waClient, logger)
	presence := service.NewPresenceCoordinator(waClient, flags, logger)
	defer presence.Stop()

	commands := service.NewCommandRouter(bridge, topics, contacts, flags, logger)
	waHandler := service.NewWhatsAppHandler(bridge, topics, contacts, presence, flags, cfg.Telegram.SupergroupID, cfg.Telegram.OwnerID, logger)
	tgHandler := service.NewTelegramHandler(bridge, presence, commands, flags, cfg.Telegram.SupergroupID, cfg.Telegram.OwnerID, logger)

	scheduler := service.NewScheduler(bridge, topics, contacts, cfg.RetentionDays, cfg.Server.CleanupIntervalHours, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	// Initial contact warm-up runs in the background so startup is not
	// blocked by a slow gateway.
	go warmContacts(ctx, contacts, topics, logger)

	if cfg.WhatsApp.EventStreamEnabled {
		stream := whatsapp.NewEventStream(cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.APIKey, waHandler, logger)
		waClient.SetConnectedProbe(stream.Connected)
		if err := stream.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event stream: %w", err)
		}
		defer stream.Stop()
	}

	if cfg.Telegram.PollingEnabled {
		poller := telegram.NewPoller(tgClient, tgHandler, cfg.Telegram, logger)
		if err := poller.Start(ctx); err != nil {
			return fmt.Errorf("failed to start Telegram poller: %w", err)
		}
		defer poller.Stop()
	}

	server := NewServer(cfg, waHandler, waClient, registry, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(configured string, logger *logrus.Logger) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}
	if configured == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// warmContacts primes the contact name cache from the gateway directory and
// chat list, then refreshes topic titles with the names learned. Failures
// only degrade topic titles, never startup.
func warmContacts(ctx context.Context, contacts *service.ContactService, topics *service.TopicManager, logger *logrus.Logger) {
	accepted := 0
	if n, err := contacts.SyncFromDirectory(ctx); err != nil {
		logger.Warnf("Contact directory sync failed: %v. Topic titles may fall back to phone numbers.", err)
	} else {
		accepted += n
		logger.WithField("count", n).Info("Contact directory sync completed")
	}
	if n, err := contacts.SyncFromChatList(ctx); err != nil {
		logger.Warnf("Chat list sync failed: %v", err)
	} else {
		accepted += n
		logger.WithField("count", n).Info("Chat list sync completed")
	}
	if accepted > 0 {
		topics.RefreshTopicNames(ctx)
	}
}
