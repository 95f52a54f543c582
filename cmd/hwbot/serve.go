package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hwbot/internal/activity"
	"hwbot/internal/admin"
	"hwbot/internal/bus"
	"hwbot/internal/channel"
	"hwbot/internal/classify"
	"hwbot/internal/config"
	"hwbot/internal/domain"
	"hwbot/internal/events"
	"hwbot/internal/extract"
	"hwbot/internal/fanout"
	"hwbot/internal/metrics"
	"hwbot/internal/route"
	"hwbot/internal/triage"
)

const (
	shutdownTimeout = 15 * time.Second
	startupNotice   = "✅ Bot has started and is live!"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (Telegram ingress, triage workers, admin API, digest)",
		Long:  "Starts the Telegram channel and the triage pipeline, plus the admin server and digest when enabled. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Telegram.Enabled {
		return fmt.Errorf("telegram is disabled: set telegram.token or %s", config.EnvBotToken)
	}

	log, closer, err := newLogger(cfg.General.LogLevel, cfg.General.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := route.Parse(cfg.Routing.Routes)
	if err != nil {
		return err
	}
	router := route.NewRouter(table, logger)
	logger.Info("routes loaded", "sources", table.Len())

	classifier, err := classify.FromFile(cfg.Classifier.VocabularyFile)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	store, err := activity.Open(activity.Options{
		Backend:       cfg.Store.Backend,
		DBPath:        cfg.Store.DBPath,
		SnippetLength: cfg.General.SnippetLength,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("activity store: %w", err)
	}
	defer store.Close()

	adminSvc := admin.NewService(admin.Config{
		Router: router,
		Store:  store,
		RoutesSource: func() (string, error) {
			return config.ReloadRoutes(resolveConfigPath(), envFile)
		},
		Logger: logger,
	})

	webhookPath := cfg.Telegram.WebhookPath
	if webhookPath == "" {
		webhookPath = "/" + cfg.Telegram.Token
	}
	tg, err := channel.NewTelegram(channel.TelegramConfig{
		Token:        cfg.Telegram.Token,
		Mode:         cfg.Telegram.Mode,
		WebhookURL:   cfg.Telegram.WebhookURL,
		WebhookPath:  webhookPath,
		ParseMode:    cfg.Telegram.ParseMode,
		AdminIDs:     cfg.Telegram.AdminIDs,
		MaxFileBytes: cfg.Extraction.MaxFileBytes,
		Location:     cfg.Location(),
		Admin:        adminSvc,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	extractor := extract.New(extract.Config{
		Fetcher:     tg,
		OCR:         newOCR(cfg.Extraction.OCR, logger),
		Transcriber: newTranscriber(cfg.Extraction.Transcription, logger),
		Timeout:     time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
		Logger:      logger,
	})

	engine := fanout.New(fanout.Config{
		Deliverer: tg,
		Timeout:   time.Duration(cfg.Delivery.TimeoutSeconds) * time.Second,
		Logger:    logger,
	})

	var publisher domain.EventPublisher
	if cfg.Events.Enabled {
		rp, err := events.NewRabbitPublisher(ctx, events.Config{
			URL:        cfg.Events.URL,
			Exchange:   cfg.Events.Exchange,
			RoutingKey: cfg.Events.RoutingKey,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		defer rp.Close()
		publisher = rp
	}

	pipeline, err := triage.New(triage.Config{
		Routes:     router,
		Classifier: classifier,
		Images:     extractor,
		Media:      extractor,
		FanOut:     engine,
		Store:      store,
		Events:     publisher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	queue := bus.New(cfg.General.QueueSize, bus.DefaultPublishTimeout, logger)

	// Workers outlive the signal context so queued messages drain on shutdown.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		triage.Run(workCtx, queue.Subscribe(), cfg.General.MaxConcurrentMessages, pipeline, logger)
	}()

	if cfg.Admin.Enabled {
		srvCfg := admin.ServerConfig{
			Host:    cfg.Admin.Host,
			Port:    cfg.Admin.Port,
			Token:   cfg.Admin.Token,
			Service: adminSvc,
			Metrics: metrics.Collector.Handler(),
			Logger:  logger,
		}
		if cfg.Telegram.Mode == channel.ModeWebhook {
			srvCfg.Webhook = tg.WebhookHandler()
			srvCfg.WebhookPath = webhookPath
		}
		srv, err := admin.NewServer(srvCfg)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("admin server error", "err", err)
				stop()
			}
		}()
	}

	if cfg.Digest.Enabled {
		digest, err := admin.NewDigest(admin.DigestConfig{
			Spec:       cfg.Digest.Cron,
			Location:   cfg.Location(),
			Window:     time.Duration(cfg.Digest.WindowDays) * 24 * time.Hour,
			Service:    adminSvc,
			Notifier:   tg,
			Recipients: cfg.Telegram.AdminIDs,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		digest.Start()
		defer digest.Stop()
	}

	tgDone := make(chan error, 1)
	go func() { tgDone <- tg.Start(ctx, queue) }()

	if cfg.Telegram.NotifyAdminsOnStartup {
		tg.NotifyAdmins(ctx, startupNotice)
	}
	logger.Info("hwbot started. Press Ctrl+C to stop.", "version", version, "mode", cfg.Telegram.Mode)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-tgDone:
		if runErr != nil {
			logger.Error("telegram channel error", "err", runErr)
		}
	}
	stop()
	logger.Info("shutting down...", "queued", queue.Len())

	queue.Close()
	select {
	case <-workersDone:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, cancelling in-flight messages")
		cancelWork()
		<-workersDone
	}
	return runErr
}

func newOCR(rc config.RecognizerConfig, logger *slog.Logger) extract.ImageRecognizer {
	if !rc.Enabled {
		logger.Warn("image OCR disabled: photos will never match")
		return nil
	}
	return extract.NewVisionOCR(extract.VisionConfig{
		APIBase:   rc.APIBase,
		APIKey:    rc.APIKey,
		Model:     rc.Model,
		MaxTokens: rc.MaxTokens,
		Logger:    logger,
	})
}

// newTranscriber chains the enabled transcription endpoints in config order.
func newTranscriber(rcs []config.RecognizerConfig, logger *slog.Logger) extract.Transcriber {
	var chain []extract.Transcriber
	for _, rc := range rcs {
		if !rc.Enabled {
			continue
		}
		chain = append(chain, extract.NewWhisperTranscriber(extract.WhisperConfig{
			Name:     rc.Name,
			APIBase:  rc.APIBase,
			APIKey:   rc.APIKey,
			Model:    rc.Model,
			Language: rc.Language,
			Logger:   logger,
		}))
	}
	switch len(chain) {
	case 0:
		logger.Warn("transcription disabled: voice and video will never match")
		return nil
	case 1:
		return chain[0]
	default:
		return extract.NewFailoverTranscriber(chain, logger)
	}
}
