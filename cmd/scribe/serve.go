package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe"
	"github.com/snarg/scribe/internal/api"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/mqttclient"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

func serve(parent context.Context, overrides config.Overrides) error {
	startTime := time.Now()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return err
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("scribe starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	// Transcription provider
	providerURL, providerKey := cfg.DeepgramURL, cfg.DeepgramAPIKey
	if cfg.Provider == "whisper" {
		providerURL, providerKey = cfg.WhisperURL, cfg.WhisperAPIKey
	}
	provider, err := transcribe.New(transcribe.Settings{
		Provider: cfg.Provider,
		URL:      providerURL,
		APIKey:   providerKey,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return err
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("transcription provider ready")

	// Audio archive
	archiveLog := log.With().Str("component", "archive").Logger()
	archive, err := storage.New(cfg.AudioArchive, cfg.S3, cfg.AudioDir, archiveLog)
	if err != nil {
		return fmt.Errorf("audio archive: %w", err)
	}

	checks := map[string]api.StatusFunc{}

	// MQTT events (optional)
	var publisher ingest.Publisher
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       mqttLog,
		})
		if err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
		defer mqtt.Close()
		publisher = mqtt
		checks["mqtt"] = func() string {
			if mqtt.IsConnected() {
				return "ok"
			}
			return "disconnected"
		}
	}

	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		Store:       db,
		Provider:    provider,
		Archive:     archive,
		Publisher:   publisher,
		UploadDir:   cfg.UploadDir,
		SmartFormat: cfg.SmartFormat,
		Language:    cfg.Language,
		Timeout:     cfg.Timeout,
		Log:         log,
	})
	prometheus.MustRegister(metrics.NewCollector(db, pipeline))

	// Watch folder (optional)
	var watcherStats api.WatcherStats
	if cfg.WatchDir != "" {
		watcher := ingest.NewFileWatcher(pipeline, cfg.WatchDir, log)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start file watcher: %w", err)
		}
		defer watcher.Stop()
		checks["file_watcher"] = watcher.Status
		watcherStats = watcher
	}

	if cfg.AuthToken == "" {
		log.Warn().Msg("AUTH_TOKEN is not set: upload and history endpoints are open to anyone who can reach this server")
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		DB:        db,
		Service:   pipeline,
		Archive:   archive,
		Checks:    checks,
		Watcher:   watcherStats,
		OpenAPI:   scribe.OpenAPISpec,
		Version:   version,
		StartTime: startTime,
		Log:       log,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("scribe stopped")
	return serveErr
}
