/**
 * Table Scan Worker - Main Entry Point
 *
 * Go worker that turns screenshots of tables posted in chat channels into CSV.
 *
 * Architecture:
 * - chi HTTP API accepting export jobs
 * - Asynq consumer for the Redis-backed job queue
 * - Message window collection over Discord channel history
 * - Cloud Vision (or Tesseract) symbol recognition and geometric table reconstruction
 * - PostgreSQL persistence for export records, Redis for live status
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/tablescan-worker/internal/api"
	"github.com/adverant/nexus/tablescan-worker/internal/clients"
	"github.com/adverant/nexus/tablescan-worker/internal/config"
	"github.com/adverant/nexus/tablescan-worker/internal/export"
	"github.com/adverant/nexus/tablescan-worker/internal/logging"
	"github.com/adverant/nexus/tablescan-worker/internal/processor"
	"github.com/adverant/nexus/tablescan-worker/internal/queue"
	"github.com/adverant/nexus/tablescan-worker/internal/storage"
	"github.com/adverant/nexus/tablescan-worker/internal/table"
	"github.com/adverant/nexus/tablescan-worker/internal/window"
)

func main() {
	logger := logging.NewLogger("worker")

	// Load environment variables
	if err := godotenv.Load(".env.tablescan"); err != nil {
		logger.Warn(".env.tablescan not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err.Error())
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Table scan worker starting",
		"queue", cfg.QueueName, "workers", cfg.WorkerConcurrency, "ocr_engine", cfg.OCREngine)

	// Storage
	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	tracker, err := storage.NewStatusTracker(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		return fmt.Errorf("failed to initialize status tracker: %w", err)
	}
	defer tracker.Close()

	// Chat platform
	discord, err := clients.NewDiscordClient(&clients.DiscordConfig{
		Token:      cfg.DiscordToken,
		RatePerSec: cfg.HistoryRatePerSec,
	}, logging.NewLogger("discord"))
	if err != nil {
		return err
	}

	recognizer, err := newRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("Recognition engine initialized", "engine", recognizer.Name())

	proc, err := processor.NewTableProcessor(&processor.ProcessorConfig{
		Recognizer: recognizer,
		Downloader: processor.NewFetcher(processor.FetcherConfig{MaxSize: cfg.MaxImageSize}, logging.NewLogger("fetch")),
		Collector:  window.NewCollector(discord, cfg.HistoryMaxPages, logging.NewLogger("window")),
		Sink:       export.NewCSVSink(),
		Poster:     discord,
		Table: table.Options{
			LineThresholdFactor: cfg.LineThresholdFactor,
			CellGapFactor:       cfg.CellGapFactor,
			ColumnTolerance:     cfg.ColumnTolerance,
		},
		ImageConcurrency: cfg.ImageConcurrency,
		Logger:           logging.NewLogger("processor"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize table processor: %w", err)
	}

	// Queue
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Exporter:          proc,
		Store:             store,
		Notifier:          tracker,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
		Logger:            logging.NewLogger("queue"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}

	enqueuer, err := queue.NewEnqueuer(&queue.EnqueuerConfig{
		RedisURL:  cfg.RedisURL,
		QueueName: cfg.QueueName,
		Timeout:   time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize enqueuer: %w", err)
	}
	defer enqueuer.Close()

	if err := consumer.Start(ctx); err != nil {
		return err
	}

	// HTTP API
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(store, enqueuer, tracker, logging.NewLogger("api").Slog(), api.Config{APIKey: cfg.APIKey}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Table scan worker is ready, waiting for jobs")

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping HTTP server", "error", err.Error())
	}
	if err := consumer.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping queue consumer", "error", err.Error())
	}

	logger.Info("Shutdown complete")
	return nil
}

func newRecognizer(ctx context.Context, cfg *config.Config) (processor.Recognizer, error) {
	switch cfg.OCREngine {
	case "tesseract":
		t, err := processor.NewTesseractOCR(&processor.TesseractConfig{Languages: cfg.TesseractLanguages})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tesseract: %w", err)
		}
		return t, nil
	default:
		v, err := processor.NewVisionOCR(ctx, &processor.VisionConfig{
			CredentialsFile: cfg.VisionCredentials,
			APIKey:          cfg.VisionAPIKey,
			Languages:       cfg.OCRLanguages,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vision: %w", err)
		}
		return v, nil
	}
}
