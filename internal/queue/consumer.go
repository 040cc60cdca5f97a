/**
 * Queue Consumer for the table scan worker
 *
 * Consumes table:export tasks from Redis via asynq, runs them through the
 * table processor and records every status transition.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/tablescan-worker/internal/errors"
	"github.com/adverant/nexus/tablescan-worker/internal/logging"
	"github.com/adverant/nexus/tablescan-worker/internal/processor"
	"github.com/adverant/nexus/tablescan-worker/internal/storage"
)

// StatusNotifier mirrors status transitions outside the store
type StatusNotifier interface {
	Update(ctx context.Context, jobID string, status storage.Status, detail interface{}) error
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler *ExportHandler
	config  *ConsumerConfig
	logger  *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Exporter          processor.Exporter
	Store             storage.Store
	Notifier          StatusNotifier // optional
	ProcessingTimeout int64          // milliseconds (default: 300000 = 5 minutes)
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	handler, err := NewExportHandler(cfg)
	if err != nil {
		return nil, err
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := handler.logger
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at a minute
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			IsFailure: func(err error) bool {
				return !stderrors.Is(err, asynq.SkipRetry)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Error("Task processing error", "type", task.Type(), "retried", retried, "error", err.Error())
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeExport, handler)

	return &Consumer{
		server:  server,
		mux:     mux,
		handler: handler,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer...")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"taskType":    TaskTypeExport,
	}
}

// ExportHandler runs one export task
type ExportHandler struct {
	exporter processor.Exporter
	store    storage.Store
	notifier StatusNotifier
	timeout  time.Duration
	logger   *logging.Logger
}

// NewExportHandler creates the task handler used by the consumer
func NewExportHandler(cfg *ConsumerConfig) (*ExportHandler, error) {
	if cfg.Exporter == nil {
		return nil, fmt.Errorf("Exporter is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}

	timeout := 300000 * time.Millisecond
	if cfg.ProcessingTimeout > 0 {
		timeout = time.Duration(cfg.ProcessingTimeout) * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	return &ExportHandler{
		exporter: cfg.Exporter,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// ProcessTask implements asynq.Handler
func (h *ExportHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var req processor.ExportRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal export request: %v: %w", err, asynq.SkipRetry)
	}
	if req.JobID == "" {
		return fmt.Errorf("export request without job ID: %w", asynq.SkipRetry)
	}

	log := h.logger.With("job_id", req.JobID)

	rec, err := h.store.Get(ctx, req.JobID)
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		raw, _ := json.Marshal(req)
		rec = &storage.ExportRecord{ID: req.JobID, ChannelID: req.ChannelID, Request: raw}
	case err != nil:
		return errors.NewStorageFailedError(req.JobID, err)
	case rec.Status == storage.StatusCompleted:
		log.Info("Export already completed, skipping redelivered task")
		return nil
	}

	rec.Status = storage.StatusProcessing
	rec.ErrorCode, rec.ErrorMessage = "", ""
	if err := h.store.Put(ctx, rec); err != nil {
		return errors.NewStorageFailedError(req.JobID, err)
	}
	h.notify(ctx, req.JobID, storage.StatusProcessing, nil)

	log.Info("Processing export",
		"channel", req.ChannelID, "anchor", req.AnchorMessageID, "direction", req.Direction,
		"count", req.Count, "minutes", req.Minutes, "images", len(req.ImageURLs), "timeout", h.timeout.String())

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.exporter.Export(processCtx, &req)
	duration := time.Since(startTime)

	if err != nil {
		return h.fail(ctx, rec, processCtx, err, duration)
	}

	failures, _ := json.Marshal(result.Failures)
	rec.Status = storage.StatusCompleted
	rec.MessageIDs = result.MessageIDs
	rec.Images = result.Images
	rec.Rows = len(result.Rows)
	rec.Failures = failures
	rec.Filename = result.Filename
	rec.CSV = result.CSV
	rec.ProcessingTimeMs = duration.Milliseconds()

	if err := h.store.Put(ctx, rec); err != nil {
		log.Error("Failed to store export result", "error", err.Error())
		return errors.NewStorageFailedError(req.JobID, err)
	}

	h.notify(ctx, req.JobID, storage.StatusCompleted, map[string]interface{}{
		"rows":           rec.Rows,
		"images":         rec.Images,
		"skippedImages":  len(result.Failures),
		"messages":       len(rec.MessageIDs),
		"posted":         result.Posted,
		"processingTime": rec.ProcessingTimeMs,
	})

	log.Info("Export completed", "rows", rec.Rows, "images", rec.Images, "duration_ms", rec.ProcessingTimeMs)
	return nil
}

// fail records a failed attempt. Requests that cannot succeed on retry are
// marked failed immediately; others stay queued until retries run out.
func (h *ExportHandler) fail(ctx context.Context, rec *storage.ExportRecord, processCtx context.Context, err error, duration time.Duration) error {
	var perr *errors.ProcessingError
	if processCtx.Err() == context.DeadlineExceeded {
		perr = errors.NewProcessingTimeoutError(rec.ID, h.timeout, err)
	} else if !stderrors.As(err, &perr) {
		perr = &errors.ProcessingError{Code: errors.ErrorOCRFailed, Message: err.Error(), JobID: rec.ID, Timestamp: time.Now(), Cause: err}
	}

	permanent := perr.Code == errors.ErrorNoAttachments || perr.Code == errors.ErrorInvalidRequest
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	final := permanent || !ok1 || !ok2 || retried >= maxRetry

	rec.ErrorCode = string(perr.Code)
	rec.ErrorMessage = perr.Error()
	rec.ProcessingTimeMs = duration.Milliseconds()
	if final {
		rec.Status = storage.StatusFailed
	} else {
		rec.Status = storage.StatusQueued
	}

	if putErr := h.store.Put(ctx, rec); putErr != nil {
		h.logger.Warn("Failed to store export failure", "job_id", rec.ID, "error", putErr.Error())
	}
	if final {
		h.notify(ctx, rec.ID, storage.StatusFailed, perr.ToMap())
	}

	h.logger.Error("Export failed",
		"job_id", rec.ID, "code", string(perr.Code), "final", final,
		"duration_ms", duration.Milliseconds(), "error", perr.Error())

	if permanent {
		return fmt.Errorf("%v: %w", perr, asynq.SkipRetry)
	}
	return fmt.Errorf("export failed: %w", perr)
}

func (h *ExportHandler) notify(ctx context.Context, jobID string, status storage.Status, detail interface{}) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Update(ctx, jobID, status, detail); err != nil {
		h.logger.Warn("Failed to publish status", "job_id", jobID, "status", string(status), "error", err.Error())
	}
}

// asynqLogger adapts the worker logger to asynq.Logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
