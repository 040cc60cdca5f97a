package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/tablescan-worker/internal/processor"
)

// TaskTypeExport is the asynq task type for table exports
const TaskTypeExport = "table:export"

// NewExportTask wraps a request as an asynq task
func NewExportTask(req *processor.ExportRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export request: %w", err)
	}
	return asynq.NewTask(TaskTypeExport, payload), nil
}

// Enqueuer submits export tasks
type Enqueuer struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
}

// EnqueuerConfig holds enqueue settings
type EnqueuerConfig struct {
	RedisURL  string
	QueueName string
	MaxRetry  int
	Timeout   time.Duration // task deadline enforced by asynq, on top of the handler timeout
}

// NewEnqueuer creates an asynq client
func NewEnqueuer(cfg *EnqueuerConfig) (*Enqueuer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}

	return &Enqueuer{
		client:   asynq.NewClient(redisOpt),
		queue:    cfg.QueueName,
		maxRetry: maxRetry,
		timeout:  cfg.Timeout,
	}, nil
}

// Enqueue submits req. The job ID doubles as the task ID, so a job cannot be
// queued twice while it is pending.
func (e *Enqueuer) Enqueue(ctx context.Context, req *processor.ExportRequest) error {
	task, err := NewExportTask(req)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(e.queue),
		asynq.TaskID(req.JobID),
		asynq.MaxRetry(e.maxRetry),
	}
	if e.timeout > 0 {
		// leave room for the status write after the handler's own timeout
		opts = append(opts, asynq.Timeout(e.timeout+30*time.Second))
	}

	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue export %s: %w", req.JobID, err)
	}
	return nil
}

// Close closes the underlying client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
