package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusTracker mirrors job status into Redis for dashboards and streams
// transitions on the "<prefix>:events" channel.
//
// Keys: <prefix>:processing, <prefix>:completed and <prefix>:failed are sets
// of job IDs; <prefix>:results and <prefix>:errors are hashes keyed by job ID.
type StatusTracker struct {
	client *redis.Client
	prefix string
}

// StatusEvent is published on every transition
type StatusEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	Timestamp string `json:"timestamp"`
}

// NewStatusTracker connects to Redis
func NewStatusTracker(redisURL, prefix string) (*StatusTracker, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if prefix == "" {
		prefix = "tablescan"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StatusTracker{client: client, prefix: prefix}, nil
}

func (s *StatusTracker) key(name string) string {
	return fmt.Sprintf("%s:%s", s.prefix, name)
}

// Update records a transition. detail is stored as JSON in the results hash
// for completed jobs and in the errors hash for failed ones.
func (s *StatusTracker) Update(ctx context.Context, jobID string, status Status, detail interface{}) error {
	var detailJSON []byte
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal status detail: %w", err)
		}
		detailJSON = b
	}

	event, err := json.Marshal(StatusEvent{
		Event:     fmt.Sprintf("job:%s", status),
		JobID:     jobID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch status {
		case StatusProcessing:
			pipe.SAdd(ctx, s.key("processing"), jobID)
		case StatusCompleted:
			pipe.SRem(ctx, s.key("processing"), jobID)
			pipe.SAdd(ctx, s.key("completed"), jobID)
			if detailJSON != nil {
				pipe.HSet(ctx, s.key("results"), jobID, detailJSON)
			}
		case StatusFailed:
			pipe.SRem(ctx, s.key("processing"), jobID)
			pipe.SAdd(ctx, s.key("failed"), jobID)
			if detailJSON != nil {
				pipe.HSet(ctx, s.key("errors"), jobID, detailJSON)
			}
		}
		pipe.Publish(ctx, s.key("events"), event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", jobID, err)
	}
	return nil
}

// Forget removes a job from every set and hash
func (s *StatusTracker) Forget(ctx context.Context, jobID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, set := range []string{"processing", "completed", "failed"} {
			pipe.SRem(ctx, s.key(set), jobID)
		}
		pipe.HDel(ctx, s.key("results"), jobID)
		pipe.HDel(ctx, s.key("errors"), jobID)
		return nil
	})
	return err
}

// Subscribe streams status events until ctx is done
func (s *StatusTracker) Subscribe(ctx context.Context) (<-chan StatusEvent, error) {
	sub := s.client.Subscribe(ctx, s.key("events"))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan StatusEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Stats returns the size of each status set
func (s *StatusTracker) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, set := range []string{"processing", "completed", "failed"} {
		n, err := s.client.SCard(ctx, s.key(set)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s count: %w", set, err)
		}
		stats[set] = n
	}
	return stats, nil
}

// Close closes the Redis connection
func (s *StatusTracker) Close() error {
	return s.client.Close()
}
