package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/tablescan-worker/internal/logging"
)

// ErrNotImage is returned when downloaded bytes are not a supported image format
var ErrNotImage = errors.New("downloaded content is not a supported image")

// FetcherConfig holds attachment download settings
type FetcherConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // per attempt
	MaxSize        int64
	Client         *http.Client
}

// Fetcher downloads attachment bytes with bounded retries
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	logger *logging.Logger
}

// NewFetcher creates a Fetcher, filling unset fields with defaults
func NewFetcher(cfg FetcherConfig, logger *logging.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 16 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 20 * 1024 * 1024
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{cfg: cfg, client: client, logger: logger}
}

// Fetch downloads url. Network errors, 429 and 5xx responses are retried with
// exponential backoff; other 4xx responses fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		data, retry, err := f.fetchOnce(ctx, url)
		if err == nil {
			f.logger.Debug("Attachment downloaded", "url", url, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		lastErr = err
		if !retry || attempt == f.cfg.MaxRetries {
			break
		}

		backoff := f.backoff(attempt)
		f.logger.Warn("Download attempt failed", "url", url, "attempt", attempt, "retry_in", backoff.String(), "error", err.Error())
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to download %s: %w", url, lastErr)
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.cfg.InitialBackoff << (attempt - 1)
	if d <= 0 || d > f.cfg.MaxBackoff {
		d = f.cfg.MaxBackoff
	}
	return d
}

// fetchOnce performs one attempt and reports whether a failure is retryable
func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > f.cfg.MaxSize {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, f.cfg.MaxSize)
	}

	// read one byte past the limit to detect oversized bodies without a length header
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxSize+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > f.cfg.MaxSize {
		return nil, false, fmt.Errorf("file size exceeds maximum: more than %d bytes", f.cfg.MaxSize)
	}

	if detectImageType(data) == "" {
		return nil, false, ErrNotImage
	}
	return data, false, nil
}

// detectImageType sniffs magic bytes for the formats the OCR engines accept
func detectImageType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return ""
}
