/**
 * Configuration for the table scan worker
 *
 * Loads configuration from environment variables (optionally from a .env file)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds worker configuration
type Config struct {
	// HTTP API
	Port   string
	APIKey string

	// Redis configuration (task queue and job status)
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Chat platform
	DiscordToken      string
	HistoryMaxPages   int
	HistoryRatePerSec float64

	// Recognition engine: "vision" or "tesseract"
	OCREngine          string
	VisionCredentials  string
	VisionAPIKey       string
	OCRLanguages       []string
	TesseractLanguages []string

	// Worker configuration
	WorkerConcurrency int
	ImageConcurrency  int
	MaxImageSize      int64
	ProcessingTimeout int // milliseconds

	// Table reconstruction thresholds
	LineThresholdFactor float64
	CellGapFactor       float64
	ColumnTolerance     int

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8097"),
		APIKey:              os.Getenv("API_KEY"),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:           getEnvOrDefault("QUEUE_NAME", "tablescan"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		HistoryMaxPages:     getEnvAsIntOrDefault("HISTORY_MAX_PAGES", 50),
		HistoryRatePerSec:   getEnvAsFloatOrDefault("HISTORY_RATE_PER_SEC", 4),
		OCREngine:           getEnvOrDefault("OCR_ENGINE", "vision"),
		VisionCredentials:   os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		VisionAPIKey:        os.Getenv("VISION_API_KEY"),
		OCRLanguages:        getEnvAsList("OCR_LANGUAGES"),
		TesseractLanguages:  getEnvAsList("TESSERACT_LANGUAGES"),
		WorkerConcurrency:   getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ImageConcurrency:    getEnvAsIntOrDefault("IMAGE_CONCURRENCY", 1),
		MaxImageSize:        getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 20971520), // 20MB
		ProcessingTimeout:   getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		LineThresholdFactor: getEnvAsFloatOrDefault("LINE_THRESHOLD_FACTOR", 1.0),
		CellGapFactor:       getEnvAsFloatOrDefault("CELL_GAP_FACTOR", 2.0),
		ColumnTolerance:     getEnvAsIntOrDefault("COLUMN_TOLERANCE", 1),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}

	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}

	switch c.OCREngine {
	case "vision", "tesseract":
	default:
		return fmt.Errorf("OCR_ENGINE must be vision or tesseract, got %q", c.OCREngine)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ImageConcurrency < 1 || c.ImageConcurrency > 16 {
		return fmt.Errorf("IMAGE_CONCURRENCY must be between 1 and 16, got %d", c.ImageConcurrency)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 104857600 { // 1KB to 100MB
		return fmt.Errorf("MAX_IMAGE_SIZE must be between 1KB and 100MB, got %d", c.MaxImageSize)
	}

	if c.HistoryMaxPages < 1 {
		return fmt.Errorf("HISTORY_MAX_PAGES must be at least 1, got %d", c.HistoryMaxPages)
	}

	if c.LineThresholdFactor <= 0 || c.CellGapFactor <= 0 {
		return fmt.Errorf("LINE_THRESHOLD_FACTOR and CELL_GAP_FACTOR must be positive")
	}

	if c.ColumnTolerance < 0 {
		return fmt.Errorf("COLUMN_TOLERANCE must not be negative, got %d", c.ColumnTolerance)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
