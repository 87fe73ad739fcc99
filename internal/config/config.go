/**
 * Configuration for the identity extraction worker
 *
 * Loads configuration from environment variables matching .env.idextract
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string
	QueueBackend string // "redis" (list queue) or "asynq"
	QueueName    string

	// PostgreSQL configuration
	DatabaseURL string

	// HTTP API
	HTTPAddr string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	MaxImageSize      int64
	RecordsListLimit  int

	// OCR configuration
	TessdataPrefix    string
	OCRPrimaryLangs   string
	OCRGeneralLangs   string
	VisionOCRURL      string
	OCRParallelism    int
	ResizeTargetWidth int

	// Optional YAML file overriding label and boilerplate tokens
	LexiconPath string

	LogLevel string
}

// LoadConfig loads configuration from environment variables and
// validates it for the worker
func LoadConfig() (*Config, error) {
	cfg := FromEnv()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv reads the environment without validation. Tools that do not
// touch the database or queue use it directly.
func FromEnv() *Config {
	return &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueBackend:      getEnvOrDefault("QUEUE_BACKEND", "redis"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "idextract:jobs"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":8097"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		MaxImageSize:      getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 20971520),  // 20MB
		RecordsListLimit:  getEnvAsIntOrDefault("RECORDS_LIST_LIMIT", 200),
		TessdataPrefix:    getEnvOrDefault("TESSDATA_PREFIX", ""),
		OCRPrimaryLangs:   getEnvOrDefault("OCR_PRIMARY_LANGS", "tam+eng"),
		OCRGeneralLangs:   getEnvOrDefault("OCR_GENERAL_LANGS", "eng"),
		VisionOCRURL:      getEnvOrDefault("VISION_OCR_URL", ""),
		OCRParallelism:    getEnvAsIntOrDefault("OCR_PARALLELISM", 2),
		ResizeTargetWidth: getEnvAsIntOrDefault("RESIZE_TARGET_WIDTH", 1400),
		LexiconPath:       getEnvOrDefault("LEXICON_PATH", ""),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.OCRParallelism < 1 || c.OCRParallelism > 8 {
		return fmt.Errorf("OCR_PARALLELISM must be between 1 and 8, got %d", c.OCRParallelism)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 104857600 { // 1KB to 100MB
		return fmt.Errorf("MAX_IMAGE_SIZE must be between 1KB and 100MB, got %d", c.MaxImageSize)
	}

	if c.ResizeTargetWidth < 0 || c.ResizeTargetWidth > 8000 {
		return fmt.Errorf("RESIZE_TARGET_WIDTH must be between 0 and 8000, got %d", c.ResizeTargetWidth)
	}

	if c.RecordsListLimit < 1 {
		return fmt.Errorf("RECORDS_LIST_LIMIT must be positive, got %d", c.RecordsListLimit)
	}

	return nil
}

// Timeout returns ProcessingTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
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
