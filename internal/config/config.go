/**
 * Configuration for the document intake worker.
 *
 * Every tuning constant of the pipeline is environment-driven with a fixed
 * default; nothing is a process-wide mutable global.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL        string
	QueueName       string
	LegacyQueueName string // direct Redis list consumed for legacy producers; empty disables it

	// PostgreSQL configuration
	DatabaseURL string

	// Delivery endpoints (the excluded ingestion collaborator)
	InsertURL       string
	LegacyAttachURL string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds, whole-batch budget

	// Pipeline tuning
	MaxImageDimension int // long-edge cap for the capture preset
	TargetSizeKB      int
	JPEGQualityStart  int
	JPEGQualityMin    int
	JPEGQualityStep   int

	// OCR engine (ocrmypdf subprocess)
	OCRBinary        string
	OCRTimeout       int // seconds, wall clock for the invoking process
	OCREngineTimeout int // seconds, passed to --tesseract-timeout
	OCRJobs          int
	OCRLanguage      string

	// Artifact naming
	NameTimezone string

	// Temporary directory for the OCR subprocess handoff
	TempDir string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "intake:batches"),
		LegacyQueueName:   getEnvOrDefault("LEGACY_QUEUE_NAME", ""),
		DatabaseURL:       getEnvOrThrow("DATABASE_URL"),
		InsertURL:         getEnvOrDefault("PROCESSOR_INSERT_URL", "http://localhost:30011/insert_with_file"),
		LegacyAttachURL:   getEnvOrDefault("LEGACY_FILE_ATTACH_URL", "http://localhost:30015/api.php"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 600000), // 10 minutes per batch
		MaxImageDimension: getEnvAsIntOrDefault("MAX_IMAGE_DIMENSION", 1400),
		TargetSizeKB:      getEnvAsIntOrDefault("TARGET_SIZE_KB", 300),
		JPEGQualityStart:  getEnvAsIntOrDefault("JPEG_QUALITY_START", 90),
		JPEGQualityMin:    getEnvAsIntOrDefault("JPEG_QUALITY_MIN", 50),
		JPEGQualityStep:   getEnvAsIntOrDefault("JPEG_QUALITY_STEP", 5),
		OCRBinary:         getEnvOrDefault("OCRMYPDF_PATH", "ocrmypdf"),
		OCRTimeout:        getEnvAsIntOrDefault("OCR_TIMEOUT", 300),
		OCREngineTimeout:  getEnvAsIntOrDefault("OCR_ENGINE_TIMEOUT", 120),
		OCRJobs:           getEnvAsIntOrDefault("OCR_JOBS", 2),
		OCRLanguage:       getEnvOrDefault("OCR_LANGUAGE", "eng"),
		NameTimezone:      getEnvOrDefault("NAME_TIMEZONE", "Asia/Kolkata"),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
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

	if c.InsertURL == "" {
		return fmt.Errorf("PROCESSOR_INSERT_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxImageDimension < 100 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be at least 100, got %d", c.MaxImageDimension)
	}

	if c.TargetSizeKB < 10 {
		return fmt.Errorf("TARGET_SIZE_KB must be at least 10, got %d", c.TargetSizeKB)
	}

	if c.JPEGQualityMin < 1 || c.JPEGQualityStart > 100 || c.JPEGQualityMin > c.JPEGQualityStart {
		return fmt.Errorf("JPEG quality range invalid: start=%d min=%d", c.JPEGQualityStart, c.JPEGQualityMin)
	}

	if c.JPEGQualityStep < 1 {
		return fmt.Errorf("JPEG_QUALITY_STEP must be positive, got %d", c.JPEGQualityStep)
	}

	if c.OCRTimeout < 1 {
		return fmt.Errorf("OCR_TIMEOUT must be positive, got %d", c.OCRTimeout)
	}

	if c.OCRJobs < 1 {
		return fmt.Errorf("OCR_JOBS must be positive, got %d", c.OCRJobs)
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

// getEnvOrThrow gets environment variable or panics when unset
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
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
