/**
 * Document Intake Worker - Main Entry Point
 *
 * Go worker that normalizes uploaded logistics documents into compact,
 * OCR-ready single-page PDFs.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed batch queue (plus an optional
 *   direct-list consumer for the legacy upload gateway)
 * - Per-asset normalization pipeline: decode, downscale, enhance,
 *   size-constrained JPEG re-encode, PDF synthesis, OCR text layer
 * - Artifact delivery to the ingestion endpoints, with legacy fallback
 * - PostgreSQL persistence for outcome rows and job status
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/freightflow/docintake-worker/internal/clients"
	"github.com/freightflow/docintake-worker/internal/config"
	"github.com/freightflow/docintake-worker/internal/processor"
	"github.com/freightflow/docintake-worker/internal/queue"
	"github.com/freightflow/docintake-worker/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Document intake worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s, Workers=%d",
		cfg.RedisURL, cfg.QueueName, cfg.WorkerConcurrency)

	// Initialize PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	store, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Printf("Storage initialized")

	// Initialize delivery client; an unreachable endpoint at boot is a
	// warning, not a failure, since delivery errors surface per asset.
	delivery := clients.NewDeliveryClient(cfg.InsertURL, cfg.LegacyAttachURL)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := delivery.HealthCheck(ctx); err != nil {
			log.Printf("Warning: delivery endpoint health check failed: %v", err)
		}
		cancel()
	}

	// Initialize batch processor
	proc, err := processor.NewBatchProcessor(&processor.ProcessorConfig{
		Config:   cfg,
		Storage:  store,
		Delivery: delivery,
		Probe:    processor.NewTextProbe(cfg.OCRLanguage),
	})
	if err != nil {
		log.Fatalf("Failed to initialize batch processor: %v", err)
	}
	log.Printf("Batch processor initialized")

	// Initialize queue consumer
	log.Printf("Connecting to Redis queue...")
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}
	log.Printf("Queue consumer started with concurrency=%d", cfg.WorkerConcurrency)

	// Optional consumer for the legacy gateway's direct list queue
	var legacy *queue.RedisConsumer
	if cfg.LegacyQueueName != "" {
		legacy, err = queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.LegacyQueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			log.Fatalf("Failed to initialize legacy consumer: %v", err)
		}
		if err := legacy.Start(); err != nil {
			log.Fatalf("Failed to start legacy consumer: %v", err)
		}
		log.Printf("Legacy consumer started on queue=%s", cfg.LegacyQueueName)
	}

	log.Printf("===========================================")
	log.Printf("Document Intake Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Capture cap: %dpx, Target: %dKB", cfg.MaxImageDimension, cfg.TargetSizeKB)
	log.Printf("OCR: %s (timeout %ds)", cfg.OCRBinary, cfg.OCRTimeout)
	log.Printf("===========================================")
	log.Printf("Waiting for batches...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}
	if legacy != nil {
		if err := legacy.Stop(); err != nil {
			log.Printf("Error stopping legacy consumer: %v", err)
		}
	}

	if err := store.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	}

	log.Printf("Shutdown complete")
}
