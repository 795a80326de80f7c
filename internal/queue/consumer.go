/**
 * Queue consumer for the document intake worker.
 *
 * Consumes intake batches from the Redis-backed Asynq queue. Each task is one
 * batch; asset-level failures are data inside the batch result, so a task
 * only fails (and retries) on infrastructure errors.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	werrors "github.com/freightflow/docintake-worker/internal/errors"
	"github.com/freightflow/docintake-worker/internal/pipeline"
	"github.com/freightflow/docintake-worker/internal/processor"
)

// TaskTypeIntakeBatch is the Asynq task type handled by this worker.
const TaskTypeIntakeBatch = "intake:batch"

// BatchJob is the queue payload for one intake batch.
type BatchJob struct {
	JobID       string    `json:"jobId"`
	ClientID    int       `json:"clientId"`
	DocFormatID int       `json:"docFormatId"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	Preset      string    `json:"preset,omitempty"`
	Files       []JobFile `json:"files"`
}

// JobFile is one uploaded asset inside a batch payload.
type JobFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data"` // base64 in JSON
}

// Consumer handles batch consumption from the Asynq queue.
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.BatchProcessorInterface
	config    *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.BatchProcessorInterface
	ProcessingTimeout int64 // milliseconds per batch (default: 600000)
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at 60s
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		config:    cfg,
	}

	mux.HandleFunc(TaskTypeIntakeBatch, consumer.handleIntakeBatch)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// handleIntakeBatch processes one intake batch task
func (c *Consumer) handleIntakeBatch(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job BatchJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal batch job: %w", err)
	}

	log.Printf("[Job %s] Processing batch: client=%d, docFormat=%d, files=%d",
		job.JobID, job.ClientID, job.DocFormatID, len(job.Files))

	if err := c.processor.UpdateJobStatus(ctx, job.JobID, "processing", map[string]interface{}{
		"assetsTotal": len(job.Files),
	}); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to processing: %v", job.JobID, err)
	}

	timeout := time.Duration(600000) * time.Millisecond
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessBatch(processCtx, batchRequest(&job))

	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", job.JobID, duration, timeout)

			timeoutErr := werrors.NewProcessingTimeoutError(job.JobID, timeout, err)
			if updateErr := c.processor.UpdateJobStatus(ctx, job.JobID, "failed", timeoutErr.ToMap()); updateErr != nil {
				log.Printf("[Job %s] Warning: Failed to update status to failed: %v", job.JobID, updateErr)
			}

			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		log.Printf("[Job %s] Processing failed after %v: %v", job.JobID, duration, err)

		if updateErr := c.processor.UpdateJobStatus(ctx, job.JobID, "failed", map[string]interface{}{
			"error":          err.Error(),
			"processingTime": duration,
		}); updateErr != nil {
			log.Printf("[Job %s] Warning: Failed to update status to failed: %v", job.JobID, updateErr)
		}

		return fmt.Errorf("batch processing failed: %w", err)
	}

	log.Printf("[Job %s] Batch completed in %v: delivered=%d, failed=%d",
		job.JobID, duration, result.Delivered, result.Failed)

	if err := c.processor.UpdateJobStatus(ctx, job.JobID, "completed", map[string]interface{}{
		"assetsTotal":    len(job.Files),
		"assetsFailed":   result.Failed,
		"processingTime": duration,
	}); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to completed: %v", job.JobID, err)
	}

	return nil
}

// batchRequest converts a queue payload into a processor request.
func batchRequest(job *BatchJob) *processor.BatchRequest {
	assets := make([]pipeline.RawAsset, 0, len(job.Files))
	for _, f := range job.Files {
		assets = append(assets, pipeline.RawAsset{
			Name:     f.Name,
			MimeType: f.MimeType,
			Data:     f.Data,
		})
	}

	return &processor.BatchRequest{
		JobID:       job.JobID,
		ClientID:    job.ClientID,
		DocFormatID: job.DocFormatID,
		UploadedBy:  job.UploadedBy,
		Preset:      job.Preset,
		Assets:      assets,
	}
}
