/**
 * Direct Redis queue consumer for the document intake worker.
 *
 * Compatible with the legacy upload gateway, which enqueues with plain Redis
 * LIST operations instead of Asynq: job IDs on a list, payloads in a
 * companion hash. Kept for deployments that have not migrated; new paths use
 * the Asynq consumer.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freightflow/docintake-worker/internal/pipeline"
	"github.com/freightflow/docintake-worker/internal/processor"
)

// RedisJobData is the envelope the legacy gateway writes to the payload hash.
type RedisJobData struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Payload    LegacyPayload `json:"payload"`
	CreatedAt  time.Time     `json:"createdAt"`
	Attempts   int           `json:"attempts"`
	MaxRetries int           `json:"maxRetries"`
}

// LegacyPayload is the legacy batch payload.
type LegacyPayload struct {
	JobID       string       `json:"jobId"`
	ClientID    int          `json:"clientId"`
	DocFormatID int          `json:"docFormatId"`
	UploadedBy  string       `json:"uploadedBy,omitempty"`
	Preset      string       `json:"preset,omitempty"`
	Files       []LegacyFile `json:"files"`
}

// LegacyFile is one uploaded asset in a legacy payload. Data arrives either as
// a base64 string or as a Node.js Buffer object, depending on gateway version.
type LegacyFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte // set by custom UnmarshalJSON
}

// UnmarshalJSON handles both data encodings the gateway has shipped:
// base64 string (current) and Node.js Buffer object (legacy).
func (f *LegacyFile) UnmarshalJSON(data []byte) error {
	type Alias LegacyFile
	aux := &struct {
		Data interface{} `json:"data,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(f),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal file entry: %w", err)
	}

	if aux.Data == nil {
		return nil
	}

	switch v := aux.Data.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 file data: %w", err)
		}
		f.Data = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); ok && bufferType == "Buffer" {
			dataArray, ok := v["data"].([]interface{})
			if !ok {
				return fmt.Errorf("Buffer object missing 'data' array")
			}
			f.Data = make([]byte, len(dataArray))
			for i, val := range dataArray {
				byteVal, ok := val.(float64)
				if !ok {
					return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
				}
				f.Data[i] = byte(byteVal)
			}
		} else {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}

	default:
		return fmt.Errorf("file data must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// RedisConsumer handles batch consumption from the legacy Redis list queue.
type RedisConsumer struct {
	client    *redis.Client
	processor processor.BatchProcessorInterface
	config    *RedisConsumerConfig
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.BatchProcessorInterface
	ProcessingTimeout int64 // milliseconds per batch (default: 600000)
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing batches from the queue
func (c *RedisConsumer) Start() error {
	log.Printf("Starting legacy Redis consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Legacy consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping legacy consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes batches
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Legacy worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Legacy worker %d stopping", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err.Error() != "no jobs available" {
					log.Printf("Legacy worker %d error: %v", id, err)
				}
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next batch from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("no jobs available")
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	jobID := result[1]

	jobData, err := c.client.HGet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	c.markStatus(job.Payload.JobID, "processing", nil)

	log.Printf("Processing legacy batch %s: client=%d, files=%d",
		job.Payload.JobID, job.Payload.ClientID, len(job.Payload.Files))

	batchResult, err := c.processBatch(&job)
	if err != nil {
		log.Printf("Batch %s failed: %v", job.Payload.JobID, err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updatedData, _ := json.Marshal(job)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), job.ID, updatedData)
			c.client.LPush(c.ctx, c.config.QueueName, job.ID)
			log.Printf("Batch %s re-queued for retry (attempt %d/%d)",
				job.Payload.JobID, job.Attempts, job.MaxRetries)
		} else {
			c.markStatus(job.Payload.JobID, "failed", map[string]interface{}{
				"error":    err.Error(),
				"attempts": job.Attempts,
			})
			if updateErr := c.processor.UpdateJobStatus(c.ctx, job.Payload.JobID, "failed", map[string]interface{}{
				"error": err.Error(),
			}); updateErr != nil {
				log.Printf("Warning: Failed to persist failed status for batch %s: %v",
					job.Payload.JobID, updateErr)
			}
		}
		return nil
	}

	c.markStatus(job.Payload.JobID, "completed", batchResult)
	if err := c.processor.UpdateJobStatus(c.ctx, job.Payload.JobID, "completed", map[string]interface{}{
		"assetsTotal":    len(job.Payload.Files),
		"assetsFailed":   batchResult.Failed,
		"processingTime": batchResult.Duration,
	}); err != nil {
		log.Printf("Warning: Failed to persist completed status for batch %s: %v",
			job.Payload.JobID, err)
	}

	log.Printf("Batch %s completed: delivered=%d, failed=%d",
		job.Payload.JobID, batchResult.Delivered, batchResult.Failed)

	return nil
}

// processBatch runs one legacy batch through the shared processor.
func (c *RedisConsumer) processBatch(job *RedisJobData) (*processor.BatchResult, error) {
	assets := make([]pipeline.RawAsset, 0, len(job.Payload.Files))
	for _, f := range job.Payload.Files {
		assets = append(assets, pipeline.RawAsset{
			Name:     f.Name,
			MimeType: f.MimeType,
			Data:     f.Data,
		})
	}

	request := &processor.BatchRequest{
		JobID:       job.Payload.JobID,
		ClientID:    job.Payload.ClientID,
		DocFormatID: job.Payload.DocFormatID,
		UploadedBy:  job.Payload.UploadedBy,
		Preset:      job.Payload.Preset,
		Assets:      assets,
	}

	timeout := time.Duration(600000) * time.Millisecond
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := c.processor.ProcessBatch(ctx, request)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("batch timed out after %v: %w", timeout, err)
		}
		return nil, err
	}

	return result, nil
}

// markStatus maintains the queue bookkeeping sets the legacy gateway reads,
// and publishes a status event for its dashboard stream.
func (c *RedisConsumer) markStatus(jobID string, status string, result interface{}) {
	switch status {
	case "processing":
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
	case "completed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:completed", c.config.QueueName), jobID)
		if result != nil {
			resultData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:results", c.config.QueueName), jobID, resultData)
		}
	case "failed":
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), jobID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:failed", c.config.QueueName), jobID)
		if result != nil {
			errorData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:errors", c.config.QueueName), jobID, errorData)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, fmt.Sprintf("%s:events", c.config.QueueName), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, _ := c.client.LLen(ctx, c.config.QueueName).Result()
	processing, _ := c.client.SCard(ctx, fmt.Sprintf("%s:processing", c.config.QueueName)).Result()
	completed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:completed", c.config.QueueName)).Result()
	failed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:failed", c.config.QueueName)).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
