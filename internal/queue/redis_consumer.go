/**
 * Direct Redis Queue Consumer for the identity extraction worker
 *
 * Compatible with the TypeScript RedisQueue implementation used by the
 * upload gateway: job ids on a LIST, job bodies in "<queue>:data",
 * status SETs, result/error HASHes and a "<queue>:events" channel.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/processor"
	"github.com/adverant/nexus/idextract-worker/internal/storage"
	"github.com/redis/go-redis/v9"
)

var errNoJobs = errors.New("no jobs available")

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration
	PollTimeout       time.Duration
	Logger            *logging.Logger
}

func (cfg *RedisConsumerConfig) key(suffix string) string {
	return fmt.Sprintf("%s:%s", cfg.QueueName, suffix)
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
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

	return NewRedisConsumerFromClient(client, cfg)
}

// NewRedisConsumerFromClient builds a consumer on an existing client.
// The consumer owns the client and closes it on Stop.
func NewRedisConsumerFromClient(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.QueueName == "" {
		cfg.QueueName = "idextract:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("RedisQueue")
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop waits for in-flight jobs and closes the client
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping Redis queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
		}

		err := c.processNextJob(c.ctx)
		if err == nil || errors.Is(err, errNoJobs) {
			continue
		}
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("Worker error", "worker", id, "error", err)
		select {
		case <-time.After(time.Second):
		case <-c.ctx.Done():
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob(ctx context.Context) error {
	result, err := c.client.BRPop(ctx, c.config.PollTimeout, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	// A job taken off the list runs to completion even during shutdown.
	jobCtx := context.WithoutCancel(ctx)

	raw, err := c.client.HGet(jobCtx, c.config.key("data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.updateJobStatus(jobCtx, id, storage.JobStatusFailed, failedMetadata(err, 0, 0), nil)
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = defaultMaxRetries
	}

	logger := c.logger.With("job_id", job.Payload.JobID)
	logger.Info("Processing job", "filename", job.Payload.Filename, "attempt", job.Attempts+1)

	c.updateJobStatus(jobCtx, job.Payload.JobID, storage.JobStatusProcessing, job.Payload.jobMetadata(), nil)

	start := time.Now()
	processResult, err := runJob(jobCtx, c.processor, &job.Payload, c.config.ProcessingTimeout)
	if err != nil {
		job.Attempts++
		logger.Warn("Job failed", "attempt", job.Attempts, "max_retries", job.MaxRetries, "error", err)

		if retryable(err) && job.Attempts < job.MaxRetries {
			updated, merr := json.Marshal(job)
			if merr != nil {
				return fmt.Errorf("failed to marshal job %s: %w", id, merr)
			}
			_, perr := c.client.TxPipelined(jobCtx, func(pipe redis.Pipeliner) error {
				pipe.HSet(jobCtx, c.config.key("data"), id, updated)
				pipe.SRem(jobCtx, c.config.key("processing"), job.Payload.JobID)
				pipe.LPush(jobCtx, c.config.QueueName, id)
				return nil
			})
			if perr != nil {
				return fmt.Errorf("failed to re-queue job %s: %w", id, perr)
			}
			logger.Info("Job re-queued for retry", "attempt", job.Attempts, "max_retries", job.MaxRetries)
			if err := c.processor.UpdateJobStatus(jobCtx, job.Payload.JobID, storage.JobStatusQueued, map[string]interface{}{
				"attempts": job.Attempts,
			}); err != nil {
				logger.Warn("Failed to update PostgreSQL job status", "status", storage.JobStatusQueued, "error", err)
			}
			return nil
		}

		meta := failedMetadata(err, job.Attempts, time.Since(start))
		c.updateJobStatus(jobCtx, job.Payload.JobID, storage.JobStatusFailed, meta, meta)
		return nil
	}

	c.updateJobStatus(jobCtx, job.Payload.JobID, storage.JobStatusCompleted, completedMetadata(processResult), processResult)
	logger.Info("Job completed", "record_id", processResult.RecordID, "processing_ms", processResult.ProcessingTimeMs)
	return nil
}

// updateJobStatus records a status change in Redis and PostgreSQL and
// publishes it on the events channel. body is stored in the results or
// errors hash.
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID string, status string, meta map[string]interface{}, body interface{}) {
	var bodyData []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.logger.Warn("Failed to marshal job body", "job_id", jobID, "error", err)
		}
		bodyData = data
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch status {
		case storage.JobStatusProcessing:
			pipe.SAdd(ctx, c.config.key("processing"), jobID)
		case storage.JobStatusCompleted:
			pipe.SRem(ctx, c.config.key("processing"), jobID)
			pipe.SAdd(ctx, c.config.key("completed"), jobID)
			if bodyData != nil {
				pipe.HSet(ctx, c.config.key("results"), jobID, bodyData)
			}
		case storage.JobStatusFailed:
			pipe.SRem(ctx, c.config.key("processing"), jobID)
			pipe.SAdd(ctx, c.config.key("failed"), jobID)
			if bodyData != nil {
				pipe.HSet(ctx, c.config.key("errors"), jobID, bodyData)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to update Redis job status", "job_id", jobID, "status", status, "error", err)
	}

	// The row may not exist yet; the store upserts it.
	if err := c.processor.UpdateJobStatus(ctx, jobID, status, meta); err != nil {
		c.logger.Warn("Failed to update PostgreSQL job status", "job_id", jobID, "status", status, "error", err)
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	if err := c.client.Publish(ctx, c.config.key("events"), eventData).Err(); err != nil {
		c.logger.Warn("Failed to publish job event", "job_id", jobID, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.config.key("processing"))
	completed := pipe.SCard(ctx, c.config.key("completed"))
	failed := pipe.SCard(ctx, c.config.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
