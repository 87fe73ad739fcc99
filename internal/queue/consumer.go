/**
 * Asynq Queue Consumer for the identity extraction worker
 *
 * Alternative to the list queue for deployments that already run asynq.
 * Retries are left to asynq; documents that cannot decode skip them.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/processor"
	"github.com/adverant/nexus/idextract-worker/internal/storage"
	"github.com/hibiken/asynq"
)

// Consumer handles job consumption through asynq
type Consumer struct {
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
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

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("AsynqQueue")
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	consumer := &Consumer{
		server:    server,
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	consumer.mux.HandleFunc(TaskTypeExtractIdentity, consumer.handleExtractIdentity)

	return consumer, nil
}

// Start starts the asynq server in the background
func (c *Consumer) Start() error {
	c.logger.Info("Starting asynq queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop waits for in-flight tasks and stops the server
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping asynq queue consumer")
	c.server.Shutdown()
	return c.inspector.Close()
}

// handleExtractIdentity processes one extract-identity task
func (c *Consumer) handleExtractIdentity(ctx context.Context, task *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	if id, ok := asynq.GetTaskID(ctx); ok && payload.JobID == "" {
		payload.JobID = id
	}
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logger := c.logger.With("job_id", payload.JobID)
	logger.Info("Processing document", "filename", payload.Filename, "size", len(payload.FileBuffer), "retry", retried)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, storage.JobStatusProcessing, payload.jobMetadata()); err != nil {
		logger.Warn("Failed to update status to processing", "error", err)
	}

	start := time.Now()
	result, err := runJob(ctx, c.processor, &payload, c.config.ProcessingTimeout)
	if err != nil {
		final := !retryable(err) || retried >= maxRetry
		status := storage.JobStatusQueued
		if final {
			status = storage.JobStatusFailed
		}
		if updateErr := c.processor.UpdateJobStatus(ctx, payload.JobID, status, failedMetadata(err, retried+1, time.Since(start))); updateErr != nil {
			logger.Warn("Failed to update status", "status", status, "error", updateErr)
		}
		if !retryable(err) {
			return fmt.Errorf("document processing failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document processing failed: %w", err)
	}

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, storage.JobStatusCompleted, completedMetadata(result)); err != nil {
		logger.Warn("Failed to update status to completed", "error", err)
	}

	if data, err := json.Marshal(result); err == nil {
		if _, err := task.ResultWriter().Write(data); err != nil {
			logger.Debug("Failed to write task result", "error", err)
		}
	}

	logger.Info("Processing completed", "record_id", result.RecordID, "processing_ms", result.ProcessingTimeMs)
	return nil
}

// GetStats returns queue statistics in the same shape as
// RedisConsumer.GetStats. A queue asynq has not seen yet reports zeros.
func (c *Consumer) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := map[string]int64{"waiting": 0, "processing": 0, "retry": 0, "completed": 0, "failed": 0}

	info, err := c.inspector.GetQueueInfo(c.config.QueueName)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	stats["waiting"] = int64(info.Pending + info.Scheduled)
	stats["processing"] = int64(info.Active)
	stats["retry"] = int64(info.Retry)
	stats["completed"] = int64(info.Completed)
	stats["failed"] = int64(info.Archived)
	return stats, nil
}

// asynqLogger routes asynq's internal logging through the worker logger.
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
