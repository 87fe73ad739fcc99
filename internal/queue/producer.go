/**
 * Job producers
 *
 * Submit uploads to whichever queue backend the worker consumes.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer submits extraction jobs and returns the job id
type Producer interface {
	Submit(ctx context.Context, payload *JobPayload) (string, error)
	Close() error
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Backend    string // "redis" or "asynq"
	RedisURL   string
	QueueName  string
	MaxRetries int
}

// NewProducer creates the producer for cfg.Backend
func NewProducer(cfg *ProducerConfig) (Producer, error) {
	switch cfg.Backend {
	case "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return &AsynqProducer{
			client:     asynq.NewClient(redisOpt),
			queueName:  cfg.QueueName,
			maxRetries: cfg.MaxRetries,
		}, nil
	case "redis", "":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return NewRedisProducer(redis.NewClient(opt), cfg.QueueName, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// ensureJobID assigns a fresh id when the caller did not supply one.
func ensureJobID(payload *JobPayload) string {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}
	return payload.JobID
}

// RedisProducer pushes jobs onto the list queue
type RedisProducer struct {
	client     *redis.Client
	queueName  string
	maxRetries int
}

// NewRedisProducer wraps an existing client
func NewRedisProducer(client *redis.Client, queueName string, maxRetries int) *RedisProducer {
	if queueName == "" {
		queueName = "idextract:jobs"
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &RedisProducer{client: client, queueName: queueName, maxRetries: maxRetries}
}

// Submit stores the job body and pushes its id in one transaction
func (p *RedisProducer) Submit(ctx context.Context, payload *JobPayload) (string, error) {
	jobID := ensureJobID(payload)

	data, err := json.Marshal(&RedisJobData{
		ID:         jobID,
		Type:       TaskTypeExtractIdentity,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, p.queueName+":data", jobID, data)
		pipe.LPush(ctx, p.queueName, jobID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

// Close closes the Redis client
func (p *RedisProducer) Close() error {
	return p.client.Close()
}

// AsynqProducer enqueues asynq tasks
type AsynqProducer struct {
	client     *asynq.Client
	queueName  string
	maxRetries int
}

// Submit enqueues the payload as an extract-identity task
func (p *AsynqProducer) Submit(ctx context.Context, payload *JobPayload) (string, error) {
	jobID := ensureJobID(payload)

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	maxRetries := p.maxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	task := asynq.NewTask(TaskTypeExtractIdentity, data)
	if _, err := p.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.Queue(p.queueName),
		asynq.MaxRetry(maxRetries),
		asynq.Retention(24*time.Hour),
	); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

// Close closes the asynq client
func (p *AsynqProducer) Close() error {
	return p.client.Close()
}
