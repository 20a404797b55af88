// Package queue pulls jobs from a Redis list and feeds them to the agent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/agent-worker/internal/agent"
	"github.com/xaenox/agent-worker/internal/models"
	"github.com/xaenox/agent-worker/internal/retry"
)

const (
	DefaultKey           = "agent:jobs"
	DefaultDeadLetterKey = "agent:jobs:dead"
	DefaultConcurrency   = 5
	DefaultPollTimeout   = 5 * time.Second
	DefaultJobTimeout    = 2 * time.Minute
)

// Processor runs one job.
type Processor interface {
	Process(ctx context.Context, job models.Job) (agent.Status, error)
}

type Config struct {
	Key           string
	DeadLetterKey string
	Concurrency   int
	PollTimeout   time.Duration
	JobTimeout    time.Duration
	Retry         retry.Policy
}

func (c Config) withDefaults() Config {
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.DeadLetterKey == "" {
		c.DeadLetterKey = DefaultDeadLetterKey
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultPolicy()
	}
	return c
}

// DeadLetter is what lands on the dead-letter list.
type DeadLetter struct {
	Payload    string    `json:"payload"`
	JobID      string    `json:"job_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error"`
	ConsumerID string    `json:"consumer_id"`
	FailedAt   time.Time `json:"failed_at"`
}

// Consumer runs a fixed pool of workers, each blocking on BLPOP.
type Consumer struct {
	client    redis.Cmdable
	processor Processor
	cfg       Config
	id        string
	logger    *zap.Logger
}

func NewConsumer(client redis.Cmdable, processor Processor, cfg Config, logger *zap.Logger) *Consumer {
	id := uuid.NewString()
	return &Consumer{
		client:    client,
		processor: processor,
		cfg:       cfg.withDefaults(),
		id:        id,
		logger:    logger.With(zap.String("consumer_id", id)),
	}
}

// Enqueue appends job to the tail of the queue.
func (c *Consumer) Enqueue(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("error encoding job: %w", err)
	}
	return retry.Run(ctx, c.cfg.Retry, func(int) error {
		return c.client.RPush(ctx, c.cfg.Key, data).Err()
	})
}

// Run blocks until ctx is cancelled. Jobs already picked up are allowed to
// finish within their own timeout.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Queue consumer started",
		zap.String("key", c.cfg.Key),
		zap.Int("concurrency", c.cfg.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			return c.work(gctx, i)
		})
	}
	err := g.Wait()
	c.logger.Info("Queue consumer stopped")
	return err
}

func (c *Consumer) work(ctx context.Context, worker int) error {
	logger := c.logger.With(zap.Int("worker", worker))
	for {
		payload, ok, err := c.next(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Error("Failed to read from queue", zap.Error(err))
			if err := retry.Sleep(ctx, c.cfg.PollTimeout); err != nil {
				return nil
			}
			continue
		}
		if !ok {
			continue
		}
		c.handle(ctx, payload, logger)
	}
}

// next pops one payload. ok is false when the poll timed out empty.
func (c *Consumer) next(ctx context.Context) (string, bool, error) {
	type popped struct {
		payload string
		ok      bool
	}
	p, err := retry.Do(ctx, c.cfg.Retry, func(attempt int) (popped, error) {
		vals, err := c.client.BLPop(ctx, c.cfg.PollTimeout, c.cfg.Key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			return popped{}, nil
		case err != nil:
			if ctx.Err() != nil {
				return popped{}, retry.Permanent(ctx.Err())
			}
			c.logger.Warn("BLPOP failed", zap.Int("attempt", attempt), zap.Error(err))
			return popped{}, err
		case len(vals) < 2:
			return popped{}, nil
		}
		return popped{payload: vals[1], ok: true}, nil
	})
	return p.payload, p.ok, err
}

func (c *Consumer) handle(ctx context.Context, payload string, logger *zap.Logger) {
	var job models.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		logger.Warn("Discarding malformed job", zap.Error(err))
		c.deadLetter(ctx, DeadLetter{Payload: payload, Status: string(agent.StatusInvalid), Error: err.Error()}, logger)
		return
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.JobTimeout)
	defer cancel()

	logger = logger.With(zap.String("job_id", job.JobID))
	status, err := c.processor.Process(jobCtx, job)
	if err != nil {
		logger.Error("Job failed", zap.String("status", string(status)), zap.Error(err))
		c.deadLetter(ctx, DeadLetter{Payload: payload, JobID: job.JobID, Status: string(status), Error: err.Error()}, logger)
		return
	}
	logger.Debug("Job done", zap.String("status", string(status)))
}

func (c *Consumer) deadLetter(ctx context.Context, entry DeadLetter, logger *zap.Logger) {
	entry.ConsumerID = c.id
	entry.FailedAt = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		logger.Error("Failed to encode dead letter", zap.Error(err))
		return
	}

	ctx = context.WithoutCancel(ctx)
	err = retry.Run(ctx, c.cfg.Retry, func(int) error {
		return c.client.RPush(ctx, c.cfg.DeadLetterKey, data).Err()
	})
	if err != nil {
		logger.Error("Failed to push dead letter", zap.Error(err))
	}
}
