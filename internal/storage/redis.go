package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/models"
)

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TLS      bool
}

// NewRedisClient opens and pings a client for cfg.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return client, nil
}

// RedisShortTerm keeps each conversation window in a capped Redis list
// (RPUSH, LTRIM, EXPIRE) and job markers as expiring keys.
type RedisShortTerm struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
}

func NewRedisShortTerm(client *redis.Client, opts Options, logger *zap.Logger) *RedisShortTerm {
	return &RedisShortTerm{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

func (s *RedisShortTerm) Append(ctx context.Context, companyID, conversationID string, msg models.ConversationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding message: %w", err)
	}

	key := conversationKey(companyID, conversationID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -int64(s.opts.MaxMessages), -1)
		pipe.Expire(ctx, key, s.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("error appending to %s: %w", key, err)
	}
	return nil
}

func (s *RedisShortTerm) Recent(ctx context.Context, companyID, conversationID string, limit int) ([]models.ConversationMessage, error) {
	if limit <= 0 {
		limit = s.opts.MaxMessages
	}

	key := conversationKey(companyID, conversationID)
	raw, err := s.client.LRange(ctx, key, -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", key, err)
	}

	messages := make([]models.ConversationMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ConversationMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("Skipping malformed short-term entry",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisShortTerm) Clear(ctx context.Context, companyID, conversationID string) error {
	return s.client.Del(ctx, conversationKey(companyID, conversationID)).Err()
}

func (s *RedisShortTerm) IsJobProcessed(ctx context.Context, jobID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("error checking job marker: %w", err)
	}
	return n > 0, nil
}

func (s *RedisShortTerm) MarkJobProcessed(ctx context.Context, jobID string) (bool, error) {
	set, err := s.client.SetNX(ctx, processedKey(jobID), "1", s.opts.ProcessedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("error setting job marker: %w", err)
	}
	return set, nil
}

// Close does not close the shared client; its owner does.
func (s *RedisShortTerm) Close() error {
	return nil
}
