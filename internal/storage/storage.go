package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/agent-worker/internal/models"
)

const (
	// DefaultMaxMessages bounds the short-term window.
	DefaultMaxMessages = 20
	// DefaultShortTermTTL is refreshed on every append.
	DefaultShortTermTTL = 30 * time.Minute
	// DefaultProcessedTTL is how long job markers are kept.
	DefaultProcessedTTL = 24 * time.Hour
)

// ShortTermStore is the bounded, expiring window of recent messages per
// conversation. It also owns the job idempotency markers.
type ShortTermStore interface {
	Append(ctx context.Context, companyID, conversationID string, msg models.ConversationMessage) error
	// Recent returns up to limit of the newest messages, oldest first.
	Recent(ctx context.Context, companyID, conversationID string, limit int) ([]models.ConversationMessage, error)
	Clear(ctx context.Context, companyID, conversationID string) error

	IsJobProcessed(ctx context.Context, jobID string) (bool, error)
	// MarkJobProcessed sets the marker atomically and reports whether this
	// call set it (false means another worker got there first).
	MarkJobProcessed(ctx context.Context, jobID string) (bool, error)

	Close() error
}

// LongTermStore is the durable message log plus derived conversation memory.
type LongTermStore interface {
	SaveMessage(ctx context.Context, companyID, conversationID string, msg models.ConversationMessage) error
	CountMessages(ctx context.Context, companyID, conversationID string) (int, error)

	LoadSummary(ctx context.Context, companyID, conversationID string) (string, error)
	UpdateSummary(ctx context.Context, companyID, conversationID, summary string) error
	LoadPreferences(ctx context.Context, companyID, conversationID string) (models.Preferences, error)
	LoadRelevantDecisions(ctx context.Context, companyID, conversationID string) ([]string, error)

	// ClientID returns the end client bound to the conversation, or "".
	ClientID(ctx context.Context, companyID, conversationID string) (string, error)

	Close() error
}

// Options tune the short-term window.
type Options struct {
	MaxMessages  int
	TTL          time.Duration
	ProcessedTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	if o.TTL <= 0 {
		o.TTL = DefaultShortTermTTL
	}
	if o.ProcessedTTL <= 0 {
		o.ProcessedTTL = DefaultProcessedTTL
	}
	return o
}

func conversationKey(companyID, conversationID string) string {
	return fmt.Sprintf("conversation:%s:%s", companyID, conversationID)
}

func processedKey(jobID string) string {
	return "agent:processed:" + jobID
}
