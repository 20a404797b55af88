package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/agent-worker/internal/models"
)

// now is swapped in tests.
var now = time.Now

type window struct {
	messages  []models.ConversationMessage
	expiresAt time.Time
}

type conversationMemory struct {
	messages    []models.ConversationMessage
	summary     string
	preferences models.Preferences
	clientID    string
}

// MemoryStorage keeps both memory tiers in process. It backs local runs
// and tests; nothing survives a restart.
type MemoryStorage struct {
	mu        sync.RWMutex
	opts      Options
	windows   map[string]*window
	processed map[string]time.Time
	longTerm  map[string]*conversationMemory
}

func NewMemoryStorage(opts Options) *MemoryStorage {
	return &MemoryStorage{
		opts:      opts.withDefaults(),
		windows:   make(map[string]*window),
		processed: make(map[string]time.Time),
		longTerm:  make(map[string]*conversationMemory),
	}
}

// Short-term window

func (s *MemoryStorage) Append(ctx context.Context, companyID, conversationID string, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey(companyID, conversationID)
	w, exists := s.windows[key]
	if !exists || now().After(w.expiresAt) {
		w = &window{}
		s.windows[key] = w
	}

	w.messages = append(w.messages, msg)
	if over := len(w.messages) - s.opts.MaxMessages; over > 0 {
		w.messages = append([]models.ConversationMessage(nil), w.messages[over:]...)
	}
	w.expiresAt = now().Add(s.opts.TTL)
	return nil
}

func (s *MemoryStorage) Recent(ctx context.Context, companyID, conversationID string, limit int) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.windows[conversationKey(companyID, conversationID)]
	if !exists || now().After(w.expiresAt) {
		return []models.ConversationMessage{}, nil
	}

	msgs := w.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ConversationMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStorage) Clear(ctx context.Context, companyID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, conversationKey(companyID, conversationID))
	return nil
}

func (s *MemoryStorage) IsJobProcessed(ctx context.Context, jobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, exists := s.processed[processedKey(jobID)]
	return exists && now().Before(expiresAt), nil
}

func (s *MemoryStorage) MarkJobProcessed(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := processedKey(jobID)
	if expiresAt, exists := s.processed[key]; exists && now().Before(expiresAt) {
		return false, nil
	}
	s.processed[key] = now().Add(s.opts.ProcessedTTL)
	return true, nil
}

// Long-term memory

func (s *MemoryStorage) conversation(companyID, conversationID string) *conversationMemory {
	key := conversationKey(companyID, conversationID)
	c, exists := s.longTerm[key]
	if !exists {
		c = &conversationMemory{preferences: models.Preferences{}}
		s.longTerm[key] = c
	}
	return c
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, companyID, conversationID string, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conversation(companyID, conversationID)
	c.messages = append(c.messages, msg)
	return nil
}

// Messages returns the durable log of a conversation.
func (s *MemoryStorage) Messages(companyID, conversationID string) []models.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.longTerm[conversationKey(companyID, conversationID)]
	if !exists {
		return nil
	}
	out := make([]models.ConversationMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (s *MemoryStorage) CountMessages(ctx context.Context, companyID, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, exists := s.longTerm[conversationKey(companyID, conversationID)]; exists {
		return len(c.messages), nil
	}
	return 0, nil
}

func (s *MemoryStorage) LoadSummary(ctx context.Context, companyID, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, exists := s.longTerm[conversationKey(companyID, conversationID)]; exists {
		return c.summary, nil
	}
	return "", nil
}

func (s *MemoryStorage) UpdateSummary(ctx context.Context, companyID, conversationID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversation(companyID, conversationID).summary = summary
	return nil
}

func (s *MemoryStorage) LoadPreferences(ctx context.Context, companyID, conversationID string) (models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := models.Preferences{}
	if c, exists := s.longTerm[conversationKey(companyID, conversationID)]; exists {
		for k, v := range c.preferences {
			out[k] = v
		}
	}
	return out, nil
}

// SetPreferences replaces the stored preferences of a conversation.
func (s *MemoryStorage) SetPreferences(companyID, conversationID string, prefs models.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conversation(companyID, conversationID)
	c.preferences = models.Preferences{}
	for k, v := range prefs {
		c.preferences[k] = v
	}
}

func (s *MemoryStorage) LoadRelevantDecisions(ctx context.Context, companyID, conversationID string) ([]string, error) {
	return []string{}, nil
}

func (s *MemoryStorage) ClientID(ctx context.Context, companyID, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, exists := s.longTerm[conversationKey(companyID, conversationID)]; exists {
		return c.clientID, nil
	}
	return "", nil
}

// SetClientID binds a client to a conversation.
func (s *MemoryStorage) SetClientID(companyID, conversationID, clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversation(companyID, conversationID).clientID = clientID
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
