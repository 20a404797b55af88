package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// PostgresStorage is the durable long-term memory.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStorage connects with a lib/pq DSN and applies the schema.
func NewPostgresStorage(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := NewPostgresStorageWithDB(db, logger)
	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

// NewPostgresStorageWithDB wraps an existing handle without migrating.
func NewPostgresStorageWithDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// DB exposes the handle so other components can share the pool.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, companyID, conversationID string, msg models.ConversationMessage) error {
	query := `
		INSERT INTO agent_messages (id, empresa_id, conversation_id, role, content, tool_call_id, tool_calls)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("error encoding tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		companyID,
		conversationID,
		string(msg.Role),
		msg.Content,
		nullString(msg.ToolCallID),
		toolCalls,
	)
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CountMessages(ctx context.Context, companyID, conversationID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM agent_messages
		WHERE empresa_id = $1 AND conversation_id = $2`

	var count int
	if err := s.db.QueryRowContext(ctx, query, companyID, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) LoadSummary(ctx context.Context, companyID, conversationID string) (string, error) {
	query := `
		SELECT summary
		FROM agent_conversation_memory
		WHERE empresa_id = $1 AND conversation_id = $2`

	var summary sql.NullString
	err := s.db.QueryRowContext(ctx, query, companyID, conversationID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error loading summary: %w", err)
	}
	return summary.String, nil
}

func (s *PostgresStorage) UpdateSummary(ctx context.Context, companyID, conversationID, summary string) error {
	query := `
		INSERT INTO agent_conversation_memory (empresa_id, conversation_id, summary, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (empresa_id, conversation_id)
		DO UPDATE SET summary = EXCLUDED.summary, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, companyID, conversationID, summary); err != nil {
		return fmt.Errorf("error updating summary: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LoadPreferences(ctx context.Context, companyID, conversationID string) (models.Preferences, error) {
	query := `
		SELECT metadata
		FROM agent_conversation_memory
		WHERE empresa_id = $1 AND conversation_id = $2`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, companyID, conversationID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Preferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading preferences: %w", err)
	}

	prefs := models.Preferences{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return nil, fmt.Errorf("error decoding preferences: %w", err)
		}
	}
	return prefs, nil
}

// LoadRelevantDecisions has no retrieval backend yet and always returns an empty list.
func (s *PostgresStorage) LoadRelevantDecisions(ctx context.Context, companyID, conversationID string) ([]string, error) {
	return []string{}, nil
}

func (s *PostgresStorage) ClientID(ctx context.Context, companyID, conversationID string) (string, error) {
	query := `
		SELECT client_id
		FROM conversations
		WHERE id = $1 AND empresa_id = $2`

	var clientID sql.NullString
	err := s.db.QueryRowContext(ctx, query, conversationID, companyID).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error loading client id: %w", err)
	}
	return clientID.String, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
