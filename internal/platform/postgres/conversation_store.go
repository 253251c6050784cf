package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PostgresConversationStore implements the store.ConversationStore interface
// using a PostgreSQL database.
type PostgresConversationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresConversationStore creates a new PostgreSQL implementation of the
// ConversationStore interface.
func NewPostgresConversationStore(db store.DBTX, logger *slog.Logger) *PostgresConversationStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresConversationStore{
		db:     db,
		logger: logger.With(slog.String("component", "conversation_store")),
	}
}

// Ensure PostgresConversationStore implements store.ConversationStore interface
var _ store.ConversationStore = (*PostgresConversationStore)(nil)

// Create implements store.ConversationStore.Create.
func (s *PostgresConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := conv.Validate(); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}

	turnsJSON, err := json.Marshal(conv.Turns)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation turns: %w", err)
	}

	query := `
		INSERT INTO conversations (id, user_id, title, tier, turns, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.Tier,
		turnsJSON,
		conv.Source,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create conversation",
			slog.String("error", err.Error()),
			slog.String("conversation_id", conv.ID.String()))
		return fmt.Errorf("failed to create conversation: %w", MapError(err))
	}

	return nil
}

// GetByID implements store.ConversationStore.GetByID.
func (s *PostgresConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, user_id, title, tier, turns, source, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", MapError(err))
	}

	return conv, nil
}

// GetByIDs implements store.ConversationStore.GetByIDs. Every requested ID
// must resolve; a backup snapshot written from a partial result set would
// silently lose records.
func (s *PostgresConversationStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Conversation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(ids) == 0 {
		return nil, nil
	}

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation IDs: %w", err)
	}

	query := `
		SELECT id, user_id, title, tier, turns, source, created_at, updated_at
		FROM conversations
		WHERE id IN (SELECT value::uuid FROM jsonb_array_elements_text($1::jsonb) AS t(value))
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, idsJSON)
	if err != nil {
		log.Error("failed to query conversations", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query conversations: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	if len(conversations) != len(ids) {
		log.Warn("conversation lookup resolved fewer records than requested",
			slog.Int("requested", len(ids)),
			slog.Int("found", len(conversations)))
		return nil, store.ErrConversationNotFound
	}

	return conversations, nil
}

// Delete implements store.ConversationStore.Delete.
func (s *PostgresConversationStore) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation IDs: %w", err)
	}

	query := `
		DELETE FROM conversations
		WHERE id IN (SELECT value::uuid FROM jsonb_array_elements_text($1::jsonb) AS t(value))
	`

	_, err = s.db.ExecContext(ctx, query, idsJSON)
	if err != nil {
		return fmt.Errorf("failed to delete conversations: %w", MapError(err))
	}

	return nil
}

// WithTx implements store.ConversationStore.WithTx.
func (s *PostgresConversationStore) WithTx(tx *sql.Tx) store.ConversationStore {
	return &PostgresConversationStore{
		db:     tx,
		logger: s.logger,
	}
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var turnsJSON []byte

	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.Tier,
		&turnsJSON,
		&conv.Source,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(turnsJSON) > 0 {
		if err := json.Unmarshal(turnsJSON, &conv.Turns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation turns: %w", err)
		}
	}

	return &conv, nil
}
