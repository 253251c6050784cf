package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PostgresDraftStore implements the store.DraftStore interface using a
// PostgreSQL database.
type PostgresDraftStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDraftStore creates a new PostgreSQL implementation of the
// DraftStore interface.
func NewPostgresDraftStore(db store.DBTX, logger *slog.Logger) *PostgresDraftStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresDraftStore{
		db:     db,
		logger: logger.With(slog.String("component", "draft_store")),
	}
}

// Ensure PostgresDraftStore implements store.DraftStore interface
var _ store.DraftStore = (*PostgresDraftStore)(nil)

// ListDrafts implements store.DraftStore.ListDrafts.
func (s *PostgresDraftStore) ListDrafts(ctx context.Context) ([]*domain.Draft, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, conversation_id, topic, turns, created_at, updated_at
		FROM conversation_drafts
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to query drafts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query drafts: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var drafts []*domain.Draft
	for rows.Next() {
		var draft domain.Draft
		var conversationID uuid.NullUUID
		var turnsJSON []byte

		err := rows.Scan(
			&draft.ID,
			&conversationID,
			&draft.Topic,
			&turnsJSON,
			&draft.CreatedAt,
			&draft.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft row: %w", err)
		}

		if conversationID.Valid {
			draft.ConversationID = &conversationID.UUID
		}

		if len(turnsJSON) > 0 {
			if err := json.Unmarshal(turnsJSON, &draft.Turns); err != nil {
				return nil, fmt.Errorf("failed to unmarshal draft turns: %w", err)
			}
		}

		drafts = append(drafts, &draft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draft rows: %w", err)
	}

	return drafts, nil
}

// DeleteDraft implements store.DraftStore.DeleteDraft.
func (s *PostgresDraftStore) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM conversation_drafts WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrDraftNotFound
	}

	return nil
}

// WithTx implements store.DraftStore.WithTx.
func (s *PostgresDraftStore) WithTx(tx *sql.Tx) store.DraftStore {
	return &PostgresDraftStore{
		db:     tx,
		logger: s.logger,
	}
}
