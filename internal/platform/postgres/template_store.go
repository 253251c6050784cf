package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PostgresTemplateStore implements the store.TemplateStore interface using a
// PostgreSQL database.
type PostgresTemplateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTemplateStore creates a new PostgreSQL implementation of the
// TemplateStore interface.
func NewPostgresTemplateStore(db store.DBTX, logger *slog.Logger) *PostgresTemplateStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTemplateStore{
		db:     db,
		logger: logger.With(slog.String("component", "template_store")),
	}
}

// Ensure PostgresTemplateStore implements store.TemplateStore interface
var _ store.TemplateStore = (*PostgresTemplateStore)(nil)

// GetByID implements store.TemplateStore.GetByID.
func (s *PostgresTemplateStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.PromptTemplate, error) {
	query := `
		SELECT id, name, arc_key, tier, body, created_at, updated_at
		FROM prompt_templates
		WHERE id = $1
	`

	return s.scanTemplateRow(s.db.QueryRowContext(ctx, query, id))
}

// FindByArc implements store.TemplateStore.FindByArc. An empty tier matches
// any tier; the oldest matching template wins so auto-selection stays stable
// as new templates are added.
func (s *PostgresTemplateStore) FindByArc(ctx context.Context, arcKey, tier string) (*domain.PromptTemplate, error) {
	query := `
		SELECT id, name, arc_key, tier, body, created_at, updated_at
		FROM prompt_templates
		WHERE arc_key = $1 AND ($2 = '' OR tier = $2)
		ORDER BY created_at
		LIMIT 1
	`

	return s.scanTemplateRow(s.db.QueryRowContext(ctx, query, arcKey, tier))
}

// WithTx implements store.TemplateStore.WithTx.
func (s *PostgresTemplateStore) WithTx(tx *sql.Tx) store.TemplateStore {
	return &PostgresTemplateStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresTemplateStore) scanTemplateRow(row rowScanner) (*domain.PromptTemplate, error) {
	var tmpl domain.PromptTemplate
	var tier sql.NullString

	err := row.Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.ArcKey,
		&tier,
		&tmpl.Body,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", MapError(err))
	}

	tmpl.Tier = tier.String

	return &tmpl, nil
}
