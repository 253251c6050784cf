package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PostgresExportLogStore implements the store.ExportLogStore interface using
// a PostgreSQL database.
type PostgresExportLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresExportLogStore creates a new PostgreSQL implementation of the
// ExportLogStore interface.
func NewPostgresExportLogStore(db store.DBTX, logger *slog.Logger) *PostgresExportLogStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresExportLogStore{
		db:     db,
		logger: logger.With(slog.String("component", "export_log_store")),
	}
}

// Ensure PostgresExportLogStore implements store.ExportLogStore interface
var _ store.ExportLogStore = (*PostgresExportLogStore)(nil)

// ListFailed implements store.ExportLogStore.ListFailed.
func (s *PostgresExportLogStore) ListFailed(ctx context.Context, limit int) ([]*domain.ExportRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, format, conversation_ids, status, error_message, created_at
		FROM export_logs
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, domain.ExportStatusFailed, limit)
	if err != nil {
		log.Error("failed to query export logs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query export logs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.ExportRecord
	for rows.Next() {
		var record domain.ExportRecord
		var idsJSON []byte
		var errorMessage sql.NullString

		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Format,
			&idsJSON,
			&record.Status,
			&errorMessage,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export log row: %w", err)
		}

		record.ErrorMessage = errorMessage.String

		if len(idsJSON) > 0 {
			if err := json.Unmarshal(idsJSON, &record.ConversationIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal conversation IDs: %w", err)
			}
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export log rows: %w", err)
	}

	return records, nil
}

// WithTx implements store.ExportLogStore.WithTx.
func (s *PostgresExportLogStore) WithTx(tx *sql.Tx) store.ExportLogStore {
	return &PostgresExportLogStore{
		db:     tx,
		logger: s.logger,
	}
}
