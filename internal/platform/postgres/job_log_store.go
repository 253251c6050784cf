package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PostgresJobLogStore implements the store.JobLogStore interface with one
// row per log entry. This replaces the read-whole-blob/append/rewrite scheme
// some object stores force, which degrades badly on large jobs.
type PostgresJobLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobLogStore creates a new PostgreSQL implementation of the
// JobLogStore interface.
func NewPostgresJobLogStore(db store.DBTX, logger *slog.Logger) *PostgresJobLogStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobLogStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_log_store")),
	}
}

// Ensure PostgresJobLogStore implements store.JobLogStore interface
var _ store.JobLogStore = (*PostgresJobLogStore)(nil)

// AppendLog implements store.JobLogStore.AppendLog.
func (s *PostgresJobLogStore) AppendLog(ctx context.Context, jobID uuid.UUID, message string) error {
	query := `
		INSERT INTO job_logs (id, job_id, message, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query, uuid.New(), jobID, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append job log: %w", MapError(err))
	}

	return nil
}

// GetLogs implements store.JobLogStore.GetLogs.
func (s *PostgresJobLogStore) GetLogs(ctx context.Context, jobID uuid.UUID) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT message FROM job_logs
		WHERE job_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		log.Error("failed to query job logs",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return nil, fmt.Errorf("failed to query job logs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var messages []string
	for rows.Next() {
		var message string
		if err := rows.Scan(&message); err != nil {
			return nil, fmt.Errorf("failed to scan job log row: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job log rows: %w", err)
	}

	return messages, nil
}
