package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/tributary-api/internal/domain"
)

// ExportLogStore defines the read interface over export attempt records.
// Export execution itself is external; recovery scanning only needs the
// recent failures so the operator can retry them.
// Version: 1.0
type ExportLogStore interface {
	// ListFailed retrieves up to limit failed export records, newest first.
	ListFailed(ctx context.Context, limit int) ([]*domain.ExportRecord, error)

	// WithTx returns a new ExportLogStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ExportLogStore
}
