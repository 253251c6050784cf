// Package recovery scans heterogeneous stores for incomplete or at-risk work
// and performs type-specific repair actions on the items the caller selects.
// Recoverable items are ephemeral: each scan recomputes them from the source
// stores, and nothing in this package is persisted.
package recovery

import (
	"time"

	"github.com/google/uuid"
)

// ItemType identifies the kind of recoverable work an item describes.
type ItemType string

// Recoverable item types
const (
	ItemTypeDraftConversation ItemType = "DRAFT_CONVERSATION"
	ItemTypeIncompleteBatch   ItemType = "INCOMPLETE_BATCH"
	ItemTypeAvailableBackup   ItemType = "AVAILABLE_BACKUP"
	ItemTypeFailedExport      ItemType = "FAILED_EXPORT"
)

// Status is the recovery lifecycle state of a single item.
type Status string

// Recovery status values
const (
	StatusPending    Status = "PENDING"
	StatusRecovering Status = "RECOVERING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusSkipped    Status = "SKIPPED"
)

// RecoverableItem is a normalized description of one piece of incomplete
// work, regardless of which store it came from. ID is "<type>-<sourceId>".
type RecoverableItem struct {
	ID          string    `json:"id"`
	Type        ItemType  `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Priority    float64   `json:"priority"`
	Status      Status    `json:"status"`
	Data        any       `json:"data"`
}

// DraftData is the payload for DRAFT_CONVERSATION items.
type DraftData struct {
	DraftID   uuid.UUID `json:"draft_id"`
	Topic     string    `json:"topic"`
	TurnCount int       `json:"turn_count"`
}

// BatchData is the payload for INCOMPLETE_BATCH items.
type BatchData struct {
	JobID          uuid.UUID `json:"job_id"`
	ProgressPct    int       `json:"progress_pct"`
	CompletedCount int       `json:"completed_count"`
	FailedCount    int       `json:"failed_count"`
}

// BackupData is the payload for AVAILABLE_BACKUP items.
type BackupData struct {
	BackupID    string `json:"backup_id"`
	RecordCount int    `json:"record_count"`
}

// ExportData is the payload for FAILED_EXPORT items.
type ExportData struct {
	ExportID uuid.UUID `json:"export_id"`
	Format   string    `json:"format"`
}

// Result records the outcome of recovering one item.
type Result struct {
	ItemID  string   `json:"item_id"`
	Type    ItemType `json:"type"`
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Summary is the aggregate outcome of a recovery run. SuccessCount,
// FailedCount, and SkippedCount always sum to TotalItems.
type Summary struct {
	TotalItems   int       `json:"total_items"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	SkippedCount int       `json:"skipped_count"`
	Results      []Result  `json:"results"`
	Timestamp    time.Time `json:"timestamp"`
}

// FilterByType returns the items of the given type, preserving order.
func FilterByType(items []*RecoverableItem, itemType ItemType) []*RecoverableItem {
	var filtered []*RecoverableItem
	for _, item := range items {
		if item.Type == itemType {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// StatusCounts tallies items by status.
func StatusCounts(items []*RecoverableItem) map[Status]int {
	counts := make(map[Status]int)
	for _, item := range items {
		counts[item.Status]++
	}
	return counts
}
