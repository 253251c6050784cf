package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/recovery"
)

func (f *apiFixture) seedDraft(topic string, updatedAt time.Time) *domain.Draft {
	draft := &domain.Draft{
		ID:        uuid.New(),
		Topic:     topic,
		Turns:     []domain.Turn{{Role: "human", Content: "hello"}},
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	f.drafts.drafts = append(f.drafts.drafts, draft)
	return draft
}

func (f *apiFixture) seedIncompleteCheckpoint(jobID uuid.UUID) {
	f.checkpoints.checkpoints[jobID] = &domain.BatchCheckpoint{
		JobID:              jobID,
		CompletedItems:     []string{"item-1"},
		ProgressPercentage: 50,
		LastCheckpointAt:   time.Now().UTC().Add(-time.Hour),
	}
}

func TestDetectRecoverableData(t *testing.T) {
	t.Parallel()

	t.Run("returns_prioritized_items_across_sources", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.seedDraft("Refund flows", time.Now().UTC().Add(-time.Hour))
		f.seedIncompleteCheckpoint(uuid.New())

		rec := f.do(t, http.MethodGet, "/api/recovery/items", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var items []recovery.RecoverableItem
		decodeBody(t, rec, &items)
		require.Len(t, items, 2)
		assert.Equal(t, recovery.ItemTypeDraftConversation, items[0].Type)
		assert.Equal(t, recovery.ItemTypeIncompleteBatch, items[1].Type)
		assert.GreaterOrEqual(t, items[0].Priority, items[1].Priority)
	})

	t.Run("returns_empty_array_when_nothing_recoverable", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/api/recovery/items", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestRecoverItems(t *testing.T) {
	t.Parallel()

	t.Run("recovers_selected_items_and_skips_the_rest", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		draft := f.seedDraft("Refund flows", time.Now().UTC().Add(-time.Hour))
		f.seedIncompleteCheckpoint(uuid.New())

		rec := f.do(t, http.MethodPost, "/api/recovery/recover", RecoverRequest{
			ItemIDs: []string{"DRAFT_CONVERSATION-" + draft.ID.String()},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var summary recovery.Summary
		decodeBody(t, rec, &summary)
		assert.Equal(t, 2, summary.TotalItems)
		assert.Equal(t, 1, summary.SuccessCount)
		assert.Equal(t, 1, summary.SkippedCount)
		assert.Equal(t, 0, summary.FailedCount)

		assert.Empty(t, f.drafts.drafts)
		assert.Len(t, f.checkpoints.checkpoints, 1)
	})

	t.Run("recovering_batch_item_cleans_checkpoint", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		jobID := uuid.New()
		f.seedIncompleteCheckpoint(jobID)

		rec := f.do(t, http.MethodPost, "/api/recovery/recover", RecoverRequest{
			ItemIDs: []string{"INCOMPLETE_BATCH-" + jobID.String()},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var summary recovery.Summary
		decodeBody(t, rec, &summary)
		assert.Equal(t, 1, summary.SuccessCount)
		assert.Empty(t, f.checkpoints.checkpoints)
	})

	t.Run("rejects_empty_selection", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/recovery/recover", RecoverRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown_selection_yields_all_skipped", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.seedDraft("Refund flows", time.Now().UTC().Add(-time.Hour))

		rec := f.do(t, http.MethodPost, "/api/recovery/recover", RecoverRequest{
			ItemIDs: []string{"DRAFT_CONVERSATION-" + uuid.NewString()},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var summary recovery.Summary
		decodeBody(t, rec, &summary)
		assert.Equal(t, 1, summary.TotalItems)
		assert.Equal(t, 1, summary.SkippedCount)
		assert.Len(t, f.drafts.drafts, 1)
	})
}
