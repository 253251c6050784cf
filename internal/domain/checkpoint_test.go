package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCheckpointProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		completed int
		failed    int
		total     int
		expected  int
	}{
		{"empty_run", 0, 0, 10, 0},
		{"halfway", 5, 0, 10, 50},
		{"failures_count_as_processed", 3, 2, 10, 50},
		{"complete", 8, 2, 10, 100},
		{"rounds_to_nearest", 1, 0, 3, 33},
		{"rounds_up", 2, 0, 3, 67},
		{"zero_total_yields_zero", 0, 0, 0, 0},
		{"negative_total_yields_zero", 1, 0, -1, 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, CheckpointProgress(tc.completed, tc.failed, tc.total))
		})
	}
}

func TestBatchCheckpointHasItem(t *testing.T) {
	t.Parallel()

	cp := &BatchCheckpoint{
		CompletedItems: []string{"item-1", "item-2"},
		FailedItems: []FailedItem{
			{ItemID: "item-3", Error: "timeout", Timestamp: time.Now().UTC()},
		},
	}

	assert.True(t, cp.HasItem("item-1"))
	assert.True(t, cp.HasItem("item-3"))
	assert.False(t, cp.HasItem("item-4"))
}

func TestBatchCheckpointIsComplete(t *testing.T) {
	t.Parallel()

	assert.False(t, (&BatchCheckpoint{ProgressPercentage: 99}).IsComplete())
	assert.True(t, (&BatchCheckpoint{ProgressPercentage: 100}).IsComplete())
}

func TestBatchCheckpointValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid_checkpoint_passes", func(t *testing.T) {
		t.Parallel()
		cp := &BatchCheckpoint{JobID: uuid.New(), ProgressPercentage: 50}
		assert.NoError(t, cp.Validate())
	})

	t.Run("empty_job_id_rejected", func(t *testing.T) {
		t.Parallel()
		cp := &BatchCheckpoint{ProgressPercentage: 50}
		assert.ErrorIs(t, cp.Validate(), ErrEmptyCheckpointJobID)
	})

	t.Run("out_of_range_progress_rejected", func(t *testing.T) {
		t.Parallel()
		cp := &BatchCheckpoint{JobID: uuid.New(), ProgressPercentage: 101}
		assert.ErrorIs(t, cp.Validate(), ErrInvalidProgress)
	})
}
