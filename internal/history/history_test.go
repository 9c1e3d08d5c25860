package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddAndRecent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []string{"completed", "failed", "completed"} {
		require.NoError(t, store.Add(ctx, Record{
			InvocationID: "inv-" + string(rune('a'+i)),
			AssistantID:  "asst_1",
			ThreadID:     "thread_1",
			RunID:        "run_" + string(rune('a'+i)),
			Question:     "What is 2+2?",
			Status:       status,
			Reply:        "4",
			Polls:        i + 1,
			StartedAt:    start.Add(time.Duration(i) * time.Minute),
			FinishedAt:   start.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}))
	}

	records, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "run_c", records[0].RunID)
	assert.Equal(t, "run_b", records[1].RunID)
	assert.Equal(t, "failed", records[1].Status)
	assert.Equal(t, 2, records[1].Polls)
	assert.True(t, records[0].StartedAt.Equal(start.Add(2*time.Minute)))
}

func TestStore_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, Record{InvocationID: "inv-1", RunID: "run_1", Status: "completed"}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "run_1", records[0].RunID)
}

func TestStore_RecentEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	records, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}
