package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/repo"
	"github.com/verveworks/verve/internal/state"
	"github.com/verveworks/verve/internal/value"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, j.Close())
	}
}

func TestExecutionLifecycle(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	require.NoError(t, j.ExecutionStarted(ctx, "exec-1", "place-order", "checkout", testTime))
	require.NoError(t, j.ExecutionFinished(ctx, "exec-1", "", testTime.Add(time.Millisecond)))

	rows, err := j.Executions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "exec-1", rows[0].ID)
	assert.Equal(t, "place-order", rows[0].FeatureSet)
	assert.Equal(t, "checkout", rows[0].Activity)
	assert.Equal(t, "", rows[0].Failure)
	assert.True(t, rows[0].FinishedAt.After(rows[0].StartedAt))
}

func TestExecutionStarted_DuplicateIgnored(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	require.NoError(t, j.ExecutionStarted(ctx, "exec-1", "a", "", testTime))
	require.NoError(t, j.ExecutionStarted(ctx, "exec-1", "b", "", testTime))

	rows, err := j.Executions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].FeatureSet)
}

func TestExecutionFinished_RecordsFailure(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	require.NoError(t, j.ExecutionStarted(ctx, "exec-1", "op", "", testTime))
	require.NoError(t, j.ExecutionFinished(ctx, "exec-1", "UNDEFINED_VARIABLE: ghost", testTime))

	rows, err := j.Executions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UNDEFINED_VARIABLE: ghost", rows[0].Failure)
}

func TestRepositoryChange_Roundtrip(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	require.NoError(t, j.ExecutionStarted(ctx, "exec-1", "op", "", testTime))

	newVal := value.MapOf(
		value.P("id", value.Str("o1")),
		value.P("amount", value.Num(10)),
	)
	ev := repo.ChangeEvent{
		Repo:     "orders",
		Type:     repo.Created,
		EntityID: "o1",
		New:      newVal,
		Seq:      1,
		At:       testTime,
	}
	require.NoError(t, j.RepositoryChange(ctx, "exec-1", ev))

	// Same seq again is a no-op.
	require.NoError(t, j.RepositoryChange(ctx, "exec-1", ev))

	rows, err := j.Changes(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Seq)
	assert.Equal(t, "created", rows[0].ChangeType)
	assert.Equal(t, "o1", rows[0].EntityID)
	assert.Nil(t, rows[0].Old)
	assert.True(t, value.Equal(newVal, rows[0].New))
}

func TestStateTransition_Write(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	require.NoError(t, j.ExecutionStarted(ctx, "exec-1", "op", "", testTime))

	rec := state.TransitionRecord{
		Object:   "order",
		Field:    "status",
		From:     "open",
		To:       "paid",
		EntityID: "o1",
		Snapshot: value.MapOf(value.P("status", value.Str("paid"))),
		At:       testTime,
	}
	require.NoError(t, j.StateTransition(ctx, "exec-1", rec))

	// Same transition again is a content-hash no-op.
	require.NoError(t, j.StateTransition(ctx, "exec-1", rec))

	var count int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM transitions WHERE from_state = 'open' AND to_state = 'paid'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
