package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	started := time.Unix(1700000000, 0)
	run := &Run{
		ID:        "run-1",
		Mode:      "symbol",
		Root:      "/src/expat",
		OutputDir: "/src/expat/.states",
		Groups:    []string{"/src/expat/xmlwf"},
		Symbols:   []string{"XML_Parse", "XML_StopParser"},
		StartedAt: started,
	}
	require.NoError(t, store.BeginRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Groups, got.Groups)
	assert.Equal(t, run.Symbols, got.Symbols)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.IsZero())

	require.NoError(t, store.FinishRun(ctx, "run-1", started.Add(time.Minute)))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, got.FinishedAt.Sub(got.StartedAt))
}

func TestSQLiteStore_LatestRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)

	require.NoError(t, store.BeginRun(ctx, &Run{ID: "old", StartedAt: time.Unix(100, 0)}))
	require.NoError(t, store.BeginRun(ctx, &Run{ID: "new", StartedAt: time.Unix(200, 0)}))

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	assert.ErrorIs(t, store.FinishRun(ctx, "missing", time.Now()), ErrRunNotFound)
}

func TestSQLiteStore_Invocations(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	require.NoError(t, store.BeginRun(ctx, &Run{ID: "r", StartedAt: time.Now()}))

	require.NoError(t, store.RecordInvocation(ctx, &Invocation{
		RunID: "r", Item: 1, Group: "/g", Symbol: "b", Outcome: "failed", ExitCode: 1,
		Argv: []string{"clang", "-cc1"}, Stderr: "boom", Duration: time.Second,
	}))
	require.NoError(t, store.RecordInvocation(ctx, &Invocation{
		RunID: "r", Item: 0, Group: "/g", Symbol: "a", Outcome: "produced",
		Artifacts: []string{"a_x.json"}, Argv: []string{"clang"},
	}))

	invs, err := store.Invocations(ctx, "r")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "a", invs[0].Symbol)
	assert.Equal(t, []string{"a_x.json"}, invs[0].Artifacts)
	assert.Equal(t, 1, invs[1].ExitCode)
	assert.Equal(t, time.Second, invs[1].Duration)
	assert.Equal(t, []string{"clang", "-cc1"}, invs[1].Argv)

	// Re-recording an item replaces its outcome.
	require.NoError(t, store.RecordInvocation(ctx, &Invocation{RunID: "r", Item: 1, Group: "/g", Symbol: "b", Outcome: "empty"}))
	invs, err = store.Invocations(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "empty", invs[1].Outcome)
}

func TestSQLiteStore_IncludeProbes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordIncludes(ctx, &IncludeProbe{RunID: "r", Group: "/b", Strategy: "clang-###/v1", Pairs: 0}))
	require.NoError(t, store.RecordIncludes(ctx, &IncludeProbe{RunID: "r", Group: "/a", Strategy: "clang-###/v1", Pairs: 4}))

	probes, err := store.IncludeProbes(ctx, "r")
	require.NoError(t, err)
	require.Len(t, probes, 2)
	assert.Equal(t, "/a", probes[0].Group)
	assert.Equal(t, 0, probes[1].Pairs)
}
