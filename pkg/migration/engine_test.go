package migration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowbank/agentcore/pkg/memory"
)

func fakeEmbedder(ctx context.Context, content string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestEngine_Start_MigratesAllRowsToCompletion(t *testing.T) {
	dir := t.TempDir()
	store, err := memory.NewStore(dir, "", 5, 10)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.StoreEntry(ctx, "some content", "conversation", "s1", nil, nil)
		require.NoError(t, err)
	}

	eng := New(dir, store, fakeEmbedder)
	require.NoError(t, eng.Start(ctx, "acme/embed-1", 10))

	require.Eventually(t, func() bool {
		return eng.State().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	st := eng.State()
	assert.Equal(t, 3, st.MigratedCount)
	assert.Equal(t, 3, st.TotalRecords)
}

func TestEngine_Start_MultiBatch_MigratesEveryRow(t *testing.T) {
	dir := t.TempDir()
	store, err := memory.NewStore(dir, "", 5, 10)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := store.StoreEntry(ctx, "some content", "conversation", "s1", nil, nil)
		require.NoError(t, err)
	}

	eng := New(dir, store, fakeEmbedder)
	require.NoError(t, eng.Start(ctx, "acme/embed-1", 3))

	require.Eventually(t, func() bool {
		return eng.State().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	st := eng.State()
	assert.Equal(t, 10, st.MigratedCount, "every row must be migrated across multiple batches, not just the first")
	assert.Equal(t, 10, st.TotalRecords)
}

func TestEngine_Running_OnlyWhenTargetMatches(t *testing.T) {
	dir := t.TempDir()
	store, err := memory.NewStore(dir, "", 5, 10)
	require.NoError(t, err)

	eng := New(dir, store, fakeEmbedder)
	_, running := eng.Running("acme/embed-1")
	assert.False(t, running)

	require.NoError(t, eng.Start(context.Background(), "acme/embed-1", 10))
	_, running = eng.Running("acme/embed-1")
	assert.True(t, running)

	_, running = eng.Running("acme/embed-2")
	assert.False(t, running)
	eng.Stop()
}

func TestEngine_Confirm_DeletesStateOnlyAfterCompletion(t *testing.T) {
	dir := t.TempDir()
	store, err := memory.NewStore(dir, "", 5, 10)
	require.NoError(t, err)

	eng := New(dir, store, fakeEmbedder)
	err = eng.Confirm()
	assert.Error(t, err, "confirming before any migration has run must fail")

	require.NoError(t, eng.Start(context.Background(), "acme/embed-1", 10))
	require.Eventually(t, func() bool {
		return eng.State().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	statePath := dir + "/migration-state.json"
	_, err = os.Stat(statePath)
	require.NoError(t, err, "state file should still exist before confirmation")

	require.NoError(t, eng.Confirm())
	_, err = os.Stat(statePath)
	assert.True(t, os.IsNotExist(err), "state file should be removed after confirmation")
	assert.Equal(t, StatusIdle, eng.State().Status)
}

func TestEngine_Load_BacksUpCorruptState(t *testing.T) {
	dir := t.TempDir()
	store, err := memory.NewStore(dir, "", 5, 10)
	require.NoError(t, err)

	statePath := dir + "/migration-state.json"
	require.NoError(t, os.WriteFile(statePath, []byte("not json"), 0644))

	eng := New(dir, store, fakeEmbedder)
	require.NoError(t, eng.Load())
	assert.Equal(t, StatusIdle, eng.State().Status)
}
