package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_StoreAndGet_Roundtrip(t *testing.T) {
	tbl, err := OpenTable(t.TempDir())
	require.NoError(t, err)

	id, err := tbl.Store(context.Background(), StoreInput{
		Content:   "remember this",
		Type:      "conversation",
		SessionID: "s1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, ok := tbl.Get(id)
	require.True(t, ok)
	assert.Equal(t, "remember this", got.Content)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "conversation", got.Type)
}

func TestTable_Store_ReusesIDOnUpdate(t *testing.T) {
	tbl, err := OpenTable(t.TempDir())
	require.NoError(t, err)

	id, err := tbl.Store(context.Background(), StoreInput{ID: "fixed-id", Content: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	_, err = tbl.Store(context.Background(), StoreInput{ID: "fixed-id", Content: "v2"})
	require.NoError(t, err)

	got, ok := tbl.Get("fixed-id")
	require.True(t, ok)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, 1, tbl.TotalRows())
}

func TestTable_DeleteEntry_RemovesRow(t *testing.T) {
	tbl, err := OpenTable(t.TempDir())
	require.NoError(t, err)

	id, err := tbl.Store(context.Background(), StoreInput{Content: "to delete"})
	require.NoError(t, err)

	require.NoError(t, tbl.DeleteEntry(context.Background(), id))
	_, ok := tbl.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.TotalRows())
}

func TestTable_AllForFulltext_FiltersBySessionAndType(t *testing.T) {
	tbl, err := OpenTable(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = tbl.Store(ctx, StoreInput{Content: "a", SessionID: "s1", Type: "conversation"})
	require.NoError(t, err)
	_, err = tbl.Store(ctx, StoreInput{Content: "b", SessionID: "s2", Type: "conversation"})
	require.NoError(t, err)
	_, err = tbl.Store(ctx, StoreInput{Content: "c", SessionID: "s1", Type: "summary"})
	require.NoError(t, err)

	onlyS1 := tbl.AllForFulltext("s1", "", 0)
	assert.Len(t, onlyS1, 2)

	onlyConversations := tbl.AllForFulltext("", "conversation", 0)
	assert.Len(t, onlyConversations, 2)

	s1Conversations := tbl.AllForFulltext("s1", "conversation", 0)
	require.Len(t, s1Conversations, 1)
	assert.Equal(t, "a", s1Conversations[0].Content)
}

func TestTable_RowsNeedingColumn_OnlyUnembeddedRows(t *testing.T) {
	tbl, err := OpenTable(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	embedder := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	tbl.RegisterEmbedder("acme/embed-1", embedder)

	id1, err := tbl.Store(ctx, StoreInput{Content: "embedded", ActiveEmbed: "acme/embed-1", Vector: []float32{0.1, 0.2, 0.3}})
	require.NoError(t, err)
	id2, err := tbl.Store(ctx, StoreInput{Content: "not embedded"})
	require.NoError(t, err)

	needing := tbl.RowsNeedingColumn("acme/embed-1", 0, 10)
	ids := make(map[string]bool)
	for _, e := range needing {
		ids[e.ID] = true
	}
	assert.False(t, ids[id1])
	assert.True(t, ids[id2])
}

func TestEncodeDecodeColumn_Roundtrip(t *testing.T) {
	fqid := "openai/text-embedding-3-small"
	col := EncodeColumn(fqid)
	assert.True(t, IsVectorColumn(col))

	decoded, ok := DecodeColumn(col)
	require.True(t, ok)
	assert.Equal(t, fqid, decoded)
}

func TestDecodeColumn_NonVectorColumn(t *testing.T) {
	_, ok := DecodeColumn("not_a_vector_column")
	assert.False(t, ok)
}
