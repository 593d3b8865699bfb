package kb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubEmbedder maps known words to fixed unit vectors so similarity is
// deterministic without a real model.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "radar"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "software"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Collection: "test"}, stubEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestRetrieveEmptyCollection(t *testing.T) {
	store := newTestStore(t)

	snippets, err := store.Retrieve(context.Background(), "radar systems", 3)
	require.NoError(t, err)
	require.Empty(t, snippets)
}

func TestRetrieveRanksAndNormalizes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Document{
		{ID: "d1", Title: "Radar Past Performance", Source: "capabilities/radar.md", Location: "section 2", Text: "radar integration work"},
		{ID: "d2", Title: "Software Services", Source: "capabilities/software.md", Location: "section 1", Text: "software development services"},
	}))
	require.Equal(t, 2, store.Count())

	snippets, err := store.Retrieve(ctx, "radar maintenance", 5)
	require.NoError(t, err)
	require.Len(t, snippets, 2, "limit above count must clamp, not fail")

	top := snippets[0]
	require.Equal(t, 0, top.Index)
	require.Equal(t, "Radar Past Performance", top.Title)
	require.Equal(t, "capabilities/radar.md", top.Source)
	require.Equal(t, "section 2", top.Location)
	require.NotNil(t, top.Score)
	require.Greater(t, *top.Score, *snippets[1].Score)
}

func TestRetrieveTruncatesSnippetText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	long := "radar " + strings.Repeat("x", MaxSnippetRunes*2)
	require.NoError(t, store.Add(ctx, []Document{
		{ID: "d1", Title: "Long Doc", Source: "s", Location: "l", Text: long},
	}))

	snippets, err := store.Retrieve(ctx, "radar", 1)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	require.LessOrEqual(t, len([]rune(snippets[0].Snippet)), MaxSnippetRunes)
}

func TestResetDropsDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Document{
		{ID: "d1", Title: "Doc", Source: "s", Location: "l", Text: "radar"},
	}))
	require.Equal(t, 1, store.Count())

	require.NoError(t, store.Reset())
	require.Equal(t, 0, store.Count())
}
