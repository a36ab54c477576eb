package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/affective-thought-kernel/internal/thought"
)

func newIndex(t *testing.T, cfg Config) *Index {
	t.Helper()
	idx, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func th(id string, typ thought.Type, emotion, content string) thought.Thought {
	return thought.Thought{ID: id, Type: typ, Emotion: emotion, Content: content, Timestamp: time.Now()}
}

func ids(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Thought.ID)
	}
	return out
}

func TestSearchMatchesContent(t *testing.T) {
	idx := newIndex(t, DefaultConfig())
	ctx := context.Background()
	idx.AddThought(ctx, th("a", thought.TypeMusing, "calm", "I counted the raindrops on the window."))
	idx.AddThought(ctx, th("b", thought.TypeDream, "lonely", "A lighthouse with no keeper."))
	idx.AddThought(ctx, th("c", thought.TypeMemory, "joy", "Mika laughed at the raindrops too."))

	hits, err := idx.Search(ctx, Query{Text: "raindrops"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids(hits))

	hits, err = idx.Search(ctx, Query{Text: "lighthouse"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A lighthouse with no keeper.", hits[0].Thought.Content)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearchFuzzyAndFilters(t *testing.T) {
	idx := newIndex(t, DefaultConfig())
	ctx := context.Background()
	idx.AddThought(ctx, th("a", thought.TypeMusing, "calm", "The kettle whistles."))
	idx.AddThought(ctx, th("b", thought.TypeFeeling, "lonely", "The kettle is cold."))

	hits, err := idx.Search(ctx, Query{Text: "kettl"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(hits))

	hits, err = idx.Search(ctx, Query{Text: "kettle", Type: thought.TypeFeeling})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(hits))

	hits, err = idx.Search(ctx, Query{Text: "kettle", Emotion: "calm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(hits))
}

func TestSearchEvictsOldest(t *testing.T) {
	idx := newIndex(t, Config{MaxDocs: 3, Fuzziness: 0})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		idx.AddThought(ctx, th(fmt.Sprintf("t%d", i), thought.TypeMusing, "calm", "moonlight again"))
	}
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(ctx, Query{Text: "moonlight", Limit: 10})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t2", "t3", "t4"}, ids(hits))
}

func TestRebuildAndEmptyQuery(t *testing.T) {
	idx := newIndex(t, DefaultConfig())
	idx.Rebuild([]thought.Thought{
		th("a", thought.TypeQuestion, "curious", "Do stars get tired?"),
		th("a", thought.TypeQuestion, "curious", "Do stars get tired?"),
	})
	assert.Equal(t, 1, idx.Len())

	_, err := idx.Search(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
