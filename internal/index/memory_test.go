package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RanksByCosine(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []Record{
		{VideoID: "v", Ordinal: 0, Text: "orthogonal", Vector: []float32{0, 1}},
		{VideoID: "v", Ordinal: 1, Text: "exact", Vector: []float32{1, 0}},
		{VideoID: "v", Ordinal: 2, Text: "diagonal", Vector: []float32{1, 1}},
	}))

	matches, err := s.Search(ctx, []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"exact", "diagonal", "orthogonal"}, texts(matches))
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestMemoryStore_TiesKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	same := []float32{0.5, 0.5}
	require.NoError(t, s.Add(ctx, []Record{
		{VideoID: "v", Ordinal: 0, Text: "first", Vector: same},
		{VideoID: "v", Ordinal: 1, Text: "second", Vector: same},
	}))
	require.NoError(t, s.Add(ctx, []Record{
		{VideoID: "w", Ordinal: 0, Text: "third", Vector: same},
	}))

	for range 5 {
		matches, err := s.Search(ctx, []float32{1, 1}, 3, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, texts(matches))
	}
}

func TestMemoryStore_LimitAndEmpty(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	matches, err := s.Search(ctx, []float32{1}, 3, Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, s.Add(ctx, []Record{
		{VideoID: "v", Text: "a", Vector: []float32{1}},
		{VideoID: "v", Text: "b", Vector: []float32{1}},
	}))

	matches, err = s.Search(ctx, []float32{1}, 1, Filter{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = s.Search(ctx, []float32{1}, 0, Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_CopiesVectors(t *testing.T) {
	s := NewMemoryStore()
	vec := []float32{1, 0}
	require.NoError(t, s.Add(context.Background(), []Record{{VideoID: "v", Text: "a", Vector: vec}}))

	vec[0], vec[1] = 0, 1

	matches, err := s.Search(context.Background(), []float32{1, 0}, 1, Filter{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func texts(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Text
	}
	return out
}
