package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/ytchat/internal/index"
)

type recordingSearcher struct {
	query  string
	k      int
	filter index.Filter
}

func (r *recordingSearcher) Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error) {
	r.query, r.k, r.filter = query, k, filter
	return []index.Match{{VideoID: filter.VideoID, Text: "hit"}}, nil
}

func TestSearchService(t *testing.T) {
	s := &recordingSearcher{}
	svc := NewSearchService(s, 3)

	_, err := svc.Search(context.Background(), SearchOptions{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	matches, err := svc.Search(context.Background(), SearchOptions{Query: " what ", VideoID: "v"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "what", s.query)
	assert.Equal(t, 3, s.k)
	assert.Equal(t, "v", s.filter.VideoID)

	_, err = svc.Search(context.Background(), SearchOptions{Query: "q", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, s.k)
}
