package service

import (
	"context"
	"errors"
	"strings"

	"github.com/raphaelgruber/ytchat/internal/index"
)

// ErrEmptyQuery is returned for blank search queries.
var ErrEmptyQuery = errors.New("query is required")

// Searcher runs similarity search over indexed chunks.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error)
}

// SearchService exposes direct chunk search without the conversation loop.
type SearchService struct {
	index        Searcher
	defaultLimit int
}

// NewSearchService creates a new search service.
func NewSearchService(idx Searcher, defaultLimit int) *SearchService {
	if defaultLimit <= 0 {
		defaultLimit = 3
	}
	return &SearchService{index: idx, defaultLimit: defaultLimit}
}

// SearchOptions configures a search operation.
type SearchOptions struct {
	Query   string
	VideoID string
	Limit   int
}

// Search returns the chunks most similar to the query, best first.
func (s *SearchService) Search(ctx context.Context, opts SearchOptions) ([]index.Match, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	return s.index.Search(ctx, query, limit, index.Filter{VideoID: opts.VideoID})
}
