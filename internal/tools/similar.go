package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/ytchat/internal/index"
)

// SimilarInput is the argument object of the retrieve_similar_videos tool.
type SimilarInput struct {
	Query string `json:"query" jsonschema:"Topic to find videos about"`
}

// RetrieveSimilar lists indexed videos whose transcripts match a query.
type RetrieveSimilar struct {
	index Searcher
	k     int
}

// NewRetrieveSimilar creates the tool; k bounds the chunks considered.
func NewRetrieveSimilar(idx Searcher, k int) *RetrieveSimilar {
	if k <= 0 {
		k = 30
	}
	return &RetrieveSimilar{index: idx, k: k}
}

func (t *RetrieveSimilar) Name() string { return NameRetrieveSimilar }

func (t *RetrieveSimilar) Description() string {
	return "Find already indexed YouTube videos that talk about the query. " +
		`Returns JSON {"video_ids": [...]} ordered by relevance.`
}

func (t *RetrieveSimilar) Parameters() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query": stringProp("Topic to find videos about"),
	})
}

func (t *RetrieveSimilar) Execute(ctx context.Context, args json.RawMessage, cc CallContext) (string, error) {
	var in SimilarInput
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("%w: query is required", ErrInvalidArguments)
	}

	matches, err := t.index.Search(ctx, in.Query, t.k, index.Filter{})
	if err != nil {
		return "", fmt.Errorf("retrieve similar: %w", err)
	}

	seen := make(map[string]bool)
	ids := []string{}
	for _, m := range matches {
		if !seen[m.VideoID] {
			seen[m.VideoID] = true
			ids = append(ids, m.VideoID)
		}
	}
	if len(ids) == 0 {
		return NoContent, nil
	}

	out, err := json.Marshal(struct {
		VideoIDs []string `json:"video_ids"`
	}{ids})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
