package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/ytchat/internal/index"
)

// Searcher runs similarity search over indexed chunks.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error)
}

// RetrieveInput is the argument object of the retrieve tool.
type RetrieveInput struct {
	Query   string `json:"query" jsonschema:"What to look up in the transcript"`
	VideoID string `json:"video_id,omitempty" jsonschema:"Video to search; defaults to the conversation's video"`
}

// Retrieve returns transcript passages of one video relevant to a query.
type Retrieve struct {
	index Searcher
	k     int
}

// NewRetrieve creates the retrieve tool returning k passages.
func NewRetrieve(idx Searcher, k int) *Retrieve {
	if k <= 0 {
		k = 3
	}
	return &Retrieve{index: idx, k: k}
}

func (t *Retrieve) Name() string { return NameRetrieve }

func (t *Retrieve) Description() string {
	return "Search the transcript of a YouTube video for passages relevant to the query. " +
		"Returns the most relevant transcript excerpts, one per line."
}

func (t *Retrieve) Parameters() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query":    stringProp("What to look up in the transcript"),
		"video_id": stringProp("Video to search; defaults to the video of the conversation"),
	})
}

func (t *Retrieve) Execute(ctx context.Context, args json.RawMessage, cc CallContext) (string, error) {
	var in RetrieveInput
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("%w: query is required", ErrInvalidArguments)
	}
	videoID := in.VideoID
	if videoID == "" {
		videoID = cc.VideoID
	}
	if videoID == "" {
		return "", fmt.Errorf("%w: video_id is required", ErrInvalidArguments)
	}

	matches, err := t.index.Search(ctx, in.Query, t.k, index.Filter{VideoID: videoID})
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	if len(matches) == 0 {
		return NoContent, nil
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return strings.Join(texts, "\n"), nil
}
