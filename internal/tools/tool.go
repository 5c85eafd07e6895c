// Package tools defines the functions the conversation model may call and
// serves them to both the completion loop and MCP clients.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// NoContent is returned when a search matches nothing.
const NoContent = "no relevant content found for this video"

// Tool names.
const (
	NameRetrieve         = "retrieve"
	NameRetrieveSimilar  = "retrieve_similar_videos"
	NameTriggerIngestion = "trigger_ingestion"
)

// CallContext carries per-invocation state a tool may need.
type CallContext struct {
	ThreadID string
	VideoID  string
}

// Tool is one model-callable function.
type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON schema object describing the arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args json.RawMessage, cc CallContext) (string, error)
}

// ErrInvalidArguments wraps argument decoding and validation failures.
var ErrInvalidArguments = errors.New("invalid arguments")

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
