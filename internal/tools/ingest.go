package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/raphaelgruber/ytchat/internal/index"
	"github.com/raphaelgruber/ytchat/internal/service"
	"github.com/raphaelgruber/ytchat/internal/transcript"
)

// IngestInput is the argument object of the trigger_ingestion tool.
type IngestInput struct {
	URL string `json:"url" jsonschema:"YouTube URL of the video to ingest"`
}

// TriggerIngestion fetches and indexes a new video.
type TriggerIngestion struct {
	ingester service.Ingester
}

// NewTriggerIngestion creates the trigger_ingestion tool.
func NewTriggerIngestion(ingester service.Ingester) *TriggerIngestion {
	return &TriggerIngestion{ingester: ingester}
}

func (t *TriggerIngestion) Name() string { return NameTriggerIngestion }

func (t *TriggerIngestion) Description() string {
	return "Fetch the transcript of a YouTube video and index it so it can be searched. " +
		"Only call this for videos that have not been indexed yet; it takes several seconds."
}

func (t *TriggerIngestion) Parameters() map[string]any {
	return objectSchema([]string{"url"}, map[string]any{
		"url": stringProp("YouTube URL of the video to ingest"),
	})
}

type ingestOutcome struct {
	VideoID         string  `json:"video_id"`
	Chunks          int     `json:"chunks"`
	Indexed         bool    `json:"indexed"`
	IndexError      string  `json:"index_error,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (t *TriggerIngestion) Execute(ctx context.Context, args json.RawMessage, cc CallContext) (string, error) {
	var in IngestInput
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.URL) == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidArguments)
	}

	res, err := t.ingester.Ingest(ctx, in.URL)
	if err != nil {
		var ae *transcript.AcquireError
		if errors.As(err, &ae) {
			return "", fmt.Errorf("%s (%s): %w", ae.Reason.Describe(), ae.Reason, err)
		}
		return "", fmt.Errorf("ingest: %w", err)
	}
	if errors.Is(res.IndexErr, index.ErrBackendUnavailable) {
		return "", fmt.Errorf("index %s: %w", res.VideoID, res.IndexErr)
	}

	out, err := json.Marshal(ingestOutcome{
		VideoID:         res.VideoID,
		Chunks:          res.ChunksStored,
		Indexed:         res.Indexed,
		IndexError:      res.IndexError(),
		DurationSeconds: math.Round(res.Duration.Seconds()*100) / 100,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
