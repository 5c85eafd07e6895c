package transcript

import (
	"context"
	"errors"

	"github.com/raphaelgruber/ytchat/internal/models"
)

// Sentinel errors a Source returns so the acquirer can classify failures
// with errors.Is instead of matching messages.
var (
	// ErrVideoUnavailable indicates the video is private, deleted, or restricted.
	ErrVideoUnavailable = errors.New("video is unavailable (private, deleted, or restricted)")

	// ErrCaptionsDisabled indicates the uploader disabled captions.
	ErrCaptionsDisabled = errors.New("transcripts/captions are disabled for this video")

	// ErrNoCaptions indicates captions exist but no track matched the request.
	ErrNoCaptions = errors.New("no transcripts available for this video")

	// ErrTooManyRequests indicates the source is throttling us.
	ErrTooManyRequests = errors.New("transcript source is rate limiting requests")
)

// FetchOptions parameterizes a single fetch strategy.
type FetchOptions struct {
	Language      string // caption language code, empty for the default track
	Country       string // region to present to the source, empty for none
	AutoGenerated bool   // prefer automatically generated captions
}

// Source is the transcript provider the acquirer drives.
// Implementations must honor ctx cancellation in their I/O.
type Source interface {
	// CheckAvailability performs a lightweight availability check.
	// Returns ErrVideoUnavailable when the video definitely cannot be played;
	// any other error is treated as inconclusive.
	CheckAvailability(ctx context.Context, videoID string) error

	// FetchSegments returns the ordered caption segments for the video.
	FetchSegments(ctx context.Context, videoID string, opts FetchOptions) ([]models.Segment, error)
}
