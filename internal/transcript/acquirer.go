// Package transcript acquires video transcripts from an unreliable source,
// retrying across fetch strategies with exponential backoff.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raphaelgruber/ytchat/internal/models"
)

// ErrEmptyTranscript indicates the source returned no readable text.
var ErrEmptyTranscript = errors.New("transcript contains no readable text")

// Reason classifies why an acquisition failed.
type Reason string

const (
	ReasonCaptionsDisabled Reason = "captions_disabled"
	ReasonNoCaptions       Reason = "no_captions"
	ReasonVideoUnavailable Reason = "video_unavailable"
	ReasonEmptyTranscript  Reason = "empty_transcript"
	ReasonTimeout          Reason = "timeout"
	ReasonNetwork          Reason = "network"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonUnknown          Reason = "unknown"
)

// Describe returns a human-readable explanation.
func (r Reason) Describe() string {
	switch r {
	case ReasonCaptionsDisabled:
		return "Transcripts/captions are disabled for this video"
	case ReasonNoCaptions:
		return "No transcripts available for this video (no captions)"
	case ReasonVideoUnavailable:
		return "Video is unavailable (private, deleted, or restricted)"
	case ReasonEmptyTranscript:
		return "Transcript segments exist but contain no readable text"
	case ReasonTimeout:
		return "Timed out fetching the transcript"
	case ReasonNetwork:
		return "Network error fetching the transcript"
	case ReasonRateLimited:
		return "Transcript source is rate limiting requests"
	default:
		return "Unknown error fetching the transcript"
	}
}

// Terminal reports whether retrying can never help.
func (r Reason) Terminal() bool {
	return r == ReasonCaptionsDisabled || r == ReasonVideoUnavailable
}

// AcquireError is the only error type Acquire returns.
type AcquireError struct {
	VideoID  string
	Reason   Reason
	Attempts int
	Err      error
}

func (e *AcquireError) Error() string {
	msg := fmt.Sprintf("acquire transcript for %s: %s after %d attempt(s)", e.VideoID, e.Reason, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Classify maps a source error onto a Reason.
func Classify(err error) Reason {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrCaptionsDisabled):
		return ReasonCaptionsDisabled
	case errors.Is(err, ErrVideoUnavailable):
		return ReasonVideoUnavailable
	case errors.Is(err, ErrNoCaptions):
		return ReasonNoCaptions
	case errors.Is(err, ErrEmptyTranscript):
		return ReasonEmptyTranscript
	case errors.Is(err, ErrTooManyRequests):
		return ReasonRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	default:
		return ReasonUnknown
	}
}

// Strategy is one named way of asking the source for captions.
type Strategy struct {
	Name    string
	Options FetchOptions
}

// DefaultStrategies is the order strategies are tried within an attempt.
var DefaultStrategies = []Strategy{
	{Name: "default"},
	{Name: "en", Options: FetchOptions{Language: "en"}},
	{Name: "en-US", Options: FetchOptions{Language: "en-US"}},
	{Name: "auto", Options: FetchOptions{AutoGenerated: true}},
	{Name: "country", Options: FetchOptions{Language: "en", Country: "US"}},
}

// Config tunes retry behaviour.
type Config struct {
	Attempts       int           // full passes over the strategies
	AttemptTimeout time.Duration // deadline for one pass
	BaseDelay      time.Duration // backoff before attempt 2, doubled after
	StrategyPause  time.Duration // pause between failed strategies
	Strategies     []Strategy    // nil means DefaultStrategies
}

// DefaultConfig returns the production retry settings.
func DefaultConfig() Config {
	return Config{
		Attempts:       3,
		AttemptTimeout: 30 * time.Second,
		BaseDelay:      time.Second,
		StrategyPause:  500 * time.Millisecond,
	}
}

// Acquirer fetches transcripts. It keeps no state between calls.
type Acquirer struct {
	source Source
	cfg    Config
	logger *slog.Logger
}

// NewAcquirer creates an acquirer over source.
func NewAcquirer(source Source, cfg Config, logger *slog.Logger) *Acquirer {
	def := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.StrategyPause < 0 {
		cfg.StrategyPause = 0
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{source: source, cfg: cfg, logger: logger}
}

// Acquire returns the full transcript for videoID or an *AcquireError.
func (a *Acquirer) Acquire(ctx context.Context, videoID string) (*models.Transcript, error) {
	ctx, span := otel.Tracer("ytchat/transcript").Start(ctx, "transcript.acquire")
	defer span.End()
	span.SetAttributes(attribute.String("video_id", videoID))

	t, err := a.acquire(ctx, videoID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("attempts", t.Attempts),
		attribute.String("strategy", t.Strategy),
	)
	return t, nil
}

func (a *Acquirer) acquire(ctx context.Context, videoID string) (*models.Transcript, error) {
	if err := a.precheck(ctx, videoID); err != nil {
		return nil, err
	}

	var (
		attempts int
		lastErr  error
		result   *models.Transcript
	)

	operation := func() error {
		attempts++
		t, err := a.attempt(ctx, videoID)
		if err == nil {
			t.Attempts = attempts
			result = t
			return nil
		}
		lastErr = err
		reason := Classify(err)
		if reason.Terminal() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		a.logger.Warn("transcript attempt failed, retrying",
			"video_id", videoID,
			"attempt", attempts,
			"reason", Classify(err),
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, a.backoff(ctx), notify)
	if err == nil {
		a.logger.Info("transcript acquired",
			"video_id", videoID,
			"attempts", result.Attempts,
			"strategy", result.Strategy,
			"segments", result.SegmentCount(),
		)
		return result, nil
	}

	// The backoff may stop on parent cancellation before lastErr is set.
	if lastErr == nil {
		lastErr = err
	}
	acqErr := &AcquireError{
		VideoID:  videoID,
		Reason:   Classify(lastErr),
		Attempts: attempts,
		Err:      lastErr,
	}
	a.logger.Error("transcript acquisition failed",
		"video_id", videoID,
		"reason", acqErr.Reason,
		"attempts", attempts,
		"error", lastErr,
	)
	return nil, acqErr
}

// precheck fails fast on videos that definitely cannot be played.
// Any other check error is inconclusive.
func (a *Acquirer) precheck(ctx context.Context, videoID string) error {
	checkCtx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
	defer cancel()

	err := a.source.CheckAvailability(checkCtx, videoID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVideoUnavailable):
		return &AcquireError{
			VideoID: videoID,
			Reason:  ReasonVideoUnavailable,
			Err:     err,
		}
	default:
		a.logger.Debug("availability check inconclusive", "video_id", videoID, "error", err)
		return nil
	}
}

// attempt runs every strategy in order under one deadline.
func (a *Acquirer) attempt(ctx context.Context, videoID string) (*models.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
	defer cancel()

	var lastErr error
	for i, s := range a.cfg.Strategies {
		if i > 0 {
			if err := pause(ctx, a.cfg.StrategyPause); err != nil {
				return nil, fmt.Errorf("strategy pause: %w", err)
			}
		}

		segments, err := a.source.FetchSegments(ctx, videoID, s.Options)
		if err == nil {
			var t *models.Transcript
			if t, err = a.assemble(videoID, s, segments); err == nil {
				return t, nil
			}
		}

		a.logger.Debug("transcript strategy failed",
			"video_id", videoID,
			"strategy", s.Name,
			"error", err,
		)
		lastErr = err

		if Classify(err).Terminal() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("strategy %s: %w", s.Name, ctx.Err())
		}
	}
	return nil, lastErr
}

func (a *Acquirer) assemble(videoID string, s Strategy, segments []models.Segment) (*models.Transcript, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyTranscript
	}
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	text := models.CollapseWhitespace(strings.Join(parts, " "))
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	return &models.Transcript{
		VideoID:  videoID,
		Text:     text,
		Segments: segments,
		Duration: segments[len(segments)-1].Offset,
		Strategy: s.Name,
		Language: s.Options.Language,
	}, nil
}

// backoff doubles BaseDelay between attempts with no jitter.
func (a *Acquirer) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.cfg.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = a.cfg.BaseDelay << uint(a.cfg.Attempts)
	eb.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(a.cfg.Attempts-1)), ctx)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
