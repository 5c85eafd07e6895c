package transcript

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/ytchat/internal/models"
)

// scriptedSource returns canned results per strategy call, in call order.
type scriptedSource struct {
	mu        sync.Mutex
	precheck  error
	responses []fetchResult
	fallback  fetchResult
	calls     []FetchOptions
}

type fetchResult struct {
	segments []models.Segment
	err      error
	block    bool // wait for ctx cancellation
}

func (s *scriptedSource) CheckAvailability(ctx context.Context, videoID string) error {
	return s.precheck
}

func (s *scriptedSource) FetchSegments(ctx context.Context, videoID string, opts FetchOptions) ([]models.Segment, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, opts)
	r := s.fallback
	if n < len(s.responses) {
		r = s.responses[n]
	}
	s.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.segments, r.err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testConfig() Config {
	return Config{
		Attempts:       3,
		AttemptTimeout: time.Second,
		BaseDelay:      time.Millisecond,
	}
}

func segs(texts ...string) []models.Segment {
	out := make([]models.Segment, len(texts))
	for i, t := range texts {
		out[i] = models.Segment{Text: t, Offset: float64(i) * 2.5, Duration: 2.5}
	}
	return out
}

func requireAcquireError(t *testing.T, err error) *AcquireError {
	t.Helper()
	var acqErr *AcquireError
	require.ErrorAs(t, err, &acqErr)
	return acqErr
}

func TestAcquire_FourthStrategySucceeds(t *testing.T) {
	src := &scriptedSource{
		responses: []fetchResult{
			{err: ErrNoCaptions},
			{err: ErrNoCaptions},
			{err: ErrNoCaptions},
			{segments: segs("  hello\n", "", "world  again ")},
		},
	}
	a := NewAcquirer(src, testConfig(), nil)

	tr, err := a.Acquire(context.Background(), "vid1")
	require.NoError(t, err)

	assert.Equal(t, "vid1", tr.VideoID)
	assert.Equal(t, "hello world again", tr.Text)
	assert.Equal(t, 1, tr.Attempts)
	assert.Equal(t, "auto", tr.Strategy)
	assert.Equal(t, 3, tr.SegmentCount())
	assert.InDelta(t, 5.0, tr.Duration, 1e-9)
	assert.Equal(t, 4, src.callCount())
	assert.True(t, src.calls[3].AutoGenerated)
}

func TestAcquire_SucceedsOnSecondAttempt(t *testing.T) {
	strategies := len(DefaultStrategies)
	responses := make([]fetchResult, strategies)
	for i := range responses {
		responses[i] = fetchResult{err: ErrTooManyRequests}
	}
	responses = append(responses, fetchResult{segments: segs("recovered")})

	src := &scriptedSource{responses: responses}
	a := NewAcquirer(src, testConfig(), nil)

	tr, err := a.Acquire(context.Background(), "vid2")
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Attempts)
	assert.Equal(t, "default", tr.Strategy)
	assert.Equal(t, strategies+1, src.callCount())
}

func TestAcquire_CaptionsDisabledStopsImmediately(t *testing.T) {
	src := &scriptedSource{fallback: fetchResult{err: ErrCaptionsDisabled}}
	a := NewAcquirer(src, testConfig(), nil)

	_, err := a.Acquire(context.Background(), "vid3")
	acqErr := requireAcquireError(t, err)

	assert.Equal(t, ReasonCaptionsDisabled, acqErr.Reason)
	assert.Equal(t, 1, acqErr.Attempts)
	assert.Equal(t, 1, src.callCount(), "terminal failure must not try further strategies")
	assert.ErrorIs(t, err, ErrCaptionsDisabled)
}

func TestAcquire_PrecheckUnavailable(t *testing.T) {
	src := &scriptedSource{precheck: ErrVideoUnavailable}
	a := NewAcquirer(src, testConfig(), nil)

	_, err := a.Acquire(context.Background(), "vid4")
	acqErr := requireAcquireError(t, err)

	assert.Equal(t, ReasonVideoUnavailable, acqErr.Reason)
	assert.Equal(t, 0, acqErr.Attempts)
	assert.Equal(t, 0, src.callCount())
}

func TestAcquire_InconclusivePrecheckContinues(t *testing.T) {
	src := &scriptedSource{
		precheck: errors.New("connection reset"),
		fallback: fetchResult{segments: segs("ok")},
	}
	a := NewAcquirer(src, testConfig(), nil)

	tr, err := a.Acquire(context.Background(), "vid5")
	require.NoError(t, err)
	assert.Equal(t, "ok", tr.Text)
}

func TestAcquire_ExhaustionReportsLastReason(t *testing.T) {
	tests := []struct {
		name   string
		result fetchResult
		want   Reason
	}{
		{name: "no captions", result: fetchResult{err: ErrNoCaptions}, want: ReasonNoCaptions},
		{name: "empty segments", result: fetchResult{segments: []models.Segment{}}, want: ReasonEmptyTranscript},
		{name: "whitespace only", result: fetchResult{segments: segs(" ", "\n\t")}, want: ReasonEmptyTranscript},
		{name: "rate limited", result: fetchResult{err: ErrTooManyRequests}, want: ReasonRateLimited},
		{name: "unknown", result: fetchResult{err: errors.New("boom")}, want: ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{fallback: tt.result}
			a := NewAcquirer(src, testConfig(), nil)

			_, err := a.Acquire(context.Background(), "vid6")
			acqErr := requireAcquireError(t, err)

			assert.Equal(t, tt.want, acqErr.Reason)
			assert.Equal(t, 3, acqErr.Attempts)
			assert.Equal(t, 3*len(DefaultStrategies), src.callCount())
		})
	}
}

func TestAcquire_AttemptTimeout(t *testing.T) {
	src := &scriptedSource{fallback: fetchResult{block: true}}
	cfg := testConfig()
	cfg.Attempts = 2
	cfg.AttemptTimeout = 20 * time.Millisecond
	a := NewAcquirer(src, cfg, nil)

	start := time.Now()
	_, err := a.Acquire(context.Background(), "vid7")
	acqErr := requireAcquireError(t, err)

	assert.Equal(t, ReasonTimeout, acqErr.Reason)
	assert.Equal(t, 2, acqErr.Attempts)
	// Each attempt stops at its deadline instead of walking every strategy.
	assert.Equal(t, 2, src.callCount())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAcquire_ParentCancelled(t *testing.T) {
	src := &scriptedSource{fallback: fetchResult{err: ErrNoCaptions}}
	cfg := testConfig()
	cfg.BaseDelay = time.Hour
	a := NewAcquirer(src, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := a.Acquire(ctx, "vid8")
	acqErr := requireAcquireError(t, err)
	assert.Equal(t, 1, acqErr.Attempts)
	assert.Equal(t, ReasonNoCaptions, acqErr.Reason)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"disabled", ErrCaptionsDisabled, ReasonCaptionsDisabled},
		{"wrapped unavailable", errors.Join(errors.New("ctx"), ErrVideoUnavailable), ReasonVideoUnavailable},
		{"deadline", context.DeadlineExceeded, ReasonTimeout},
		{"net timeout", timeoutErr{timeout: true}, ReasonTimeout},
		{"net other", timeoutErr{}, ReasonNetwork},
		{"other", errors.New("x"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestReason_Terminal(t *testing.T) {
	assert.True(t, ReasonCaptionsDisabled.Terminal())
	assert.True(t, ReasonVideoUnavailable.Terminal())
	assert.False(t, ReasonNoCaptions.Terminal())
	assert.False(t, ReasonTimeout.Terminal())
	assert.NotEmpty(t, ReasonRateLimited.Describe())
}

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }
