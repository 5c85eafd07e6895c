package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/ytchat/internal/index"
	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/service"
	"github.com/raphaelgruber/ytchat/internal/transcript"
)

type fakeSearcher struct {
	matches []index.Match
	err     error

	lastK      int
	lastFilter index.Filter
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error) {
	f.lastK, f.lastFilter = k, filter
	if f.err != nil {
		return nil, f.err
	}
	var out []index.Match
	for _, m := range f.matches {
		if filter.Matches(m.VideoID) {
			out = append(out, m)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

type fakeIngester struct {
	result *service.IngestResult
	err    error
	urls   []string
}

func (f *fakeIngester) Ingest(ctx context.Context, rawURL string) (*service.IngestResult, error) {
	f.urls = append(f.urls, rawURL)
	return f.result, f.err
}

func newTestRegistry(s Searcher, ing service.Ingester) *Registry {
	return NewRegistry(metrics.NewCollector(), nil,
		NewRetrieve(s, 3),
		NewRetrieveSimilar(s, 30),
		NewTriggerIngestion(ing),
	)
}

func TestRegistry_Definitions(t *testing.T) {
	reg := newTestRegistry(&fakeSearcher{}, &fakeIngester{})

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	names := make([]string, len(defs))
	for i, d := range defs {
		assert.Equal(t, "function", d.Type)
		require.NotNil(t, d.Function)
		names[i] = d.Function.Name
	}
	assert.Equal(t, []string{NameRetrieve, NameRetrieveSimilar, NameTriggerIngestion}, names)
	assert.Equal(t, names, reg.Names())

	params := defs[0].Function.Parameters.(map[string]any)
	assert.Equal(t, []string{"query"}, params["required"])
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry(nil, nil, NewRetrieve(&fakeSearcher{}, 3), NewRetrieve(&fakeSearcher{}, 3))
	})
}

func TestDispatch_UnknownTool(t *testing.T) {
	reg := newTestRegistry(&fakeSearcher{}, &fakeIngester{})
	out, err := reg.Dispatch(context.Background(), "delete_everything", nil, CallContext{})
	require.NoError(t, err)
	assert.Equal(t, `error: unknown tool "delete_everything"`, out)
}

func TestDispatch_Retrieve(t *testing.T) {
	s := &fakeSearcher{matches: []index.Match{
		{VideoID: "a", Text: "first passage", Score: 0.9},
		{VideoID: "b", Text: "other video", Score: 0.8},
		{VideoID: "a", Text: "second passage", Score: 0.7},
	}}
	reg := newTestRegistry(s, &fakeIngester{})
	ctx := context.Background()

	tests := []struct {
		name string
		args string
		cc   CallContext
		want string
	}{
		{name: "video from context", args: `{"query":"q"}`, cc: CallContext{VideoID: "a"}, want: "first passage\nsecond passage"},
		{name: "video from args wins", args: `{"query":"q","video_id":"b"}`, cc: CallContext{VideoID: "a"}, want: "other video"},
		{name: "no matches", args: `{"query":"q","video_id":"zzz"}`, want: NoContent},
		{name: "missing video", args: `{"query":"q"}`, want: "error: invalid arguments: video_id is required"},
		{name: "missing query", args: `{"video_id":"a"}`, want: "error: invalid arguments: query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := reg.Dispatch(ctx, NameRetrieve, json.RawMessage(tt.args), tt.cc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
	assert.Equal(t, 3, s.lastK)
}

func TestDispatch_MalformedArguments(t *testing.T) {
	reg := newTestRegistry(&fakeSearcher{}, &fakeIngester{})
	out, err := reg.Dispatch(context.Background(), NameRetrieve, json.RawMessage(`{not json`), CallContext{})
	require.NoError(t, err)
	assert.Contains(t, out, "error: invalid arguments")
}

func TestDispatch_BackendUnavailableIsReturned(t *testing.T) {
	s := &fakeSearcher{err: index.ErrBackendUnavailable}
	reg := newTestRegistry(s, &fakeIngester{})

	out, err := reg.Dispatch(context.Background(), NameRetrieve, json.RawMessage(`{"query":"q"}`), CallContext{VideoID: "a"})
	assert.ErrorIs(t, err, index.ErrBackendUnavailable)
	assert.Empty(t, out)
}

func TestDispatch_OtherSearchErrorsBecomePayloads(t *testing.T) {
	s := &fakeSearcher{err: errors.New("embedding quota exceeded")}
	reg := newTestRegistry(s, &fakeIngester{})

	out, err := reg.Dispatch(context.Background(), NameRetrieve, json.RawMessage(`{"query":"q"}`), CallContext{VideoID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "error: retrieve: embedding quota exceeded", out)
}

type panicTool struct{}

func (panicTool) Name() string               { return "explode" }
func (panicTool) Description() string        { return "panics" }
func (panicTool) Parameters() map[string]any { return objectSchema(nil, map[string]any{}) }
func (panicTool) Execute(context.Context, json.RawMessage, CallContext) (string, error) {
	panic("boom")
}

func TestDispatch_RecoversPanics(t *testing.T) {
	collector := metrics.NewCollector()
	reg := NewRegistry(collector, nil, panicTool{})

	out, err := reg.Dispatch(context.Background(), "explode", nil, CallContext{})
	require.NoError(t, err)
	assert.Contains(t, out, "error: tool explode panicked: boom")
	assert.Equal(t, int64(1), collector.Counter(metrics.CounterPanicsRecovered))
}

func TestDispatch_RetrieveSimilar(t *testing.T) {
	s := &fakeSearcher{matches: []index.Match{
		{VideoID: "b"}, {VideoID: "a"}, {VideoID: "b"}, {VideoID: "c"},
	}}
	reg := newTestRegistry(s, &fakeIngester{})

	out, err := reg.Dispatch(context.Background(), NameRetrieveSimilar, json.RawMessage(`{"query":"cooking"}`), CallContext{VideoID: "ignored"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"video_ids":["b","a","c"]}`, out)
	assert.Equal(t, 30, s.lastK)
	assert.Empty(t, s.lastFilter.VideoID)

	empty := newTestRegistry(&fakeSearcher{}, &fakeIngester{})
	out, err = empty.Dispatch(context.Background(), NameRetrieveSimilar, json.RawMessage(`{"query":"cooking"}`), CallContext{})
	require.NoError(t, err)
	assert.Equal(t, NoContent, out)
}

func TestDispatch_TriggerIngestion(t *testing.T) {
	ing := &fakeIngester{result: &service.IngestResult{
		VideoID:      "abc",
		Chunks:       4,
		ChunksStored: 4,
		Indexed:      true,
		Duration:     1234 * time.Millisecond,
	}}
	reg := newTestRegistry(&fakeSearcher{}, ing)

	out, err := reg.Dispatch(context.Background(), NameTriggerIngestion, json.RawMessage(`{"url":"https://youtu.be/abc"}`), CallContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"video_id":"abc","chunks":4,"indexed":true,"duration_seconds":1.23}`, out)
	assert.Equal(t, []string{"https://youtu.be/abc"}, ing.urls)
}

func TestDispatch_TriggerIngestionFailures(t *testing.T) {
	t.Run("acquisition failure names the reason", func(t *testing.T) {
		ing := &fakeIngester{err: &transcript.AcquireError{VideoID: "abc", Reason: transcript.ReasonCaptionsDisabled, Attempts: 1}}
		reg := newTestRegistry(&fakeSearcher{}, ing)

		out, err := reg.Dispatch(context.Background(), NameTriggerIngestion, json.RawMessage(`{"url":"https://youtu.be/abc"}`), CallContext{})
		require.NoError(t, err)
		assert.Contains(t, out, "error: ")
		assert.Contains(t, out, "captions_disabled")
	})

	t.Run("index failure is reported in the outcome", func(t *testing.T) {
		ing := &fakeIngester{result: &service.IngestResult{VideoID: "abc", ChunksStored: 1, IndexErr: errors.New("dimension mismatch")}}
		reg := newTestRegistry(&fakeSearcher{}, ing)

		out, err := reg.Dispatch(context.Background(), NameTriggerIngestion, json.RawMessage(`{"url":"https://youtu.be/abc"}`), CallContext{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"video_id":"abc","chunks":1,"indexed":false,"index_error":"dimension mismatch","duration_seconds":0}`, out)
	})

	t.Run("backend unavailable is returned", func(t *testing.T) {
		ing := &fakeIngester{result: &service.IngestResult{VideoID: "abc", IndexErr: index.ErrBackendUnavailable}}
		reg := newTestRegistry(&fakeSearcher{}, ing)

		_, err := reg.Dispatch(context.Background(), NameTriggerIngestion, json.RawMessage(`{"url":"https://youtu.be/abc"}`), CallContext{})
		assert.ErrorIs(t, err, index.ErrBackendUnavailable)
	})
}
