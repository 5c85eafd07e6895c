package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/ytchat/internal/metrics"
)

type fakeEmbeddings struct {
	dim int
	err error
}

func (f *fakeEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dim), nil
}

func TestEmbedder_Dimensions(t *testing.T) {
	collector := metrics.NewCollector()
	e := WrapEmbedder(&fakeEmbeddings{dim: 4}, "test-embed", 4, collector, nil)

	v, err := e.Embed(context.Background(), "hello")
	if err != nil || len(v) != 4 {
		t.Fatalf("Embed() = %v, %v", v, err)
	}

	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil || len(vs) != 3 {
		t.Fatalf("EmbedBatch() = %d vectors, %v", len(vs), err)
	}

	if got := collector.Snapshot().Operations[metrics.OpEmbedding].Count; got != 2 {
		t.Errorf("embedding ops recorded = %d, want 2", got)
	}
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	e := WrapEmbedder(&fakeEmbeddings{dim: 3}, "test-embed", 768, nil, nil)

	if _, err := e.Embed(context.Background(), "hello"); err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("Embed() error = %v, want dimension mismatch", err)
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("EmbedBatch() error = %v, want dimension mismatch", err)
	}
}

func TestEmbedder_EmptyBatch(t *testing.T) {
	e := WrapEmbedder(&fakeEmbeddings{dim: 3}, "test-embed", 3, nil, nil)
	vs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || len(vs) != 0 {
		t.Errorf("EmbedBatch(nil) = %v, %v", vs, err)
	}
}

func TestEmbedder_ProviderError(t *testing.T) {
	e := WrapEmbedder(&fakeEmbeddings{err: errors.New("API key not valid")}, "test-embed", 3, nil, nil)
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, ErrFatalAPI) {
		t.Errorf("expected ErrFatalAPI, got %v", err)
	}
}
