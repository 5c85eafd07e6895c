// Package llm provides chat models and embedding services using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/ytchat/internal/config"
	"github.com/raphaelgruber/ytchat/internal/metrics"
)

// Embedder wraps langchaingo embeddings with dimension validation.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewEmbedder creates an embedder based on configuration.
func NewEmbedder(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Embedder, error) {
	var client embeddings.EmbedderClient
	var err error

	switch cfg.EmbedProvider {
	case config.ProviderGoogleAI:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("Google API key required")
		}
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAPIKey),
			googleai.WithDefaultEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai client: %w", err)
		}

	case config.ProviderOllama:
		client, err = ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		client, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}

	return WrapEmbedder(model, cfg.EmbedModel, cfg.EmbedDimension, collector, logger), nil
}

// WrapEmbedder instruments an existing langchaingo embedder.
func WrapEmbedder(model embeddings.Embedder, name string, dimension int, collector *metrics.Collector, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		model:     model,
		dimension: dimension,
		modelName: name,
		metrics:   collector,
		logger:    logger,
	}
}

// Embed generates an embedding vector for a query.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	textLen := len(text)
	e.logger.Debug("embedding text", "model", e.modelName, "text_len", textLen)

	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	duration := time.Since(start)
	e.metrics.RecordResult(metrics.OpEmbedding, duration, err)

	if err != nil {
		e.logger.Warn("embedding failed", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, wrapFatalError(fmt.Errorf("embed: %w", err))
	}

	if len(vector) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(vector), e.dimension)
	}

	e.logger.Debug("embedding complete", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds())
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	e.metrics.RecordResult(metrics.OpEmbedding, time.Since(start), err)
	if err != nil {
		return nil, wrapFatalError(fmt.Errorf("embed batch: %w", err))
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
		}
	}

	return vectors, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}
