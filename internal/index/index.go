package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/models"
)

var tracer = otel.Tracer("ytchat/index")

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ConnectFunc opens a durable backend.
type ConnectFunc func(ctx context.Context) (Store, error)

// Config tunes index initialization and queries.
type Config struct {
	InitAttempts   int
	InitBaseDelay  time.Duration
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	EmbedBatchSize int
	QueryCacheSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		InitAttempts:   5,
		InitBaseDelay:  time.Second,
		ConnectTimeout: 5 * time.Second,
		QueryTimeout:   10 * time.Second,
		EmbedBatchSize: 16,
		QueryCacheSize: 256,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InitAttempts <= 0 {
		c.InitAttempts = def.InitAttempts
	}
	if c.InitBaseDelay < 0 {
		c.InitBaseDelay = 0
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = def.QueryTimeout
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = def.EmbedBatchSize
	}
	if c.QueryCacheSize <= 0 {
		c.QueryCacheSize = def.QueryCacheSize
	}
	return c
}

// Index embeds chunks and searches them. Safe for concurrent use.
type Index struct {
	store    Store
	durable  bool
	embedder Embedder
	cfg      Config
	cache    *lru.Cache[string, []float32]
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// Open connects to the durable backend through connect, retrying with
// exponential backoff. When every attempt fails, or connect is nil, the
// index runs on a MemoryStore. Open never fails because of the backend.
func Open(ctx context.Context, cfg Config, embedder Embedder, connect ConnectFunc, logger *slog.Logger, collector *metrics.Collector) *Index {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	idx := newIndex(cfg, embedder, logger, collector)
	if connect == nil {
		idx.store = NewMemoryStore()
		logger.Info("using in-memory vector store")
		return idx
	}

	store, attempts, err := connectWithRetry(ctx, cfg, connect, logger)
	if err != nil {
		logger.Warn("vector backend unreachable, falling back to in-memory store",
			"attempts", attempts,
			"error", err,
		)
		collector.Inc(metrics.CounterIndexFallback)
		idx.store = NewMemoryStore()
		return idx
	}

	logger.Info("vector backend connected", "backend", store.Name(), "attempts", attempts)
	idx.store = store
	idx.durable = true
	return idx
}

// New wraps an already opened store. durable controls what Durable reports.
func New(store Store, durable bool, cfg Config, embedder Embedder, logger *slog.Logger, collector *metrics.Collector) *Index {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	idx := newIndex(cfg, embedder, logger, collector)
	idx.store = store
	idx.durable = durable
	return idx
}

func newIndex(cfg Config, embedder Embedder, logger *slog.Logger, collector *metrics.Collector) *Index {
	// Only fails for a non-positive size, which withDefaults rules out.
	cache, _ := lru.New[string, []float32](cfg.QueryCacheSize)
	return &Index{
		embedder: embedder,
		cfg:      cfg,
		cache:    cache,
		metrics:  collector,
		logger:   logger,
	}
}

func connectWithRetry(ctx context.Context, cfg Config, connect ConnectFunc, logger *slog.Logger) (Store, int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitBaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = cfg.InitBaseDelay << uint(cfg.InitAttempts)
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.InitAttempts-1)), ctx)

	var (
		store    Store
		attempts int
	)
	err := backoff.RetryNotify(func() error {
		attempts++
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		s, err := connect(connectCtx)
		if err != nil {
			return err
		}
		store = s
		return nil
	}, b, func(err error, wait time.Duration) {
		logger.Warn("vector backend connect failed, retrying",
			"attempt", attempts,
			"max_attempts", cfg.InitAttempts,
			"wait", wait,
			"error", err,
		)
	})
	return store, attempts, err
}

// Durable reports whether records survive a restart.
func (i *Index) Durable() bool { return i.durable }

// Backend names the active store.
func (i *Index) Backend() string { return i.store.Name() }

// Count returns the number of stored records.
func (i *Index) Count(ctx context.Context) (int, error) {
	n, err := i.store.Count(ctx)
	if err != nil {
		return 0, i.classify(ctx, err)
	}
	return n, nil
}

// Close releases the backend.
func (i *Index) Close(ctx context.Context) error {
	return i.store.Close(ctx)
}

// Add embeds chunks in batches and stores each batch as soon as it is
// embedded. stored counts the records that landed before any error.
func (i *Index) Add(ctx context.Context, videoID string, chunks []models.Chunk) (stored int, err error) {
	ctx, span := tracer.Start(ctx, "index.add")
	defer span.End()
	span.SetAttributes(
		attribute.String("video_id", videoID),
		attribute.Int("chunks", len(chunks)),
		attribute.String("backend", i.store.Name()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	for start := 0; start < len(chunks); start += i.cfg.EmbedBatchSize {
		end := min(start+i.cfg.EmbedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vectors, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}

		records := make([]Record, len(batch))
		for j, c := range batch {
			records[j] = Record{
				VideoID: videoID,
				Ordinal: c.Ordinal,
				Text:    c.Text,
				Vector:  vectors[j],
			}
		}

		insertStart := time.Now()
		err = i.store.Add(ctx, records)
		i.metrics.RecordResult(metrics.OpDBInsert, time.Since(insertStart), err)
		if err != nil {
			return stored, fmt.Errorf("store chunks %d-%d: %w", start, end-1, i.classify(ctx, err))
		}
		stored += len(records)
	}

	i.logger.Debug("chunks indexed", "video_id", videoID, "stored", stored, "backend", i.store.Name())
	return stored, nil
}

// Search returns the k records most similar to query.
func (i *Index) Search(ctx context.Context, query string, k int, filter Filter) (matches []Match, err error) {
	ctx, span := tracer.Start(ctx, "index.search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("k", k),
		attribute.String("video_id", filter.VideoID),
		attribute.String("backend", i.store.Name()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, i.cfg.QueryTimeout)
	defer cancel()

	vec, err := i.queryVector(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	matches, err = i.store.Search(ctx, vec, k, filter)
	i.metrics.RecordResult(metrics.OpDBSearch, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search: %w", i.classify(ctx, err))
	}

	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

// queryVector embeds query, reusing cached vectors for repeated queries.
func (i *Index) queryVector(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := i.cache.Get(query); ok {
		i.metrics.Inc(metrics.CounterQueryCacheHit)
		return vec, nil
	}
	i.metrics.Inc(metrics.CounterQueryCacheMiss)

	vec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	i.cache.Add(query, vec)
	return vec, nil
}

// classify maps store errors to ErrBackendUnavailable when the backend is
// unreachable or did not answer within the query deadline.
func (i *Index) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrBackendUnavailable):
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(context.Cause(ctx), context.Canceled):
		err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	default:
		return err
	}
	i.metrics.Inc(metrics.CounterBackendDown)
	return err
}
