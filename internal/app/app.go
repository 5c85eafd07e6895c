// Package app builds the ytchat service graph shared by the HTTP server,
// the MCP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/ytchat/internal/config"
	"github.com/raphaelgruber/ytchat/internal/conversation"
	"github.com/raphaelgruber/ytchat/internal/db"
	"github.com/raphaelgruber/ytchat/internal/index"
	"github.com/raphaelgruber/ytchat/internal/llm"
	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/models"
	"github.com/raphaelgruber/ytchat/internal/pgstore"
	"github.com/raphaelgruber/ytchat/internal/service"
	"github.com/raphaelgruber/ytchat/internal/tools"
	"github.com/raphaelgruber/ytchat/internal/tracing"
	"github.com/raphaelgruber/ytchat/internal/transcript"
	"github.com/raphaelgruber/ytchat/internal/youtube"
)

// ingestConcurrency bounds background ingestion jobs.
const ingestConcurrency = 4

// Services holds every long-lived component. Build it once per process.
type Services struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Index    *index.Index
	Ingest   *service.IngestService
	Search   *service.SearchService
	Jobs     *service.JobManager
	Tools    *tools.Registry
	Engine   *conversation.Engine
	Embedder *llm.Embedder
	Model    *llm.Model

	wiper          wiper
	cancelJobs     context.CancelFunc
	shutdownTraces func(context.Context) error
}

// ModelNames reports the configured completion and embedding models.
// Components injected through Options report empty names.
func (s *Services) ModelNames() (llmModel, embedModel string, embedDimension int) {
	if s.Model != nil {
		llmModel = s.Model.Model()
	}
	if s.Embedder != nil {
		embedModel = s.Embedder.Model()
		embedDimension = s.Embedder.Dimension()
	}
	return llmModel, embedModel, embedDimension
}

type wiper interface {
	Wipe(ctx context.Context) error
}

// Options overrides components, mainly for tests.
type Options struct {
	Version string

	// Model and Embedder replace the configured providers when set.
	Model    llms.Model
	Embedder index.Embedder
}

// New wires the services from cfg. The vector backend never makes New
// fail: an unreachable backend leaves the index on in-memory storage.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     opts.Version,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	s.shutdownTraces = shutdown

	model := opts.Model
	if model == nil {
		s.Model, err = llm.NewModel(ctx, cfg, s.Metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("init model: %w", err)
		}
		model = s.Model
		if err := llm.WarmTokenizer(); err != nil {
			logger.Warn("token estimation falls back to rune counts", "error", err)
		}
	}

	embedder := opts.Embedder
	if embedder == nil {
		s.Embedder, err = llm.NewEmbedder(ctx, cfg, s.Metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		embedder = s.Embedder
	}

	s.Index = index.Open(ctx, index.Config{
		InitAttempts:   cfg.InitAttempts,
		InitBaseDelay:  cfg.InitBaseDelay,
		ConnectTimeout: cfg.ConnectTimeout,
		QueryTimeout:   cfg.QueryTimeout,
		EmbedBatchSize: cfg.EmbedBatchSize,
		QueryCacheSize: cfg.QueryCacheSize,
	}, embedder, s.connectFunc(), logger, s.Metrics)

	yt := youtube.NewClient(youtube.ClientConfig{
		RequestsPerSecond: cfg.YouTubeRequestsPerSecond,
		Burst:             cfg.YouTubeBurst,
		Logger:            logger,
	})
	acquirer := transcript.NewAcquirer(yt, transcript.Config{
		Attempts:       cfg.TranscriptAttempts,
		AttemptTimeout: cfg.TranscriptAttemptTimeout,
		BaseDelay:      cfg.TranscriptBaseDelay,
		StrategyPause:  cfg.TranscriptStrategyPause,
	}, logger)

	s.Ingest = service.NewIngestService(acquirer, s.Index, models.ChunkingConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, s.Metrics, logger)
	s.Search = service.NewSearchService(s.Index, cfg.RetrieveK)

	jobsCtx, cancel := context.WithCancel(context.Background())
	s.cancelJobs = cancel
	s.Jobs = service.NewJobManager(jobsCtx, s.Ingest, ingestConcurrency, logger)

	s.Tools = tools.NewRegistry(s.Metrics, logger,
		tools.NewRetrieve(s.Index, cfg.RetrieveK),
		tools.NewRetrieveSimilar(s.Index, cfg.SimilarK),
		tools.NewTriggerIngestion(s.Ingest),
	)

	engineCfg := conversation.DefaultConfig()
	if cfg.MaxIterations > 0 {
		engineCfg.MaxIterations = cfg.MaxIterations
	}
	if cfg.CompletionTimeout > 0 {
		engineCfg.CompletionTimeout = cfg.CompletionTimeout
	}
	s.Engine = conversation.NewEngine(model, s.Tools, engineCfg, s.Metrics, logger)

	logger.Info("services ready",
		"index", s.Index.Backend(),
		"durable", s.Index.Durable(),
		"tools", s.Tools.Names(),
	)
	return s, nil
}

// connectFunc picks the durable backend from configuration. It returns nil
// for the memory backend.
func (s *Services) connectFunc() index.ConnectFunc {
	cfg := s.Config
	switch cfg.VectorBackend {
	case config.BackendSurrealDB:
		return func(ctx context.Context) (index.Store, error) {
			store, err := db.Connect(ctx, db.Config{
				URL:       cfg.SurrealDBURL,
				Namespace: cfg.SurrealDBNamespace,
				Database:  cfg.SurrealDBDatabase,
				Username:  cfg.SurrealDBUser,
				Password:  cfg.SurrealDBPass,
				AuthLevel: cfg.SurrealDBAuthLevel,
				Dimension: cfg.EmbedDimension,
			}, s.Logger)
			if err != nil {
				return nil, err
			}
			s.wiper = store
			return store, nil
		}
	case config.BackendPostgres:
		return func(ctx context.Context) (index.Store, error) {
			store, err := pgstore.Connect(ctx, pgstore.Config{
				URL:            cfg.PostgresURL,
				MaxConns:       cfg.PostgresMaxConns,
				ConnectTimeout: cfg.ConnectTimeout,
				Dimension:      cfg.EmbedDimension,
			}, s.Logger)
			if err != nil {
				return nil, err
			}
			s.wiper = store
			return store, nil
		}
	default:
		return nil
	}
}

// Wipe deletes every chunk from the durable backend.
func (s *Services) Wipe(ctx context.Context) error {
	if s.wiper == nil {
		return errors.New("no durable vector backend connected")
	}
	return s.wiper.Wipe(ctx)
}

// Close cancels background jobs, waits for them and releases the backend.
func (s *Services) Close(ctx context.Context) error {
	s.cancelJobs()
	s.Jobs.Wait()

	var errs []error
	if err := s.Index.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := s.shutdownTraces(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	return errors.Join(errs...)
}
