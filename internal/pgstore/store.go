// Package pgstore stores transcript chunk embeddings in Postgres with the
// pgvector extension.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/raphaelgruber/ytchat/internal/index"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// column dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Config holds pool settings.
type Config struct {
	URL            string
	MaxConns       int32
	ConnectTimeout time.Duration
	Dimension      int
}

// Store is an index.Store backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

var _ index.Store = (*Store)(nil)

func schemaSQL(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transcript_chunks (
			id         BIGSERIAL PRIMARY KEY,
			video_id   TEXT NOT NULL,
			ordinal    INTEGER NOT NULL,
			content    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS transcript_chunks_video_idx ON transcript_chunks (video_id)`,
		`CREATE INDEX IF NOT EXISTS transcript_chunks_embedding_idx ON transcript_chunks
			USING hnsw (embedding vector_cosine_ops)`,
	}
}

// Connect creates the pool, pings it and runs the schema.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", cfg.Dimension)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, dim: cfg.Dimension, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres connection established", "max_conns", poolCfg.MaxConns)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaSQL(s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", wrapError(err))
		}
	}
	return nil
}

// Add inserts records in one batch round trip.
func (s *Store) Add(ctx context.Context, records []index.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, r := range records {
		if len(r.Vector) != s.dim {
			return fmt.Errorf("record %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(r.Vector), s.dim)
		}
		batch.Queue(
			`INSERT INTO transcript_chunks (video_id, ordinal, content, embedding) VALUES ($1, $2, $3, $4)`,
			r.VideoID, r.Ordinal, r.Text, pgvector.NewVector(r.Vector),
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", wrapError(err))
	}
	return nil
}

// Search orders by cosine distance. Score is 1 - distance.
func (s *Store) Search(ctx context.Context, vec []float32, k int, filter index.Filter) ([]index.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	qvec := pgvector.NewVector(vec)
	if filter.VideoID != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT video_id, ordinal, content, 1 - (embedding <=> $1) AS score
			FROM transcript_chunks
			WHERE video_id = $3
			ORDER BY embedding <=> $1, id
			LIMIT $2`, qvec, k, filter.VideoID)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT video_id, ordinal, content, 1 - (embedding <=> $1) AS score
			FROM transcript_chunks
			ORDER BY embedding <=> $1, id
			LIMIT $2`, qvec, k)
	}
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", wrapError(err))
	}
	defer rows.Close()

	var matches []index.Match
	for rows.Next() {
		var m index.Match
		if err := rows.Scan(&m.VideoID, &m.Ordinal, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search chunks: %w", wrapError(err))
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transcript_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", wrapError(err))
	}
	return n, nil
}

// Close closes the pool.
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// Name returns "postgres".
func (s *Store) Name() string { return "postgres" }

// wrapError reports wire failures as index.ErrBackendUnavailable. Errors the
// server answered with, and caller cancellation, pass through.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "22000" {
			return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", index.ErrBackendUnavailable, err)
}

// Wipe removes every chunk row and resets the id sequence.
func (s *Store) Wipe(ctx context.Context) error {
	s.logger.Warn("wiping all chunks", "table", "transcript_chunks")
	if _, err := s.pool.Exec(ctx, `TRUNCATE transcript_chunks RESTART IDENTITY`); err != nil {
		return fmt.Errorf("truncate transcript_chunks: %w", wrapError(err))
	}
	return nil
}
