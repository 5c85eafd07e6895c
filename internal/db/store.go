package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/ytchat/internal/index"
)

// hnswEF is the candidate list size for kNN lookups.
const hnswEF = 40

// Store is an index.Store backed by SurrealDB.
type Store struct {
	client *Client
	dim    int
}

var _ index.Store = (*Store)(nil)

// Connect opens a client and ensures the schema exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return NewStore(client), nil
}

// NewStore wraps a connected client whose schema is initialized.
func NewStore(client *Client) *Store {
	return &Store{client: client, dim: client.cfg.Dimension}
}

type chunkRow struct {
	VideoID string  `json:"video_id"`
	Content string  `json:"content"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
}

// Add inserts records in a single statement.
func (s *Store) Add(ctx context.Context, records []index.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != s.dim {
			return fmt.Errorf("record %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(r.Vector), s.dim)
		}
		rows[i] = map[string]any{
			"video_id":  r.VideoID,
			"content":   r.Text,
			"ordinal":   r.Ordinal,
			"embedding": r.Vector,
		}
	}

	_, err := surrealdb.Query[any](ctx, s.client.db, "INSERT INTO transcript_chunk $rows", map[string]any{
		"rows": rows,
	})
	if err != nil {
		return fmt.Errorf("insert chunks: %w", wrapQueryError(err))
	}
	return nil
}

// Search runs an HNSW kNN lookup. A video filter switches to a scan of that
// video's chunks through the video_id index, because filtering after the
// kNN operator could drop matches that rank outside the global top k.
func (s *Store) Search(ctx context.Context, vec []float32, k int, filter index.Filter) ([]index.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	vars := map[string]any{"vec": vec, "k": k}
	var sql string
	if filter.VideoID != "" {
		vars["video"] = filter.VideoID
		sql = `
			SELECT video_id, content, ordinal,
				vector::similarity::cosine(embedding, $vec) AS score
			FROM transcript_chunk
			WHERE video_id = $video
			ORDER BY score DESC
			LIMIT $k`
	} else {
		sql = fmt.Sprintf(`
			SELECT video_id, content, ordinal,
				vector::similarity::cosine(embedding, $vec) AS score
			FROM transcript_chunk
			WHERE embedding <|%d,%d|> $vec
			ORDER BY score DESC
			LIMIT $k`, k, hnswEF)
	}

	results, err := surrealdb.Query[[]chunkRow](ctx, s.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	rows := (*results)[0].Result
	matches := make([]index.Match, len(rows))
	for i, r := range rows {
		matches[i] = index.Match{
			VideoID: r.VideoID,
			Ordinal: r.Ordinal,
			Text:    r.Content,
			Score:   r.Score,
		}
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct{ C int }](ctx, s.client.db,
		"SELECT count() AS c FROM transcript_chunk GROUP ALL", nil)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

// Close closes the underlying client.
func (s *Store) Close(ctx context.Context) error { return s.client.Close(ctx) }

// Name returns "surrealdb".
func (s *Store) Name() string { return "surrealdb" }

// Wipe deletes every stored chunk.
func (s *Store) Wipe(ctx context.Context) error { return s.client.WipeData(ctx) }
