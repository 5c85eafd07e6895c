// Package service holds the ingestion pipeline and the operations built on
// top of the embedding index.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/models"
	"github.com/raphaelgruber/ytchat/internal/parser"
	"github.com/raphaelgruber/ytchat/internal/youtube"
)

// ErrInvalidURL is returned when no video id can be resolved from the
// ingestion URL.
var ErrInvalidURL = youtube.ErrInvalidURL

// Acquirer fetches a complete transcript for a video.
type Acquirer interface {
	Acquire(ctx context.Context, videoID string) (*models.Transcript, error)
}

// Indexer stores chunks for similarity search.
type Indexer interface {
	Add(ctx context.Context, videoID string, chunks []models.Chunk) (int, error)
}

// IngestResult summarizes one ingestion. Transcript is always set; an
// indexing failure is reported through IndexErr with Indexed false.
type IngestResult struct {
	VideoID      string             `json:"video_id"`
	Transcript   *models.Transcript `json:"-"`
	Chunks       int                `json:"chunks"`
	ChunksStored int                `json:"chunks_stored"`
	Indexed      bool               `json:"indexed"`
	IndexErr     error              `json:"-"`
	Duration     time.Duration      `json:"duration"`
}

// IndexError returns the indexing error message, or "".
func (r *IngestResult) IndexError() string {
	if r.IndexErr == nil {
		return ""
	}
	return r.IndexErr.Error()
}

// IngestService resolves, acquires, chunks and indexes videos.
type IngestService struct {
	acquirer Acquirer
	index    Indexer
	chunking models.ChunkingConfig
	metrics  *metrics.Collector
	logger   *slog.Logger
	group    singleflight.Group
}

// NewIngestService creates a new ingest service.
func NewIngestService(acquirer Acquirer, index Indexer, chunking models.ChunkingConfig, collector *metrics.Collector, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		acquirer: acquirer,
		index:    index,
		chunking: chunking,
		metrics:  collector,
		logger:   logger,
	}
}

// Ingest runs the pipeline for rawURL. Acquisition failures are returned as
// the acquirer's error and leave the index untouched. Concurrent calls for
// the same video share one run.
func (s *IngestService) Ingest(ctx context.Context, rawURL string) (*IngestResult, error) {
	videoID, ok := youtube.ResolveVideoID(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	v, err, shared := s.group.Do(videoID, func() (any, error) {
		return s.ingest(ctx, videoID)
	})
	if shared {
		s.logger.Debug("joined in-flight ingestion", "video_id", videoID)
	}
	if err != nil {
		return nil, err
	}
	return v.(*IngestResult), nil
}

func (s *IngestService) ingest(ctx context.Context, videoID string) (*IngestResult, error) {
	start := time.Now()
	s.logger.Info("ingesting video", "video_id", videoID)

	fetchStart := time.Now()
	tr, err := s.acquirer.Acquire(ctx, videoID)
	s.metrics.RecordResult(metrics.OpTranscriptFetch, time.Since(fetchStart), err)
	if err != nil {
		s.metrics.RecordResult(metrics.OpIngest, time.Since(start), err)
		s.logger.Warn("transcript acquisition failed", "video_id", videoID, "error", err)
		return nil, err
	}

	chunks := parser.ChunkTranscript(videoID, tr.Text, s.chunking)
	result := &IngestResult{
		VideoID:    videoID,
		Transcript: tr,
		Chunks:     len(chunks),
	}

	stored, err := s.index.Add(ctx, videoID, chunks)
	result.ChunksStored = stored
	if err != nil {
		result.IndexErr = err
		s.logger.Error("indexing failed",
			"video_id", videoID,
			"chunks", len(chunks),
			"stored", stored,
			"error", err,
		)
	} else {
		result.Indexed = true
	}
	result.Duration = time.Since(start)

	s.metrics.RecordResult(metrics.OpIngest, result.Duration, err)
	s.logger.Info("video ingested",
		"video_id", videoID,
		"attempts", tr.Attempts,
		"strategy", tr.Strategy,
		"chunks", len(chunks),
		"indexed", result.Indexed,
		"duration", result.Duration,
	)
	return result, nil
}

