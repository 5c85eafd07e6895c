// Package index embeds transcript chunks and serves similarity search over a
// pluggable vector store, falling back to memory when the durable backend
// cannot be reached.
package index

import (
	"context"
	"errors"
)

// ErrBackendUnavailable indicates the vector backend cannot be reached.
// Callers surface it as a retryable service outage.
var ErrBackendUnavailable = errors.New("vector backend unavailable")

// Record is one embedded chunk owned by the index.
type Record struct {
	VideoID string
	Ordinal int
	Text    string
	Vector  []float32
}

// Match is a search hit. Score is cosine similarity, higher is closer.
type Match struct {
	VideoID string  `json:"video_id"`
	Ordinal int     `json:"ordinal"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// Filter narrows a search. The zero value matches everything.
type Filter struct {
	VideoID string
}

// Matches reports whether a record with videoID passes the filter.
func (f Filter) Matches(videoID string) bool {
	return f.VideoID == "" || f.VideoID == videoID
}

// Store is a vector store backend.
type Store interface {
	// Add persists records. Implementations may store a prefix on error.
	Add(ctx context.Context, records []Record) error

	// Search returns up to k records closest to vec, best first.
	Search(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close(ctx context.Context) error

	// Name identifies the backend in logs and health output.
	Name() string
}
