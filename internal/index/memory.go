package index

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory and scans them on search.
// Equal scores keep insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add appends records.
func (s *MemoryStore) Add(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records = append(s.records, r)
	}
	return nil
}

// Search scores every record matching filter by cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, vec []float32, k int, filter Filter) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	matches := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		if !filter.Matches(r.VideoID) {
			continue
		}
		matches = append(matches, Match{
			VideoID: r.VideoID,
			Ordinal: r.Ordinal,
			Text:    r.Text,
			Score:   cosineSimilarity(vec, r.Vector),
		})
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Name returns "memory".
func (s *MemoryStore) Name() string { return "memory" }

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
