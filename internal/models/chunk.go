package models

// Chunk is an overlapping slice of a video's transcript text.
// Start and End are rune offsets into Transcript.Text; Text is exactly
// that range, so adjacent chunks overlap by prev.End - cur.Start runes.
type Chunk struct {
	VideoID string `json:"video_id"`
	Ordinal int    `json:"ordinal"` // 0-based, contiguous per video
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// ChunkingConfig defines parameters for transcript chunking.
type ChunkingConfig struct {
	// ChunkSize is the target window size in runes.
	ChunkSize int

	// ChunkOverlap is the number of runes shared by adjacent chunks.
	ChunkOverlap int
}

// DefaultChunkingConfig returns the default chunking configuration.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}
