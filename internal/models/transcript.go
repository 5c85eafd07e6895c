package models

// Segment is one timed unit of caption text as returned by the source.
type Segment struct {
	Text     string  `json:"text"`
	Offset   float64 `json:"offset"`   // seconds from video start
	Duration float64 `json:"duration"` // seconds
}

// Transcript is a fully acquired video transcript.
// It is never returned partially filled.
type Transcript struct {
	VideoID  string    `json:"video_id"`
	Text     string    `json:"text"` // segments joined, whitespace collapsed
	Segments []Segment `json:"segments"`
	Duration float64   `json:"duration"` // offset of the last segment

	// Acquisition details
	Attempts int    `json:"attempts"`
	Strategy string `json:"strategy"`
	Language string `json:"language,omitempty"`
}

// SegmentCount returns the number of caption segments.
func (t *Transcript) SegmentCount() int {
	return len(t.Segments)
}
