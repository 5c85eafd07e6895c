package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/raphaelgruber/ytchat/internal/models"
)

// reconstruct joins chunks, dropping the overlap each chunk shares with its predecessor.
func reconstruct(chunks []models.Chunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i == 0 {
			sb.WriteString(c.Text)
			continue
		}
		overlap := chunks[i-1].End - c.Start
		sb.WriteString(string([]rune(c.Text)[overlap:]))
	}
	return sb.String()
}

func transcriptText(sentences int) string {
	var sb strings.Builder
	for i := range sentences {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "This is sentence number %d about gradient descent and learning rates.", i)
	}
	return sb.String()
}

func TestChunkTranscript_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		if chunks := ChunkTranscript("vid", text, models.DefaultChunkingConfig()); len(chunks) != 0 {
			t.Errorf("ChunkTranscript(%q) got %d chunks, want 0", text, len(chunks))
		}
	}
}

func TestChunkTranscript_ShortTextSingleChunk(t *testing.T) {
	text := "short transcript"
	chunks := ChunkTranscript("vid", text, models.DefaultChunkingConfig())

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Text != text || c.Ordinal != 0 || c.Start != 0 || c.End != len(text) || c.VideoID != "vid" {
		t.Errorf("unexpected chunk: %+v", c)
	}
}

func TestChunkTranscript_Reconstruction(t *testing.T) {
	tests := []struct {
		name string
		text string
		cfg  models.ChunkingConfig
	}{
		{
			name: "default config",
			text: transcriptText(120),
			cfg:  models.DefaultChunkingConfig(),
		},
		{
			name: "small windows",
			text: transcriptText(30),
			cfg:  models.ChunkingConfig{ChunkSize: 90, ChunkOverlap: 20},
		},
		{
			name: "no whitespace forces hard cuts",
			text: strings.Repeat("abcdefghij", 50),
			cfg:  models.ChunkingConfig{ChunkSize: 64, ChunkOverlap: 16},
		},
		{
			name: "multibyte runes",
			text: strings.Repeat("über straße café naïve ", 80),
			cfg:  models.ChunkingConfig{ChunkSize: 100, ChunkOverlap: 30},
		},
		{
			name: "paragraphs",
			text: strings.Repeat("First paragraph line.\n\nSecond paragraph goes on a bit longer. ", 20),
			cfg:  models.ChunkingConfig{ChunkSize: 120, ChunkOverlap: 25},
		},
		{
			name: "overlap larger than window",
			text: transcriptText(10),
			cfg:  models.ChunkingConfig{ChunkSize: 50, ChunkOverlap: 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkTranscript("vid", tt.text, tt.cfg)
			if len(chunks) < 2 {
				t.Fatalf("expected multiple chunks, got %d", len(chunks))
			}

			if got := reconstruct(chunks); got != tt.text {
				t.Errorf("reconstruction mismatch:\n got: %q\nwant: %q", got, tt.text)
			}

			runes := []rune(tt.text)
			for i, c := range chunks {
				if c.Ordinal != i {
					t.Errorf("chunk[%d].Ordinal = %d", i, c.Ordinal)
				}
				if c.VideoID != "vid" {
					t.Errorf("chunk[%d].VideoID = %q", i, c.VideoID)
				}
				if n := utf8.RuneCountInString(c.Text); n > tt.cfg.ChunkSize {
					t.Errorf("chunk[%d] has %d runes, limit %d", i, n, tt.cfg.ChunkSize)
				}
				if c.Text != string(runes[c.Start:c.End]) {
					t.Errorf("chunk[%d] text does not match range [%d,%d)", i, c.Start, c.End)
				}
				if i > 0 && (c.Start > chunks[i-1].End || c.Start <= chunks[i-1].Start) {
					t.Errorf("chunk[%d] start %d not within previous [%d,%d]", i, c.Start, chunks[i-1].Start, chunks[i-1].End)
				}
			}
			if last := chunks[len(chunks)-1]; last.End != len(runes) {
				t.Errorf("last chunk ends at %d, want %d", last.End, len(runes))
			}
		})
	}
}

func TestChunkTranscript_PrefersSentenceBoundary(t *testing.T) {
	text := transcriptText(40)
	chunks := ChunkTranscript("vid", text, models.DefaultChunkingConfig())

	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("chunk[%d] does not end at a sentence: %q", i, c.Text[len(c.Text)-20:])
		}
	}
	for i, c := range chunks[1:] {
		if strings.HasPrefix(c.Text, " ") {
			t.Errorf("chunk[%d] starts mid-whitespace", i+1)
		}
	}
}

func TestChunkTranscript_OverlapWithinBounds(t *testing.T) {
	cfg := models.ChunkingConfig{ChunkSize: 200, ChunkOverlap: 50}
	chunks := ChunkTranscript("vid", transcriptText(50), cfg)

	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].End - chunks[i].Start
		if overlap < 0 || overlap > cfg.ChunkOverlap {
			t.Errorf("chunk[%d] overlap %d outside [0,%d]", i, overlap, cfg.ChunkOverlap)
		}
	}
}

func TestChunkTranscript_Deterministic(t *testing.T) {
	text := transcriptText(60)
	a := ChunkTranscript("vid", text, models.DefaultChunkingConfig())
	b := ChunkTranscript("vid", text, models.DefaultChunkingConfig())

	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk[%d] differs", i)
		}
	}
}

func TestChunkTranscript_LargeOverlapAlwaysAdvances(t *testing.T) {
	paragraphThenFiller := strings.Repeat("word ", 140) + "\n\n" + transcriptText(30)

	tests := []struct {
		name string
		text string
		cfg  models.ChunkingConfig
	}{
		{"paragraph break inside overlap", paragraphThenFiller, models.ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 600}},
		{"tiny windows", transcriptText(40), models.ChunkingConfig{ChunkSize: 19, ChunkOverlap: 10}},
		{"overlap just below size", transcriptText(20), models.ChunkingConfig{ChunkSize: 30, ChunkOverlap: 29}},
		{"paragraphs with wide overlap", strings.Repeat("Short one.\n\nAnother short paragraph here. ", 30), models.ChunkingConfig{ChunkSize: 60, ChunkOverlap: 45}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkTranscript("vid", tt.text, tt.cfg)
			if len(chunks) < 2 {
				t.Fatalf("expected multiple chunks, got %d", len(chunks))
			}
			for i := 1; i < len(chunks); i++ {
				prev, cur := chunks[i-1], chunks[i]
				if cur.End <= prev.End {
					t.Fatalf("chunk[%d] [%d,%d) adds nothing past chunk[%d] [%d,%d)", i, cur.Start, cur.End, i-1, prev.Start, prev.End)
				}
				if overlap := prev.End - cur.Start; overlap >= cur.End-cur.Start {
					t.Fatalf("chunk[%d] overlap %d not shorter than chunk length %d", i, overlap, cur.End-cur.Start)
				}
			}
			if got := reconstruct(chunks); got != tt.text {
				t.Errorf("reconstruction mismatch:\n got: %q\nwant: %q", got, tt.text)
			}
		})
	}
}
