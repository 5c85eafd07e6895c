// Package parser splits transcript text into overlapping chunks for embedding.
package parser

import (
	"strings"
	"unicode"

	"github.com/raphaelgruber/ytchat/internal/models"
)

// ChunkTranscript splits text into windows of at most cfg.ChunkSize runes,
// each starting cfg.ChunkOverlap runes before the previous one ended.
//
// Every chunk is an exact rune range [Start, End) of text, so dropping the
// first prev.End-cur.Start runes of each subsequent chunk and concatenating
// reconstructs text. Ordinals are contiguous from zero.
func ChunkTranscript(videoID, text string, cfg models.ChunkingConfig) []models.Chunk {
	cfg = normalizeConfig(cfg)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= cfg.ChunkSize {
		return []models.Chunk{{
			VideoID: videoID,
			Ordinal: 0,
			Text:    text,
			Start:   0,
			End:     n,
		}}
	}

	var chunks []models.Chunk
	start, prevEnd := 0, 0
	for {
		end := start + cfg.ChunkSize
		if end >= n {
			end = n
		} else {
			end = breakPoint(runes, start, end, prevEnd)
		}

		chunks = append(chunks, models.Chunk{
			VideoID: videoID,
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		if end == n {
			break
		}
		prevEnd = end

		next := wordStart(runes, end-cfg.ChunkOverlap, end)
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

func normalizeConfig(cfg models.ChunkingConfig) models.ChunkingConfig {
	def := models.DefaultChunkingConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 2
	}
	return cfg
}

// breakPoint returns where the window [start, limit) should end.
// It prefers the last paragraph break, then sentence end, then whitespace
// in the back half of the window, and falls back to a hard cut at limit.
// The result is always past prevEnd, so each chunk adds new text.
func breakPoint(runes []rune, start, limit, prevEnd int) int {
	floor := max(start+(limit-start)/2, prevEnd+1)

	for i := limit - 2; i >= floor; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i
		}
	}

	for i := limit - 1; i >= floor; i-- {
		if isSentenceEnd(runes, i) {
			return i + 1
		}
	}

	for i := limit; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return limit
}

// isSentenceEnd reports whether runes[i] terminates a sentence.
func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return false
	}
	if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
		return false
	}
	// Skip initials like "J. R. R."
	if i > 0 && unicode.IsUpper(runes[i-1]) && (i == 1 || unicode.IsSpace(runes[i-2])) {
		return false
	}
	return true
}

// wordStart moves pos forward to the first rune that begins a word,
// without passing limit.
func wordStart(runes []rune, pos, limit int) int {
	if pos <= 0 {
		return 0
	}
	for pos < limit {
		if !unicode.IsSpace(runes[pos]) && unicode.IsSpace(runes[pos-1]) {
			return pos
		}
		pos++
	}
	return limit
}
