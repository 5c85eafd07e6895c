package llm

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Keys providers use for token counts in GenerationInfo.
var (
	inputTokenKeys  = []string{"PromptTokens", "InputTokens", "input_tokens", "prompt_tokens"}
	outputTokenKeys = []string{"CompletionTokens", "OutputTokens", "output_tokens", "completion_tokens"}
)

// reportedUsage extracts provider token counts, if present.
func reportedUsage(info map[string]any) (in, out int64, ok bool) {
	in, okIn := lookupInt(info, inputTokenKeys)
	out, okOut := lookupInt(info, outputTokenKeys)
	return in, out, okIn || okOut
}

func lookupInt(info map[string]any, keys []string) (int64, bool) {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v), true
		case int32:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), true
		}
	}
	return 0, false
}

// tokenCounter estimates token counts with the cl100k_base encoding.
// The encoding is loaded once; if it cannot be loaded the count falls back
// to one token per four runes.
type tokenCounter struct {
	load func() (*tiktoken.Tiktoken, error)

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

var defaultTokenCounter = &tokenCounter{
	load: func() (*tiktoken.Tiktoken, error) { return tiktoken.GetEncoding("cl100k_base") },
}

// Count returns the estimated number of tokens in text.
func (c *tokenCounter) Count(text string) int64 {
	if text == "" {
		return 0
	}
	_ = c.init()
	if c.enc != nil {
		return int64(len(c.enc.Encode(text, nil, nil)))
	}
	return int64((utf8.RuneCountInString(text) + 3) / 4)
}

func (c *tokenCounter) init() error {
	c.once.Do(func() {
		c.enc, c.err = c.load()
	})
	return c.err
}

// WarmTokenizer loads the token estimation encoding. The first load may
// download the BPE file (cached under TIKTOKEN_CACHE_DIR when set), so
// call it at startup. After a failed load, estimates use the rune heuristic.
func WarmTokenizer() error {
	if err := defaultTokenCounter.init(); err != nil {
		return fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return nil
}
