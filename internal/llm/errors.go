package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFatalAPI marks provider errors that retrying cannot fix
	// (credentials, billing, quota).
	ErrFatalAPI = errors.New("fatal LLM API error")

	// ErrNoChoices is returned when the provider answers with no choices.
	ErrNoChoices = errors.New("no response choices")
)

// fatalMarkers are substrings providers use in non-retryable errors.
// Provider SDKs do not expose typed errors uniformly, so we match text here.
var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"api key not valid",
	"authentication",
	"unauthorized",
	"permission denied",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
