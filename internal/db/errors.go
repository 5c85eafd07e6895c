package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/ytchat/internal/index"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// dimension the schema was created with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// wrapQueryError maps SurrealDB failures onto package sentinels.
// QueryErrors are answers from a live server and are returned as-is unless
// they report a vector dimension problem. Anything else failed on the wire
// and is reported as index.ErrBackendUnavailable.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "dimension") {
			return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
		}
		return err
	}

	// Cancellation belongs to the caller; the index decides what a deadline means.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %w", index.ErrBackendUnavailable, err)
}
