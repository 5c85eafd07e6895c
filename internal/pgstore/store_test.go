package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/ytchat/internal/index"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnavailable bool
		wantDimension   bool
	}{
		{name: "dial failure", err: errors.New("failed to connect: dial tcp 127.0.0.1:5432"), wantUnavailable: true},
		{name: "server error", err: &pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`}},
		{name: "dimension", err: &pgconn.PgError{Code: "22000", Message: "expected 768 dimensions, not 3"}, wantDimension: true},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapError(tt.err)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.wantUnavailable, errors.Is(got, index.ErrBackendUnavailable))
			assert.Equal(t, tt.wantDimension, errors.Is(got, ErrDimensionMismatch))
		})
	}
}

func TestSchemaSQL(t *testing.T) {
	stmts := schemaSQL(384)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "CREATE EXTENSION IF NOT EXISTS vector")
	assert.Contains(t, stmts[1], "vector(384)")
	assert.True(t, strings.Contains(stmts[3], "vector_cosine_ops"))
}

func TestConnect_Validation(t *testing.T) {
	_, err := Connect(context.Background(), Config{Dimension: 3}, nil)
	require.Error(t, err)

	_, err = Connect(context.Background(), Config{URL: "postgres://localhost/db"}, nil)
	require.Error(t, err)
}
