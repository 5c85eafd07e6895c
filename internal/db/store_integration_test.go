//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/ytchat/internal/index"
)

const testDim = 4

var testStore *Store

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start surrealdb container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testStore, err = Connect(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
		Dimension: testDim,
	}, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func reset(t *testing.T) {
	t.Helper()
	require.NoError(t, testStore.client.WipeData(context.Background()))
}

func TestStore_AddAndSearch(t *testing.T) {
	reset(t)
	ctx := context.Background()

	require.NoError(t, testStore.Add(ctx, []index.Record{
		{VideoID: "a", Ordinal: 0, Text: "exact", Vector: []float32{1, 0, 0, 0}},
		{VideoID: "a", Ordinal: 1, Text: "near", Vector: []float32{1, 0.2, 0, 0}},
		{VideoID: "b", Ordinal: 0, Text: "far", Vector: []float32{0, 0, 1, 0}},
	}))

	n, err := testStore.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := testStore.Search(ctx, []float32{1, 0, 0, 0}, 2, index.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].Text)
	assert.Equal(t, "near", matches[1].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestStore_FilterByVideo(t *testing.T) {
	reset(t)
	ctx := context.Background()

	require.NoError(t, testStore.Add(ctx, []index.Record{
		{VideoID: "a", Ordinal: 0, Text: "a0", Vector: []float32{1, 0, 0, 0}},
		{VideoID: "b", Ordinal: 0, Text: "b0", Vector: []float32{0, 1, 0, 0}},
		{VideoID: "b", Ordinal: 1, Text: "b1", Vector: []float32{0, 1, 1, 0}},
	}))

	matches, err := testStore.Search(ctx, []float32{1, 0, 0, 0}, 10, index.Filter{VideoID: "b"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "b", m.VideoID)
	}
}

func TestStore_RejectsWrongDimension(t *testing.T) {
	err := testStore.Add(context.Background(), []index.Record{
		{VideoID: "a", Text: "x", Vector: []float32{1, 2}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
