package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingesterFunc func(ctx context.Context, rawURL string) (*IngestResult, error)

func (f ingesterFunc) Ingest(ctx context.Context, rawURL string) (*IngestResult, error) {
	return f(ctx, rawURL)
}

func TestJobManager_CompletesAndFails(t *testing.T) {
	ing := ingesterFunc(func(ctx context.Context, rawURL string) (*IngestResult, error) {
		if rawURL == "bad" {
			return nil, errors.New("captions disabled")
		}
		return &IngestResult{VideoID: "vid", Chunks: 2, ChunksStored: 2, Indexed: true}, nil
	})
	m := NewJobManager(context.Background(), ing, 2, nil)

	good := m.Submit("https://youtu.be/vid")
	bad := m.Submit("bad")
	m.Wait()

	assert.Len(t, good.ID, 8)

	gs := m.Get(good.ID).Snapshot()
	assert.Equal(t, JobStatusCompleted, gs.Status)
	require.NotNil(t, gs.Result)
	assert.Equal(t, "vid", gs.Result.VideoID)
	assert.NotNil(t, gs.CompletedAt)

	bs := m.Get(bad.ID).Snapshot()
	assert.Equal(t, JobStatusFailed, bs.Status)
	assert.Equal(t, "captions disabled", bs.Error)

	assert.Len(t, m.List(), 2)
	assert.Nil(t, m.Get("missing"))
}

func TestJobManager_RecoversPanics(t *testing.T) {
	ing := ingesterFunc(func(ctx context.Context, rawURL string) (*IngestResult, error) {
		panic("kaboom")
	})
	m := NewJobManager(context.Background(), ing, 1, nil)

	job := m.Submit("https://youtu.be/x")
	m.Wait()

	snap := job.Snapshot()
	assert.Equal(t, JobStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "kaboom")
}

func TestJobManager_CancelledContextFailsQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ing := ingesterFunc(func(ctx context.Context, rawURL string) (*IngestResult, error) {
		return nil, ctx.Err()
	})
	m := NewJobManager(ctx, ing, 1, nil)

	job := m.Submit("https://youtu.be/x")
	m.Wait()

	assert.Equal(t, JobStatusFailed, job.Snapshot().Status)
}

func TestJobSnapshot_IndexError(t *testing.T) {
	job := &Job{ID: "j", Status: JobStatusCompleted, Result: &IngestResult{IndexErr: errors.New("backend down")}}
	assert.Equal(t, "backend down", job.Snapshot().IndexError)
}
