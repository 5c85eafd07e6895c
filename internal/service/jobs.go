package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a background ingestion.
type Job struct {
	ID          string
	URL         string
	Status      JobStatus
	Result      *IngestResult
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu sync.RWMutex
}

// JobSnapshot is a point-in-time copy of a job, safe to serialize.
type JobSnapshot struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Status      JobStatus     `json:"status"`
	Result      *IngestResult `json:"result,omitempty"`
	IndexError  string        `json:"index_error,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	snap := JobSnapshot{
		ID:          j.ID,
		URL:         j.URL,
		Status:      j.Status,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Result != nil {
		snap.IndexError = j.Result.IndexError()
	}
	return snap
}

// Ingester runs one ingestion.
type Ingester interface {
	Ingest(ctx context.Context, rawURL string) (*IngestResult, error)
}

// JobManager runs ingestions in the background and tracks their outcome.
// Jobs live in memory for the process lifetime.
type JobManager struct {
	ingester Ingester
	ctx      context.Context
	sem      chan struct{}
	logger   *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewJobManager creates a job manager running at most concurrency jobs at
// once. Jobs run under ctx, so cancelling it aborts them.
func NewJobManager(ctx context.Context, ingester Ingester, concurrency int, logger *slog.Logger) *JobManager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		ingester: ingester,
		ctx:      ctx,
		sem:      make(chan struct{}, concurrency),
		logger:   logger,
		jobs:     make(map[string]*Job),
	}
}

// Submit queues an ingestion of rawURL and returns immediately.
func (m *JobManager) Submit(rawURL string) *Job {
	job := &Job{
		ID:        uuid.New().String()[:8],
		URL:       rawURL,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", job.ID, "url", rawURL)

	m.wg.Add(1)
	go m.run(job)
	return job
}

func (m *JobManager) run(job *Job) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
			m.fail(job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-m.ctx.Done():
		m.fail(job, m.ctx.Err())
		return
	}

	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()

	result, err := m.ingester.Ingest(m.ctx, job.URL)
	if err != nil {
		m.fail(job, err)
		return
	}
	m.complete(job, result)
}

func (m *JobManager) complete(job *Job, result *IngestResult) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.logger.Info("job completed", "job_id", job.ID, "video_id", result.VideoID, "indexed", result.Indexed)
}

func (m *JobManager) fail(job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.logger.Error("job failed", "job_id", job.ID, "error", err)
}

// Get retrieves a job by ID, or nil.
func (m *JobManager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// List returns all jobs, most recent first.
func (m *JobManager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// Wait blocks until every submitted job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}
