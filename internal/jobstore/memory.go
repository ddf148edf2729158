package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

// Log messages.
const (
	logSwept         = "Job store sweep evicted %d expired jobs, %d remain"
	logSweeperStart  = "Job store sweeper started (retention %s, every %s)"
	logSweeperStop   = "Job store sweeper stopped"
	errFmtJobUnknown = "%w: %s"
)

var _ core.JobStore = (*Memory)(nil)

// Memory is an in-process JobStore. Readers never block each other; each
// transition is a compare-and-set under the write lock. Payload slices are
// shared with callers and must be treated as read-only.
type Memory struct {
	mu        sync.RWMutex
	jobs      map[string]core.SynthesisJob
	retention time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewMemory creates an empty store. Terminal jobs older than retention are
// evicted by Sweep.
func NewMemory(retention time.Duration, log *logger.Logger) *Memory {
	return &Memory{
		jobs:      make(map[string]core.SynthesisJob),
		retention: retention,
		now:       time.Now,
		log:       log,
	}
}

// Create stores a new pending job.
func (m *Memory) Create(_ context.Context, job core.SynthesisJob) error {
	err := prepareNew(&job, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	m.jobs[job.ID] = job

	return nil
}

// MarkProcessing claims a pending job for a worker.
func (m *Memory) MarkProcessing(_ context.Context, id string) (core.SynthesisJob, error) {
	return m.update(id, func(job *core.SynthesisJob, now time.Time) error {
		return claim(job, now)
	})
}

// MarkReady stores the payload of a processing job.
func (m *Memory) MarkReady(_ context.Context, id string, result core.SynthesisResult) error {
	_, err := m.update(id, func(job *core.SynthesisJob, now time.Time) error {
		return complete(job, result, now)
	})

	return err
}

// MarkFailed records why a non-terminal job failed.
func (m *Memory) MarkFailed(_ context.Context, id string, reason string) error {
	_, err := m.update(id, func(job *core.SynthesisJob, now time.Time) error {
		return fail(job, reason, now)
	})

	return err
}

// Get returns a snapshot of the job.
func (m *Memory) Get(_ context.Context, id string) (core.SynthesisJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return core.SynthesisJob{}, fmt.Errorf(errFmtJobUnknown, core.ErrJobNotFound, id)
	}

	return job, nil
}

// Len returns the number of stored jobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.jobs)
}

// Sweep evicts terminal jobs whose last update is older than the retention
// window and returns how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0

	for id, job := range m.jobs {
		if expired(job, now, m.retention) {
			delete(m.jobs, id)

			evicted++
		}
	}

	return evicted
}

// Run sweeps every interval until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	if m.retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.System(logSweeperStart, m.retention, interval)

	for {
		select {
		case <-ctx.Done():
			m.log.System(logSweeperStop)

			return
		case now := <-ticker.C:
			if evicted := m.Sweep(now); evicted > 0 {
				m.log.Info(logSwept, evicted, m.Len())
			}
		}
	}
}

func (m *Memory) update(id string, apply func(*core.SynthesisJob, time.Time) error) (core.SynthesisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return core.SynthesisJob{}, fmt.Errorf(errFmtJobUnknown, core.ErrJobNotFound, id)
	}

	err := apply(&job, m.now())
	if err != nil {
		return core.SynthesisJob{}, err
	}

	m.jobs[id] = job

	return job, nil
}
