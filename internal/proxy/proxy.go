// Package proxy serves the outcome of synthesis jobs to pollers. It only
// reads the job store and never blocks waiting for a job to finish.
package proxy

import (
	"context"
	"fmt"

	"github.com/book-expert/voice-orchestrator/internal/audio"
	"github.com/book-expert/voice-orchestrator/internal/core"
)

// Audio is what a poll observes. Body is set only when Status is ready and
// Error only when Status is failed.
type Audio struct {
	JobID       string
	Status      core.JobStatus
	ContentType string
	Body        []byte
	Error       string
}

// Ready reports whether Body holds the synthesized audio.
func (a Audio) Ready() bool {
	return a.Status == core.StatusReady
}

// Err returns core.ErrJobFailed for a failed job and nil otherwise.
func (a Audio) Err() error {
	if a.Status != core.StatusFailed {
		return nil
	}

	return fmt.Errorf("%w: %s", core.ErrJobFailed, a.Error)
}

// Proxy reads synthesis results from a JobStore.
type Proxy struct {
	store core.JobStore
}

// New creates a Proxy over store.
func New(store core.JobStore) *Proxy {
	return &Proxy{store: store}
}

// FetchAudio returns the current state of a job. Pending and processing
// jobs are reported as processing; unknown ids yield core.ErrJobNotFound.
func (p *Proxy) FetchAudio(ctx context.Context, id string) (Audio, error) {
	job, err := p.store.Get(ctx, id)
	if err != nil {
		return Audio{}, err
	}

	switch job.Status {
	case core.StatusReady:
		contentType := job.ContentType
		if contentType == "" {
			contentType = audio.ContentTypeOf(job.Payload)
		}

		return Audio{
			JobID:       job.ID,
			Status:      core.StatusReady,
			ContentType: contentType,
			Body:        job.Payload,
		}, nil
	case core.StatusFailed:
		return Audio{JobID: job.ID, Status: core.StatusFailed, Error: job.Error}, nil
	default:
		return Audio{JobID: job.ID, Status: core.StatusProcessing}, nil
	}
}
