// Package jobstore persists synthesis jobs and enforces their state machine:
//
//	pending -> processing -> ready | failed
//	pending -> failed
//
// Two backends share the transition rules: Memory for single-process
// deployments and NATS, which keeps job records in a JetStream key-value
// bucket and payloads in an object store.
package jobstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

var (
	// ErrDuplicateJob indicates a Create for an id that is already stored.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrTooManyConflicts indicates that a compare-and-set kept losing races.
	ErrTooManyConflicts = errors.New("too many concurrent job updates")
)

// Error messages.
const (
	errFmtClaim      = "%w: job %s is %s"
	errFmtTransition = "%w: job %s from %s to %s"
	defaultFailure   = "synthesis failed"
)

// prepareNew validates a job handed to Create and stamps its timestamps.
func prepareNew(job *core.SynthesisJob, now time.Time) error {
	if strings.TrimSpace(job.ID) == "" {
		return core.Invalid("job id cannot be empty")
	}

	if job.Status == "" {
		job.Status = core.StatusPending
	}

	if job.Status != core.StatusPending {
		return fmt.Errorf(errFmtTransition, core.ErrInvalidTransition, job.ID, "new", job.Status)
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now
	job.Payload = nil
	job.Error = ""

	return nil
}

// claim moves a pending job to processing.
func claim(job *core.SynthesisJob, now time.Time) error {
	if job.Status != core.StatusPending {
		return fmt.Errorf(errFmtClaim, core.ErrJobClaimed, job.ID, job.Status)
	}

	job.Status = core.StatusProcessing
	job.UpdatedAt = now

	return nil
}

// complete moves a processing job to ready with its payload.
func complete(job *core.SynthesisJob, result core.SynthesisResult, now time.Time) error {
	if job.Status != core.StatusProcessing {
		return fmt.Errorf(errFmtTransition, core.ErrInvalidTransition, job.ID, job.Status, core.StatusReady)
	}

	if len(result.Payload) == 0 {
		return core.Invalid("job %s: ready without payload", job.ID)
	}

	job.Status = core.StatusReady
	job.Payload = result.Payload
	job.ContentType = result.ContentType
	job.Error = ""
	job.UpdatedAt = now

	if result.SpeakerID != "" {
		job.SpeakerID = result.SpeakerID
	}

	return nil
}

// fail moves a non-terminal job to failed.
func fail(job *core.SynthesisJob, reason string, now time.Time) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf(errFmtTransition, core.ErrInvalidTransition, job.ID, job.Status, core.StatusFailed)
	}

	if strings.TrimSpace(reason) == "" {
		reason = defaultFailure
	}

	job.Status = core.StatusFailed
	job.Error = reason
	job.Payload = nil
	job.UpdatedAt = now

	return nil
}

// expired reports whether a terminal job has outlived the retention window.
func expired(job core.SynthesisJob, now time.Time, retention time.Duration) bool {
	return retention > 0 && job.Status.IsTerminal() && now.Sub(job.UpdatedAt) > retention
}
