package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const maxUpdateAttempts = 8

var _ core.JobStore = (*NATS)(nil)

// NATS is a JobStore backed by a JetStream key-value bucket. Job records are
// JSON values keyed by job id and every transition is a revision-checked
// update, so concurrent workers on different hosts cannot both claim a job.
// Payloads are kept in a separate object store under the same key.
type NATS struct {
	kv     nats.KeyValue
	audio  core.ObjectStore
	bucket string
	now    func() time.Time
}

// NewNATS binds to the job bucket, creating it when missing. Entries older
// than ttl are expired by the server; the audio store should use the same ttl.
func NewNATS(jetstreamContext nats.JetStreamContext, bucket string, ttl time.Duration, audio core.ObjectStore) (*NATS, error) {
	kv, err := jetstreamContext.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "Synthesis job records.",
			History:     1,
			TTL:         ttl,
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to bind job bucket '%s': %w", bucket, err)
	}

	return &NATS{
		kv:     kv,
		audio:  audio,
		bucket: bucket,
		now:    time.Now,
	}, nil
}

// Create stores a new pending job.
func (n *NATS) Create(_ context.Context, job core.SynthesisJob) error {
	err := prepareNew(&job, n.now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	_, err = n.kv.Create(job.ID, data)
	if err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
		}

		return fmt.Errorf("failed to store job %s in bucket '%s': %w", job.ID, n.bucket, err)
	}

	return nil
}

// MarkProcessing claims a pending job. Losing the compare-and-set to another
// worker yields core.ErrJobClaimed.
func (n *NATS) MarkProcessing(_ context.Context, id string) (core.SynthesisJob, error) {
	return n.update(id, func(job *core.SynthesisJob, now time.Time) error {
		return claim(job, now)
	})
}

// MarkReady uploads the payload and then flips the record to ready. The
// upload is removed again when the transition is refused.
func (n *NATS) MarkReady(ctx context.Context, id string, result core.SynthesisResult) error {
	current, err := n.Get(ctx, id)
	if err != nil {
		return err
	}

	if current.Status != core.StatusProcessing {
		return fmt.Errorf(errFmtTransition, core.ErrInvalidTransition, id, current.Status, core.StatusReady)
	}

	if len(result.Payload) == 0 {
		return core.Invalid("job %s: ready without payload", id)
	}

	err = n.audio.Upload(ctx, id, result.Payload)
	if err != nil {
		return fmt.Errorf("failed to store payload of job %s: %w", id, err)
	}

	_, err = n.update(id, func(job *core.SynthesisJob, now time.Time) error {
		return complete(job, result, now)
	})
	if err != nil {
		_ = n.audio.Delete(ctx, id)

		return err
	}

	return nil
}

// MarkFailed records why a non-terminal job failed.
func (n *NATS) MarkFailed(_ context.Context, id string, reason string) error {
	_, err := n.update(id, func(job *core.SynthesisJob, now time.Time) error {
		return fail(job, reason, now)
	})

	return err
}

// Get returns the job; ready jobs carry their payload.
func (n *NATS) Get(ctx context.Context, id string) (core.SynthesisJob, error) {
	job, _, err := n.load(id)
	if err != nil {
		return core.SynthesisJob{}, err
	}

	if job.Status != core.StatusReady {
		return job, nil
	}

	payload, err := n.audio.Download(ctx, id)
	if err != nil {
		return core.SynthesisJob{}, fmt.Errorf("failed to load payload of job %s: %w", id, err)
	}

	job.Payload = payload

	return job, nil
}

func (n *NATS) load(id string) (core.SynthesisJob, uint64, error) {
	entry, err := n.kv.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrInvalidKey) {
			return core.SynthesisJob{}, 0, fmt.Errorf(errFmtJobUnknown, core.ErrJobNotFound, id)
		}

		return core.SynthesisJob{}, 0, fmt.Errorf("failed to read job %s from bucket '%s': %w", id, n.bucket, err)
	}

	var job core.SynthesisJob

	err = json.Unmarshal(entry.Value(), &job)
	if err != nil {
		return core.SynthesisJob{}, 0, fmt.Errorf("failed to decode job %s: %w", id, err)
	}

	return job, entry.Revision(), nil
}

// update applies a transition with optimistic concurrency, re-reading the
// record whenever another writer got there first.
func (n *NATS) update(id string, apply func(*core.SynthesisJob, time.Time) error) (core.SynthesisJob, error) {
	for range maxUpdateAttempts {
		job, revision, err := n.load(id)
		if err != nil {
			return core.SynthesisJob{}, err
		}

		err = apply(&job, n.now())
		if err != nil {
			return core.SynthesisJob{}, err
		}

		data, err := json.Marshal(job)
		if err != nil {
			return core.SynthesisJob{}, fmt.Errorf("failed to encode job %s: %w", id, err)
		}

		_, err = n.kv.Update(id, data, revision)
		if err == nil {
			return job, nil
		}

		if !errors.Is(err, nats.ErrKeyExists) {
			return core.SynthesisJob{}, fmt.Errorf("failed to update job %s in bucket '%s': %w", id, n.bucket, err)
		}
	}

	return core.SynthesisJob{}, fmt.Errorf("%w: %s", ErrTooManyConflicts, id)
}
