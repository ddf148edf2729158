// Package worker executes synthesis jobs: it claims a pending job, resolves
// the speaker, calls the synthesis backend once and records the outcome.
// Jobs reach a Worker through a Pool in the same process or through NATS.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-orchestrator/internal/audio"
	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/observe"
	"github.com/book-expert/voice-orchestrator/internal/synthesis"
)

const defaultJobTimeout = 5 * time.Minute

// Log messages.
const (
	logJobClaimSkipped = "Skipping synthesis job %s: %v"
	logJobStarted      = "Synthesis job %s started (emotion %s, speaker %q)"
	logJobReady        = "Synthesis job %s ready: %d bytes of %s in %s"
	logJobFailed       = "Synthesis job %s failed: %s"
	logMarkFailedError = "Failed to record failure of synthesis job %s: %v"
	errFmtTimedOut     = "synthesis timed out after %s"
	errFmtStore        = "failed to store synthesized audio: %v"
)

// SpeakerResolver returns the voice to synthesize with.
type SpeakerResolver interface {
	Resolve(ctx context.Context, id string) (core.SpeakerProfile, error)
}

// Worker runs synthesis jobs. It is safe for concurrent use.
type Worker struct {
	store    core.JobStore
	synth    core.Synthesizer
	speakers SpeakerResolver
	timeout  time.Duration
	metrics  *observe.Metrics
	log      *logger.Logger

	mu       sync.Mutex
	inFlight map[string]time.Time
}

// New creates a Worker. Each job is bounded by timeout.
func New(
	store core.JobStore,
	synth core.Synthesizer,
	speakers SpeakerResolver,
	timeout time.Duration,
	metrics *observe.Metrics,
	log *logger.Logger,
) *Worker {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	return &Worker{
		store:    store,
		synth:    synth,
		speakers: speakers,
		timeout:  timeout,
		metrics:  metrics,
		log:      log,
		inFlight: make(map[string]time.Time),
	}
}

// Process executes one job. ctx must be the worker's lifecycle context, not
// the context of the request that submitted the job. Every claimed job
// ends in ready or failed, whatever happens to ctx.
func (w *Worker) Process(ctx context.Context, req core.SynthesisRequest) error {
	job, err := w.store.MarkProcessing(ctx, req.JobID)
	if err != nil {
		w.log.Warn(logJobClaimSkipped, req.JobID, err)

		return fmt.Errorf("failed to claim job %s: %w", req.JobID, err)
	}

	w.metrics.RecordTransition(ctx, core.StatusProcessing)
	w.track(job.ID)
	defer w.untrack(job.ID)

	w.log.Info(logJobStarted, job.ID, job.Emotion, job.SpeakerID)

	start := time.Now()
	storeCtx := context.WithoutCancel(ctx)

	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := w.synthesize(jobCtx, job)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf(errFmtTimedOut+": %w", w.timeout, err)
		}

		w.fail(storeCtx, job.ID, err.Error())

		return err
	}

	err = w.store.MarkReady(storeCtx, job.ID, result)
	if err != nil {
		w.fail(storeCtx, job.ID, fmt.Sprintf(errFmtStore, err))

		return fmt.Errorf("failed to mark job %s ready: %w", job.ID, err)
	}

	w.metrics.RecordTransition(ctx, core.StatusReady)
	w.log.Info(logJobReady, job.ID, len(result.Payload), result.ContentType, time.Since(start))

	return nil
}

// InFlight lists the ids of jobs currently being processed.
func (w *Worker) InFlight() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]string, 0, len(w.inFlight))
	for id := range w.inFlight {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func (w *Worker) synthesize(ctx context.Context, job core.SynthesisJob) (core.SynthesisResult, error) {
	profile, err := w.speakers.Resolve(ctx, job.SpeakerID)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to resolve speaker: %w", err)
	}

	params := synthesis.ParamsFor(job.Emotion).Request(job.Text, profile.Embedding)

	payload, err := w.synth.Synthesize(ctx, params)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	err = audio.Validate(payload)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	return core.SynthesisResult{
		Payload:     payload,
		ContentType: audio.ContentTypeOf(payload),
		SpeakerID:   profile.ID,
	}, nil
}

func (w *Worker) fail(ctx context.Context, id, reason string) {
	w.log.Error(logJobFailed, id, reason)

	err := w.store.MarkFailed(ctx, id, reason)
	if err != nil {
		w.log.Error(logMarkFailedError, id, err)

		return
	}

	w.metrics.RecordTransition(ctx, core.StatusFailed)
}

func (w *Worker) track(id string) {
	w.mu.Lock()
	w.inFlight[id] = time.Now()
	w.mu.Unlock()

	w.metrics.JobStarted(context.Background())
}

func (w *Worker) untrack(id string) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()

	w.metrics.JobFinished(context.Background())
}
