// Package synthesis accepts speech synthesis requests, records them as
// pending jobs and hands them to a dispatcher. It never waits for audio.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/observe"
	"github.com/book-expert/voice-orchestrator/internal/textprep"
)

// ErrDispatch indicates that a job was stored but no worker could be reached.
// The job has been marked failed.
var ErrDispatch = errors.New("synthesis dispatch failed")

// Log messages.
const (
	logUnknownEmotion = "Unknown synthesis emotion %q, using %s"
	logSubmitted      = "Synthesis job %s submitted (emotion %s, speaker %q)"
	logDispatchFailed = "Failed to dispatch synthesis job %s: %v"
	logMarkFailed     = "Failed to mark undispatched job %s as failed: %v"
)

// Service is the entry point for asynchronous synthesis.
type Service struct {
	store      core.JobStore
	dispatcher core.Dispatcher
	prep       *textprep.Preprocessor
	metrics    *observe.Metrics
	log        *logger.Logger
}

// NewService wires a Service.
func NewService(
	store core.JobStore,
	dispatcher core.Dispatcher,
	metrics *observe.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		prep:       textprep.NewPreprocessor(),
		metrics:    metrics,
		log:        log,
	}
}

// Submit stores a pending job for text and dispatches it. The text is
// cleaned for speech first and must not be empty afterwards; an unknown
// emotion falls back to neutral.
func (s *Service) Submit(ctx context.Context, text, emotion, speakerID string) (core.SynthesisJob, error) {
	speakable := s.prep.Speakable(text)
	if speakable == "" {
		return core.SynthesisJob{}, core.Invalid("nothing speakable in text")
	}

	normalized, known := NormalizeEmotion(emotion)
	if !known && emotion != "" {
		s.log.Warn(logUnknownEmotion, emotion, normalized)
	}

	now := time.Now()
	job := core.SynthesisJob{
		ID:        uuid.NewString(),
		Status:    core.StatusPending,
		Text:      speakable,
		Emotion:   normalized,
		SpeakerID: speakerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.Create(ctx, job)
	if err != nil {
		return core.SynthesisJob{}, fmt.Errorf("failed to store synthesis job: %w", err)
	}

	s.metrics.RecordTransition(ctx, core.StatusPending)

	err = s.dispatcher.Dispatch(ctx, core.SynthesisRequest{
		JobID:     job.ID,
		Text:      job.Text,
		Emotion:   job.Emotion,
		SpeakerID: job.SpeakerID,
	})
	if err != nil {
		s.log.Error(logDispatchFailed, job.ID, err)

		markErr := s.store.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error())
		if markErr != nil {
			s.log.Error(logMarkFailed, job.ID, markErr)
		} else {
			s.metrics.RecordTransition(ctx, core.StatusFailed)
		}

		return core.SynthesisJob{}, fmt.Errorf("%w: job %s: %w", ErrDispatch, job.ID, err)
	}

	s.log.Info(logSubmitted, job.ID, job.Emotion, job.SpeakerID)

	return job, nil
}

// GetStatus returns the job without its payload.
func (s *Service) GetStatus(ctx context.Context, id string) (core.SynthesisJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return core.SynthesisJob{}, err
	}

	job.Payload = nil

	return job, nil
}
