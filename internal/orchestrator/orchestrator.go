// Package orchestrator coordinates the collaborators of a conversational
// turn: it fans recorded audio out to transcription, emotion and environment
// detection, asks the dialogue engine for a reply and hands replies that
// should be spoken to the synthesis service.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-orchestrator/internal/audio"
	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/proxy"
)

const (
	defaultAnalysisTimeout = 60 * time.Second
	defaultConverseTimeout = 180 * time.Second
	defaultMessageTimeout  = 210 * time.Second
)

// Log messages.
const (
	logAnalysisDone    = "Audio analysis finished in %s: emotion %s, environment %s, %d characters"
	logAnalysisFailed  = "Audio analysis failed in %s: %v"
	logReplyDone       = "Dialogue reply in %s (emotion %s, environment %q)"
	logSpeechSubmitted = "Reply submitted for synthesis as job %s"
	logSpeechSkipped   = "Reply will not be spoken, synthesis submission failed: %v"
)

// SpeechService accepts synthesis jobs and reports their status.
type SpeechService interface {
	Submit(ctx context.Context, text, emotion, speakerID string) (core.SynthesisJob, error)
	GetStatus(ctx context.Context, id string) (core.SynthesisJob, error)
}

// AudioFetcher returns the outcome of a synthesis job.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, id string) (proxy.Audio, error)
}

// Collaborators are the backend services a turn depends on.
type Collaborators struct {
	Transcriber core.Transcriber
	Emotion     core.EmotionClassifier
	Environment core.EnvironmentClassifier
	Dialogue    core.DialogueEngine
}

// Options tune an Orchestrator. Zero values select the defaults.
type Options struct {
	AnalysisTimeout time.Duration
	ConverseTimeout time.Duration
	MessageTimeout  time.Duration
	Policy          FanInPolicy
	HealthChecks    []HealthChecker
}

// Reply is the outcome of the text flow. JobID is empty when the reply was
// not submitted for synthesis.
type Reply struct {
	Response   string
	Emotion    core.Emotion
	Confidence float64
	JobID      string
}

// Turn is the outcome of the voice flow.
type Turn struct {
	Analysis core.Analysis
	Response string
	JobID    string
}

// Orchestrator runs the synchronous flows. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	collaborators Collaborators
	speech        SpeechService
	audio         AudioFetcher
	options       Options
	log           *logger.Logger
}

// New creates an Orchestrator.
func New(
	collaborators Collaborators,
	speech SpeechService,
	fetcher AudioFetcher,
	options Options,
	log *logger.Logger,
) *Orchestrator {
	if options.AnalysisTimeout <= 0 {
		options.AnalysisTimeout = defaultAnalysisTimeout
	}

	if options.ConverseTimeout <= 0 {
		options.ConverseTimeout = defaultConverseTimeout
	}

	if options.MessageTimeout <= 0 {
		options.MessageTimeout = defaultMessageTimeout
	}

	if options.Policy == nil {
		options.Policy = AllOrNothing{}
	}

	return &Orchestrator{
		collaborators: collaborators,
		speech:        speech,
		audio:         fetcher,
		options:       options,
		log:           log,
	}
}

// AnalyzeAudio transcribes the recording and detects the speaker's emotion
// and the acoustic environment in parallel. The result is complete or the
// call fails; partial analyses are never returned.
func (o *Orchestrator) AnalyzeAudio(ctx context.Context, data []byte) (core.Analysis, error) {
	err := audio.Validate(data)
	if err != nil {
		return core.Analysis{}, core.Invalid("audio: %v", err)
	}

	start := time.Now()
	filename := audio.UploadName(data)

	umbrella, cancel := context.WithTimeout(ctx, o.options.AnalysisTimeout)
	defer cancel()

	var (
		transcript  Outcome[core.Transcription]
		emotion     Outcome[core.EmotionResult]
		environment Outcome[core.EnvironmentResult]
	)

	fan := &fanIn{policy: o.options.Policy}
	eg, branchCtx := errgroup.WithContext(umbrella)

	eg.Go(func() error {
		transcript.Value, transcript.Err = o.collaborators.Transcriber.Transcribe(branchCtx, data, filename)

		return fan.settle(BranchTranscription, transcript.Err)
	})

	eg.Go(func() error {
		emotion.Value, emotion.Err = o.collaborators.Emotion.ClassifyAudio(branchCtx, data, filename)

		return fan.settle(BranchEmotion, emotion.Err)
	})

	eg.Go(func() error {
		environment.Value, environment.Err = o.collaborators.Environment.Classify(branchCtx, data, filename)

		return fan.settle(BranchEnvironment, environment.Err)
	})

	_ = eg.Wait()

	err = o.options.Policy.Decide([]BranchOutcome{
		fan.outcome(umbrella, BranchTranscription, transcript.Err),
		fan.outcome(umbrella, BranchEmotion, emotion.Err),
		fan.outcome(umbrella, BranchEnvironment, environment.Err),
	})
	if err != nil {
		o.log.Warn(logAnalysisFailed, time.Since(start), err)

		return core.Analysis{}, err
	}

	analysis := core.Analysis{
		Text:                  transcript.Value.Text,
		Language:              transcript.Value.Language,
		Emotion:               emotion.Value.Emotion,
		EmotionConfidence:     emotion.Value.Confidence,
		EmotionProbabilities:  emotion.Value.Probabilities,
		Environment:           environment.Value.Environment,
		EnvironmentConfidence: environment.Value.Confidence,
		EnvironmentDetections: environment.Value.Detections,
	}

	o.log.Info(logAnalysisDone, time.Since(start), analysis.Emotion, analysis.Environment, len(analysis.Text))

	return analysis, nil
}

// Transcribe runs the recording through the transcriber alone, so a
// transcript is available while the classifiers are down.
func (o *Orchestrator) Transcribe(ctx context.Context, data []byte) (core.Transcription, error) {
	err := audio.Validate(data)
	if err != nil {
		return core.Transcription{}, core.Invalid("audio: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.options.AnalysisTimeout)
	defer cancel()

	return o.collaborators.Transcriber.Transcribe(ctx, data, audio.UploadName(data))
}

// Converse asks the dialogue engine for a reply. An empty emotion is sent as
// neutral; the environment is optional context.
func (o *Orchestrator) Converse(
	ctx context.Context,
	text string,
	emotion core.Emotion,
	environment core.Environment,
) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", core.Invalid("text cannot be empty")
	}

	if emotion == "" {
		emotion = core.EmotionNeutral
	}

	ctx, cancel := context.WithTimeout(ctx, o.options.ConverseTimeout)
	defer cancel()

	start := time.Now()

	response, err := o.collaborators.Dialogue.Reply(ctx, core.DialogueRequest{
		Text:        text,
		Emotion:     emotion,
		Environment: environment,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get dialogue reply: %w", err)
	}

	o.log.Info(logReplyDone, time.Since(start), emotion, environment)

	return response, nil
}

// Message runs the text flow: detect the emotion of text, ask for a reply
// and, when speak is set, submit the reply for synthesis in the detected
// emotion. A failed submission leaves JobID empty but does not fail the call.
func (o *Orchestrator) Message(ctx context.Context, text string, speak bool) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, core.Invalid("text cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, o.options.MessageTimeout)
	defer cancel()

	emotion, err := o.collaborators.Emotion.ClassifyText(ctx, text)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to detect emotion: %w", err)
	}

	response, err := o.Converse(ctx, text, emotion.Emotion, "")
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{
		Response:   response,
		Emotion:    emotion.Emotion,
		Confidence: emotion.Confidence,
	}

	if speak {
		reply.JobID = o.speak(ctx, response, emotion.Emotion)
	}

	return reply, nil
}

// VoiceTurn runs the voice flow: analyse the recording, reply to the
// transcript in its emotion and environment and optionally speak the reply.
func (o *Orchestrator) VoiceTurn(ctx context.Context, data []byte, speak bool) (Turn, error) {
	ctx, cancel := context.WithTimeout(ctx, o.options.MessageTimeout)
	defer cancel()

	analysis, err := o.AnalyzeAudio(ctx, data)
	if err != nil {
		return Turn{}, err
	}

	response, err := o.Converse(ctx, analysis.Text, analysis.Emotion, analysis.Environment)
	if err != nil {
		return Turn{}, err
	}

	turn := Turn{Analysis: analysis, Response: response}

	if speak {
		turn.JobID = o.speak(ctx, response, analysis.Emotion)
	}

	return turn, nil
}

// RequestSpeech submits text for synthesis and returns the pending job
// without waiting for audio.
func (o *Orchestrator) RequestSpeech(ctx context.Context, text, emotion, speakerID string) (core.SynthesisJob, error) {
	job, err := o.speech.Submit(ctx, text, emotion, speakerID)
	if err != nil {
		return core.SynthesisJob{}, fmt.Errorf("failed to request speech: %w", err)
	}

	return job, nil
}

// SpeechStatus returns the audio of a job, or its progress when the audio is
// not ready.
func (o *Orchestrator) SpeechStatus(ctx context.Context, id string) (proxy.Audio, error) {
	return o.audio.FetchAudio(ctx, id)
}

// JobStatus returns the job record without its payload.
func (o *Orchestrator) JobStatus(ctx context.Context, id string) (core.SynthesisJob, error) {
	return o.speech.GetStatus(ctx, id)
}

func (o *Orchestrator) speak(ctx context.Context, text string, emotion core.Emotion) string {
	job, err := o.speech.Submit(ctx, text, string(emotion), "")
	if err != nil {
		o.log.Warn(logSpeechSkipped, err)

		return ""
	}

	o.log.Info(logSpeechSubmitted, job.ID)

	return job.ID
}

// fanIn records which branch first made the policy abort, so that the
// siblings it cancelled can be told apart from genuine failures.
type fanIn struct {
	policy FanInPolicy

	mu    sync.Mutex
	first string
}

func (f *fanIn) settle(branch string, err error) error {
	if err == nil {
		return nil
	}

	if !f.policy.Abort(BranchOutcome{Branch: branch, Err: err}) {
		return nil
	}

	f.mu.Lock()
	if f.first == "" {
		f.first = branch
	}
	f.mu.Unlock()

	return fmt.Errorf("%w: %s", errBranchAborted, branch)
}

func (f *fanIn) outcome(umbrella context.Context, branch string, err error) BranchOutcome {
	f.mu.Lock()
	first := f.first
	f.mu.Unlock()

	aborted := err != nil &&
		first != "" && first != branch &&
		umbrella.Err() == nil &&
		errors.Is(err, context.Canceled)

	return BranchOutcome{Branch: branch, Err: err, Aborted: aborted}
}
