// Package core defines the domain types and the contracts shared by the
// orchestration layer, the synthesis job machinery and the backend clients.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error)
}

// EmotionClassifier detects the speaker's emotion from text or from audio.
type EmotionClassifier interface {
	ClassifyText(ctx context.Context, text string) (EmotionResult, error)
	ClassifyAudio(ctx context.Context, audio []byte, filename string) (EmotionResult, error)
}

// EnvironmentClassifier detects the acoustic environment of a recording.
type EnvironmentClassifier interface {
	Classify(ctx context.Context, audio []byte, filename string) (EnvironmentResult, error)
}

// DialogueEngine produces the conversational reply.
type DialogueEngine interface {
	Reply(ctx context.Context, req DialogueRequest) (string, error)
}

// Synthesizer is the speech synthesis backend. A single call produces the
// whole utterance.
type Synthesizer interface {
	Synthesize(ctx context.Context, params SynthesisParams) ([]byte, error)
	SampleSpeaker(ctx context.Context) ([]float32, error)
}

// JobStore persists synthesis jobs and enforces their state machine.
//
// MarkProcessing is a compare-and-set from StatusPending; MarkReady only
// succeeds from StatusProcessing; MarkFailed succeeds from any non-terminal
// state. Terminal jobs never change again.
type JobStore interface {
	Create(ctx context.Context, job SynthesisJob) error
	MarkProcessing(ctx context.Context, id string) (SynthesisJob, error)
	MarkReady(ctx context.Context, id string, result SynthesisResult) error
	MarkFailed(ctx context.Context, id string, reason string) error
	Get(ctx context.Context, id string) (SynthesisJob, error)
}

// Dispatcher hands a stored job to a synthesis worker without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req SynthesisRequest) error
}
