package core

import (
	"strings"
	"time"
	"unicode"
)

// Emotion is a member of the fixed emotion set shared by every collaborator.
type Emotion string

// The fixed emotion set.
const (
	EmotionAngry   Emotion = "angry"
	EmotionDisgust Emotion = "disgust"
	EmotionFearful Emotion = "fearful"
	EmotionHappy   Emotion = "happy"
	EmotionNeutral Emotion = "neutral"
	EmotionSad     Emotion = "sad"
)

// DefaultEmotion is used whenever an emotion is missing or unrecognised.
const DefaultEmotion = EmotionNeutral

var emotions = []Emotion{
	EmotionAngry, EmotionDisgust, EmotionFearful, EmotionHappy, EmotionNeutral, EmotionSad,
}

// Emotions returns the fixed emotion set in canonical order.
func Emotions() []Emotion {
	out := make([]Emotion, len(emotions))
	copy(out, emotions)

	return out
}

// ParseEmotion resolves raw into the fixed set. The second result is false
// when raw is not a known emotion.
func ParseEmotion(raw string) (Emotion, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))

	for _, e := range emotions {
		if string(e) == key {
			return e, true
		}
	}

	return "", false
}

// NormalizeEmotion is ParseEmotion with the neutral fallback applied. The
// second result reports whether raw was recognised.
func NormalizeEmotion(raw string) (Emotion, bool) {
	e, ok := ParseEmotion(raw)
	if !ok {
		return DefaultEmotion, false
	}

	return e, true
}

// Environment is a member of the fixed acoustic-environment set.
type Environment string

// The fixed environment set.
const (
	EnvironmentSpeech    Environment = "Speech"
	EnvironmentSmallRoom Environment = "Inside-small-room"
	EnvironmentLargeRoom Environment = "Inside-large-room-or-hall"
	EnvironmentUrban     Environment = "Outside-urban"
	EnvironmentRural     Environment = "Outside-rural"
	EnvironmentVehicle   Environment = "Vehicle"
	EnvironmentMusic     Environment = "Music"
	EnvironmentSilence   Environment = "Silence"
	EnvironmentWater     Environment = "Water"
	EnvironmentWind      Environment = "Wind"
	EnvironmentAnimal    Environment = "Animal"
	EnvironmentNoise     Environment = "Noise"
)

var environments = []Environment{
	EnvironmentSpeech, EnvironmentSmallRoom, EnvironmentLargeRoom, EnvironmentUrban,
	EnvironmentRural, EnvironmentVehicle, EnvironmentMusic, EnvironmentSilence,
	EnvironmentWater, EnvironmentWind, EnvironmentAnimal, EnvironmentNoise,
}

// environmentAliases covers the long labels emitted by the classifier.
var environmentAliases = map[string]Environment{
	"outside-urban-or-manmade": EnvironmentUrban,
	"outside-rural-or-natural": EnvironmentRural,
}

var environmentEmoji = map[Environment]string{
	EnvironmentSpeech:    "🗣️",
	EnvironmentSmallRoom: "🏠",
	EnvironmentLargeRoom: "🏢",
	EnvironmentUrban:     "🏙️",
	EnvironmentRural:     "🌳",
	EnvironmentVehicle:   "🚗",
	EnvironmentMusic:     "🎵",
	EnvironmentSilence:   "🔇",
	EnvironmentWater:     "💧",
	EnvironmentWind:      "💨",
	EnvironmentAnimal:    "🐾",
	EnvironmentNoise:     "📢",
}

// Environments returns the fixed environment set in canonical order.
func Environments() []Environment {
	out := make([]Environment, len(environments))
	copy(out, environments)

	return out
}

// Emoji returns the display glyph for the environment.
func (e Environment) Emoji() string {
	return environmentEmoji[e]
}

// ParseEnvironment resolves raw into the fixed set. Case, punctuation and
// spacing are ignored, so "Inside, small room" and "inside-small-room" both
// resolve to EnvironmentSmallRoom.
func ParseEnvironment(raw string) (Environment, bool) {
	key := environmentKey(raw)
	if key == "" {
		return "", false
	}

	for _, e := range environments {
		if environmentKey(string(e)) == key {
			return e, true
		}
	}

	if e, ok := environmentAliases[key]; ok {
		return e, true
	}

	return "", false
}

func environmentKey(raw string) string {
	var b strings.Builder

	pendingSep := false

	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}

			b.WriteRune(unicode.ToLower(r))

			pendingSep = false

			continue
		}

		pendingSep = true
	}

	return b.String()
}

// Transcription is the STT collaborator's answer.
type Transcription struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EmotionResult is the emotion collaborator's answer after normalisation.
type EmotionResult struct {
	Emotion       Emotion            `json:"emotion"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// EnvironmentResult is the environment collaborator's answer after normalisation.
type EnvironmentResult struct {
	Environment Environment        `json:"environment"`
	Confidence  float64            `json:"confidence"`
	Detections  map[string]float64 `json:"all_detections,omitempty"`
}

// Analysis is the fan-in of the three audio collaborators.
type Analysis struct {
	Text                  string             `json:"text"`
	Language              string             `json:"language,omitempty"`
	Emotion               Emotion            `json:"emotion"`
	EmotionConfidence     float64            `json:"emotion_confidence"`
	EmotionProbabilities  map[string]float64 `json:"emotion_probabilities,omitempty"`
	Environment           Environment        `json:"environment"`
	EnvironmentConfidence float64            `json:"environment_confidence"`
	EnvironmentDetections map[string]float64 `json:"environment_detections,omitempty"`
}

// DialogueRequest is what the dialogue engine receives. Environment is
// optional context.
type DialogueRequest struct {
	Text        string      `json:"text"`
	Emotion     Emotion     `json:"emotion"`
	Environment Environment `json:"environment,omitempty"`
}

// SynthesisParams is the backend-level synthesis call.
type SynthesisParams struct {
	Text             string    `json:"text"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	TopK             int       `json:"top_k"`
	Prompt           string    `json:"prompt,omitempty"`
	SpeakerEmbedding []float32 `json:"speaker_embedding,omitempty"`
}

// SpeakerProfile is a cached voice. The embedding is never mutated after
// the profile is created.
type SpeakerProfile struct {
	ID        string
	Embedding []float32
	CreatedAt time.Time
}

// JobStatus is the state of a SynthesisJob.
type JobStatus string

// Job states. Ready and Failed are terminal.
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusReady      JobStatus = "ready"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// SynthesisJob is one asynchronous synthesis request and its outcome.
type SynthesisJob struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Text        string    `json:"text"`
	Emotion     string    `json:"emotion"`
	SpeakerID   string    `json:"speaker_id,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Error       string    `json:"error,omitempty"`
	Payload     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SynthesisRequest is what a dispatcher delivers to a worker.
type SynthesisRequest struct {
	JobID     string `json:"job_id"`
	Text      string `json:"text"`
	Emotion   string `json:"emotion"`
	SpeakerID string `json:"speaker_id,omitempty"`
}

// SynthesisResult is what a worker commits on success.
type SynthesisResult struct {
	Payload     []byte
	ContentType string
	SpeakerID   string
}
