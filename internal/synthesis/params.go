package synthesis

import (
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

// Emotion labels understood by the synthesis table. Surprise has no
// counterpart in the classifier set but keeps its own prosody.
const (
	EmotionSurprise = "surprise"
	emotionFear     = "fear"
)

// Params are the sampling settings and prosody prompt for one emotion.
type Params struct {
	Temperature float64
	TopP        float64
	TopK        int
	Prompt      string
}

var neutralParams = Params{Temperature: 0.3, TopP: 0.7, TopK: 20}

var emotionParams = map[string]Params{
	string(core.EmotionNeutral): neutralParams,
	string(core.EmotionDisgust): neutralParams,
	string(core.EmotionHappy):   {Temperature: 0.4, TopP: 0.8, TopK: 30, Prompt: "[oral_2][laugh_1]"},
	string(core.EmotionSad):     {Temperature: 0.2, TopP: 0.6, TopK: 15, Prompt: "[oral_1][break_3]"},
	string(core.EmotionAngry):   {Temperature: 0.5, TopP: 0.9, TopK: 25, Prompt: "[oral_3]"},
	string(core.EmotionFearful): {Temperature: 0.3, TopP: 0.7, TopK: 20, Prompt: "[oral_1][break_2]"},
	EmotionSurprise:             {Temperature: 0.4, TopP: 0.8, TopK: 30, Prompt: "[oral_3][break_1]"},
}

// NormalizeEmotion maps raw onto a row of the synthesis table. The second
// result is false when raw was unknown and the neutral row was chosen.
func NormalizeEmotion(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))

	switch key {
	case EmotionSurprise:
		return EmotionSurprise, true
	case emotionFear:
		return string(core.EmotionFearful), true
	}

	emotion, ok := core.ParseEmotion(key)
	if !ok {
		return string(core.DefaultEmotion), false
	}

	return string(emotion), true
}

// ParamsFor returns the parameters for emotion, falling back to neutral.
func ParamsFor(emotion string) Params {
	key, _ := NormalizeEmotion(emotion)

	if params, ok := emotionParams[key]; ok {
		return params
	}

	return neutralParams
}

// Request builds the backend call for text spoken with these parameters.
func (p Params) Request(text string, embedding []float32) core.SynthesisParams {
	return core.SynthesisParams{
		Text:             text,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		TopK:             p.TopK,
		Prompt:           p.Prompt,
		SpeakerEmbedding: embedding,
	}
}
