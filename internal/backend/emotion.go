package backend

import (
	"context"
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const (
	apiPredictText  = "/predict/text"
	apiPredictAudio = "/predict"
	formFieldFile   = "file"
)

var _ core.EmotionClassifier = (*EmotionClient)(nil)

// EmotionClient talks to the emotion classification service.
type EmotionClient struct {
	client
}

type predictTextRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Emotion       string             `json:"emotion"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// NewEmotionClient creates an emotion classification client.
func NewEmotionClient(opts Options) *EmotionClient {
	return &EmotionClient{client: newClient(NameEmotion, opts)}
}

// ClassifyText detects the emotion expressed by text.
func (c *EmotionClient) ClassifyText(ctx context.Context, text string) (core.EmotionResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.EmotionResult{}, core.Invalid("text cannot be empty")
	}

	var resp predictResponse

	err := c.postJSON(ctx, apiPredictText, predictTextRequest{Text: text}, &resp)
	if err != nil {
		return core.EmotionResult{}, err
	}

	return resp.result(), nil
}

// ClassifyAudio detects the emotion in the speaker's voice.
func (c *EmotionClient) ClassifyAudio(ctx context.Context, audio []byte, filename string) (core.EmotionResult, error) {
	if len(audio) == 0 {
		return core.EmotionResult{}, core.Invalid("audio cannot be empty")
	}

	var resp predictResponse

	err := c.postMultipart(ctx, apiPredictAudio, formFieldFile, filename, audio, &resp)
	if err != nil {
		return core.EmotionResult{}, err
	}

	return resp.result(), nil
}

// result normalises the label; labels outside the set become neutral.
func (r predictResponse) result() core.EmotionResult {
	emotion, _ := core.NormalizeEmotion(r.Emotion)

	return core.EmotionResult{
		Emotion:       emotion,
		Confidence:    r.Confidence,
		Probabilities: r.Probabilities,
	}
}
