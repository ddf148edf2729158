package backend

import (
	"context"
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const (
	apiTranscribe      = "/transcribe"
	formFieldAudioFile = "audio_file"
)

var _ core.Transcriber = (*STTClient)(nil)

// STTClient talks to the speech-to-text service.
type STTClient struct {
	client
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// NewSTTClient creates a transcription client.
func NewSTTClient(opts Options) *STTClient {
	return &STTClient{client: newClient(NameSTT, opts)}
}

// Transcribe uploads audio and returns the recognised text. A recording in
// which no speech was recognised is a validation error.
func (c *STTClient) Transcribe(ctx context.Context, audio []byte, filename string) (core.Transcription, error) {
	if len(audio) == 0 {
		return core.Transcription{}, core.Invalid("audio cannot be empty")
	}

	var resp transcribeResponse

	err := c.postMultipart(ctx, apiTranscribe, formFieldAudioFile, filename, audio, &resp)
	if err != nil {
		return core.Transcription{}, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return core.Transcription{}, core.Invalid("no speech recognised in audio")
	}

	return core.Transcription{
		Text:       text,
		Language:   resp.Language,
		Confidence: resp.Confidence,
	}, nil
}
