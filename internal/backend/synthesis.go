package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const (
	apiSynthesize    = "/v1/synthesize"
	apiSampleSpeaker = "/v1/speakers/sample"
	acceptAudio      = "audio/*"
)

var _ core.Synthesizer = (*SynthesisClient)(nil)

// SynthesisClient talks to the speech synthesis backend.
type SynthesisClient struct {
	client
}

type sampleSpeakerResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewSynthesisClient creates a synthesis client.
func NewSynthesisClient(opts Options) *SynthesisClient {
	return &SynthesisClient{client: newClient(NameSynthesis, opts)}
}

// Synthesize renders params.Text and returns the raw audio bytes.
func (c *SynthesisClient) Synthesize(ctx context.Context, params core.SynthesisParams) ([]byte, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, core.Invalid("text cannot be empty")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, core.Failed(c.name, 0, fmt.Sprintf(errFmtMarshalRequest, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiSynthesize, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, acceptAudio)

	audioData, status, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if len(audioData) == 0 {
		return nil, core.Failed(c.name, status, "received empty audio data")
	}

	return audioData, nil
}

// SampleSpeaker asks the backend for a fresh random speaker embedding.
func (c *SynthesisClient) SampleSpeaker(ctx context.Context) ([]float32, error) {
	var resp sampleSpeakerResponse

	err := c.postJSON(ctx, apiSampleSpeaker, struct{}{}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Embedding) == 0 {
		return nil, core.Failed(c.name, http.StatusOK, "received empty speaker embedding")
	}

	return resp.Embedding, nil
}
