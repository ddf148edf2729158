package backend

import (
	"context"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const apiClassify = "/classify"

var _ core.EnvironmentClassifier = (*EnvironmentClient)(nil)

// EnvironmentClient talks to the acoustic environment classifier.
type EnvironmentClient struct {
	client
}

type classifyResponse struct {
	Environment   string             `json:"environment"`
	Confidence    float64            `json:"confidence"`
	AllDetections map[string]float64 `json:"all_detections"`
}

// NewEnvironmentClient creates an environment classification client.
func NewEnvironmentClient(opts Options) *EnvironmentClient {
	return &EnvironmentClient{client: newClient(NameEnvironment, opts)}
}

// Classify detects the environment of the recording. The classifier's long
// labels are normalised; a label outside the set is a validation error.
func (c *EnvironmentClient) Classify(ctx context.Context, audio []byte, filename string) (core.EnvironmentResult, error) {
	if len(audio) == 0 {
		return core.EnvironmentResult{}, core.Invalid("audio cannot be empty")
	}

	var resp classifyResponse

	err := c.postMultipart(ctx, apiClassify, formFieldFile, filename, audio, &resp)
	if err != nil {
		return core.EnvironmentResult{}, err
	}

	environment, ok := core.ParseEnvironment(resp.Environment)
	if !ok {
		return core.EnvironmentResult{}, core.Invalid("unknown environment %q", resp.Environment)
	}

	return core.EnvironmentResult{
		Environment: environment,
		Confidence:  resp.Confidence,
		Detections:  resp.AllDetections,
	}, nil
}
