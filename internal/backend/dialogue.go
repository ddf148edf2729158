package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const (
	apiChat       = "/api/chat"
	apiChatHealth = "/api/chat/health"
)

var _ core.DialogueEngine = (*DialogueClient)(nil)

// DialogueClient talks to the conversational engine.
type DialogueClient struct {
	client
}

type chatResponse struct {
	Response string `json:"response"`
}

// NewDialogueClient creates a dialogue client.
func NewDialogueClient(opts Options) *DialogueClient {
	base := newClient(NameDialogue, opts)
	base.healthPath = apiChatHealth

	return &DialogueClient{client: base}
}

// Reply asks the engine for an answer to req.Text. The detected emotion and
// the optional environment are passed along as context.
func (c *DialogueClient) Reply(ctx context.Context, req core.DialogueRequest) (string, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return "", core.Invalid("text cannot be empty")
	}

	if req.Emotion == "" {
		req.Emotion = core.DefaultEmotion
	}

	var resp chatResponse

	err := c.postJSON(ctx, apiChat, req, &resp)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Response)
	if reply == "" {
		return "", core.Failed(c.name, http.StatusOK, "empty response")
	}

	return reply, nil
}
