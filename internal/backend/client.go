// Package backend provides HTTP clients for the inference services the
// orchestrator depends on: transcription, emotion and environment
// classification, dialogue and speech synthesis.
//
// Every client classifies failures into the core error taxonomy: transport
// errors, timeouts and cancellation become core.ErrCollaboratorUnavailable;
// non-2xx answers and undecodable bodies become core.ErrCollaboratorFailed.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/observe"
)

// API paths.
const (
	apiHealth = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Collaborator names used in errors and metrics.
const (
	NameSTT         = "stt"
	NameEmotion     = "emotion"
	NameEnvironment = "environment"
	NameDialogue    = "dialogue"
	NameSynthesis   = "synthesis"
)

// Error messages.
const (
	errFmtMarshalRequest = "failed to marshal request: %v"
	errFmtDecodeResponse = "failed to decode response: %v"
	errFmtBuildMultipart = "failed to build multipart body: %w"
	errFmtCreateRequest  = "failed to create request: %w"
	errFmtHealthStatus   = "health check returned %s"
)

// Limits.
const (
	maxErrorDetailLength = 512
	defaultCollabTimeout = 60 * time.Second
)

// Options configures a collaborator client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Metrics *observe.Metrics
	// HTTPClient overrides the default client; its Timeout is left untouched.
	HTTPClient *http.Client
}

// errorResponse is the structured error body the collaborators return.
type errorResponse struct {
	Detail    string `json:"detail"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// client holds what every collaborator client shares.
type client struct {
	name       string
	baseURL    string
	healthPath string
	httpClient *http.Client
	metrics    *observe.Metrics
}

func newClient(name string, opts Options) client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultCollabTimeout
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	return client{
		name:       name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		healthPath: apiHealth,
		httpClient: httpClient,
		metrics:    opts.Metrics,
	}
}

// Name returns the collaborator name.
func (c *client) Name() string {
	return c.name
}

// HealthCheck verifies that the collaborator is running.
func (c *client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Unavailable(c.name, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return core.Failed(c.name, resp.StatusCode, fmt.Sprintf(errFmtHealthStatus, resp.Status))
	}

	return nil
}

// postJSON sends in as a JSON body to path and decodes the JSON answer into out.
func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return core.Failed(c.name, 0, fmt.Sprintf(errFmtMarshalRequest, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeJSON)

	return c.doJSON(req, out)
}

// postMultipart uploads data as the form file field and decodes the JSON
// answer into out.
func (c *client) postMultipart(ctx context.Context, path, field, filename string, data []byte, out any) error {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf(errFmtBuildMultipart, err)
	}

	_, err = part.Write(data)
	if err != nil {
		return fmt.Errorf(errFmtBuildMultipart, err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf(errFmtBuildMultipart, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, writer.FormDataContentType())
	req.Header.Set(headerAccept, contentTypeJSON)

	return c.doJSON(req, out)
}

func (c *client) doJSON(req *http.Request, out any) error {
	body, status, err := c.do(req)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return core.Failed(c.name, status, fmt.Sprintf(errFmtDecodeResponse, err))
	}

	return nil
}

// do executes req, records its latency and returns the body of a 2xx answer.
func (c *client) do(req *http.Request) (body []byte, status int, err error) {
	start := time.Now()

	defer func() {
		c.metrics.RecordCollaborator(req.Context(), c.name, start, err)
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, core.Unavailable(c.name, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, core.Unavailable(c.name, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, core.Failed(c.name, resp.StatusCode, errorDetail(body))
	}

	return body, resp.StatusCode, nil
}

// errorDetail extracts a human-readable message from an error body. It
// falls back to the raw body when the body is not the structured form.
func errorDetail(body []byte) string {
	var errResp errorResponse

	err := json.Unmarshal(body, &errResp)
	if err == nil {
		switch {
		case errResp.Detail != "":
			return errResp.Detail
		case errResp.Error != "":
			return errResp.Error
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorDetailLength {
		detail = detail[:maxErrorDetailLength]
	}

	return detail
}
