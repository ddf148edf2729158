package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

const maxErrorBodyBytes = 512

var (
	// ErrServiceStatus indicates a non-success response from the service.
	ErrServiceStatus = errors.New("service returned an error")
	// ErrSpeechFailed indicates the spoken reply could not be synthesized.
	ErrSpeechFailed = errors.New("speech synthesis failed")
)

type messageReply struct {
	Response   string  `json:"response"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	JobID      string  `json:"job_id"`
	AudioURL   string  `json:"audio_url"`
}

type analysis struct {
	Text        string `json:"text"`
	Emotion     string `json:"emotion"`
	Environment string `json:"environment"`
}

type voiceTurnReply struct {
	Analysis analysis `json:"analysis"`
	Response string   `json:"response"`
	JobID    string   `json:"job_id"`
	AudioURL string   `json:"audio_url"`
}

type collaboratorHealth struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type healthReply struct {
	Status        string                        `json:"status"`
	Collaborators map[string]collaboratorHealth `json:"collaborators"`
}

type speechProgress struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// client is a small HTTP client for the voice-orchestrator API.
type client struct {
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	log          *logger.Logger
}

func newClient(baseURL string, pollInterval time.Duration, log *logger.Logger) *client {
	return &client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: pollInterval,
		httpClient:   &http.Client{},
		log:          log,
	}
}

// Health returns the aggregated health. A degraded service is reported
// together with its collaborators and ErrServiceStatus.
func (c *client) Health(ctx context.Context) (healthReply, error) {
	var health healthReply

	resp, err := c.send(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return health, err
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return health, fmt.Errorf("failed to decode health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("%w: status %d", ErrServiceStatus, resp.StatusCode)
	}

	return health, nil
}

// Message sends a text message.
func (c *client) Message(ctx context.Context, text string, speak bool) (messageReply, error) {
	body, err := json.Marshal(map[string]any{"text": text, "speak": speak})
	if err != nil {
		return messageReply{}, fmt.Errorf("failed to encode message: %w", err)
	}

	var reply messageReply

	err = c.doJSON(ctx, "/api/message", "application/json", bytes.NewReader(body), &reply)

	return reply, err
}

// VoiceTurn uploads a recording as a voice turn.
func (c *client) VoiceTurn(ctx context.Context, audio []byte, speak bool) (voiceTurnReply, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio")
	if err != nil {
		return voiceTurnReply{}, fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = part.Write(audio)
	if err != nil {
		return voiceTurnReply{}, fmt.Errorf("failed to write audio: %w", err)
	}

	err = writer.WriteField("speak", strconv.FormatBool(speak))
	if err != nil {
		return voiceTurnReply{}, fmt.Errorf("failed to write form field: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return voiceTurnReply{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var reply voiceTurnReply

	err = c.doJSON(ctx, "/api/voice-turn", writer.FormDataContentType(), &body, &reply)

	return reply, err
}

// AwaitSpeech polls audioURL until the audio is ready, the job fails or ctx
// ends.
func (c *client) AwaitSpeech(ctx context.Context, audioURL string) ([]byte, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		audio, done, err := c.pollSpeech(ctx, audioURL)
		if done || err != nil {
			return audio, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for speech: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *client) pollSpeech(ctx context.Context, audioURL string) ([]byte, bool, error) {
	resp, err := c.send(ctx, http.MethodGet, audioURL, "", nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read speech: %w", err)
		}

		return audio, true, nil
	case http.StatusAccepted:
		return nil, false, nil
	case http.StatusFailedDependency:
		var progress speechProgress

		_ = json.NewDecoder(resp.Body).Decode(&progress)

		return nil, false, fmt.Errorf("%w: %s", ErrSpeechFailed, progress.Error)
	default:
		return nil, false, statusError(resp)
	}
}

func (c *client) doJSON(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, http.MethodPost, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func (c *client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.Info(logRequestSent, method, req.URL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", req.URL, err)
	}

	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var payload struct {
		Error string `json:"error"`
	}

	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		detail = payload.Error
	}

	return fmt.Errorf("%w: status %d: %s", ErrServiceStatus, resp.StatusCode, detail)
}
