package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/httpapi"
	"github.com/book-expert/voice-orchestrator/internal/orchestrator"
	"github.com/book-expert/voice-orchestrator/internal/proxy"
	"github.com/book-expert/voice-orchestrator/internal/synthesis"
)

var sampleWAV = []byte("RIFF\x24\x00\x00\x00WAVEfmt recording")

// recorded holds the arguments of the last call.
type recorded struct {
	audio       []byte
	text        string
	emotion     core.Emotion
	environment core.Environment
	speak       bool
	speakerID   string
}

// fakeService answers with canned values, or with err when it is set.
type fakeService struct {
	err error

	mu sync.Mutex
	recorded
}

func (f *fakeService) AnalyzeAudio(_ context.Context, data []byte) (core.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.audio = data
	if f.err != nil {
		return core.Analysis{}, f.err
	}

	return core.Analysis{Text: "hello", Emotion: core.EmotionSad, Environment: core.EnvironmentSpeech}, nil
}

func (f *fakeService) Transcribe(_ context.Context, data []byte) (core.Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.audio = data
	if f.err != nil {
		return core.Transcription{}, f.err
	}

	return core.Transcription{Text: "hello", Language: "en", Confidence: 0.8}, nil
}

func (f *fakeService) Converse(
	_ context.Context, text string, emotion core.Emotion, environment core.Environment,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.text, f.emotion, f.environment = text, emotion, environment
	if f.err != nil {
		return "", f.err
	}

	return "reply", nil
}

func (f *fakeService) Message(_ context.Context, text string, speak bool) (orchestrator.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.text, f.speak = text, speak
	if f.err != nil {
		return orchestrator.Reply{}, f.err
	}

	reply := orchestrator.Reply{Response: "reply", Emotion: core.EmotionHappy, Confidence: 0.9}
	if speak {
		reply.JobID = "job-1"
	}

	return reply, nil
}

func (f *fakeService) VoiceTurn(_ context.Context, data []byte, speak bool) (orchestrator.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.audio, f.speak = data, speak
	if f.err != nil {
		return orchestrator.Turn{}, f.err
	}

	turn := orchestrator.Turn{Analysis: core.Analysis{Text: "hello"}, Response: "reply"}
	if speak {
		turn.JobID = "job-2"
	}

	return turn, nil
}

func (f *fakeService) RequestSpeech(_ context.Context, text, emotion, speakerID string) (core.SynthesisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.text, f.emotion, f.speakerID = text, core.Emotion(emotion), speakerID
	if f.err != nil {
		return core.SynthesisJob{}, f.err
	}

	return core.SynthesisJob{ID: "job-3", Status: core.StatusPending}, nil
}

func (f *fakeService) SpeechStatus(_ context.Context, id string) (proxy.Audio, error) {
	switch id {
	case "ready":
		return proxy.Audio{JobID: id, Status: core.StatusReady, ContentType: "audio/wav", Body: sampleWAV}, nil
	case "failed":
		return proxy.Audio{JobID: id, Status: core.StatusFailed, Error: "backend down"}, nil
	case "busy":
		return proxy.Audio{JobID: id, Status: core.StatusProcessing}, nil
	default:
		return proxy.Audio{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
}

func (f *fakeService) JobStatus(_ context.Context, id string) (core.SynthesisJob, error) {
	if id != "busy" {
		return core.SynthesisJob{}, core.ErrJobNotFound
	}

	return core.SynthesisJob{ID: id, Status: core.StatusProcessing, Text: "Hi.", Payload: sampleWAV}, nil
}

func (f *fakeService) Health(_ context.Context) orchestrator.Health {
	if f.err != nil {
		return orchestrator.Health{Status: orchestrator.HealthDegraded, Collaborators: []orchestrator.CollaboratorHealth{
			{Name: "stt", Status: orchestrator.HealthDegraded, Error: f.err.Error()},
		}}
	}

	return orchestrator.Health{Status: orchestrator.HealthOK, Collaborators: []orchestrator.CollaboratorHealth{
		{Name: "stt", Status: orchestrator.HealthOK},
	}}
}

// seen returns a copy of the recorded arguments.
func (f *fakeService) seen() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.recorded
}

type fakeSpeakers []string

func (f fakeSpeakers) IDs() []string { return f }

func (f fakeSpeakers) Len() int { return len(f) }

type fakeWork []string

func (f fakeWork) InFlight() []string { return f }

func newTestServer(t *testing.T, service *fakeService, options httpapi.Options) *httptest.Server {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	server := httptest.NewServer(httpapi.New(service, fakeSpeakers{"narrator"}, options, testLogger).Handler())
	t.Cleanup(server.Close)

	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func postAudio(t *testing.T, url, field string, data []byte, values map[string]string) *http.Response {
	t.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	if field != "" {
		part, err := writer.CreateFormFile(field, "audio.wav")
		require.NoError(t, err)

		_, err = part.Write(data)
		require.NoError(t, err)
	}

	for key, value := range values {
		require.NoError(t, writer.WriteField(key, value))
	}

	require.NoError(t, writer.Close())

	resp, err := http.Post(url, writer.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestAnalyzeAudio(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"file", "audio_file"} {
		t.Run(field, func(t *testing.T) {
			t.Parallel()

			service := &fakeService{}
			server := newTestServer(t, service, httpapi.Options{})

			resp := postAudio(t, server.URL+"/api/analyze-audio", field, sampleWAV, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			body := decode(t, resp)
			assert.Equal(t, "hello", body["text"])
			assert.Equal(t, "sad", body["emotion"])
			assert.Equal(t, "Speech", body["environment"])
			assert.Equal(t, sampleWAV, service.seen().audio)
		})
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	service := &fakeService{}
	server := newTestServer(t, service, httpapi.Options{})

	resp := postAudio(t, server.URL+"/api/transcribe", "audio_file", sampleWAV, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "hello", body["text"])
	assert.Equal(t, "en", body["language"])
	assert.Equal(t, sampleWAV, service.seen().audio)

	failing := newTestServer(t, &fakeService{err: core.Unavailable("stt", io.ErrUnexpectedEOF)}, httpapi.Options{})
	resp = postAudio(t, failing.URL+"/api/transcribe", "file", sampleWAV, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAnalyzeAudio_UploadErrors(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeService{}, httpapi.Options{MaxUploadBytes: 1024})

	resp := postAudio(t, server.URL+"/api/analyze-audio", "", nil, map[string]string{"other": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "file or audio_file")

	resp = postAudio(t, server.URL+"/api/analyze-audio", "file", bytes.Repeat([]byte("a"), 4096), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err := http.Post(server.URL+"/api/analyze-audio", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", core.Invalid("bad"), http.StatusBadRequest},
		{"not found", core.ErrJobNotFound, http.StatusNotFound},
		{"collaborator failed", core.Failed("stt", 500, "boom"), http.StatusBadGateway},
		{"unavailable", core.Unavailable("stt", io.ErrUnexpectedEOF), http.StatusServiceUnavailable},
		{"deadline", core.Unavailable("stt", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"dispatch", fmt.Errorf("%w: no workers", synthesis.ErrDispatch), http.StatusServiceUnavailable},
		{"unknown", io.ErrClosedPipe, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, &fakeService{err: tc.err}, httpapi.Options{})

			resp := postAudio(t, server.URL+"/api/analyze-audio", "file", sampleWAV, nil)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.err.Error(), decode(t, resp)["error"])
		})
	}
}

func TestErrorMapping_ListsFailedBranches(t *testing.T) {
	t.Parallel()

	err := &orchestrator.FanInError{Failures: []orchestrator.BranchOutcome{
		{Branch: orchestrator.BranchEnvironment, Err: core.Unavailable("environment", context.DeadlineExceeded)},
	}}
	server := newTestServer(t, &fakeService{err: err}, httpapi.Options{})

	resp := postAudio(t, server.URL+"/api/analyze-audio", "file", sampleWAV, nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, []any{"environment"}, decode(t, resp)["failed"])
}

func TestConverse(t *testing.T) {
	t.Parallel()

	service := &fakeService{}
	server := newTestServer(t, service, httpapi.Options{})

	resp := postJSON(t, server.URL+"/api/converse", map[string]string{
		"text": "hi", "emotion": "ecstatic", "environment": "Inside, small room",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reply", decode(t, resp)["response"])
	assert.Equal(t, core.EmotionNeutral, service.seen().emotion)
	assert.Equal(t, core.EnvironmentSmallRoom, service.seen().environment)

	resp = postJSON(t, server.URL+"/api/converse", map[string]string{"text": "hi", "environment": "Moon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(server.URL+"/api/converse", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessage(t *testing.T) {
	t.Parallel()

	service := &fakeService{}
	server := newTestServer(t, service, httpapi.Options{})

	resp := postJSON(t, server.URL+"/api/message", map[string]any{"text": "hi", "speak": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "reply", body["response"])
	assert.Equal(t, "happy", body["emotion"])
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "/api/speech/job-1", body["audio_url"])
	assert.True(t, service.seen().speak)

	resp = postJSON(t, server.URL+"/api/message", map[string]any{"text": "hi"})
	body = decode(t, resp)
	assert.NotContains(t, body, "job_id")
	assert.NotContains(t, body, "audio_url")
}

func TestVoiceTurn(t *testing.T) {
	t.Parallel()

	service := &fakeService{}
	server := newTestServer(t, service, httpapi.Options{})

	resp := postAudio(t, server.URL+"/api/voice-turn", "file", sampleWAV, map[string]string{"speak": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "reply", body["response"])
	assert.Equal(t, "/api/speech/job-2", body["audio_url"])
	assert.Equal(t, "hello", body["analysis"].(map[string]any)["text"])

	resp = postAudio(t, server.URL+"/api/voice-turn", "file", sampleWAV, map[string]string{"speak": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSpeech_RequestAndPoll(t *testing.T) {
	t.Parallel()

	service := &fakeService{}
	server := newTestServer(t, service, httpapi.Options{})

	resp := postJSON(t, server.URL+"/api/speech", map[string]string{
		"text": "Hello", "emotion": "happy", "speaker_id": "narrator",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"job_id": "job-3", "status": "pending", "audio_url": "/api/speech/job-3",
	}, decode(t, resp))
	assert.Equal(t, "narrator", service.seen().speakerID)

	resp = get(t, server.URL+"/api/speech/ready")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))

	audio, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, sampleWAV, audio)

	resp = get(t, server.URL+"/api/speech/busy")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "processing", decode(t, resp)["status"])

	resp = get(t, server.URL+"/api/speech/failed")
	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "backend down", body["error"])

	resp = get(t, server.URL+"/api/speech/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSpeechStatus(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeService{}, httpapi.Options{})

	resp := get(t, server.URL+"/api/speech/busy/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "processing", body["status"])
	assert.NotContains(t, body, "payload")

	resp = get(t, server.URL+"/api/speech/missing/status")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnumerations(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeService{}, httpapi.Options{})

	body := decode(t, get(t, server.URL+"/api/speakers"))
	assert.Equal(t, []any{"narrator"}, body["speakers"])
	assert.InDelta(t, 1, body["count"], 0)

	body = decode(t, get(t, server.URL+"/api/emotions"))
	assert.Len(t, body["emotions"], len(core.Emotions()))

	body = decode(t, get(t, server.URL+"/api/environments"))
	environments := body["environments"].([]any)
	require.Len(t, environments, len(core.Environments()))
	assert.Equal(t, "Speech", environments[0].(map[string]any)["name"])
	assert.NotEmpty(t, environments[0].(map[string]any)["emoji"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeService{}, httpapi.Options{})

	resp := get(t, server.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 1, body["speakers"], 0)
	assert.NotContains(t, body, "in_flight")

	busy := newTestServer(t, &fakeService{}, httpapi.Options{Work: fakeWork{"job-1", "job-2"}})

	resp = get(t, busy.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"job-1", "job-2"}, decode(t, resp)["in_flight"])

	degraded := newTestServer(t, &fakeService{err: io.ErrUnexpectedEOF}, httpapi.Options{})

	resp = get(t, degraded.URL+"/health")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "degraded", body["collaborators"].(map[string]any)["stt"].(map[string]any)["status"])

	resp = get(t, degraded.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	server := newTestServer(t, &fakeService{}, httpapi.Options{MetricsHandler: metrics})
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/metrics").StatusCode)

	bare := newTestServer(t, &fakeService{}, httpapi.Options{})
	assert.Equal(t, http.StatusNotFound, get(t, bare.URL+"/metrics").StatusCode)
}
