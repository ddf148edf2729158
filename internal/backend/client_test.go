package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-orchestrator/internal/backend"
	"github.com/book-expert/voice-orchestrator/internal/core"
)

var sampleAudio = []byte("RIFF\x24\x00\x00\x00WAVEfmt sample")

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(body))
}

// readUpload returns the bytes of the named multipart file field.
func readUpload(t *testing.T, r *http.Request, field string) []byte {
	t.Helper()

	file, _, err := r.FormFile(field)
	if !assert.NoError(t, err) {
		return nil
	}

	defer file.Close()

	data, err := io.ReadAll(file)
	assert.NoError(t, err)

	return data
}

func TestSTTClient_Transcribe(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transcribe", r.URL.Path)
		assert.Equal(t, sampleAudio, readUpload(t, r, "audio_file"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"text": "  ciao a tutti ", "language": "it", "confidence": 0.93,
		})
	})

	client := backend.NewSTTClient(backend.Options{BaseURL: server.URL, Timeout: time.Second})

	result, err := client.Transcribe(context.Background(), sampleAudio, "audio.wav")
	require.NoError(t, err)
	assert.Equal(t, core.Transcription{Text: "ciao a tutti", Language: "it", Confidence: 0.93}, result)
}

func TestSTTClient_EmptyTranscript(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"text": "   "})
	})

	client := backend.NewSTTClient(backend.Options{BaseURL: server.URL})

	_, err := client.Transcribe(context.Background(), sampleAudio, "audio.wav")
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestSTTClient_EmptyAudio(t *testing.T) {
	t.Parallel()

	client := backend.NewSTTClient(backend.Options{BaseURL: "http://127.0.0.1:1"})

	_, err := client.Transcribe(context.Background(), nil, "audio.wav")
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestEmotionClient_ClassifyText(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/text", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sono felice", body["text"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"emotion": "Happy", "confidence": 0.8, "probabilities": map[string]float64{"happy": 0.8},
		})
	})

	client := backend.NewEmotionClient(backend.Options{BaseURL: server.URL})

	result, err := client.ClassifyText(context.Background(), "sono felice")
	require.NoError(t, err)
	assert.Equal(t, core.EmotionHappy, result.Emotion)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
	assert.Equal(t, map[string]float64{"happy": 0.8}, result.Probabilities)
}

func TestEmotionClient_ClassifyAudio_UnknownLabelIsNeutral(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, sampleAudio, readUpload(t, r, "file"))

		writeJSON(t, w, http.StatusOK, map[string]any{"emotion": "bored", "confidence": 0.4})
	})

	client := backend.NewEmotionClient(backend.Options{BaseURL: server.URL})

	result, err := client.ClassifyAudio(context.Background(), sampleAudio, "audio.wav")
	require.NoError(t, err)
	assert.Equal(t, core.EmotionNeutral, result.Emotion)
}

func TestEnvironmentClient_Classify(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, sampleAudio, readUpload(t, r, "file"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"environment":    "Outside, urban or manmade",
			"confidence":     0.7,
			"all_detections": map[string]float64{"Outside, urban or manmade": 0.7},
		})
	})

	client := backend.NewEnvironmentClient(backend.Options{BaseURL: server.URL})

	result, err := client.Classify(context.Background(), sampleAudio, "audio.wav")
	require.NoError(t, err)
	assert.Equal(t, core.EnvironmentUrban, result.Environment)
	assert.Len(t, result.Detections, 1)
}

func TestEnvironmentClient_UnknownLabel(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"environment": "Outer space"})
	})

	client := backend.NewEnvironmentClient(backend.Options{BaseURL: server.URL})

	_, err := client.Classify(context.Background(), sampleAudio, "audio.wav")
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestDialogueClient_Reply(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body core.DialogueRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, core.DialogueRequest{
			Text: "ciao", Emotion: core.EmotionNeutral, Environment: core.EnvironmentMusic,
		}, body)

		writeJSON(t, w, http.StatusOK, map[string]string{"response": "Ciao! Come stai?"})
	})

	client := backend.NewDialogueClient(backend.Options{BaseURL: server.URL})

	reply, err := client.Reply(context.Background(), core.DialogueRequest{
		Text: " ciao ", Environment: core.EnvironmentMusic,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ciao! Come stai?", reply)
}

func TestDialogueClient_EmptyReply(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"response": ""})
	})

	client := backend.NewDialogueClient(backend.Options{BaseURL: server.URL})

	_, err := client.Reply(context.Background(), core.DialogueRequest{Text: "ciao"})
	require.ErrorIs(t, err, core.ErrCollaboratorFailed)
}

func TestSynthesisClient_Synthesize(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/synthesize", r.URL.Path)

		var params core.SynthesisParams
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "Hello.", params.Text)
		assert.Equal(t, 30, params.TopK)
		assert.Equal(t, []float32{0.5, -0.5}, params.SpeakerEmbedding)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(sampleAudio)
	})

	client := backend.NewSynthesisClient(backend.Options{BaseURL: server.URL})

	audioData, err := client.Synthesize(context.Background(), core.SynthesisParams{
		Text: "Hello.", Temperature: 0.4, TopP: 0.8, TopK: 30, SpeakerEmbedding: []float32{0.5, -0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, sampleAudio, audioData)
}

func TestSynthesisClient_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	client := backend.NewSynthesisClient(backend.Options{BaseURL: server.URL})

	_, err := client.Synthesize(context.Background(), core.SynthesisParams{Text: "Hello."})
	require.ErrorIs(t, err, core.ErrCollaboratorFailed)
}

func TestSynthesisClient_SampleSpeaker(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speakers/sample", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	})

	client := backend.NewSynthesisClient(backend.Options{BaseURL: server.URL})

	embedding, err := client.SampleSpeaker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embedding)
}

func TestClient_StructuredErrorIsFailed(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"detail": "model not loaded"})
	})

	client := backend.NewDialogueClient(backend.Options{BaseURL: server.URL})

	_, err := client.Reply(context.Background(), core.DialogueRequest{Text: "ciao"})
	require.ErrorIs(t, err, core.ErrCollaboratorFailed)

	var collabErr *core.CollaboratorError
	require.ErrorAs(t, err, &collabErr)
	assert.Equal(t, "dialogue", collabErr.Collaborator)
	assert.Equal(t, http.StatusInternalServerError, collabErr.StatusCode)
	assert.Equal(t, "model not loaded", collabErr.Detail)
}

func TestClient_RawErrorBody(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway upstream", http.StatusBadGateway)
	})

	client := backend.NewEmotionClient(backend.Options{BaseURL: server.URL})

	_, err := client.ClassifyText(context.Background(), "ciao")

	var collabErr *core.CollaboratorError
	require.ErrorAs(t, err, &collabErr)
	assert.Equal(t, "bad gateway upstream", collabErr.Detail)
}

func TestClient_UndecodableBodyIsFailed(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	client := backend.NewSTTClient(backend.Options{BaseURL: server.URL})

	_, err := client.Transcribe(context.Background(), sampleAudio, "audio.wav")
	require.ErrorIs(t, err, core.ErrCollaboratorFailed)
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	client := backend.NewEnvironmentClient(backend.Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Classify(context.Background(), sampleAudio, "audio.wav")
	require.ErrorIs(t, err, core.ErrCollaboratorUnavailable)
	assert.NotErrorIs(t, err, core.ErrCollaboratorFailed)
}

func TestClient_CancelledContextIsUnavailable(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"response": "late"})
	})

	client := backend.NewDialogueClient(backend.Options{BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Reply(ctx, core.DialogueRequest{Text: "ciao"})
	require.ErrorIs(t, err, core.ErrCollaboratorUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_ConnectionRefusedIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := backend.NewSynthesisClient(backend.Options{BaseURL: url})

	_, err := client.SampleSpeaker(context.Background())
	require.ErrorIs(t, err, core.ErrCollaboratorUnavailable)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	unhealthy := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ok := backend.NewSTTClient(backend.Options{BaseURL: healthy.URL + "/"})
	require.NoError(t, ok.HealthCheck(context.Background()))
	assert.Equal(t, "stt", ok.Name())

	bad := backend.NewSTTClient(backend.Options{BaseURL: unhealthy.URL})
	require.ErrorIs(t, bad.HealthCheck(context.Background()), core.ErrCollaboratorFailed)
}

func TestDialogueClient_HealthCheck(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"response": "hello"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dialogue := backend.NewDialogueClient(backend.Options{BaseURL: server.URL})
	require.NoError(t, dialogue.HealthCheck(context.Background()))
	assert.Equal(t, "dialogue", dialogue.Name())

	stt := backend.NewSTTClient(backend.Options{BaseURL: server.URL})
	require.ErrorIs(t, stt.HealthCheck(context.Background()), core.ErrCollaboratorFailed)
}
