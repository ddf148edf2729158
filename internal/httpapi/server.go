// Package httpapi exposes the orchestrator over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/observe"
	"github.com/book-expert/voice-orchestrator/internal/orchestrator"
	"github.com/book-expert/voice-orchestrator/internal/proxy"
)

const defaultMaxUploadBytes = 25 << 20

// Service is the orchestration surface served over HTTP.
type Service interface {
	AnalyzeAudio(ctx context.Context, data []byte) (core.Analysis, error)
	Transcribe(ctx context.Context, data []byte) (core.Transcription, error)
	Converse(ctx context.Context, text string, emotion core.Emotion, environment core.Environment) (string, error)
	Message(ctx context.Context, text string, speak bool) (orchestrator.Reply, error)
	VoiceTurn(ctx context.Context, data []byte, speak bool) (orchestrator.Turn, error)
	RequestSpeech(ctx context.Context, text, emotion, speakerID string) (core.SynthesisJob, error)
	SpeechStatus(ctx context.Context, id string) (proxy.Audio, error)
	JobStatus(ctx context.Context, id string) (core.SynthesisJob, error)
	Health(ctx context.Context) orchestrator.Health
}

// SpeakerLister lists the cached speaker ids.
type SpeakerLister interface {
	IDs() []string
	Len() int
}

// WorkLister reports the synthesis jobs this process is working on.
type WorkLister interface {
	InFlight() []string
}

// Options configure a Server.
type Options struct {
	MaxUploadBytes int64
	Metrics        *observe.Metrics
	// Work adds the in-flight job ids to GET /health when set.
	Work WorkLister
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// Server routes HTTP requests to the orchestrator.
type Server struct {
	service  Service
	speakers SpeakerLister
	options  Options
	log      *logger.Logger
}

// New creates a Server.
func New(service Service, speakers SpeakerLister, options Options, log *logger.Logger) *Server {
	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = defaultMaxUploadBytes
	}

	return &Server{
		service:  service,
		speakers: speakers,
		options:  options,
		log:      log,
	}
}

// Register adds every route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze-audio", s.handleAnalyzeAudio)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/converse", s.handleConverse)
	mux.HandleFunc("POST /api/message", s.handleMessage)
	mux.HandleFunc("POST /api/voice-turn", s.handleVoiceTurn)
	mux.HandleFunc("POST /api/speech", s.handleRequestSpeech)
	mux.HandleFunc("GET /api/speech/{id}", s.handleSpeechAudio)
	mux.HandleFunc("GET /api/speech/{id}/status", s.handleSpeechStatus)
	mux.HandleFunc("GET /api/speakers", s.handleSpeakers)
	mux.HandleFunc("GET /api/emotions", s.handleEmotions)
	mux.HandleFunc("GET /api/environments", s.handleEnvironments)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.options.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.options.MetricsHandler)
	}
}

// Handler returns the routed handler wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)

	return s.options.Metrics.Middleware(mux)
}

// AudioURL is where the audio of a synthesis job can be polled.
func AudioURL(jobID string) string {
	if jobID == "" {
		return ""
	}

	return "/api/speech/" + jobID
}
