package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/orchestrator"
	"github.com/book-expert/voice-orchestrator/internal/synthesis"
)

// Log messages.
const (
	logRequestFailed   = "%s %s failed with %d: %v"
	logRequestRejected = "%s %s rejected with %d: %v"
	logEncodeFailed    = "Failed to encode response for %s %s: %v"
)

type errorResponse struct {
	Error  string   `json:"error"`
	Failed []string `json:"failed,omitempty"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrJobFailed):
		return http.StatusFailedDependency
	case errors.Is(err, core.ErrCollaboratorFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrCollaboratorUnavailable):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}

		return http.StatusServiceUnavailable
	case errors.Is(err, synthesis.ErrDispatch):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	if status >= http.StatusInternalServerError {
		s.log.Error(logRequestFailed, r.Method, r.URL.Path, status, err)
	} else {
		s.log.Warn(logRequestRejected, r.Method, r.URL.Path, status, err)
	}

	body := errorResponse{Error: err.Error()}

	var fanInErr *orchestrator.FanInError
	if errors.As(err, &fanInErr) {
		body.Failed = fanInErr.Branches()
	}

	s.writeJSON(w, r, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.log.Error(logEncodeFailed, r.Method, r.URL.Path, err)
	}
}

// decodeJSON reads a bounded JSON request body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes)

	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}

		return core.Invalid("malformed JSON body: %v", err)
	}

	return nil
}
