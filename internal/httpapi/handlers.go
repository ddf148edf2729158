package httpapi

import (
	"net/http"
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/orchestrator"
)

type converseRequest struct {
	Text        string `json:"text"`
	Emotion     string `json:"emotion"`
	Environment string `json:"environment,omitempty"`
}

type converseResponse struct {
	Response string `json:"response"`
}

type messageRequest struct {
	Text  string `json:"text"`
	Speak bool   `json:"speak"`
}

type messageResponse struct {
	Response   string       `json:"response"`
	Emotion    core.Emotion `json:"emotion"`
	Confidence float64      `json:"confidence"`
	JobID      string       `json:"job_id,omitempty"`
	AudioURL   string       `json:"audio_url,omitempty"`
}

type voiceTurnResponse struct {
	Analysis core.Analysis `json:"analysis"`
	Response string        `json:"response"`
	JobID    string        `json:"job_id,omitempty"`
	AudioURL string        `json:"audio_url,omitempty"`
}

type speechRequest struct {
	Text      string `json:"text"`
	Emotion   string `json:"emotion"`
	SpeakerID string `json:"speaker_id,omitempty"`
}

type speechResponse struct {
	JobID    string         `json:"job_id"`
	Status   core.JobStatus `json:"status"`
	AudioURL string         `json:"audio_url"`
}

type speechProgress struct {
	JobID  string         `json:"job_id"`
	Status core.JobStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

type speakersResponse struct {
	Speakers []string `json:"speakers"`
	Count    int      `json:"count"`
}

type emotionsResponse struct {
	Emotions []core.Emotion `json:"emotions"`
}

type environmentInfo struct {
	Name  core.Environment `json:"name"`
	Emoji string           `json:"emoji"`
}

type environmentsResponse struct {
	Environments []environmentInfo `json:"environments"`
}

type collaboratorHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status        string                        `json:"status"`
	Collaborators map[string]collaboratorHealth `json:"collaborators,omitempty"`
	Speakers      int                           `json:"speakers"`
	InFlight      []string                      `json:"in_flight,omitempty"`
}

func (s *Server) handleAnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	data, err := s.readAudio(w, r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	analysis, err := s.service.AnalyzeAudio(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, analysis)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	data, err := s.readAudio(w, r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	transcript, err := s.service.Transcribe(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, transcript)
}

func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	var req converseRequest

	err := s.decodeJSON(w, r, &req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	emotion, _ := core.NormalizeEmotion(req.Emotion)

	var environment core.Environment

	if strings.TrimSpace(req.Environment) != "" {
		parsed, ok := core.ParseEnvironment(req.Environment)
		if !ok {
			s.writeError(w, r, core.Invalid("unknown environment %q", req.Environment))

			return
		}

		environment = parsed
	}

	response, err := s.service.Converse(r.Context(), req.Text, emotion, environment)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, converseResponse{Response: response})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest

	err := s.decodeJSON(w, r, &req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	reply, err := s.service.Message(r.Context(), req.Text, req.Speak)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, messageResponse{
		Response:   reply.Response,
		Emotion:    reply.Emotion,
		Confidence: reply.Confidence,
		JobID:      reply.JobID,
		AudioURL:   AudioURL(reply.JobID),
	})
}

func (s *Server) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	data, err := s.readAudio(w, r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	speak, err := formBool(r, "speak")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	turn, err := s.service.VoiceTurn(r.Context(), data, speak)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, voiceTurnResponse{
		Analysis: turn.Analysis,
		Response: turn.Response,
		JobID:    turn.JobID,
		AudioURL: AudioURL(turn.JobID),
	})
}

func (s *Server) handleRequestSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest

	err := s.decodeJSON(w, r, &req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	job, err := s.service.RequestSpeech(r.Context(), req.Text, req.Emotion, req.SpeakerID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusAccepted, speechResponse{
		JobID:    job.ID,
		Status:   job.Status,
		AudioURL: AudioURL(job.ID),
	})
}

// handleSpeechAudio streams ready audio. Unfinished jobs answer 202 with
// their progress and failed jobs 424 with the recorded error.
func (s *Server) handleSpeechAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.service.SpeechStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	switch {
	case result.Ready():
		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)

		_, err = w.Write(result.Body)
		if err != nil {
			s.log.Warn(logEncodeFailed, r.Method, r.URL.Path, err)
		}
	case result.Err() != nil:
		s.log.Warn(logRequestRejected, r.Method, r.URL.Path, http.StatusFailedDependency, result.Err())
		s.writeJSON(w, r, http.StatusFailedDependency, speechProgress{
			JobID: id, Status: core.StatusFailed, Error: result.Error,
		})
	default:
		s.writeJSON(w, r, http.StatusAccepted, speechProgress{JobID: id, Status: result.Status})
	}
}

func (s *Server) handleSpeechStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.JobStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, job)
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	ids := s.speakers.IDs()
	if ids == nil {
		ids = []string{}
	}

	s.writeJSON(w, r, http.StatusOK, speakersResponse{Speakers: ids, Count: len(ids)})
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, emotionsResponse{Emotions: core.Emotions()})
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	environments := core.Environments()
	infos := make([]environmentInfo, 0, len(environments))

	for _, environment := range environments {
		infos = append(infos, environmentInfo{Name: environment, Emoji: environment.Emoji()})
	}

	s.writeJSON(w, r, http.StatusOK, environmentsResponse{Environments: infos})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, healthResponse{Status: orchestrator.HealthOK})
}

// handleHealth reports 503 while any collaborator is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.service.Health(r.Context())

	response := healthResponse{
		Status:        health.Status,
		Collaborators: make(map[string]collaboratorHealth, len(health.Collaborators)),
		Speakers:      s.speakers.Len(),
	}

	if s.options.Work != nil {
		response.InFlight = s.options.Work.InFlight()
	}

	for _, collaborator := range health.Collaborators {
		response.Collaborators[collaborator.Name] = collaboratorHealth{
			Status: collaborator.Status,
			Error:  collaborator.Error,
		}
	}

	status := http.StatusOK
	if health.Status != orchestrator.HealthOK {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, r, status, response)
}
