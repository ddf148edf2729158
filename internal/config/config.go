// Package config provides the configuration structure for the voice-orchestrator.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Dispatch modes for synthesis jobs.
const (
	DispatchLocal = "local"
	DispatchNATS  = "nats"
)

// Job store backends.
const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
)

var (
	// ErrCollaboratorURLEmpty indicates a collaborator without a base URL.
	ErrCollaboratorURLEmpty = errors.New("collaborator url cannot be empty")
	// ErrUnknownDispatch indicates an unsupported synthesis dispatch mode.
	ErrUnknownDispatch = errors.New("unknown synthesis dispatch mode")
	// ErrUnknownStore indicates an unsupported job store backend.
	ErrUnknownStore = errors.New("unknown job store backend")
	// ErrNATSRequired indicates a NATS-backed component without a NATS url or embedded server.
	ErrNATSRequired = errors.New("nats url or embedded server required")
	// ErrDispatchStore indicates NATS dispatch over a store other workers cannot reach.
	ErrDispatchStore = errors.New("nats dispatch requires the nats job store")
	// ErrPortRange indicates a listen port outside [1, 65535].
	ErrPortRange = errors.New("port must be between 1 and 65535")
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Bind                string `toml:"bind"`
	Port                int    `toml:"port"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	MaxUploadBytes      int64  `toml:"max_upload_bytes"`
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// OrchestratorConfig holds the umbrella deadlines of the synchronous flows.
type OrchestratorConfig struct {
	AnalysisTimeoutSeconds int `toml:"analysis_timeout_seconds"`
	ConverseTimeoutSeconds int `toml:"converse_timeout_seconds"`
	MessageTimeoutSeconds  int `toml:"message_timeout_seconds"`
}

// AnalysisTimeout returns the audio-analysis umbrella deadline.
func (o OrchestratorConfig) AnalysisTimeout() time.Duration {
	return seconds(o.AnalysisTimeoutSeconds)
}

// ConverseTimeout returns the dialogue umbrella deadline.
func (o OrchestratorConfig) ConverseTimeout() time.Duration {
	return seconds(o.ConverseTimeoutSeconds)
}

// MessageTimeout returns the deadline of the combined text and voice flows.
func (o OrchestratorConfig) MessageTimeout() time.Duration {
	return seconds(o.MessageTimeoutSeconds)
}

// CollaboratorConfig locates one backend service.
type CollaboratorConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-call timeout.
func (c CollaboratorConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// CollaboratorsConfig groups the backend services.
type CollaboratorsConfig struct {
	STT         CollaboratorConfig `toml:"stt"`
	Emotion     CollaboratorConfig `toml:"emotion"`
	Environment CollaboratorConfig `toml:"environment"`
	Dialogue    CollaboratorConfig `toml:"dialogue"`
	Synthesis   CollaboratorConfig `toml:"synthesis"`
}

// SynthesisConfig controls the background synthesis workers.
type SynthesisConfig struct {
	Workers          int    `toml:"workers"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	SpeakerCacheSize int    `toml:"speaker_cache_size"`
	Dispatch         string `toml:"dispatch"`
}

// Timeout returns the deadline of a single job.
func (s SynthesisConfig) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

// JobStoreConfig selects and tunes the job store.
type JobStoreConfig struct {
	Backend              string `toml:"backend"`
	RetentionMinutes     int    `toml:"retention_minutes"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
}

// Retention returns how long terminal jobs are kept.
func (j JobStoreConfig) Retention() time.Duration {
	return time.Duration(j.RetentionMinutes) * time.Minute
}

// SweepInterval returns the period of the in-memory sweeper.
func (j JobStoreConfig) SweepInterval() time.Duration {
	return seconds(j.SweepIntervalSeconds)
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL              string `toml:"url"`
	Embedded         bool   `toml:"embedded"`
	EmbeddedPort     int    `toml:"embedded_port"`
	StoreDir         string `toml:"store_dir"`
	JobBucket        string `toml:"job_bucket"`
	AudioBucket      string `toml:"audio_bucket"`
	SynthesisSubject string `toml:"synthesis_subject"`
	WorkerQueue      string `toml:"worker_queue"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	ServiceName    string `toml:"service_name"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Orchestrator  OrchestratorConfig  `toml:"orchestrator"`
	Collaborators CollaboratorsConfig `toml:"collaborators"`
	Synthesis     SynthesisConfig     `toml:"synthesis"`
	JobStore      JobStoreConfig      `toml:"job_store"`
	NATS          NATSConfig          `toml:"nats"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
	Paths         PathsConfig         `toml:"paths"`
}

// Load loads the configuration for the voice-orchestrator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every zero-valued setting with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Bind, "0.0.0.0")
	setInt(&c.Server.Port, 8080)
	setInt(&c.Server.ReadTimeoutSeconds, 30)
	setInt(&c.Server.WriteTimeoutSeconds, 240)

	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 25 << 20
	}

	setInt(&c.Orchestrator.AnalysisTimeoutSeconds, 60)
	setInt(&c.Orchestrator.ConverseTimeoutSeconds, 180)
	setInt(&c.Orchestrator.MessageTimeoutSeconds, 210)

	setInt(&c.Collaborators.STT.TimeoutSeconds, 60)
	setInt(&c.Collaborators.Emotion.TimeoutSeconds, 30)
	setInt(&c.Collaborators.Environment.TimeoutSeconds, 30)
	setInt(&c.Collaborators.Dialogue.TimeoutSeconds, 180)
	setInt(&c.Collaborators.Synthesis.TimeoutSeconds, 300)

	setInt(&c.Synthesis.Workers, 2)
	setInt(&c.Synthesis.TimeoutSeconds, 300)
	setInt(&c.Synthesis.SpeakerCacheSize, 256)
	setString(&c.Synthesis.Dispatch, DispatchLocal)

	setString(&c.JobStore.Backend, StoreMemory)
	setInt(&c.JobStore.RetentionMinutes, 60)
	setInt(&c.JobStore.SweepIntervalSeconds, 60)

	setInt(&c.NATS.EmbeddedPort, 4222)
	setString(&c.NATS.StoreDir, "./data/nats")
	setString(&c.NATS.JobBucket, "SYNTHESIS_JOBS")
	setString(&c.NATS.AudioBucket, "SYNTHESIS_AUDIO")
	setString(&c.NATS.SynthesisSubject, "synthesis.requested")
	setString(&c.NATS.WorkerQueue, "synthesis-workers")

	setString(&c.Telemetry.ServiceName, "voice-orchestrator")
	setString(&c.Paths.BaseLogsDir, "./logs")
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port=%d", ErrPortRange, c.Server.Port)
	}

	collaborators := map[string]CollaboratorConfig{
		"stt":         c.Collaborators.STT,
		"emotion":     c.Collaborators.Emotion,
		"environment": c.Collaborators.Environment,
		"dialogue":    c.Collaborators.Dialogue,
		"synthesis":   c.Collaborators.Synthesis,
	}

	for name, collaborator := range collaborators {
		if collaborator.URL == "" {
			return fmt.Errorf("%w: collaborators.%s", ErrCollaboratorURLEmpty, name)
		}
	}

	switch c.Synthesis.Dispatch {
	case DispatchLocal, DispatchNATS:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDispatch, c.Synthesis.Dispatch)
	}

	switch c.JobStore.Backend {
	case StoreMemory, StoreNATS:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.JobStore.Backend)
	}

	if c.Synthesis.Dispatch == DispatchNATS && c.JobStore.Backend != StoreNATS {
		return fmt.Errorf("%w: job_store.backend=%q", ErrDispatchStore, c.JobStore.Backend)
	}

	if c.UsesNATS() && c.NATS.URL == "" && !c.NATS.Embedded {
		return ErrNATSRequired
	}

	return nil
}

// UsesNATS reports whether any component needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.Synthesis.Dispatch == DispatchNATS || c.JobStore.Backend == StoreNATS
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field <= 0 {
		*field = value
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
