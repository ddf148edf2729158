package main

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-orchestrator/internal/backend"
	"github.com/book-expert/voice-orchestrator/internal/config"
	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/jobstore"
	"github.com/book-expert/voice-orchestrator/internal/natsserver"
	"github.com/book-expert/voice-orchestrator/internal/objectstore"
	"github.com/book-expert/voice-orchestrator/internal/observe"
	"github.com/book-expert/voice-orchestrator/internal/orchestrator"
	"github.com/book-expert/voice-orchestrator/internal/proxy"
	"github.com/book-expert/voice-orchestrator/internal/speaker"
	"github.com/book-expert/voice-orchestrator/internal/synthesis"
	"github.com/book-expert/voice-orchestrator/internal/worker"
)

// app owns every long-lived component of the service.
type app struct {
	cfg *config.Config
	log *logger.Logger

	embedded        *natsserver.EmbeddedServer
	natsConnection  *nats.Conn
	memory          *jobstore.Memory
	synthesisWorker *worker.Worker
	pool            *worker.Pool
	natsWorker      *worker.NatsWorker

	speakers     *speaker.Cache
	orchestrator *orchestrator.Orchestrator
}

func newApp(cfg *config.Config, metrics *observe.Metrics, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	err := a.connectNATS()
	if err != nil {
		a.close()

		return nil, err
	}

	store, err := a.jobStore()
	if err != nil {
		a.close()

		return nil, err
	}

	collaboratorOptions := func(c config.CollaboratorConfig) backend.Options {
		return backend.Options{BaseURL: c.URL, Timeout: c.Timeout(), Metrics: metrics}
	}

	stt := backend.NewSTTClient(collaboratorOptions(cfg.Collaborators.STT))
	emotion := backend.NewEmotionClient(collaboratorOptions(cfg.Collaborators.Emotion))
	environment := backend.NewEnvironmentClient(collaboratorOptions(cfg.Collaborators.Environment))
	dialogue := backend.NewDialogueClient(collaboratorOptions(cfg.Collaborators.Dialogue))
	synth := backend.NewSynthesisClient(collaboratorOptions(cfg.Collaborators.Synthesis))

	a.speakers, err = speaker.NewCache(cfg.Synthesis.SpeakerCacheSize, synth)
	if err != nil {
		a.close()

		return nil, fmt.Errorf("failed to create speaker cache: %w", err)
	}

	a.synthesisWorker = worker.New(store, synth, a.speakers, cfg.Synthesis.Timeout(), metrics, log)
	a.pool = worker.NewPool(a.synthesisWorker, cfg.Synthesis.Workers, log)

	var dispatcher core.Dispatcher = a.pool

	if cfg.Synthesis.Dispatch == config.DispatchNATS {
		dispatcher = worker.NewNatsDispatcher(a.natsConnection, cfg.NATS.SynthesisSubject)
		a.natsWorker = worker.NewNatsWorker(
			a.natsConnection, cfg.NATS.SynthesisSubject, cfg.NATS.WorkerQueue, a.pool, log)
	}

	service := synthesis.NewService(store, dispatcher, metrics, log)

	a.orchestrator = orchestrator.New(orchestrator.Collaborators{
		Transcriber: stt,
		Emotion:     emotion,
		Environment: environment,
		Dialogue:    dialogue,
	}, service, proxy.New(store), orchestrator.Options{
		AnalysisTimeout: cfg.Orchestrator.AnalysisTimeout(),
		ConverseTimeout: cfg.Orchestrator.ConverseTimeout(),
		MessageTimeout:  cfg.Orchestrator.MessageTimeout(),
		HealthChecks:    []orchestrator.HealthChecker{stt, emotion, environment, dialogue, synth},
	}, log)

	return a, nil
}

func (a *app) connectNATS() error {
	if !a.cfg.UsesNATS() {
		return nil
	}

	embedded, err := natsserver.Start(a.cfg.NATS, a.log)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}

	a.embedded = embedded

	url := a.cfg.NATS.URL
	if embedded != nil {
		url = embedded.ClientURL()
	}

	a.natsConnection, err = nats.Connect(url, nats.Name(a.cfg.Telemetry.ServiceName), nats.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	a.log.System("Connected to NATS at %s", url)

	return nil
}

func (a *app) jobStore() (core.JobStore, error) {
	retention := a.cfg.JobStore.Retention()

	if a.cfg.JobStore.Backend == config.StoreMemory {
		a.memory = jobstore.NewMemory(retention, a.log)

		return a.memory, nil
	}

	jetstreamContext, err := a.natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	audio, err := objectstore.New(jetstreamContext, a.cfg.NATS.AudioBucket, retention)
	if err != nil {
		return nil, fmt.Errorf("failed to bind audio store: %w", err)
	}

	store, err := jobstore.NewNATS(jetstreamContext, a.cfg.NATS.JobBucket, retention, audio)
	if err != nil {
		return nil, fmt.Errorf("failed to bind job store: %w", err)
	}

	return store, nil
}

// run serves the background components until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	if a.memory != nil {
		eg.Go(func() error {
			a.memory.Run(egCtx, a.cfg.JobStore.SweepInterval())

			return nil
		})
	}

	if a.natsWorker != nil {
		eg.Go(func() error {
			return a.natsWorker.Run(egCtx)
		})
	}

	return eg.Wait()
}

// drain waits for running synthesis jobs. Jobs still running when ctx
// expires are cancelled and recorded as failed.
func (a *app) drain(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}

	err := a.pool.Close(ctx)
	if err != nil {
		return fmt.Errorf("failed to drain synthesis workers: %w", err)
	}

	return nil
}

func (a *app) close() {
	if a.natsConnection != nil {
		a.natsConnection.Close()
	}

	a.embedded.Shutdown()
}
