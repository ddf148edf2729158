// main package for the voice-orchestrator
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-orchestrator/internal/config"
	"github.com/book-expert/voice-orchestrator/internal/httpapi"
	"github.com/book-expert/voice-orchestrator/internal/observe"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-orchestrator-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "voice-orchestrator.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Metrics
	var (
		metrics        *observe.Metrics
		metricsHandler http.Handler
	)

	if cfg.Telemetry.MetricsEnabled {
		var shutdownMetrics func(context.Context) error

		metrics, metricsHandler, shutdownMetrics, err = observe.InitProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialise metrics: %w", err)
		}

		defer func() { _ = shutdownMetrics(context.Background()) }()
	}

	// 5. Wire every component
	application, err := newApp(cfg, metrics, finalLog)
	if err != nil {
		finalLog.Error("Failed to start: %v", err)

		return err
	}

	defer application.close()

	api := httpapi.New(application.orchestrator, application.speakers, httpapi.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Work:           application.synthesisWorker,
	}, finalLog)

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	// 6. Serve until a signal arrives or a component fails
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		finalLog.System("Voice orchestrator listening on %s (dispatch %s, job store %s)",
			server.Addr, cfg.Synthesis.Dispatch, cfg.JobStore.Backend)

		serveErr := server.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	})

	eg.Go(func() error {
		return application.run(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()

		finalLog.System("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			finalLog.Error("HTTP shutdown error: %v", shutdownErr)
		}

		return application.drain(shutdownCtx)
	})

	err = eg.Wait()
	if err != nil {
		finalLog.Error("Service stopped with error: %v", err)

		return err
	}

	finalLog.System("Voice orchestrator stopped")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
