// Package runtime wires the capture, transcription, feedback, and history
// components together behind one process lifecycle with health endpoints.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/echomark/echomark/internal/bus"
	"github.com/echomark/echomark/internal/capture"
	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/feedback"
	"github.com/echomark/echomark/internal/history"
	"github.com/echomark/echomark/internal/natsserver"
	"github.com/echomark/echomark/internal/tasks"
	"github.com/echomark/echomark/internal/transcribe"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	telemetry  *telemetry
	audioHist  metric.Float64Histogram
	ready      atomic.Bool
	wg         sync.WaitGroup

	natsServer   *natsserver.EmbeddedServer
	busClient    *bus.Client
	store        *history.Store
	engine       *transcribe.Engine
	orchestrator *feedback.Orchestrator
	backend      *capture.MalgoBackend
	recorder     *capture.Recorder
	runner       *tasks.Runner

	sessionMu sync.Mutex
	sessions  map[string]*sessionState
	activeID  string
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*sessionState),
	}
}

// Start brings every component up, serves health and metrics endpoints, and
// blocks until ctx is canceled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := newTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel
	r.initMetrics()

	r.natsServer, err = natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus server: %w", err)
	}

	r.busClient, err = bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	r.store, err = history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}

	r.engine = transcribe.NewEngine(r.cfg.Transcribe, r.logger, nil)
	r.orchestrator = feedback.NewOrchestrator(r.cfg.LLM, r.logger)
	r.runner = tasks.NewRunner(r.busClient, r.logger)

	r.backend, err = capture.NewMalgoBackend()
	if err != nil {
		// Keep transcription of uploaded files and feedback organization
		// usable on machines with no audio stack.
		r.logger.Warn("audio backend unavailable, recording disabled",
			slog.String("error", err.Error()))
	} else {
		r.recorder = capture.New(r.cfg.Capture, r.backend, r.logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if tel.handler != nil {
		mux.Handle("/metrics", tel.handler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}

	if r.recorder != nil {
		r.recorder.Cancel()
	}
	r.runner.Wait()
	r.wg.Wait()

	if err := r.engine.Close(); err != nil {
		r.logger.Error("engine shutdown error", slog.String("error", err.Error()))
	}
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			r.logger.Error("audio backend shutdown error", slog.String("error", err.Error()))
		}
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("history shutdown error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}

	if r.telemetry != nil {
		if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// initMetrics registers runtime instruments against the installed meter
// provider. Instrument failures degrade to unrecorded metrics, not a dead
// runtime.
func (r *Runtime) initMetrics() {
	meter := otel.Meter("github.com/echomark/echomark/runtime")
	hist, err := meter.Float64Histogram("echomark.transcribe.audio_seconds",
		metric.WithDescription("Seconds of recorded audio transcribed per session"),
		metric.WithUnit("s"))
	if err != nil {
		r.logger.Warn("runtime metrics unavailable", slog.String("error", err.Error()))
		return
	}
	r.audioHist = hist
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient != nil && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
