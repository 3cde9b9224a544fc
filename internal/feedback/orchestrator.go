package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/rubric"
)

// Orchestrator routes organization requests to the configured provider,
// checking availability up front so a misconfigured backend fails before any
// prompt is sent. Provider adapters are built lazily and cached.
type Orchestrator struct {
	cfg     config.LLMConfig
	log     *slog.Logger
	factory func(ProviderID, config.LLMConfig) (Provider, error)

	mu    sync.Mutex
	cache map[ProviderID]Provider

	bootstrapOnce sync.Once
}

// NewOrchestrator builds an orchestrator from LLM configuration.
func NewOrchestrator(cfg config.LLMConfig, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		log:     log.With(slog.String("component", "feedback")),
		factory: newProvider,
		cache:   make(map[ProviderID]Provider),
	}
}

// resolve picks the provider for a request: the override when given,
// otherwise the configured default.
func (o *Orchestrator) resolve(override string) (ProviderID, Provider, error) {
	name := override
	if name == "" {
		name = o.cfg.Provider
	}
	id, err := ParseProviderID(name)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrProviderUnresolved, name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.cache[id]; ok {
		return id, p, nil
	}
	p, err := o.factory(id, o.cfg)
	if err != nil {
		return "", nil, err
	}
	o.cache[id] = p
	return id, p, nil
}

// ready resolves the provider and verifies it is usable, bootstrapping the
// local Ollama daemon on first miss.
func (o *Orchestrator) ready(ctx context.Context, override string) (ProviderID, Provider, error) {
	id, p, err := o.resolve(override)
	if err != nil {
		return "", nil, err
	}
	if p.Available(ctx) {
		return id, p, nil
	}
	if id == ProviderOllama {
		o.bootstrapOllama()
		if p.Available(ctx) {
			return id, p, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, id)
}

// bootstrapOllama launches the configured serve command once per process and
// gives the daemon a moment to bind. Launch failures are only logged; the
// follow-up availability probe decides the outcome.
func (o *Orchestrator) bootstrapOllama() {
	o.bootstrapOnce.Do(func() {
		command := o.cfg.Ollama.BootstrapCommand
		if command == "" {
			return
		}
		args, err := shellwords.Parse(command)
		if err != nil || len(args) == 0 {
			o.log.Warn("invalid ollama bootstrap command",
				slog.String("command", command))
			return
		}
		cmd := exec.Command(args[0], args[1:]...)
		if err := cmd.Start(); err != nil {
			o.log.Warn("ollama bootstrap failed",
				slog.String("command", command),
				slog.String("error", err.Error()))
			return
		}
		o.log.Info("started ollama server", slog.Int("pid", cmd.Process.Pid))
		go cmd.Wait()
		time.Sleep(2 * time.Second)
	})
}

// OrganizeFeedback runs the by-criterion organization mode. providerOverride
// selects a backend for this call only; empty uses the configured default.
func (o *Orchestrator) OrganizeFeedback(ctx context.Context, transcript string, r *rubric.Rubric, detail DetailLevel, providerOverride string) (*OrganizedFeedback, error) {
	id, p, err := o.ready(ctx, providerOverride)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := p.OrganizeFeedback(ctx, transcript, r, detail)
	if err != nil {
		kind := Classify(err)
		o.log.Error("organize feedback failed",
			slog.String("provider", string(id)),
			slog.String("failure", string(kind)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if !o.cfg.IncludeRawTranscript {
		result.RawTranscript = ""
	}
	o.log.Info("organized feedback",
		slog.String("provider", string(id)),
		slog.String("rubric", r.Name),
		slog.Int("criteria", len(result.Criteria)),
		slog.Duration("elapsed", time.Since(started)))
	return result, nil
}

// OrganizeStructuredFeedback runs the free-form instruction mode.
func (o *Orchestrator) OrganizeStructuredFeedback(ctx context.Context, transcript string, r *rubric.Rubric, instructionPrompt string, providerOverride string) (*StructuredFeedback, error) {
	id, p, err := o.ready(ctx, providerOverride)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := p.OrganizeStructuredFeedback(ctx, transcript, r, instructionPrompt)
	if err != nil {
		kind := Classify(err)
		o.log.Error("organize structured feedback failed",
			slog.String("provider", string(id)),
			slog.String("failure", string(kind)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if !o.cfg.IncludeRawTranscript {
		result.RawTranscript = ""
	}
	o.log.Info("organized structured feedback",
		slog.String("provider", string(id)),
		slog.String("rubric", r.Name),
		slog.Duration("elapsed", time.Since(started)))
	return result, nil
}

// ListAvailableProviders reports which backends are currently usable.
func (o *Orchestrator) ListAvailableProviders(ctx context.Context) []ProviderID {
	var out []ProviderID
	for _, id := range ProviderIDs() {
		_, p, err := o.resolve(string(id))
		if err != nil {
			continue
		}
		if p.Available(ctx) {
			out = append(out, id)
		}
	}
	return out
}
