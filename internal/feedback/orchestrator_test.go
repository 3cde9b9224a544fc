package feedback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/rubric"
)

type stubProvider struct {
	available      bool
	organizeCalls  int
	structureCalls int
	err            error
}

func (s *stubProvider) OrganizeFeedback(ctx context.Context, transcript string, r *rubric.Rubric, detail DetailLevel) (*OrganizedFeedback, error) {
	s.organizeCalls++
	if s.err != nil {
		return nil, s.err
	}
	return newOrganizedFeedback(r, "stub summary", map[string]string{"Content": "stub"}, transcript), nil
}

func (s *stubProvider) OrganizeStructuredFeedback(ctx context.Context, transcript string, r *rubric.Rubric, instructionPrompt string) (*StructuredFeedback, error) {
	s.structureCalls++
	if s.err != nil {
		return nil, s.err
	}
	return &StructuredFeedback{RubricName: r.Name, FeedbackText: "stub body", RawTranscript: transcript}, nil
}

func (s *stubProvider) Available(ctx context.Context) bool { return s.available }

func newTestOrchestrator(t *testing.T, providers map[ProviderID]*stubProvider, cfg config.LLMConfig) *Orchestrator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOrchestrator(cfg, log)
	o.factory = func(id ProviderID, _ config.LLMConfig) (Provider, error) {
		p, ok := providers[id]
		if !ok {
			return nil, errors.New("no stub for " + string(id))
		}
		return p, nil
	}
	return o
}

func baseLLMConfig() config.LLMConfig {
	cfg := config.Default().LLM
	cfg.Ollama.BootstrapCommand = ""
	return cfg
}

func TestOrganizeUsesDefaultProvider(t *testing.T) {
	stub := &stubProvider{available: true}
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{ProviderOllama: stub}, baseLLMConfig())

	r := twoCriterionRubric()
	result, err := o.OrganizeFeedback(context.Background(), "great work", r, DetailDetailed, "")
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	if stub.organizeCalls != 1 {
		t.Fatalf("expected one organize call, got %d", stub.organizeCalls)
	}
	if result.RubricName != "Essay" || result.Summary != "stub summary" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOrganizeProviderOverride(t *testing.T) {
	def := &stubProvider{available: true}
	alt := &stubProvider{available: true}
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{
		ProviderOllama: def,
		ProviderOpenAI: alt,
	}, baseLLMConfig())

	if _, err := o.OrganizeFeedback(context.Background(), "t", twoCriterionRubric(), DetailBrief, "openai"); err != nil {
		t.Fatalf("organize: %v", err)
	}
	if def.organizeCalls != 0 || alt.organizeCalls != 1 {
		t.Fatalf("override not honored: default=%d override=%d", def.organizeCalls, alt.organizeCalls)
	}
}

func TestOrganizeUnknownProvider(t *testing.T) {
	o := newTestOrchestrator(t, nil, baseLLMConfig())
	_, err := o.OrganizeFeedback(context.Background(), "t", twoCriterionRubric(), DetailBrief, "grok")
	if !errors.Is(err, ErrProviderUnresolved) {
		t.Fatalf("expected ErrProviderUnresolved, got %v", err)
	}
}

func TestOrganizeUnavailableProviderFailsFast(t *testing.T) {
	stub := &stubProvider{available: false}
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{ProviderOpenAI: stub}, baseLLMConfig())

	_, err := o.OrganizeFeedback(context.Background(), "t", twoCriterionRubric(), DetailBrief, "openai")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if stub.organizeCalls != 0 {
		t.Fatal("unavailable provider must not receive requests")
	}
}

func TestOrganizeStripsTranscriptWhenNotRequested(t *testing.T) {
	stub := &stubProvider{available: true}
	cfg := baseLLMConfig()
	cfg.IncludeRawTranscript = false
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{ProviderOllama: stub}, cfg)

	result, err := o.OrganizeFeedback(context.Background(), "secret transcript", twoCriterionRubric(), DetailBrief, "")
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	if result.RawTranscript != "" {
		t.Fatalf("transcript should be stripped, got %q", result.RawTranscript)
	}

	cfg.IncludeRawTranscript = true
	o2 := newTestOrchestrator(t, map[ProviderID]*stubProvider{ProviderOllama: stub}, cfg)
	result, err = o2.OrganizeFeedback(context.Background(), "secret transcript", twoCriterionRubric(), DetailBrief, "")
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	if result.RawTranscript != "secret transcript" {
		t.Fatalf("transcript should be kept, got %q", result.RawTranscript)
	}
}

func TestOrganizeStructured(t *testing.T) {
	stub := &stubProvider{available: true}
	cfg := baseLLMConfig()
	cfg.IncludeRawTranscript = true
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{ProviderOllama: stub}, cfg)

	result, err := o.OrganizeStructuredFeedback(context.Background(), "words", twoCriterionRubric(), "Summarize in four sections.", "")
	if err != nil {
		t.Fatalf("organize structured: %v", err)
	}
	if stub.structureCalls != 1 {
		t.Fatalf("expected one structured call, got %d", stub.structureCalls)
	}
	if result.FeedbackText != "stub body" || result.RawTranscript != "words" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOrganizeSurfacesProviderError(t *testing.T) {
	boom := errors.New("Error code: 429 - insufficient_quota")
	stub := &stubProvider{available: true, err: boom}
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{ProviderOllama: stub}, baseLLMConfig())

	_, err := o.OrganizeFeedback(context.Background(), "t", twoCriterionRubric(), DetailBrief, "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if Classify(err) != FailureQuota {
		t.Fatalf("expected quota classification, got %q", Classify(err))
	}
}

func TestListAvailableProviders(t *testing.T) {
	o := newTestOrchestrator(t, map[ProviderID]*stubProvider{
		ProviderOllama:     {available: true},
		ProviderOpenAI:     {available: false},
		ProviderAnthropic:  {available: true},
		ProviderOpenRouter: {available: false},
	}, baseLLMConfig())

	got := o.ListAvailableProviders(context.Background())
	if len(got) != 2 || got[0] != ProviderOllama || got[1] != ProviderAnthropic {
		t.Fatalf("unexpected available providers %v", got)
	}
}

func TestProviderAdapterIsCached(t *testing.T) {
	var built int
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOrchestrator(baseLLMConfig(), log)
	o.factory = func(id ProviderID, _ config.LLMConfig) (Provider, error) {
		built++
		return &stubProvider{available: true}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := o.OrganizeFeedback(context.Background(), "t", twoCriterionRubric(), DetailBrief, ""); err != nil {
			t.Fatalf("organize %d: %v", i, err)
		}
	}
	if built != 1 {
		t.Fatalf("expected one adapter construction, got %d", built)
	}
}
