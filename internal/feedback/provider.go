package feedback

import (
	"context"
	"fmt"

	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/rubric"
)

// ProviderID names one of the supported language-model backends.
type ProviderID string

const (
	ProviderOllama     ProviderID = "ollama"
	ProviderOpenAI     ProviderID = "openai"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderOpenRouter ProviderID = "openrouter"
)

// ProviderIDs lists every supported backend in presentation order.
func ProviderIDs() []ProviderID {
	return []ProviderID{ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter}
}

// ParseProviderID validates a provider name.
func ParseProviderID(s string) (ProviderID, error) {
	switch id := ProviderID(s); id {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter:
		return id, nil
	default:
		return "", fmt.Errorf("unknown provider %q (choose ollama|openai|anthropic|openrouter)", s)
	}
}

// Provider is one language-model backend capable of organizing transcripts.
// Implementations are stateless apart from their API client and safe for
// concurrent use.
type Provider interface {
	// OrganizeFeedback maps the transcript onto the rubric's criteria.
	OrganizeFeedback(ctx context.Context, transcript string, r *rubric.Rubric, detail DetailLevel) (*OrganizedFeedback, error)
	// OrganizeStructuredFeedback applies a caller-supplied instruction
	// template; the model's raw response becomes the feedback body.
	OrganizeStructuredFeedback(ctx context.Context, transcript string, r *rubric.Rubric, instructionPrompt string) (*StructuredFeedback, error)
	// Available reports whether the backend is reachable and configured.
	Available(ctx context.Context) bool
}

// newProvider constructs the backend for id from configuration.
func newProvider(id ProviderID, cfg config.LLMConfig) (Provider, error) {
	switch id {
	case ProviderOllama:
		return newOllamaProvider(cfg.Ollama), nil
	case ProviderOpenAI:
		return newOpenAIProvider(cfg.OpenAI), nil
	case ProviderAnthropic:
		return newAnthropicProvider(cfg.Anthropic), nil
	case ProviderOpenRouter:
		return newOpenRouterProvider(cfg.OpenRouter), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", id)
	}
}
