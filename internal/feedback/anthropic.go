package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/rubric"
)

type anthropicProvider struct {
	apiKey string
	model  string
	client anthropic.Client
}

func newAnthropicProvider(cfg config.AnthropicConfig) *anthropicProvider {
	return &anthropicProvider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (p *anthropicProvider) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// OrganizeFeedback relies on response parsing rather than a JSON mode; the
// decoder locates the object inside any surrounding prose.
func (p *anthropicProvider) OrganizeFeedback(ctx context.Context, transcript string, r *rubric.Rubric, detail DetailLevel) (*OrganizedFeedback, error) {
	prompt := buildOrganizePrompt(transcript, r, detail)
	content, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result, err := decodeOrganizeResponse(content)
	if err != nil {
		return nil, err
	}
	return newOrganizedFeedback(r, result.Summary, result.CriterionFeedback, transcript), nil
}

func (p *anthropicProvider) OrganizeStructuredFeedback(ctx context.Context, transcript string, r *rubric.Rubric, instructionPrompt string) (*StructuredFeedback, error) {
	prompt := buildStructuredPrompt(transcript, r, instructionPrompt)
	content, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &StructuredFeedback{
		RubricName:    r.Name,
		FeedbackText:  content,
		RawTranscript: transcript,
	}, nil
}

func (p *anthropicProvider) Available(ctx context.Context) bool {
	return p.apiKey != ""
}
