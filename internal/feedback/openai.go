package feedback

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/rubric"
)

// openAICompatProvider serves both OpenAI itself and OpenRouter, which
// exposes the same chat-completions surface behind a different base URL.
type openAICompatProvider struct {
	id     ProviderID
	apiKey string
	model  string
	client openai.Client
}

func newOpenAIProvider(cfg config.OpenAIConfig) *openAICompatProvider {
	return &openAICompatProvider{
		id:     ProviderOpenAI,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func newOpenRouterProvider(cfg config.OpenRouterConfig) *openAICompatProvider {
	return &openAICompatProvider{
		id:     ProviderOpenRouter,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
		),
	}
}

func (p *openAICompatProvider) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.id, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: empty choice list", p.id)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAICompatProvider) OrganizeFeedback(ctx context.Context, transcript string, r *rubric.Rubric, detail DetailLevel) (*OrganizedFeedback, error) {
	prompt := buildOrganizePrompt(transcript, r, detail)
	content, err := p.complete(ctx, prompt, true)
	if err != nil {
		return nil, err
	}
	result, err := decodeOrganizeResponse(content)
	if err != nil {
		return nil, err
	}
	return newOrganizedFeedback(r, result.Summary, result.CriterionFeedback, transcript), nil
}

func (p *openAICompatProvider) OrganizeStructuredFeedback(ctx context.Context, transcript string, r *rubric.Rubric, instructionPrompt string) (*StructuredFeedback, error) {
	prompt := buildStructuredPrompt(transcript, r, instructionPrompt)
	content, err := p.complete(ctx, prompt, false)
	if err != nil {
		return nil, err
	}
	return &StructuredFeedback{
		RubricName:    r.Name,
		FeedbackText:  content,
		RawTranscript: transcript,
	}, nil
}

// Available only checks configuration; a live probe would spend tokens.
func (p *openAICompatProvider) Available(ctx context.Context) bool {
	return p.apiKey != ""
}
