package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/rubric"
)

// ollamaProvider talks to a local Ollama server over its chat API.
type ollamaProvider struct {
	model   string
	baseURL string
	client  *http.Client
}

func newOllamaProvider(cfg config.OllamaConfig) *ollamaProvider {
	return &ollamaProvider{
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

func (p *ollamaProvider) chat(ctx context.Context, prompt, format string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   format,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama chat: status %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return parsed.Message.Content, nil
}

func (p *ollamaProvider) OrganizeFeedback(ctx context.Context, transcript string, r *rubric.Rubric, detail DetailLevel) (*OrganizedFeedback, error) {
	prompt := buildOrganizePrompt(transcript, r, detail)
	content, err := p.chat(ctx, prompt, "json")
	if err != nil {
		return nil, err
	}
	result, err := decodeOrganizeResponse(content)
	if err != nil {
		return nil, err
	}
	return newOrganizedFeedback(r, result.Summary, result.CriterionFeedback, transcript), nil
}

func (p *ollamaProvider) OrganizeStructuredFeedback(ctx context.Context, transcript string, r *rubric.Rubric, instructionPrompt string) (*StructuredFeedback, error) {
	prompt := buildStructuredPrompt(transcript, r, instructionPrompt)
	content, err := p.chat(ctx, prompt, "")
	if err != nil {
		return nil, err
	}
	return &StructuredFeedback{
		RubricName:    r.Name,
		FeedbackText:  content,
		RawTranscript: transcript,
	}, nil
}

// Available probes the server's model listing with a short deadline so a
// stopped daemon fails fast instead of hanging the caller.
func (p *ollamaProvider) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
