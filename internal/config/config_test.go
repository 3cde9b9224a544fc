package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected 16kHz capture default, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Transcribe.BeamSize != 5 {
		t.Fatalf("expected beam size 5, got %d", cfg.Transcribe.BeamSize)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Fatalf("expected default provider ollama, got %q", cfg.LLM.Provider)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECHOMARK_LLM_PROVIDER", "openrouter")
	t.Setenv("ECHOMARK_LLM_OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("ECHOMARK_LLM_OPENROUTER_MODEL", "meta-llama/llama-3.1-8b-instruct:free")
	t.Setenv("ECHOMARK_TRANSCRIBE_MODEL_SIZE", "small")
	t.Setenv("ECHOMARK_CAPTURE_DRAIN_TIMEOUT_MS", "500")
	t.Setenv("ECHOMARK_HISTORY_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Provider != "openrouter" {
		t.Fatalf("expected provider override, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.OpenRouter.APIKey != "sk-or-test" {
		t.Fatalf("expected credential override")
	}
	if cfg.LLM.OpenRouter.Model != "meta-llama/llama-3.1-8b-instruct:free" {
		t.Fatalf("expected model override, got %q", cfg.LLM.OpenRouter.Model)
	}
	if cfg.Transcribe.ModelSize != "small" {
		t.Fatalf("expected model size override, got %q", cfg.Transcribe.ModelSize)
	}
	if cfg.Capture.DrainTimeoutMS != 500 {
		t.Fatalf("expected drain timeout override, got %d", cfg.Capture.DrainTimeoutMS)
	}
	if cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention mode override, got %q", cfg.History.RetentionMode)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echomark.yaml")
	body := []byte(`
transcribe:
  model_size: medium
llm:
  provider: openai
  openai:
    api_key: sk-test
    model: gpt-4o
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transcribe.ModelSize != "medium" {
		t.Fatalf("expected model size medium, got %q", cfg.Transcribe.ModelSize)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.OpenAI.Model != "gpt-4o" {
		t.Fatalf("expected openai section from file, got %+v", cfg.LLM)
	}
	// untouched sections keep defaults
	if cfg.Capture.BlockSize != 1024 {
		t.Fatalf("expected default block size, got %d", cfg.Capture.BlockSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"bad model size":  func(c *Config) { c.Transcribe.ModelSize = "huge" },
		"bad provider":    func(c *Config) { c.LLM.Provider = "mystery" },
		"bad sample rate": func(c *Config) { c.Capture.SampleRate = 44100 },
		"bad detail":      func(c *Config) { c.LLM.DetailLevel = "verbose" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
