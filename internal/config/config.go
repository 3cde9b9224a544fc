package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	StoreDir       string   `yaml:"store_dir"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type CaptureConfig struct {
	DeviceID       string `yaml:"device_id"`
	SampleRate     int    `yaml:"sample_rate"`
	BlockSize      int    `yaml:"block_size"`
	QueueDepth     int    `yaml:"queue_depth"`
	DrainTimeoutMS int    `yaml:"drain_timeout_ms"`
}

type TranscribeConfig struct {
	ModelSize    string `yaml:"model_size"`
	CacheDir     string `yaml:"cache_dir"`
	ModelBaseURL string `yaml:"model_base_url"`
	Language     string `yaml:"language"`
	BeamSize     int    `yaml:"beam_size"`
	Threads      int    `yaml:"threads"`
}

type OllamaConfig struct {
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"base_url"`
	BootstrapCommand string `yaml:"bootstrap_command"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type LLMConfig struct {
	Provider             string           `yaml:"provider"`
	DetailLevel          string           `yaml:"detail_level"`
	IncludeRawTranscript bool             `yaml:"include_raw_transcript"`
	Ollama               OllamaConfig     `yaml:"ollama"`
	OpenAI               OpenAIConfig     `yaml:"openai"`
	Anthropic            AnthropicConfig  `yaml:"anthropic"`
	OpenRouter           OpenRouterConfig `yaml:"openrouter"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Capture     CaptureConfig    `yaml:"capture"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	LLM         LLMConfig        `yaml:"llm"`
	History     HistoryConfig    `yaml:"history"`
}

func Default() Config {
	return Config{
		RuntimeName: "echomark",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			StoreDir:       "./data/nats",
			ConnectTimeout: 2000,
		},
		Capture: CaptureConfig{
			SampleRate:     16000,
			BlockSize:      1024,
			QueueDepth:     64,
			DrainTimeoutMS: 2000,
		},
		Transcribe: TranscribeConfig{
			ModelSize:    "base",
			CacheDir:     "",
			ModelBaseURL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main",
			Language:     "en",
			BeamSize:     5,
			Threads:      0,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			DetailLevel: "detailed",
			Ollama: OllamaConfig{
				Model:            "llama3.2:latest",
				BaseURL:          "http://localhost:11434",
				BootstrapCommand: "ollama serve",
			},
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Anthropic: AnthropicConfig{
				Model: "claude-3-5-haiku-latest",
			},
			OpenRouter: OpenRouterConfig{
				Model:   "qwen/qwen-2.5-7b-instruct:free",
				BaseURL: "https://openrouter.ai/api/v1",
			},
		},
		History: HistoryConfig{
			Path:          "./data/echomark-history.db",
			RetentionMode: "persistent",
			RetentionDays: 90,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ECHOMARK_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ECHOMARK_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ECHOMARK_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ECHOMARK_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ECHOMARK_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ECHOMARK_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ECHOMARK_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "ECHOMARK_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ECHOMARK_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ECHOMARK_BUS_SERVERS")
	overrideString(&cfg.Bus.StoreDir, "ECHOMARK_BUS_STORE_DIR")
	overrideInt(&cfg.Bus.ConnectTimeout, "ECHOMARK_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Capture.DeviceID, "ECHOMARK_CAPTURE_DEVICE_ID")
	overrideInt(&cfg.Capture.SampleRate, "ECHOMARK_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.BlockSize, "ECHOMARK_CAPTURE_BLOCK_SIZE")
	overrideInt(&cfg.Capture.QueueDepth, "ECHOMARK_CAPTURE_QUEUE_DEPTH")
	overrideInt(&cfg.Capture.DrainTimeoutMS, "ECHOMARK_CAPTURE_DRAIN_TIMEOUT_MS")
	overrideString(&cfg.Transcribe.ModelSize, "ECHOMARK_TRANSCRIBE_MODEL_SIZE")
	overrideString(&cfg.Transcribe.CacheDir, "ECHOMARK_TRANSCRIBE_CACHE_DIR")
	overrideString(&cfg.Transcribe.ModelBaseURL, "ECHOMARK_TRANSCRIBE_MODEL_BASE_URL")
	overrideString(&cfg.Transcribe.Language, "ECHOMARK_TRANSCRIBE_LANGUAGE")
	overrideInt(&cfg.Transcribe.BeamSize, "ECHOMARK_TRANSCRIBE_BEAM_SIZE")
	overrideInt(&cfg.Transcribe.Threads, "ECHOMARK_TRANSCRIBE_THREADS")
	overrideString(&cfg.LLM.Provider, "ECHOMARK_LLM_PROVIDER")
	overrideString(&cfg.LLM.DetailLevel, "ECHOMARK_LLM_DETAIL_LEVEL")
	overrideBool(&cfg.LLM.IncludeRawTranscript, "ECHOMARK_LLM_INCLUDE_RAW_TRANSCRIPT")
	overrideString(&cfg.LLM.Ollama.Model, "ECHOMARK_LLM_OLLAMA_MODEL")
	overrideString(&cfg.LLM.Ollama.BaseURL, "ECHOMARK_LLM_OLLAMA_BASE_URL")
	overrideString(&cfg.LLM.Ollama.BootstrapCommand, "ECHOMARK_LLM_OLLAMA_BOOTSTRAP_COMMAND")
	overrideString(&cfg.LLM.OpenAI.APIKey, "ECHOMARK_LLM_OPENAI_API_KEY")
	overrideString(&cfg.LLM.OpenAI.Model, "ECHOMARK_LLM_OPENAI_MODEL")
	overrideString(&cfg.LLM.Anthropic.APIKey, "ECHOMARK_LLM_ANTHROPIC_API_KEY")
	overrideString(&cfg.LLM.Anthropic.Model, "ECHOMARK_LLM_ANTHROPIC_MODEL")
	overrideString(&cfg.LLM.OpenRouter.APIKey, "ECHOMARK_LLM_OPENROUTER_API_KEY")
	overrideString(&cfg.LLM.OpenRouter.Model, "ECHOMARK_LLM_OPENROUTER_MODEL")
	overrideString(&cfg.LLM.OpenRouter.BaseURL, "ECHOMARK_LLM_OPENROUTER_BASE_URL")
	overrideString(&cfg.History.Path, "ECHOMARK_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "ECHOMARK_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "ECHOMARK_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxSessions, "ECHOMARK_HISTORY_MAX_SESSIONS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Capture.SampleRate != 16000 {
		return errors.New("capture.sample_rate must be 16000 (speech model input rate)")
	}
	if cfg.Capture.BlockSize <= 0 {
		return errors.New("capture.block_size must be positive")
	}
	if cfg.Capture.QueueDepth <= 0 {
		return errors.New("capture.queue_depth must be positive")
	}
	if cfg.Capture.DrainTimeoutMS <= 0 {
		return errors.New("capture.drain_timeout_ms must be positive")
	}
	switch cfg.Transcribe.ModelSize {
	case "tiny", "base", "small", "medium", "large":
	default:
		return errors.New("transcribe.model_size must be one of tiny|base|small|medium|large")
	}
	if cfg.Transcribe.BeamSize <= 0 {
		return errors.New("transcribe.beam_size must be positive")
	}
	switch cfg.LLM.Provider {
	case "ollama", "openai", "anthropic", "openrouter":
	default:
		return errors.New("llm.provider must be one of ollama|openai|anthropic|openrouter")
	}
	switch cfg.LLM.DetailLevel {
	case "brief", "detailed":
	default:
		return errors.New("llm.detail_level must be one of brief|detailed")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionMode == "persistent" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty when retention is persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}
