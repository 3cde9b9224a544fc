package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/echomark/echomark/internal/capture"
	"github.com/echomark/echomark/internal/config"
	"github.com/echomark/echomark/internal/feedback"
	"github.com/echomark/echomark/internal/rubric"
	"github.com/echomark/echomark/internal/runtime"
	"github.com/echomark/echomark/internal/transcribe"
)

var version = "0.1.0-dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "echomark",
		Short:         "Record, transcribe, and organize spoken feedback against rubrics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")

	root.AddCommand(
		serveCmd(),
		devicesCmd(),
		modelsCmd(),
		transcribeCmd(),
		organizeCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the full runtime with bus, health endpoints, and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			rt := runtime.New(cfg, logger)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := rt.Start(ctx); err != nil {
				logger.Error("runtime exited with error", slog.String("error", err.Error()))
				time.Sleep(1 * time.Second)
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := capture.NewMalgoBackend()
			if err != nil {
				return fmt.Errorf("open audio backend: %w", err)
			}
			defer backend.Close()

			devices, err := backend.InputDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no input devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%s\t%s\t(%d ch, %d Hz)\n", d.ID, d.Name, d.MaxChannels, d.DefaultSampleRate)
			}
			return nil
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List speech model sizes and approximate disk requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			models := transcribe.AvailableModels()
			names := make([]string, 0, len(models))
			for size := range models {
				names = append(names, string(size))
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-8s %s\n", name, models[transcribe.ModelSize(name)])
			}
			return nil
		},
	}
}

func transcribeCmd() *cobra.Command {
	var (
		modelSize  string
		timestamps bool
	)
	cmd := &cobra.Command{
		Use:   "transcribe <audio.wav>",
		Short: "Transcribe a 16 kHz mono WAV file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if modelSize != "" {
				cfg.Transcribe.ModelSize = modelSize
			}

			size, err := transcribe.ParseModelSize(cfg.Transcribe.ModelSize)
			if err != nil {
				return err
			}

			engine := transcribe.NewEngine(cfg.Transcribe, logger, nil)
			defer engine.Close()

			progress := func(stage string) { fmt.Fprintln(os.Stderr, stage) }
			if err := engine.Load(cmd.Context(), size, progress); err != nil {
				return err
			}

			transcript, err := engine.Transcribe(cmd.Context(), args[0], timestamps, progress)
			if err != nil {
				return err
			}
			fmt.Println(transcript)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelSize, "model", "", "model size (tiny|base|small|medium|large)")
	cmd.Flags().BoolVar(&timestamps, "timestamps", true, "prefix each line with its [HH:MM:SS] offset")
	return cmd
}

func organizeCmd() *cobra.Command {
	var (
		rubricPath  string
		rubricName  string
		provider    string
		detail      string
		instruction string
		plainText   bool
	)
	cmd := &cobra.Command{
		Use:   "organize <transcript.txt>",
		Short: "Organize a transcript into rubric-aligned feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if detail != "" {
				cfg.LLM.DetailLevel = detail
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			transcript := strings.TrimSpace(string(data))

			rb, err := resolveRubric(rubricPath, rubricName)
			if err != nil {
				return err
			}

			orch := feedback.NewOrchestrator(cfg.LLM, logger)
			ctx := cmd.Context()

			if instruction != "" {
				result, err := orch.OrganizeStructuredFeedback(ctx, transcript, rb, instruction, provider)
				if err != nil {
					return organizeErr(provider, cfg.LLM.Provider, err)
				}
				printFeedback(result.Markdown(), result.PlainText(), plainText)
				return nil
			}

			result, err := orch.OrganizeFeedback(ctx, transcript, rb, feedback.DetailLevel(cfg.LLM.DetailLevel), provider)
			if err != nil {
				return organizeErr(provider, cfg.LLM.Provider, err)
			}
			printFeedback(result.Markdown(), result.PlainText(), plainText)
			return nil
		},
	}
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "path to rubric JSON file")
	cmd.Flags().StringVar(&rubricName, "builtin", "", "builtin rubric (essay|presentation)")
	cmd.Flags().StringVar(&provider, "provider", "", "provider override (ollama|openai|anthropic|openrouter)")
	cmd.Flags().StringVar(&detail, "detail", "", "detail level (brief|detailed)")
	cmd.Flags().StringVar(&instruction, "instruction", "", "free-form instruction template for structured mode")
	cmd.Flags().BoolVar(&plainText, "text", false, "print plain text instead of markdown")
	return cmd
}

func resolveRubric(path, name string) (*rubric.Rubric, error) {
	if path != "" {
		return rubric.ReadFile(path)
	}
	switch name {
	case "", "essay":
		return rubric.Essay(), nil
	case "presentation":
		return rubric.Presentation(), nil
	default:
		return nil, fmt.Errorf("unknown builtin rubric %q (choose essay|presentation)", name)
	}
}

func organizeErr(override, configured string, err error) error {
	name := override
	if name == "" {
		name = configured
	}
	id, parseErr := feedback.ParseProviderID(name)
	if parseErr != nil {
		return err
	}
	return fmt.Errorf("%w\n\n%s", err, feedback.RemediationMessage(id, feedback.Classify(err)))
}

func printFeedback(markdown, plain string, wantPlain bool) {
	if wantPlain {
		fmt.Println(plain)
		return
	}
	fmt.Println(markdown)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
