package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/echomark/echomark/internal/config"
)

// ModelSize identifies one of the published whisper model artifacts.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// modelDiskSpace maps each size to its approximate artifact size, surfaced in
// selection UIs.
var modelDiskSpace = map[ModelSize]string{
	ModelTiny:   "~75 MB",
	ModelBase:   "~140 MB",
	ModelSmall:  "~460 MB",
	ModelMedium: "~1.5 GB",
	ModelLarge:  "~2.9 GB",
}

var (
	// ErrInvalidModelSize rejects unknown sizes before any I/O happens.
	ErrInvalidModelSize = errors.New("invalid model size")
	// ErrNotLoaded is returned by transcription calls before a successful Load.
	ErrNotLoaded = errors.New("no model loaded")
)

// ModelLoadError wraps download or model construction failures.
type ModelLoadError struct {
	Size ModelSize
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Size, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ParseModelSize validates a size name.
func ParseModelSize(s string) (ModelSize, error) {
	size := ModelSize(s)
	if _, ok := modelDiskSpace[size]; !ok {
		return "", fmt.Errorf("%w: %q (choose tiny|base|small|medium|large)", ErrInvalidModelSize, s)
	}
	return size, nil
}

// AvailableModels returns the size table with approximate disk requirements.
func AvailableModels() map[ModelSize]string {
	out := make(map[ModelSize]string, len(modelDiskSpace))
	for k, v := range modelDiskSpace {
		out[k] = v
	}
	return out
}

// ProgressFunc receives coarse human-readable stage strings.
type ProgressFunc func(stage string)

// Engine owns at most one loaded speech model and converts audio files to
// text. Load and transcription calls are serialized by an internal mutex; a
// transcription blocks its caller for the duration of inference, so callers
// run it off the UI thread.
type Engine struct {
	cfg     config.TranscribeConfig
	log     *slog.Logger
	factory RecognizerFactory
	client  *http.Client

	mu   sync.Mutex
	rec  Recognizer
	size ModelSize
}

// NewEngine builds an engine. A nil factory selects the whisper backend.
func NewEngine(cfg config.TranscribeConfig, log *slog.Logger, factory RecognizerFactory) *Engine {
	if cfg.CacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.CacheDir = filepath.Join(home, ".echomark", "models")
		} else {
			cfg.CacheDir = filepath.Join(".", "models")
		}
	}
	if factory == nil {
		factory = NewWhisperRecognizer
	}
	return &Engine{
		cfg:     cfg,
		log:     log.With(slog.String("component", "transcribe")),
		factory: factory,
		client:  &http.Client{},
	}
}

// Load fetches the model artifact into the cache directory if needed and
// constructs the model. Loading the size that is already loaded is a no-op.
// On failure no model is left loaded.
func (e *Engine) Load(ctx context.Context, size ModelSize, onProgress ProgressFunc) error {
	if _, ok := modelDiskSpace[size]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidModelSize, size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec != nil && e.size == size {
		progress(onProgress, fmt.Sprintf("Model %q already loaded", size))
		return nil
	}

	path, err := e.ensureModel(ctx, size, onProgress)
	if err != nil {
		e.unloadLocked()
		return &ModelLoadError{Size: size, Err: err}
	}

	progress(onProgress, fmt.Sprintf("Loading model %q...", size))
	rec, err := e.factory(path, RecognizerOptions{
		Language: e.cfg.Language,
		BeamSize: e.cfg.BeamSize,
		Threads:  e.cfg.Threads,
	})
	if err != nil {
		e.unloadLocked()
		return &ModelLoadError{Size: size, Err: err}
	}

	e.unloadLocked()
	e.rec = rec
	e.size = size
	progress(onProgress, fmt.Sprintf("Model %q loaded", size))
	e.log.Info("model loaded", slog.String("size", string(size)))
	return nil
}

// Loaded reports the currently loaded model size, if any.
func (e *Engine) Loaded() (ModelSize, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size, e.rec != nil
}

// Close releases the loaded model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
	return nil
}

func (e *Engine) unloadLocked() {
	if e.rec != nil {
		if err := e.rec.Close(); err != nil {
			e.log.Warn("close recognizer failed", slog.String("error", err.Error()))
		}
	}
	e.rec = nil
	e.size = ""
}

// Transcribe runs recognition over the audio file and returns the full
// transcript, segments joined with newlines in chronological order. With
// includeTimestamps each line carries an [HH:MM:SS] prefix from the segment
// start offset.
func (e *Engine) Transcribe(ctx context.Context, audioPath string, includeTimestamps bool, onProgress ProgressFunc) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkPreconditionsLocked(audioPath); err != nil {
		return "", err
	}

	progress(onProgress, "Transcribing audio...")
	var lines []string
	err := e.runLocked(ctx, audioPath, func(seg Segment) {
		lines = append(lines, formatLine(seg, includeTimestamps))
	})
	if err != nil {
		return "", err
	}
	progress(onProgress, "Transcription complete")
	return joinLines(lines), nil
}

// TranscribeStreaming runs recognition in the background and delivers one
// formatted line per segment as soon as it completes. Precondition failures
// are returned synchronously; inference errors arrive on the error channel,
// which receives exactly one value after the line channel closes. The
// sequence is not restartable; a fresh call re-runs inference.
func (e *Engine) TranscribeStreaming(ctx context.Context, audioPath string, includeTimestamps bool) (<-chan string, <-chan error, error) {
	e.mu.Lock()
	if err := e.checkPreconditionsLocked(audioPath); err != nil {
		e.mu.Unlock()
		return nil, nil, err
	}

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer e.mu.Unlock()
		defer close(errc)
		defer close(lines)
		err := e.runLocked(ctx, audioPath, func(seg Segment) {
			select {
			case lines <- formatLine(seg, includeTimestamps):
			case <-ctx.Done():
			}
		})
		errc <- err
	}()
	return lines, errc, nil
}

func (e *Engine) checkPreconditionsLocked(audioPath string) error {
	if e.rec == nil {
		return ErrNotLoaded
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("audio file: %w", err)
	}
	return nil
}

// runLocked decodes the file and feeds samples through the recognizer.
// Caller holds e.mu.
func (e *Engine) runLocked(ctx context.Context, audioPath string, emit func(Segment)) error {
	if err := e.checkPreconditionsLocked(audioPath); err != nil {
		return err
	}

	samples, err := readWAVSamples(audioPath)
	if err != nil {
		return err
	}
	if !containsSpeech(samples) {
		e.log.Info("no speech detected", slog.String("path", audioPath))
		return nil
	}
	return e.rec.Recognize(ctx, samples, emit)
}

func formatLine(seg Segment, includeTimestamps bool) string {
	if includeTimestamps {
		return fmt.Sprintf("[%s] %s", formatTimestamp(seg.Start), seg.Text)
	}
	return seg.Text
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

func formatTimestamp(offset time.Duration) string {
	total := int(offset.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

func progress(fn ProgressFunc, stage string) {
	if fn != nil {
		fn(stage)
	}
}
