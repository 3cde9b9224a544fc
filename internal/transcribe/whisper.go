package transcribe

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type whisperRecognizer struct {
	model whisper.Model
	opts  RecognizerOptions
}

// NewWhisperRecognizer loads a ggml whisper model from disk.
func NewWhisperRecognizer(modelPath string, opts RecognizerOptions) (Recognizer, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &whisperRecognizer{model: model, opts: opts}, nil
}

func (r *whisperRecognizer) Recognize(ctx context.Context, samples []float32, emit func(Segment)) error {
	wctx, err := r.model.NewContext()
	if err != nil {
		return fmt.Errorf("create whisper context: %w", err)
	}
	if r.opts.Language != "" {
		if err := wctx.SetLanguage(r.opts.Language); err != nil {
			return fmt.Errorf("set language: %w", err)
		}
	}
	if r.opts.BeamSize > 0 {
		wctx.SetBeamSize(r.opts.BeamSize)
	}
	threads := r.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	err = wctx.Process(samples, nil, func(seg whisper.Segment) {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			return
		}
		emit(Segment{Start: seg.Start, End: seg.End, Text: text})
	}, nil)
	if err != nil {
		return fmt.Errorf("whisper inference: %w", err)
	}
	return ctx.Err()
}

func (r *whisperRecognizer) Close() error {
	return r.model.Close()
}
