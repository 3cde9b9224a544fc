package transcribe

import (
	"context"
	"time"
)

// Segment is one contiguous span of recognized speech. Segments are emitted
// in non-decreasing start order with trimmed, non-empty text.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RecognizerOptions carries decode parameters shared by all backends.
type RecognizerOptions struct {
	Language string
	BeamSize int
	Threads  int
}

// Recognizer abstracts a loaded speech model. Implementations are not safe
// for concurrent Recognize calls; the engine serializes access.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, emit func(Segment)) error
	Close() error
}

// RecognizerFactory constructs a recognizer from a model artifact on disk.
type RecognizerFactory func(modelPath string, opts RecognizerOptions) (Recognizer, error)
