package capture

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/echomark/echomark/internal/config"
)

// LevelFunc receives the mean absolute amplitude of each captured block,
// normalized to 0..1. It is invoked from a worker goroutine, never from the
// driver callback thread; a slow consumer loses level samples rather than
// stalling capture.
type LevelFunc func(level float64)

// Recorder streams audio from an input device into an in-memory buffer and
// finalizes it as a 16-bit PCM mono WAV file. The driver callback only copies
// the block into bounded queues; a drain worker moves blocks into the durable
// buffer and a level worker feeds the level consumer, so the realtime thread
// is never stalled by allocation-heavy work, file I/O, or publishing.
type Recorder struct {
	cfg     config.CaptureConfig
	backend Backend
	log     *slog.Logger

	mu        sync.Mutex
	recording bool
	stream    Stream
	queue     chan []int16
	drainDone chan struct{}
	levels    chan float64
	levelDone chan struct{}

	active  atomic.Bool
	paused  atomic.Bool
	dropped atomic.Int64

	framesMu sync.Mutex
	frames   [][]int16
	samples  int

	onLevel LevelFunc
}

func New(cfg config.CaptureConfig, backend Backend, log *slog.Logger) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 1024
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.DrainTimeoutMS <= 0 {
		cfg.DrainTimeoutMS = 2000
	}
	return &Recorder{
		cfg:     cfg,
		backend: backend,
		log:     log.With(slog.String("component", "capture")),
	}
}

// EnumerateInputDevices lists available input devices in backend order. An
// audio subsystem failure yields an empty list, not an error.
func (r *Recorder) EnumerateInputDevices() []DeviceInfo {
	devices, err := r.backend.InputDevices()
	if err != nil {
		r.log.Warn("device enumeration failed", slog.String("error", err.Error()))
		return nil
	}
	return devices
}

// Start opens the input stream and begins buffering. deviceID may be empty to
// use the default device.
func (r *Recorder) Start(deviceID string, onLevel LevelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	r.framesMu.Lock()
	r.frames = nil
	r.samples = 0
	r.framesMu.Unlock()

	r.onLevel = onLevel
	r.paused.Store(false)
	r.dropped.Store(0)
	r.queue = make(chan []int16, r.cfg.QueueDepth)
	r.drainDone = make(chan struct{})
	go r.drain(r.queue, r.drainDone)
	if onLevel != nil {
		r.levels = make(chan float64, r.cfg.QueueDepth)
		r.levelDone = make(chan struct{})
		go r.pumpLevels(r.levels, r.levelDone)
	}

	r.active.Store(true)
	stream, err := r.backend.OpenStream(StreamConfig{
		DeviceID:   deviceID,
		SampleRate: r.cfg.SampleRate,
		Channels:   1,
		BlockSize:  r.cfg.BlockSize,
	}, r.handleBlock)
	if err != nil {
		r.active.Store(false)
		close(r.queue)
		<-r.drainDone
		r.queue = nil
		r.drainDone = nil
		if r.levels != nil {
			close(r.levels)
			<-r.levelDone
			r.levels = nil
			r.levelDone = nil
		}
		return &DeviceError{Op: "open", Err: err}
	}

	r.stream = stream
	r.recording = true
	r.log.Info("recording started",
		slog.String("device", deviceID),
		slog.Int("sample_rate", r.cfg.SampleRate))
	return nil
}

// handleBlock runs on the driver callback thread. Blocks arriving while
// paused are discarded; otherwise the block is handed to the drain queue and
// its level to the level pump, both without blocking. Full queues drop rather
// than stall the driver.
func (r *Recorder) handleBlock(block []int16) {
	if !r.active.Load() || r.paused.Load() {
		return
	}

	buf := make([]int16, len(block))
	copy(buf, block)
	select {
	case r.queue <- buf:
	default:
		r.dropped.Add(1)
	}

	if r.levels != nil {
		select {
		case r.levels <- meanAbs(block):
		default:
		}
	}
}

func (r *Recorder) drain(queue <-chan []int16, done chan<- struct{}) {
	defer close(done)
	for block := range queue {
		r.framesMu.Lock()
		r.frames = append(r.frames, block)
		r.samples += len(block)
		r.framesMu.Unlock()
	}
}

// pumpLevels delivers level samples to the consumer off the driver thread, so
// consumer work (serialization, publishing) never runs inside the callback.
func (r *Recorder) pumpLevels(levels <-chan float64, done chan<- struct{}) {
	defer close(done)
	for level := range levels {
		r.onLevel(level)
	}
}

// Pause suspends buffering; blocks delivered while paused are discarded.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return ErrNotRecording
	}
	r.paused.Store(true)
	return nil
}

// Resume continues buffering after Pause.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return ErrNotRecording
	}
	r.paused.Store(false)
	return nil
}

// Stop halts the stream, waits for the drain worker to consume enqueued
// blocks (bounded), concatenates the buffer in arrival order and writes it as
// 16-bit PCM mono WAV to outputPath, creating parent directories as needed.
func (r *Recorder) Stop(outputPath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return "", ErrNotRecording
	}
	r.teardown()

	if n := r.dropped.Load(); n > 0 {
		r.log.Warn("queue overflow during recording", slog.Int64("dropped_blocks", n))
	}

	r.framesMu.Lock()
	frames := r.frames
	total := r.samples
	r.framesMu.Unlock()

	if total == 0 {
		return "", ErrNoAudioCaptured
	}

	pcm := make([]int16, 0, total)
	for _, block := range frames {
		pcm = append(pcm, block...)
	}

	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := writeWAV(outputPath, pcm, r.cfg.SampleRate); err != nil {
		return "", err
	}

	r.log.Info("recording saved",
		slog.String("path", outputPath),
		slog.Float64("duration_seconds", float64(total)/float64(r.cfg.SampleRate)))
	return outputPath, nil
}

// Cancel discards the recording without writing output. Idempotent when not
// recording.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}
	r.teardown()

	r.framesMu.Lock()
	r.frames = nil
	r.samples = 0
	r.framesMu.Unlock()

	r.log.Info("recording cancelled")
}

// teardown stops the stream and joins the drain worker. Caller holds r.mu.
func (r *Recorder) teardown() {
	r.recording = false
	r.active.Store(false)

	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			r.log.Warn("stream stop failed", slog.String("error", err.Error()))
		}
		r.stream = nil
	}

	close(r.queue)
	select {
	case <-r.drainDone:
	case <-time.After(time.Duration(r.cfg.DrainTimeoutMS) * time.Millisecond):
		r.log.Warn("drain worker join timed out; trailing audio may be truncated")
	}
	r.queue = nil
	r.drainDone = nil

	if r.levels != nil {
		close(r.levels)
		select {
		case <-r.levelDone:
		case <-time.After(time.Duration(r.cfg.DrainTimeoutMS) * time.Millisecond):
			r.log.Warn("level worker join timed out")
		}
		r.levels = nil
		r.levelDone = nil
	}
}

// Duration reports buffered audio in seconds, derived from the sample count
// rather than wall clock so paused intervals are excluded.
func (r *Recorder) Duration() float64 {
	r.framesMu.Lock()
	defer r.framesMu.Unlock()
	return float64(r.samples) / float64(r.cfg.SampleRate)
}

// Recording reports whether a recording is active (paused counts as active).
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func meanAbs(block []int16) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(len(block)) / 32768.0
}
