package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by Pause, Resume and Stop when idle.
	ErrNotRecording = errors.New("not recording")
	// ErrNoAudioCaptured is returned by Stop when no blocks were buffered.
	ErrNoAudioCaptured = errors.New("no audio data recorded")
)

// DeviceError wraps audio subsystem failures (device open, stream start).
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
