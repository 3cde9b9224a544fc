package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echomark/echomark/internal/feedback"
	"github.com/echomark/echomark/internal/history"
	"github.com/echomark/echomark/internal/protocol"
	"github.com/echomark/echomark/internal/rubric"
	"github.com/echomark/echomark/internal/transcribe"
)

// ErrRecordingDisabled is returned when no audio backend could be opened.
var ErrRecordingDisabled = errors.New("audio recording is not available on this system")

// ErrUnknownSession is returned for session IDs this process never created.
var ErrUnknownSession = errors.New("unknown session")

// sessionState tracks one recording session through the pipeline. Transcript
// and feedback live here as well as in the history store, so ephemeral
// retention still supports the full workflow.
type sessionState struct {
	id         string
	audioPath  string
	duration   time.Duration
	transcript string
}

// StartRecording opens the capture stream and begins buffering audio. Input
// levels are published on the bus for meters while the recording runs.
func (r *Runtime) StartRecording() (string, error) {
	if r.recorder == nil {
		return "", ErrRecordingDisabled
	}

	sessionID := uuid.NewString()
	err := r.recorder.Start(r.cfg.Capture.DeviceID, func(level float64) {
		r.publish(protocol.SubjectCaptureLevel, protocol.LevelUpdate{
			SessionID: sessionID,
			Level:     level,
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		return "", err
	}

	r.sessionMu.Lock()
	r.sessions[sessionID] = &sessionState{id: sessionID}
	r.activeID = sessionID
	r.sessionMu.Unlock()
	return sessionID, nil
}

func (r *Runtime) PauseRecording() error {
	if r.recorder == nil {
		return ErrRecordingDisabled
	}
	return r.recorder.Pause()
}

func (r *Runtime) ResumeRecording() error {
	if r.recorder == nil {
		return ErrRecordingDisabled
	}
	return r.recorder.Resume()
}

// CancelRecording discards buffered audio without producing a file.
func (r *Runtime) CancelRecording() {
	if r.recorder == nil {
		return
	}
	r.recorder.Cancel()
	r.sessionMu.Lock()
	delete(r.sessions, r.activeID)
	r.activeID = ""
	r.sessionMu.Unlock()
}

// StopAndTranscribe finalizes the active recording and transcribes it in the
// background. The returned task ID identifies the bus status events; each
// transcript line is published as it is recognized.
func (r *Runtime) StopAndTranscribe(ctx context.Context) (string, error) {
	if r.recorder == nil {
		return "", ErrRecordingDisabled
	}

	r.sessionMu.Lock()
	sessionID := r.activeID
	state := r.sessions[sessionID]
	r.activeID = ""
	r.sessionMu.Unlock()
	if state == nil {
		return "", ErrUnknownSession
	}

	audioPath := filepath.Join(r.recordingsDir(), sessionID+".wav")
	path, err := r.recorder.Stop(audioPath)
	if err != nil {
		return "", err
	}
	state.audioPath = path
	state.duration = time.Duration(r.recorder.Duration() * float64(time.Second))

	if err := r.store.SaveSession(ctx, history.Session{
		ID:        sessionID,
		AudioPath: path,
		Duration:  state.duration,
		ModelSize: r.cfg.Transcribe.ModelSize,
	}); err != nil {
		r.logError("save session", err)
	}

	taskID := r.runner.Go(ctx, "transcribe", sessionID, func(ctx context.Context, progress func(string)) error {
		return r.transcribeSession(ctx, state, progress)
	})
	return taskID, nil
}

// TranscribeFile ingests an existing WAV file as a new session and
// transcribes it in the background.
func (r *Runtime) TranscribeFile(ctx context.Context, audioPath string) (string, string, error) {
	sessionID := uuid.NewString()
	state := &sessionState{id: sessionID, audioPath: audioPath}

	r.sessionMu.Lock()
	r.sessions[sessionID] = state
	r.sessionMu.Unlock()

	if err := r.store.SaveSession(ctx, history.Session{
		ID:        sessionID,
		AudioPath: audioPath,
		ModelSize: r.cfg.Transcribe.ModelSize,
	}); err != nil {
		r.logError("save session", err)
	}

	taskID := r.runner.Go(ctx, "transcribe", sessionID, func(ctx context.Context, progress func(string)) error {
		return r.transcribeSession(ctx, state, progress)
	})
	return sessionID, taskID, nil
}

func (r *Runtime) transcribeSession(ctx context.Context, state *sessionState, progress func(string)) error {
	size, err := transcribe.ParseModelSize(r.cfg.Transcribe.ModelSize)
	if err != nil {
		return err
	}
	if err := r.engine.Load(ctx, size, progress); err != nil {
		return err
	}

	lines, errc, err := r.engine.TranscribeStreaming(ctx, state.audioPath, true)
	if err != nil {
		return err
	}

	var collected []string
	index := 0
	for line := range lines {
		r.publish(protocol.SubjectTranscriptSegment, protocol.TranscriptLine{
			SessionID: state.id,
			Text:      line,
			Index:     index,
			Timestamp: time.Now(),
		})
		collected = append(collected, line)
		index++
	}
	if err := <-errc; err != nil {
		return err
	}

	transcript := strings.Join(collected, "\n")
	state.transcript = transcript

	if r.audioHist != nil && state.duration > 0 {
		r.audioHist.Record(ctx, state.duration.Seconds())
	}

	if err := r.store.SaveSession(ctx, history.Session{
		ID:         state.id,
		AudioPath:  state.audioPath,
		Duration:   state.duration,
		ModelSize:  string(size),
		Transcript: transcript,
	}); err != nil {
		r.logError("save transcript", err)
	}
	return nil
}

// OrganizeSession sends a finished session's transcript to the configured
// language-model provider in the background and publishes the rendered
// feedback when it is ready.
func (r *Runtime) OrganizeSession(ctx context.Context, sessionID string, rb *rubric.Rubric, providerOverride string) (string, error) {
	r.sessionMu.Lock()
	state := r.sessions[sessionID]
	r.sessionMu.Unlock()
	if state == nil {
		return "", ErrUnknownSession
	}
	if state.transcript == "" {
		return "", fmt.Errorf("session %s has no transcript yet", sessionID)
	}

	providerName := providerOverride
	if providerName == "" {
		providerName = r.cfg.LLM.Provider
	}

	detail := feedback.DetailLevel(r.cfg.LLM.DetailLevel)
	taskID := r.runner.Go(ctx, "organize", sessionID, func(ctx context.Context, progress func(string)) error {
		progress("Organizing feedback...")
		result, err := r.orchestrator.OrganizeFeedback(ctx, state.transcript, rb, detail, providerOverride)
		if err != nil {
			return err
		}

		markdown := result.Markdown()
		r.publish(protocol.SubjectFeedbackReady, protocol.FeedbackReady{
			SessionID:  sessionID,
			Provider:   providerName,
			RubricName: rb.Name,
			Markdown:   markdown,
			Timestamp:  time.Now(),
		})

		if err := r.store.SaveSession(ctx, history.Session{
			ID:         sessionID,
			AudioPath:  state.audioPath,
			Duration:   state.duration,
			ModelSize:  r.cfg.Transcribe.ModelSize,
			Transcript: state.transcript,
			Provider:   providerName,
			RubricName: rb.Name,
			Feedback:   markdown,
		}); err != nil {
			r.logError("save feedback", err)
		}
		return nil
	})
	return taskID, nil
}

func (r *Runtime) recordingsDir() string {
	return filepath.Join(filepath.Dir(r.cfg.History.Path), "recordings")
}

func (r *Runtime) publish(subject string, event any) {
	if r.busClient == nil {
		return
	}
	if err := r.busClient.Publish(subject, event); err != nil {
		r.logError("publish "+subject, err)
	}
}

func (r *Runtime) logError(op string, err error) {
	r.logger.Error(op+" failed", slog.String("error", err.Error()))
}
