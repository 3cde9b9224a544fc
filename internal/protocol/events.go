package protocol

import "time"

// LevelUpdate carries the live input level while a recording is active.
type LevelUpdate struct {
	SessionID string    `json:"session_id"`
	Level     float64   `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is a coarse human-readable stage update from a background task.
type Progress struct {
	TaskID    string    `json:"task_id"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptLine is one formatted transcript segment emitted during streaming
// transcription, in chronological order.
type TranscriptLine struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskStatus reports lifecycle transitions of a background task. Every task
// produces exactly one "started" and one terminal ("completed" or "failed")
// status, so UI controls gated on a task can always be re-enabled.
type TaskStatus struct {
	TaskID     string    `json:"task_id"`
	Kind       string    `json:"kind"`
	SessionID  string    `json:"session_id,omitempty"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

const (
	TaskStateStarted   = "started"
	TaskStateCompleted = "completed"
	TaskStateFailed    = "failed"
)

// FeedbackReady announces a finished feedback-organization run, carrying the
// rendered markdown document.
type FeedbackReady struct {
	SessionID  string    `json:"session_id"`
	Provider   string    `json:"provider"`
	RubricName string    `json:"rubric_name"`
	Markdown   string    `json:"markdown"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectCaptureLevel      = "capture.level"
	SubjectTaskStatus        = "task.status"
	SubjectTaskProgress      = "task.progress"
	SubjectTranscriptSegment = "transcript.segment"
	SubjectFeedbackReady     = "feedback.ready"
)
