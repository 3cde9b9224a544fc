// Package tasks runs long operations off the caller's goroutine and reports
// their lifecycle over the event bus, so interface code can disable and
// re-enable controls without blocking on model loads, inference, or network
// calls.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/echomark/echomark/internal/protocol"
)

// Publisher is the slice of the event bus the runner needs.
type Publisher interface {
	Publish(subject string, event any) error
}

// Runner launches background tasks and guarantees each one publishes exactly
// one started status and exactly one terminal status, even when the task
// panics.
type Runner struct {
	pub Publisher
	log *slog.Logger
	wg  sync.WaitGroup

	meter     metric.Meter
	duration  metric.Float64Histogram
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

func NewRunner(pub Publisher, log *slog.Logger) *Runner {
	r := &Runner{
		pub:   pub,
		log:   log.With(slog.String("component", "tasks")),
		meter: otel.Meter("github.com/echomark/echomark/tasks"),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("task metrics unavailable", slog.String("error", err.Error()))
	}
	return r
}

func (r *Runner) initMetrics() error {
	duration, err := r.meter.Float64Histogram("echomark.tasks.duration",
		metric.WithDescription("Task wall time from start to terminal status"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	completed, err := r.meter.Int64Counter("echomark.tasks.completed",
		metric.WithDescription("Tasks that finished successfully"))
	if err != nil {
		return err
	}
	failed, err := r.meter.Int64Counter("echomark.tasks.failed",
		metric.WithDescription("Tasks that finished with an error, panics included"))
	if err != nil {
		return err
	}
	r.duration = duration
	r.completed = completed
	r.failed = failed
	return nil
}

// Go starts fn in the background and returns the task ID immediately. kind
// names the operation for subscribers; sessionID ties the task to a recording
// session and may be empty.
func (r *Runner) Go(ctx context.Context, kind, sessionID string, fn func(ctx context.Context, progress func(stage string)) error) string {
	taskID := uuid.NewString()
	startedAt := time.Now()

	r.publishStatus(protocol.TaskStatus{
		TaskID:    taskID,
		Kind:      kind,
		SessionID: sessionID,
		State:     protocol.TaskStateStarted,
		StartedAt: startedAt,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panic: %v", rec)
				r.log.Error("task panicked",
					slog.String("task_id", taskID),
					slog.String("kind", kind),
					slog.Any("panic", rec))
			}
			r.finish(taskID, kind, sessionID, startedAt, err)
		}()

		err = fn(ctx, func(stage string) {
			r.publishProgress(taskID, kind, stage)
		})
	}()

	return taskID
}

func (r *Runner) finish(taskID, kind, sessionID string, startedAt time.Time, err error) {
	status := protocol.TaskStatus{
		TaskID:     taskID,
		Kind:       kind,
		SessionID:  sessionID,
		State:      protocol.TaskStateCompleted,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	kindAttr := metric.WithAttributes(attribute.String("kind", kind))
	if r.duration != nil {
		r.duration.Record(context.Background(), status.FinishedAt.Sub(startedAt).Seconds(), kindAttr)
	}
	if err != nil {
		status.State = protocol.TaskStateFailed
		status.Error = err.Error()
		if r.failed != nil {
			r.failed.Add(context.Background(), 1, kindAttr)
		}
		r.log.Error("task failed",
			slog.String("task_id", taskID),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
	} else {
		if r.completed != nil {
			r.completed.Add(context.Background(), 1, kindAttr)
		}
		r.log.Info("task completed",
			slog.String("task_id", taskID),
			slog.String("kind", kind),
			slog.Duration("elapsed", status.FinishedAt.Sub(startedAt)))
	}
	r.publishStatus(status)
}

func (r *Runner) publishStatus(status protocol.TaskStatus) {
	if err := r.pub.Publish(protocol.SubjectTaskStatus, status); err != nil {
		r.log.Warn("publish task status failed",
			slog.String("task_id", status.TaskID),
			slog.String("error", err.Error()))
	}
}

func (r *Runner) publishProgress(taskID, kind, stage string) {
	event := protocol.Progress{
		TaskID:    taskID,
		Kind:      kind,
		Stage:     stage,
		Timestamp: time.Now(),
	}
	if err := r.pub.Publish(protocol.SubjectTaskProgress, event); err != nil {
		r.log.Warn("publish task progress failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}
}

// Wait blocks until every started task has finished. Used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
