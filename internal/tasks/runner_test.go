package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/echomark/echomark/internal/protocol"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	subject string
	event   any
}

func (p *capturingPublisher) Publish(subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{subject, event})
	return nil
}

func (p *capturingPublisher) statuses() []protocol.TaskStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.TaskStatus
	for _, e := range p.events {
		if s, ok := e.event.(protocol.TaskStatus); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *capturingPublisher) progresses() []protocol.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.Progress
	for _, e := range p.events {
		if s, ok := e.event.(protocol.Progress); ok {
			out = append(out, s)
		}
	}
	return out
}

func newTestRunner(pub Publisher) *Runner {
	return NewRunner(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTaskPublishesStartedAndCompleted(t *testing.T) {
	pub := &capturingPublisher{}
	r := newTestRunner(pub)

	taskID := r.Go(context.Background(), "transcribe", "sess-1", func(ctx context.Context, progress func(string)) error {
		progress("working")
		return nil
	})
	r.Wait()

	statuses := pub.statuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].State != protocol.TaskStateStarted || statuses[0].TaskID != taskID {
		t.Fatalf("unexpected first status %+v", statuses[0])
	}
	if statuses[1].State != protocol.TaskStateCompleted || statuses[1].Error != "" {
		t.Fatalf("unexpected terminal status %+v", statuses[1])
	}
	if statuses[1].SessionID != "sess-1" || statuses[1].Kind != "transcribe" {
		t.Fatalf("terminal status lost identity %+v", statuses[1])
	}

	progresses := pub.progresses()
	if len(progresses) != 1 || progresses[0].Stage != "working" || progresses[0].TaskID != taskID {
		t.Fatalf("unexpected progress events %+v", progresses)
	}
}

func TestTaskFailurePublishesFailedStatus(t *testing.T) {
	pub := &capturingPublisher{}
	r := newTestRunner(pub)

	r.Go(context.Background(), "organize", "", func(ctx context.Context, progress func(string)) error {
		return errors.New("provider exploded")
	})
	r.Wait()

	statuses := pub.statuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].State != protocol.TaskStateFailed || statuses[1].Error != "provider exploded" {
		t.Fatalf("unexpected terminal status %+v", statuses[1])
	}
}

func TestTaskPanicStillPublishesTerminalStatus(t *testing.T) {
	pub := &capturingPublisher{}
	r := newTestRunner(pub)

	r.Go(context.Background(), "transcribe", "", func(ctx context.Context, progress func(string)) error {
		panic("index out of range")
	})
	r.Wait()

	statuses := pub.statuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].State != protocol.TaskStateFailed {
		t.Fatalf("panic must produce failed status, got %+v", statuses[1])
	}
}

func TestTerminalStatusRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	r := newTestRunner(&capturingPublisher{})
	r.Go(context.Background(), "transcribe", "", func(ctx context.Context, progress func(string)) error {
		return nil
	})
	r.Go(context.Background(), "organize", "", func(ctx context.Context, progress func(string)) error {
		return errors.New("provider exploded")
	})
	r.Wait()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := counterTotal(t, rm, "echomark.tasks.completed"); got != 1 {
		t.Fatalf("expected 1 completed task, got %d", got)
	}
	if got := counterTotal(t, rm, "echomark.tasks.failed"); got != 1 {
		t.Fatalf("expected 1 failed task, got %d", got)
	}
	if got := histogramCount(t, rm, "echomark.tasks.duration"); got != 2 {
		t.Fatalf("expected 2 duration samples, got %d", got)
	}
}

func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	sum, ok := findMetric(rm, name).(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	hist, ok := findMetric(rm, name).(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %s is not a float64 histogram", name)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	return count
}

func findMetric(rm metricdata.ResourceMetrics, name string) metricdata.Aggregation {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}

func TestConcurrentTasksGetDistinctIDs(t *testing.T) {
	pub := &capturingPublisher{}
	r := newTestRunner(pub)

	ids := make(map[string]bool)
	for i := 0; i < 8; i++ {
		id := r.Go(context.Background(), "transcribe", "", func(ctx context.Context, progress func(string)) error {
			return nil
		})
		if ids[id] {
			t.Fatalf("duplicate task id %q", id)
		}
		ids[id] = true
	}
	r.Wait()

	if got := len(pub.statuses()); got != 16 {
		t.Fatalf("expected 16 statuses, got %d", got)
	}
}
