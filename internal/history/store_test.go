package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/echomark/echomark/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, cfg config.HistoryConfig) *Store {
	t.Helper()
	if cfg.Path == "" && cfg.RetentionMode != "ephemeral" {
		cfg.Path = filepath.Join(t.TempDir(), "history.db")
	}
	s, err := Open(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetSession(t *testing.T) {
	s := openTestStore(t, config.HistoryConfig{RetentionMode: "persistent"})
	ctx := context.Background()

	sess := Session{
		ID:         "sess-1",
		AudioPath:  "/tmp/rec.wav",
		Duration:   42 * time.Second,
		ModelSize:  "base",
		Transcript: "hello",
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.Transcript != "hello" || got.Duration != 42*time.Second || got.ModelSize != "base" {
		t.Fatalf("unexpected session %+v", got)
	}

	// A second save with the same ID updates in place.
	sess.Provider = "ollama"
	sess.RubricName = "Essay"
	sess.Feedback = "# Feedback"
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Provider != "ollama" || got.Feedback != "# Feedback" {
		t.Fatalf("update not applied %+v", got)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := openTestStore(t, config.HistoryConfig{RetentionMode: "persistent"})
	ctx := context.Background()

	now := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		err := s.SaveSession(ctx, Session{
			ID:        id,
			CreatedAt: now.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	sessions, err := s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "new" || sessions[1].ID != "mid" {
		t.Fatalf("unexpected order %+v", sessions)
	}
}

func TestPruneByAge(t *testing.T) {
	s := openTestStore(t, config.HistoryConfig{RetentionMode: "persistent", RetentionDays: 30})
	ctx := context.Background()

	now := time.Now().UTC()
	s.clock = func() time.Time { return now }

	if err := s.SaveSession(ctx, Session{ID: "stale", CreatedAt: now.Add(-40 * 24 * time.Hour)}); err != nil {
		t.Fatalf("save stale: %v", err)
	}
	if err := s.SaveSession(ctx, Session{ID: "fresh", CreatedAt: now}); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "fresh" {
		t.Fatalf("expected only fresh session, got %+v", sessions)
	}
}

func TestPruneByMaxSessions(t *testing.T) {
	s := openTestStore(t, config.HistoryConfig{RetentionMode: "persistent", MaxSessions: 2})
	ctx := context.Background()

	now := time.Now().UTC()
	for i, id := range []string{"a", "b", "c", "d"} {
		err := s.SaveSession(ctx, Session{ID: id, CreatedAt: now.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "d" || sessions[1].ID != "c" {
		t.Fatalf("expected two newest sessions, got %+v", sessions)
	}
}

func TestEphemeralStoreIsNoOp(t *testing.T) {
	s := openTestStore(t, config.HistoryConfig{RetentionMode: "ephemeral"})
	ctx := context.Background()

	if err := s.SaveSession(ctx, Session{ID: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetSession(ctx, "x")
	if err != nil || got != nil {
		t.Fatalf("ephemeral get should return nothing, got %+v err=%v", got, err)
	}
	sessions, err := s.ListSessions(ctx, 10)
	if err != nil || sessions != nil {
		t.Fatalf("ephemeral list should return nothing, got %+v err=%v", sessions, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
