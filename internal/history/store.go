// Package history persists completed recording sessions, their transcripts,
// and any organized feedback to a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/echomark/echomark/internal/config"
	_ "modernc.org/sqlite"
)

// Session is one recorded-and-processed unit of work.
type Session struct {
	ID         string
	CreatedAt  time.Time
	AudioPath  string
	Duration   time.Duration
	ModelSize  string
	Transcript string
	Provider   string
	RubricName string
	Feedback   string
}

// Store wraps the SQLite-backed session history. In ephemeral retention mode
// it holds no database and every operation is a no-op, so callers never
// branch on the mode themselves.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the history store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "history"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    audio_path TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    model_size TEXT,
    transcript TEXT,
    provider TEXT,
    rubric_name TEXT,
    feedback TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession inserts or updates a session row. Later pipeline stages call it
// again with the same ID to fill in the transcript and feedback.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if s.db == nil {
		return nil
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, created_at, audio_path, duration_ms, model_size, transcript, provider, rubric_name, feedback)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   audio_path=excluded.audio_path,
		   duration_ms=excluded.duration_ms,
		   model_size=excluded.model_size,
		   transcript=excluded.transcript,
		   provider=excluded.provider,
		   rubric_name=excluded.rubric_name,
		   feedback=excluded.feedback`,
		sess.ID, sess.CreatedAt.UTC(), sess.AudioPath, sess.Duration.Milliseconds(),
		sess.ModelSize, sess.Transcript, sess.Provider, sess.RubricName, sess.Feedback)
	return err
}

// GetSession retrieves a single session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if s.db == nil {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, audio_path, duration_ms, model_size, transcript, provider, rubric_name, feedback
		 FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions retrieves up to limit sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at, audio_path, duration_ms, model_size, transcript, provider, rubric_name, feedback
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var created string
	var durationMS int64
	if err := row.Scan(&sess.ID, &created, &sess.AudioPath, &durationMS,
		&sess.ModelSize, &sess.Transcript, &sess.Provider, &sess.RubricName, &sess.Feedback); err != nil {
		return nil, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		sess.CreatedAt = ts
	}
	sess.Duration = time.Duration(durationMS) * time.Millisecond
	return &sess, nil
}

// Prune applies configured retention: sessions beyond the age window or the
// session cap are deleted.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
