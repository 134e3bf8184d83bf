// Package history keeps a sqlite ledger of publish attempts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/publish"
)

const schema = `
CREATE TABLE IF NOT EXISTS publish_history (
	id            TEXT PRIMARY KEY,
	platform      TEXT NOT NULL,
	strategy      TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL DEFAULT '',
	link          TEXT NOT NULL DEFAULT '',
	media_count   INTEGER NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL,
	post_id       TEXT,
	error_kind    TEXT,
	error_message TEXT,
	posted_at     TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_publish_history_posted_at ON publish_history(posted_at);
`

// Fixed-width UTC timestamps keep posted_at sortable as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded publish attempt.
type Entry struct {
	ID           string
	Platform     publish.Platform
	Strategy     publish.Strategy
	Message      string
	Link         string
	MediaCount   int
	Success      bool
	PostID       string
	ErrorKind    publish.ErrorKind
	ErrorMessage string
	PostedAt     time.Time
	Duration     time.Duration
}

// Store persists entries. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

var _ publish.Observer = (*Store)(nil)

// Open creates or opens the ledger at path.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts e, assigning an id and timestamp when missing.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PostedAt.IsZero() {
		e.PostedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO publish_history
	(id, platform, strategy, message, link, media_count, success, post_id, error_kind, error_message, posted_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Platform), string(e.Strategy), e.Message, e.Link, e.MediaCount,
		e.Success, nullable(e.PostID), nullable(string(e.ErrorKind)), nullable(e.ErrorMessage),
		e.PostedAt.UTC().Format(timeLayout), e.Duration.Milliseconds())
	if err != nil {
		return e, fmt.Errorf("history: record: %w", err)
	}
	return e, nil
}

// Query filters Recent.
type Query struct {
	Platform publish.Platform // empty for all
	Limit    int
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	var (
		where []string
		args  []any
	)
	if q.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, string(q.Platform))
	}
	query := `SELECT id, platform, strategy, message, link, media_count, success, post_id, error_kind, error_message, posted_at, duration_ms FROM publish_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY posted_at DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                          Entry
			platform, strategy, posted string
			postID, kind, msg          sql.NullString
			durMS                      int64
		)
		if err := rows.Scan(&e.ID, &platform, &strategy, &e.Message, &e.Link, &e.MediaCount, &e.Success,
			&postID, &kind, &msg, &posted, &durMS); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Platform = publish.Platform(platform)
		e.Strategy = publish.Strategy(strategy)
		e.PostID = postID.String
		e.ErrorKind = publish.ErrorKind(kind.String)
		e.ErrorMessage = msg.String
		e.Duration = time.Duration(durMS) * time.Millisecond
		if e.PostedAt, err = time.Parse(timeLayout, posted); err != nil {
			return nil, fmt.Errorf("history: parse posted_at %q: %w", posted, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ObservePublish records ev. Failures are logged, never returned: the
// ledger must not change the outcome of a publish.
func (s *Store) ObservePublish(ctx context.Context, ev publish.Event) {
	e := Entry{
		Platform:   ev.Platform,
		Strategy:   ev.Strategy,
		Message:    ev.Request.Text,
		Link:       ev.Request.Link,
		MediaCount: len(ev.Request.Media),
		Success:    ev.Result.Success,
		PostID:     ev.Result.PostID,
		PostedAt:   ev.Started,
		Duration:   ev.Duration,
	}
	if ev.Result.Error != nil {
		e.ErrorKind = ev.Result.Error.Kind
		e.ErrorMessage = ev.Result.Error.UserMessage()
	}
	if _, err := s.Record(context.WithoutCancel(ctx), e); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("failed to record publish history", "platform", ev.Platform, "error", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
