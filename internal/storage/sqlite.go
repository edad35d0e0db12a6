package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"billfred/internal/model"
	"billfred/migrations"
)

// CurrentSchemaVersion is the chat_log layout this code writes.
const CurrentSchemaVersion = "2"

// ErrClosed is returned by reads on a closed store.
var ErrClosed = errors.New("chat log closed")

// SQLite implements ChatLog backed by a SQLite database.
type SQLite struct {
	log *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLite opens the database at path, creates the tables when missing and
// brings the chat_log layout up to CurrentSchemaVersion.
func NewSQLite(path string, log *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	migrated, err := MigrateLayout(context.Background(), db, time.Now())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if migrated {
		log.Info("chat log layout migrated", "path", path, "version", CurrentSchemaVersion)
	}

	return &SQLite{db: db, log: log}, nil
}

// MigrateLayout upgrades chat_log to CurrentSchemaVersion and records the
// upgrade in schema_version. It reports whether anything was changed.
func MigrateLayout(ctx context.Context, db *sql.DB, now time.Time) (bool, error) {
	current, err := latestVersion(ctx, db)
	if err != nil {
		return false, err
	}
	if current == CurrentSchemaVersion {
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var legacy int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('chat_log') WHERE name = 'jit'`,
	).Scan(&legacy)
	if err != nil {
		return false, fmt.Errorf("inspect chat_log: %w", err)
	}
	if legacy > 0 {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE chat_log RENAME COLUMN jit TO jid`); err != nil {
			return false, fmt.Errorf("rename chat_log.jit: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (time, version) VALUES (?, ?)`,
		now.Unix(), CurrentSchemaVersion,
	); err != nil {
		return false, fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit layout migration: %w", err)
	}
	return true, nil
}

func latestVersion(ctx context.Context, db *sql.DB) (string, error) {
	var v string
	err := db.QueryRowContext(ctx,
		`SELECT version FROM schema_version ORDER BY time DESC, id DESC LIMIT 1`,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Write appends msg to the chat log. Failures are logged and the record is
// dropped.
func (s *SQLite) Write(ctx context.Context, msg model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Warn("chat log closed, message dropped", "sender", msg.SenderID)
		return
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_log (time, jid, name, message) VALUES (?, ?, ?, ?)`,
		toSeconds(msg.Timestamp), msg.SenderID, msg.SenderNick, msg.Body,
	)
	if err != nil {
		s.log.Error("write chat log", "sender", msg.SenderID, "error", err)
	}
}

// Recent returns up to limit of the newest records, oldest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, jid, name, message FROM (
		   SELECT id, time, jid, name, message FROM chat_log ORDER BY id DESC LIMIT ?
		 ) ORDER BY id`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.LogRecord
	for rows.Next() {
		var (
			r       model.LogRecord
			seconds float64
			body    sql.NullString
		)
		if err := rows.Scan(&r.ID, &seconds, &r.SenderID, &r.SenderNick, &body); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		r.Timestamp = fromSeconds(seconds)
		r.Body = body.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// SchemaVersions returns the layout history in the order it was applied.
func (s *SQLite) SchemaVersions(ctx context.Context) ([]model.SchemaVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, version FROM schema_version ORDER BY time, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []model.SchemaVersion
	for rows.Next() {
		var (
			v  model.SchemaVersion
			at int64
		)
		if err := rows.Scan(&v.ID, &at, &v.Version); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		v.AppliedAt = time.Unix(at, 0)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Close waits for an in-flight write and closes the database. Writes after
// Close are dropped.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}
