package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists session-request entries in sqlite. It implements Sink.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Migrate(ctx context.Context) error {
	return ApplyMigrations(ctx, s.db)
}

// Append records one entry. Called off the session lock on the registry's
// serial queue, so context.Background is acceptable here.
func (s *Store) Append(e Entry) error {
	if e.ID == "" || e.At.IsZero() {
		return fmt.Errorf("append entry: missing id or timestamp")
	}
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO session_requests(id, at, provider_id, user_id, token, field_id, bounds, has_callback, flags)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.ID, e.At.UTC().Format(time.RFC3339Nano), e.ProviderID, e.UserID, e.Token, e.FieldID, e.Bounds, boolToInt(e.HasCallback), e.Flags)
	if err != nil {
		return fmt.Errorf("insert session request: %w", err)
	}
	return nil
}

// Recent returns up to limit persisted entries, newest first. limit <= 0
// means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, provider_id, user_id, token, field_id, bounds, has_callback, flags
FROM session_requests
ORDER BY at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session requests: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		var hasCallback int
		if err := rows.Scan(&e.ID, &at, &e.ProviderID, &e.UserID, &e.Token, &e.FieldID, &e.Bounds, &hasCallback, &e.Flags); err != nil {
			return nil, fmt.Errorf("scan session request: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse session request time: %w", err)
		}
		e.At = t
		e.HasCallback = hasCallback != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session requests: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
