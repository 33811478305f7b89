// Package store provides SQLite persistence for ensemble: the custom
// provider descriptor set (flat records keyed by id) and the persistent
// result cache backend.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the single database handle shared by the registry and the
// persistent cache backend.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open creates the data directory if needed and opens (or creates) the
// database with WAL journaling.
func Open(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ensemble.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLite{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cache (
		fingerprint TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the connection is alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

// ─────────────────────────────────────────────────────────────────────────────
// Provider descriptors
// ─────────────────────────────────────────────────────────────────────────────

// SaveDescriptor upserts one custom descriptor as a JSON blob keyed by id.
func (s *SQLite) SaveDescriptor(ctx context.Context, id string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO providers (id, config_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
		id, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save descriptor %s: %w", id, err)
	}
	return nil
}

// DeleteDescriptor removes one custom descriptor.
func (s *SQLite) DeleteDescriptor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete descriptor %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "provider", ID: id}
	}
	return nil
}

// LoadDescriptors returns every persisted descriptor blob keyed by id.
func (s *SQLite) LoadDescriptors(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, config_json FROM providers`)
	if err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id, blob string
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = []byte(blob)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Result cache rows
// ─────────────────────────────────────────────────────────────────────────────

// CacheGet returns the payload for fingerprint if present and unexpired.
// Expired rows are deleted lazily. The second return is false on a miss.
func (s *SQLite) CacheGet(ctx context.Context, fingerprint string) (string, bool, error) {
	var payload string
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM cache WHERE fingerprint = ?`,
		fingerprint).Scan(&payload, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	if time.Now().After(expires) {
		s.db.ExecContext(ctx, `DELETE FROM cache WHERE fingerprint = ?`, fingerprint)
		return "", false, nil
	}
	return payload, true, nil
}

// CacheSet stores a payload with an absolute expiry so the TTL keeps
// counting across restarts.
func (s *SQLite) CacheSet(ctx context.Context, fingerprint, payload string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (fingerprint, payload, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET payload = excluded.payload,
		     created_at = excluded.created_at, expires_at = excluded.expires_at`,
		fingerprint, payload, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// CacheClear removes all cache rows and returns how many were removed.
func (s *SQLite) CacheClear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache`)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CacheCount returns the number of unexpired cache rows.
func (s *SQLite) CacheCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache WHERE expires_at > ?`, time.Now().UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}
