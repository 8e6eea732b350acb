// Package sqlite provides SQLite-based persistent storage for the ADPF daemon.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// FileName is the database file created inside the data directory.
const FileName = "adpf.db"

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB

	// bootID is stamped on history rows; set by RecordBoot before serving.
	bootID string
}

// Open creates or opens the SQLite database at dir/adpf.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// PingContext checks database connectivity within ctx.
func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// One row per daemon start.
		`CREATE TABLE IF NOT EXISTS boots (
			id         TEXT PRIMARY KEY,
			version    TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_boots_started ON boots(started_at)`,

		// One row per closed hint session.
		`CREATE TABLE IF NOT EXISTS session_history (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id      INTEGER NOT NULL,
			id_string       TEXT NOT NULL,
			tgid            INTEGER NOT NULL,
			uid             INTEGER NOT NULL,
			tag             TEXT NOT NULL,
			profile         TEXT NOT NULL DEFAULT '',
			boot_id         TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			closed_at       INTEGER NOT NULL,
			target_ns       INTEGER NOT NULL DEFAULT 0,
			reports         INTEGER NOT NULL DEFAULT 0,
			light_frames    INTEGER NOT NULL DEFAULT 0,
			moderate_frames INTEGER NOT NULL DEFAULT 0,
			severe_frames   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_closed ON session_history(closed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_tag ON session_history(tag)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Settings ───────────────────────────────────────────────────────────────

// SetSetting stores a key-value pair.
func (d *DB) SetSetting(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetSetting retrieves a value. A missing key yields "" and no error.
func (d *DB) GetSetting(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SettingsWithPrefix returns every setting whose key starts with prefix,
// keyed by the remainder of the key.
func (d *DB) SettingsWithPrefix(prefix string) (map[string]string, error) {
	rows, err := d.db.Query(
		`SELECT key, value FROM settings WHERE substr(key, 1, ?) = ?`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k[len(prefix):]] = v
	}
	return out, rows.Err()
}

// ─── Boots ──────────────────────────────────────────────────────────────────

// Boot is one daemon start.
type Boot struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// RecordBoot stores a daemon start.
func (d *DB) RecordBoot(b Boot) error {
	_, err := d.db.Exec(
		`INSERT INTO boots (id, version, started_at) VALUES (?, ?, ?)`,
		b.ID, b.Version, b.StartedAt.UnixNano(),
	)
	if err != nil {
		return err
	}
	d.bootID = b.ID
	return nil
}

// BootID returns the id passed to the last RecordBoot.
func (d *DB) BootID() string {
	return d.bootID
}

// Boots returns the most recent daemon starts, newest first.
func (d *DB) Boots(limit int) ([]Boot, error) {
	rows, err := d.db.Query(
		`SELECT id, version, started_at FROM boots ORDER BY started_at DESC LIMIT ?`,
		limitOrAll(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boots []Boot
	for rows.Next() {
		var b Boot
		var started int64
		if err := rows.Scan(&b.ID, &b.Version, &started); err != nil {
			return nil, err
		}
		b.StartedAt = time.Unix(0, started)
		boots = append(boots, b)
	}
	return boots, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
