package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
//
// Timestamps are stored as INTEGER unix nanoseconds: message ordering and
// session recency tie-breaks need sub-second precision, which SQLite's
// DATETIME strings do not provide.
var migrations = []string{
	// Migration 0: session aggregate, normalized.
	`CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		last_used    INTEGER NOT NULL,
		status       TEXT NOT NULL DEFAULT 'active',
		metadata     TEXT NOT NULL DEFAULT '{}'
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		actions    TEXT NOT NULL DEFAULT '[]',
		files      TEXT NOT NULL DEFAULT '[]',
		metadata   TEXT NOT NULL DEFAULT '{}'
	)`,

	`CREATE TABLE IF NOT EXISTS key_moments (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		created_at       INTEGER NOT NULL,
		moment_type      TEXT NOT NULL,
		title            TEXT NOT NULL,
		summary          TEXT NOT NULL,
		importance       INTEGER NOT NULL,
		files            TEXT NOT NULL DEFAULT '[]',
		context          TEXT NOT NULL DEFAULT '',
		related_messages TEXT NOT NULL DEFAULT '[]',
		file_snapshot_id TEXT,
		code_snippet_id  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS compressed_periods (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		start_time     INTEGER NOT NULL,
		end_time       INTEGER NOT NULL,
		summary        TEXT NOT NULL,
		achievements   TEXT NOT NULL DEFAULT '[]',
		files          TEXT NOT NULL DEFAULT '[]',
		message_count  INTEGER NOT NULL,
		key_moment_ids TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_project   ON sessions(project_name)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_last_used ON sessions(last_used)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session   ON messages(session_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_moments_session    ON key_moments(session_id, importance DESC, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_periods_session    ON compressed_periods(session_id, start_time)`,

	// Migration 1: code artifact tables.
	`CREATE TABLE IF NOT EXISTS file_snapshots (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		file_path    TEXT NOT NULL,
		content      TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		language     TEXT NOT NULL,
		size_bytes   INTEGER NOT NULL,
		encoding     TEXT NOT NULL DEFAULT 'utf-8',
		created_at   INTEGER NOT NULL,
		UNIQUE(file_path, content_hash)
	)`,

	`CREATE TABLE IF NOT EXISTS code_snippets (
		id               TEXT PRIMARY KEY,
		file_snapshot_id TEXT NOT NULL REFERENCES file_snapshots(id) ON DELETE CASCADE,
		content          TEXT NOT NULL,
		language         TEXT NOT NULL,
		start_line       INTEGER NOT NULL,
		end_line         INTEGER NOT NULL,
		context_before   TEXT NOT NULL DEFAULT '',
		context_after    TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS code_symbols (
		id               TEXT PRIMARY KEY,
		file_snapshot_id TEXT NOT NULL REFERENCES file_snapshots(id) ON DELETE CASCADE,
		symbol_type      TEXT NOT NULL,
		name             TEXT NOT NULL,
		full_name        TEXT NOT NULL,
		signature        TEXT NOT NULL DEFAULT '',
		docstring        TEXT NOT NULL DEFAULT '',
		start_line       INTEGER NOT NULL,
		end_line         INTEGER NOT NULL,
		language         TEXT NOT NULL,
		parent_symbol_id TEXT REFERENCES code_symbols(id),
		visibility       TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_snapshots_path   ON file_snapshots(file_path, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_hash   ON file_snapshots(content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_snap    ON code_snippets(file_snapshot_id)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_snap     ON code_symbols(file_snapshot_id)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_name     ON code_symbols(name)`,

	// Migration 2: migration tracking table.
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}
