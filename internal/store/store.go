// Package store is pail's SQLite persistence layer: sources, output
// channels, ingested content items, generated articles, and the small
// amount of chat-session state the ingest/chat package needs.
//
// Migrations are numbered and applied in order outside any transaction,
// so that a migration which rebuilds a table can bracket it with PRAGMA
// foreign_keys=OFF (SQLite ignores that pragma inside a transaction).
// The current migrations only create tables and indexes.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/pail/internal/logging"
)

// Store wraps the SQLite connection pool and exposes domain-specific
// query methods (see sources.go, channels.go, items.go, articles.go,
// settings.go, chatsession.go).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path in WAL
// mode and runs any pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 + WAL: single writer avoids SQLITE_BUSY churn

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for callers (e.g. a custom gotd session
// storage adapter) that need direct SQL access inside the same file.
func (s *Store) DB() *sql.DB { return s.db }

type migration struct {
	version int
	name    string
	apply   func(*sql.DB) error
}

var migrations = []migration{
	{1, "initial_schema", migrate1},
	{2, "tg_folder_channels", migrate2},
	{3, "chat_session", migrate3},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_version`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		L_info("store: applying migration", "version", m.version, "name", m.name)
		if err := m.apply(s.db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			return err
		}
	}
	return nil
}

func migrate1(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE sources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			display_name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			poll_interval_seconds INTEGER NOT NULL DEFAULT 0,
			max_items INTEGER NOT NULL DEFAULT 200,
			auth_header TEXT NOT NULL DEFAULT '',
			auth_value TEXT NOT NULL DEFAULT '',
			chat_peer_id INTEGER NOT NULL DEFAULT 0,
			chat_username TEXT NOT NULL DEFAULT '',
			folder_name TEXT NOT NULL DEFAULT '',
			exclude_json TEXT NOT NULL DEFAULT '[]',
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			last_fetched_at TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE output_channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			url_slug TEXT NOT NULL UNIQUE,
			enabled INTEGER NOT NULL DEFAULT 1,
			schedule TEXT NOT NULL,
			prompt TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			last_generated TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE output_channel_sources (
			output_channel_id INTEGER NOT NULL REFERENCES output_channels(id) ON DELETE CASCADE,
			source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			PRIMARY KEY (output_channel_id, source_id)
		)`,
		`CREATE TABLE content_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			dedup_key TEXT NOT NULL,
			upstream_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			original_date TEXT,
			ingested_at TEXT NOT NULL DEFAULT (datetime('now')),
			upstream_changed INTEGER NOT NULL DEFAULT 0,
			UNIQUE(source_id, dedup_key)
		)`,
		`CREATE INDEX idx_content_items_source_date ON content_items(source_id, original_date)`,
		`CREATE INDEX idx_content_items_ingested ON content_items(ingested_at)`,
		`CREATE TABLE generated_articles (
			id TEXT PRIMARY KEY,
			output_channel_id INTEGER NOT NULL REFERENCES output_channels(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			topics_json TEXT NOT NULL DEFAULT '[]',
			body_markdown TEXT NOT NULL DEFAULT '',
			html_body TEXT NOT NULL,
			content_item_ids_json TEXT NOT NULL DEFAULT '[]',
			generation_log TEXT NOT NULL DEFAULT '',
			model_used TEXT NOT NULL DEFAULT '',
			window_start TEXT,
			window_end TEXT,
			generated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX idx_generated_articles_channel_time ON generated_articles(output_channel_id, generated_at DESC)`,
		`CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func migrate2(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE tg_folder_channels (
		folder_name TEXT NOT NULL,
		channel_peer_id INTEGER NOT NULL,
		channel_username TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (folder_name, channel_peer_id)
	)`)
	return err
}

func migrate3(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE chat_session (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	return err
}
