package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the engine database at path and ensures
// the schema exists. The returned handle is limited to a single connection so
// every statement observes a fully-applied state; the owning components add
// their own serialization on top.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-heavy loot log; NORMAL is enough durability for a
	// best-effort game economy.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			credits INTEGER NOT NULL DEFAULT 10,
			total_pulls INTEGER NOT NULL DEFAULT 0,
			total_stabilizations INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS loot_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			rarity TEXT NOT NULL,
			rarity_rank INTEGER NOT NULL,
			acquired_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_loot_items_user ON loot_items(user_id);`,
		`CREATE TABLE IF NOT EXISTS universe_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			instability REAL NOT NULL DEFAULT 0.0,
			last_collapse TEXT,
			collapse_count INTEGER NOT NULL DEFAULT 0,
			total_messages INTEGER NOT NULL DEFAULT 0
		);`,
		`INSERT OR IGNORE INTO universe_state (id, instability, last_collapse, collapse_count, total_messages)
			VALUES (1, 0.0, NULL, 0, 0);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
