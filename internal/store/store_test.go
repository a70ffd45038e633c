package store

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"users", "loot_items", "universe_state"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	// The singleton universe row is seeded.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM universe_state`).Scan(&n); err != nil {
		t.Fatalf("count universe rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("universe_state rows = %d, want 1", n)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := db.Exec(`UPDATE universe_state SET collapse_count = 7 WHERE id = 1`); err != nil {
		t.Fatalf("update: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT collapse_count FROM universe_state WHERE id = 1`).Scan(&count); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if count != 7 {
		t.Fatalf("collapse_count = %d, want 7 (schema init clobbered data)", count)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("empty path accepted")
	}
}
