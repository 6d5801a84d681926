package store

import (
	"path/filepath"
	"testing"
)

func TestNewDB_Indexes(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'")
	if err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	defer rows.Close()

	want := map[string]bool{
		"idx_decisions_created": true,
		"idx_attempts_decision": true,
		"idx_attempts_engine":   true,
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index name: %v", err)
		}
		delete(want, name)
	}
	for name := range want {
		t.Errorf("index %q not found", name)
	}
}

func TestNewDB_WALMode(t *testing.T) {
	db := openTestDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestNewDB_AttemptSeqUnique(t *testing.T) {
	db := openTestDB(t)

	const insert = `INSERT INTO attempts (decision_id, seq, tier, engine, outcome) VALUES ('d1', 0, 2, 'solver', 'timeout')`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("duplicate (decision_id, seq) accepted")
	}
}

func TestNewDB_UnansweredDefault(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`INSERT INTO decisions (decision_id, seat, requested_tier, state, created_at) VALUES ('d1', 'N', 2, 'pending', 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var answeredBy, emergency int
	var card string
	if err := db.QueryRow(`SELECT answered_by, card, emergency FROM decisions WHERE decision_id = 'd1'`).Scan(&answeredBy, &card, &emergency); err != nil {
		t.Fatalf("select: %v", err)
	}
	if answeredBy != -1 || card != "" || emergency != 0 {
		t.Errorf("defaults = (%d, %q, %d), want (-1, \"\", 0)", answeredBy, card, emergency)
	}
}

func TestNewDB_ReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("first NewDB: %v", err)
	}
	if _, err := db1.Exec(`INSERT INTO decisions (decision_id, seat, requested_tier, state, created_at) VALUES ('d1', 'S', 0, 'answered', 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db1.Close()

	db2, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("second NewDB: %v", err)
	}
	defer db2.Close()

	var n int
	if err := db2.QueryRow("SELECT COUNT(*) FROM decisions").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("decisions after reopen = %d, want 1", n)
	}
}
