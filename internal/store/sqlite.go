// Package store provides the SQLite-backed decision ledger: one row per
// decision and one row per engine attempt.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS decisions (
	decision_id    TEXT PRIMARY KEY,
	seat           TEXT NOT NULL,
	requested_tier INTEGER NOT NULL,
	answered_by    INTEGER NOT NULL DEFAULT -1,
	card           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	emergency      INTEGER NOT NULL DEFAULT 0,
	attempt_count  INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);

CREATE TABLE IF NOT EXISTS attempts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	tier        INTEGER NOT NULL,
	engine      TEXT NOT NULL,
	mode        TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	card        TEXT NOT NULL DEFAULT '',
	exit_signal TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	elapsed_ms  INTEGER NOT NULL DEFAULT 0,
	UNIQUE(decision_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_attempts_decision ON attempts(decision_id, seq);
CREATE INDEX IF NOT EXISTS idx_attempts_engine ON attempts(engine, outcome);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "open database", err)
	}

	// Single writer; decisions from concurrent requests queue here.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "migrate schema", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
