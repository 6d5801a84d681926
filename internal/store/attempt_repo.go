package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// AttemptRepo handles persistence for per-tier Attempt records.
type AttemptRepo struct{}

// Record inserts one attempt of a decision.
func (r *AttemptRepo) Record(ctx context.Context, db *sql.DB, decisionID string, a domain.Attempt) error {
	const q = `INSERT INTO attempts (decision_id, seq, tier, engine, mode, outcome, card, exit_signal, reason, elapsed_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var card string
	if a.Outcome.OK() {
		card = a.Outcome.Card.String()
	}
	_, err := db.ExecContext(ctx, q,
		decisionID,
		a.Seq,
		int(a.Tier),
		a.Engine,
		string(a.Mode),
		string(a.Outcome.Kind),
		card,
		a.Outcome.ExitSignal,
		a.Outcome.Reason,
		a.Outcome.Elapsed.Milliseconds(),
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "record attempt", err)
	}
	return nil
}

// ListByDecision returns a decision's attempts in the order they ran.
func (r *AttemptRepo) ListByDecision(ctx context.Context, db *sql.DB, decisionID string) ([]domain.Attempt, error) {
	const q = `SELECT seq, tier, engine, mode, outcome, card, exit_signal, reason, elapsed_ms
FROM attempts
WHERE decision_id = ?
ORDER BY seq ASC`

	rows, err := db.QueryContext(ctx, q, decisionID)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list attempts", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a                domain.Attempt
			tier             int
			mode, kind, card string
			elapsedMS        int64
		)
		if err := rows.Scan(&a.Seq, &tier, &a.Engine, &mode, &kind, &card,
			&a.Outcome.ExitSignal, &a.Outcome.Reason, &elapsedMS); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan attempt", err)
		}
		a.Tier = domain.Tier(tier)
		a.Mode = domain.ExecMode(mode)
		a.Outcome.Kind = domain.OutcomeKind(kind)
		a.Outcome.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if card != "" {
			if a.Outcome.Card, err = domain.ParseCard(card); err != nil {
				return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "parse attempt card", err)
			}
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// EngineStats summarises how one engine's attempts ended.
type EngineStats struct {
	Engine   string
	Outcomes map[domain.OutcomeKind]int
}

// StatsByEngine aggregates attempt outcomes per engine, sorted by engine name.
func (r *AttemptRepo) StatsByEngine(ctx context.Context, db *sql.DB) ([]EngineStats, error) {
	const q = `SELECT engine, outcome, COUNT(*) FROM attempts GROUP BY engine, outcome ORDER BY engine, outcome`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "attempt stats", err)
	}
	defer rows.Close()

	var out []EngineStats
	for rows.Next() {
		var engine, kind string
		var n int
		if err := rows.Scan(&engine, &kind, &n); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan attempt stats", err)
		}
		if len(out) == 0 || out[len(out)-1].Engine != engine {
			out = append(out, EngineStats{Engine: engine, Outcomes: make(map[domain.OutcomeKind]int)})
		}
		out[len(out)-1].Outcomes[domain.OutcomeKind(kind)] = n
	}
	return out, rows.Err()
}
