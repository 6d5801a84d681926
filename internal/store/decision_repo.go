package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// DecisionRepo handles persistence for Decision rows. Attempts are stored
// separately by AttemptRepo.
type DecisionRepo struct{}

// Save inserts a decision or replaces the row with the same ID.
func (r *DecisionRepo) Save(ctx context.Context, db *sql.DB, d *domain.Decision) error {
	const q = `INSERT INTO decisions (decision_id, seat, requested_tier, answered_by, card, state, emergency, attempt_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(decision_id) DO UPDATE SET
	answered_by = excluded.answered_by,
	card = excluded.card,
	state = excluded.state,
	emergency = excluded.emergency,
	attempt_count = excluded.attempt_count`
	_, err := db.ExecContext(ctx, q,
		d.ID,
		d.Seat.String(),
		int(d.Requested),
		int(d.AnsweredBy),
		cardText(d),
		string(d.State),
		d.Emergency,
		len(d.Attempts),
		d.CreatedAt,
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "save decision", err)
	}
	return nil
}

func cardText(d *domain.Decision) string {
	if d.State == domain.StateSucceeded || d.State == domain.StateExhaustedToEmergency {
		return d.Card.String()
	}
	return ""
}

// DecisionRow is a stored decision without its attempts. Seq increases with
// every new decision and is used to page through the ledger.
type DecisionRow struct {
	Seq          int64
	Decision     domain.Decision
	AttemptCount int
}

const decisionColumns = `rowid, decision_id, seat, requested_tier, answered_by, card, state, emergency, attempt_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(s scanner) (*DecisionRow, error) {
	var (
		row                   DecisionRow
		seat, card, state     string
		requested, answeredBy int
	)
	d := &row.Decision
	if err := s.Scan(&row.Seq, &d.ID, &seat, &requested, &answeredBy, &card, &state, &d.Emergency, &row.AttemptCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if d.Seat, err = domain.ParseSeat(seat); err != nil {
		return nil, err
	}
	if card != "" {
		if d.Card, err = domain.ParseCard(card); err != nil {
			return nil, err
		}
	}
	d.Requested = domain.Tier(requested)
	d.AnsweredBy = domain.Tier(answeredBy)
	d.State = domain.DecisionState(state)
	return &row, nil
}

// GetByID retrieves a decision, or ErrDecisionNotFound.
func (r *DecisionRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*DecisionRow, error) {
	q := `SELECT ` + decisionColumns + ` FROM decisions WHERE decision_id = ?`
	row, err := scanDecision(db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDecisionNotFound
		}
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "get decision", err)
	}
	return row, nil
}

// ListRecent returns up to limit decisions, newest first.
func (r *DecisionRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]*DecisionRow, error) {
	q := `SELECT ` + decisionColumns + ` FROM decisions ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list decisions", err)
	}
	defer rows.Close()

	var out []*DecisionRow
	for rows.Next() {
		row, err := scanDecision(rows)
		if err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan decision", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListSince returns up to limit decisions recorded after seq, oldest first.
func (r *DecisionRepo) ListSince(ctx context.Context, db *sql.DB, seq int64, limit int) ([]*DecisionRow, error) {
	q := `SELECT ` + decisionColumns + ` FROM decisions WHERE rowid > ? ORDER BY rowid ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, q, seq, limit)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list decisions", err)
	}
	defer rows.Close()

	var out []*DecisionRow
	for rows.Next() {
		row, err := scanDecision(rows)
		if err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan decision", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountByState returns the number of decisions in each state.
func (r *DecisionRepo) CountByState(ctx context.Context, db *sql.DB) (map[domain.DecisionState]int, error) {
	const q = `SELECT state, COUNT(*) FROM decisions GROUP BY state`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "count decisions", err)
	}
	defer rows.Close()

	counts := make(map[domain.DecisionState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan decision count", err)
		}
		counts[domain.DecisionState(state)] = n
	}
	return counts, rows.Err()
}
