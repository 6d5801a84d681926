package store

import (
	"context"
	"database/sql"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// Ledger records supervisor activity and answers lookups for the API. It
// satisfies supervisor.Recorder.
type Ledger struct {
	DB        *sql.DB
	Decisions *DecisionRepo
	Attempts  *AttemptRepo
}

// NewLedger creates a Ledger over an opened database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		DB:        db,
		Decisions: &DecisionRepo{},
		Attempts:  &AttemptRepo{},
	}
}

// RecordAttempt stores one attempt as soon as it finishes.
func (l *Ledger) RecordAttempt(ctx context.Context, decisionID string, a domain.Attempt) error {
	return l.Attempts.Record(ctx, l.DB, decisionID, a)
}

// RecordDecision stores the decision's final state.
func (l *Ledger) RecordDecision(ctx context.Context, d *domain.Decision) error {
	return l.Decisions.Save(ctx, l.DB, d)
}

// Lookup returns a stored decision together with its attempts.
func (l *Ledger) Lookup(ctx context.Context, id string) (*domain.Decision, error) {
	row, err := l.Decisions.GetByID(ctx, l.DB, id)
	if err != nil {
		return nil, err
	}
	attempts, err := l.Attempts.ListByDecision(ctx, l.DB, id)
	if err != nil {
		return nil, err
	}
	d := row.Decision
	d.Attempts = attempts
	return &d, nil
}

// AttemptsOf returns the attempts of a known decision.
func (l *Ledger) AttemptsOf(ctx context.Context, id string) ([]domain.Attempt, error) {
	if _, err := l.Decisions.GetByID(ctx, l.DB, id); err != nil {
		return nil, err
	}
	return l.Attempts.ListByDecision(ctx, l.DB, id)
}
