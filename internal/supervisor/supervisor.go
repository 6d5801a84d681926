// Package supervisor turns a move request into a legal card. It walks the
// fallback chain from the requested tier downwards, validates every answer,
// and ends at a first-legal-card terminus that cannot fail on a well-formed
// snapshot.
package supervisor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/rules"
	"github.com/bridgetrainer/playengine/internal/runner"
)

// AttemptRunner executes one engine attempt. *runner.Runner implements it.
type AttemptRunner interface {
	Run(ctx context.Context, d runner.Descriptor, req domain.MoveRequest) domain.Outcome
}

// Recorder persists attempts and decisions. Failures are logged and never
// change the decision.
type Recorder interface {
	RecordAttempt(ctx context.Context, decisionID string, a domain.Attempt) error
	RecordDecision(ctx context.Context, d *domain.Decision) error
}

// Supervisor is safe for concurrent use; decisions share only the tier chain
// and the runner.
type Supervisor struct {
	Tiers    *Tiers
	Runner   AttemptRunner
	Recorder Recorder
	Logger   *slog.Logger

	now func() time.Time
}

// New creates a Supervisor. recorder and logger may be nil.
func New(tiers *Tiers, r AttemptRunner, recorder Recorder, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		Tiers:    tiers,
		Runner:   r,
		Recorder: recorder,
		Logger:   logger,
		now:      time.Now,
	}
}

// Decide returns a decision carrying a legal card for req.Seat. The only errors
// are configuration faults: an unregistered tier, or a snapshot in which the
// seat has no legal card at all.
func (s *Supervisor) Decide(ctx context.Context, req domain.MoveRequest) (*domain.Decision, error) {
	chain, err := s.Tiers.From(req.Tier)
	if err != nil {
		return nil, err
	}
	if req.Snapshot == nil {
		return nil, domain.WrapEngineError(domain.ErrMalformedSnapshot.Code, "snapshot missing", nil)
	}

	d := &domain.Decision{
		ID:         uuid.NewString(),
		Seat:       req.Seat,
		Requested:  req.Tier,
		AnsweredBy: domain.TierEmergency,
		State:      domain.StateAttempting,
		CreatedAt:  s.now().Unix(),
	}
	logger := s.Logger.With("decision", d.ID, "seat", req.Seat.String(), "requested", req.Tier.String())

	for i, desc := range chain {
		if i == 0 && req.Deadline > 0 {
			desc.Deadline = req.Deadline
		}
		out := s.Runner.Run(ctx, desc, req)
		if out.OK() {
			if verr := rules.Validate(req.Snapshot, req.Seat, out.Card); verr != nil {
				elapsed := out.Elapsed
				out = domain.Invalid("illegal card " + out.Card.String() + ": " + verr.Error())
				out.Elapsed = elapsed
			}
		}

		a := domain.Attempt{Seq: i + 1, Tier: desc.Tier, Engine: desc.Engine, Mode: desc.Mode, Outcome: out}
		d.Attempts = append(d.Attempts, a)
		s.recordAttempt(ctx, logger, d.ID, a)

		if out.OK() {
			d.State = domain.StateSucceeded
			d.AnsweredBy = desc.Tier
			d.Card = out.Card
			s.finish(ctx, logger, d)
			return d, nil
		}
	}

	d.State = domain.StateExhaustedToEmergency
	d.Emergency = true
	card, ok := rules.FirstLegal(req.Snapshot, req.Seat)
	if !ok {
		d.State = domain.StateFailed
		s.finish(ctx, logger, d)
		return nil, domain.WrapEngineError(domain.ErrMalformedSnapshot.Code,
			"no legal card for "+req.Seat.String()+" after "+d.Attempts[len(d.Attempts)-1].Outcome.String(), nil)
	}
	d.Card = card
	s.finish(ctx, logger, d)
	return d, nil
}

func (s *Supervisor) recordAttempt(ctx context.Context, logger *slog.Logger, decisionID string, a domain.Attempt) {
	attrs := []any{
		"seq", a.Seq,
		"tier", a.Tier.String(),
		"engine", a.Engine,
		"mode", string(a.Mode),
		"outcome", a.Outcome.String(),
		"elapsed_ms", a.Outcome.Elapsed.Milliseconds(),
	}
	if err := a.Outcome.Err(); err != nil {
		logger.Warn("attempt failed", append(attrs, "error", err)...)
	} else {
		logger.Info("attempt finished", attrs...)
	}
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.RecordAttempt(context.WithoutCancel(ctx), decisionID, a); err != nil {
		logger.Error("record attempt", "error", err)
	}
}

func (s *Supervisor) finish(ctx context.Context, logger *slog.Logger, d *domain.Decision) {
	switch d.State {
	case domain.StateSucceeded:
		logger.Info("decision made", "card", d.Card.String(), "answered_by", d.AnsweredBy.String(), "attempts", len(d.Attempts))
	case domain.StateExhaustedToEmergency:
		logger.Warn("all tiers failed, emergency card played", "card", d.Card.String(), "attempts", len(d.Attempts))
	default:
		logger.Error("decision failed", "state", string(d.State), "attempts", len(d.Attempts))
	}
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.RecordDecision(context.WithoutCancel(ctx), d); err != nil {
		logger.Error("record decision", "error", err)
	}
}
