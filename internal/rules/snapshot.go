package rules

import (
	"fmt"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// CheckSnapshot verifies the deck invariant and turn bookkeeping: every card of
// the 52-card deck appears exactly once across hands, completed tricks and the
// current trick, and the seat to move holds at least one card.
func CheckSnapshot(snap *domain.Snapshot) error {
	if snap == nil {
		return malformed("nil snapshot")
	}
	if !snap.SeatToMove.Valid() {
		return malformed(fmt.Sprintf("seat to move %d out of range", snap.SeatToMove))
	}
	if snap.Trump > domain.NoTrump {
		return malformed(fmt.Sprintf("trump suit %d out of range", snap.Trump))
	}

	var seen [52]bool
	mark := func(c domain.Card, where string) error {
		if !c.Valid() {
			return malformed(fmt.Sprintf("invalid card %d/%d in %s", c.Rank, c.Suit, where))
		}
		if seen[c.Index()] {
			return malformed(fmt.Sprintf("card %s appears twice (%s)", c, where))
		}
		seen[c.Index()] = true
		return nil
	}

	for seat, hand := range snap.Hands {
		for _, c := range hand {
			if err := mark(c, "hand "+domain.Seat(seat).String()); err != nil {
				return err
			}
		}
	}
	for i, t := range snap.History {
		if len(t) != domain.NumSeats {
			return malformed(fmt.Sprintf("completed trick %d has %d cards", i+1, len(t)))
		}
		for _, pc := range t {
			if err := mark(pc.Card, fmt.Sprintf("trick %d", i+1)); err != nil {
				return err
			}
		}
	}
	if len(snap.CurrentTrick) >= domain.NumSeats {
		return malformed(fmt.Sprintf("current trick has %d cards", len(snap.CurrentTrick)))
	}
	for _, pc := range snap.CurrentTrick {
		if err := mark(pc.Card, "current trick"); err != nil {
			return err
		}
	}
	for i, ok := range seen {
		if !ok {
			return malformed(fmt.Sprintf("card %s missing from deal", domain.FullDeck()[i]))
		}
	}

	if n := len(snap.CurrentTrick); n > 0 {
		want := snap.CurrentTrick[n-1].Seat.Next()
		if snap.SeatToMove != want {
			return malformed(fmt.Sprintf("seat to move is %s, trick expects %s", snap.SeatToMove, want))
		}
	}
	if len(snap.Hands[snap.SeatToMove]) == 0 {
		return malformed(fmt.Sprintf("seat to move %s holds no cards", snap.SeatToMove))
	}
	return nil
}

func malformed(detail string) error {
	return domain.WrapEngineError(domain.ErrMalformedSnapshot.Code, domain.ErrMalformedSnapshot.Message, fmt.Errorf("%s", detail))
}
