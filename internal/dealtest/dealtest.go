// Package dealtest builds well-formed snapshots for tests.
package dealtest

import (
	"strings"
	"testing"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// Cards parses a space-separated card list such as "SA SK H2".
func Cards(t testing.TB, list string) domain.Hand {
	t.Helper()
	var out domain.Hand
	for _, f := range strings.Fields(list) {
		c, err := domain.ParseCard(f)
		if err != nil {
			t.Fatalf("dealtest: %v", err)
		}
		out = append(out, c)
	}
	return out
}

// Play is one entry of a current trick, e.g. {domain.West, "S5"}.
type Play struct {
	Seat domain.Seat
	Card string
}

// Endgame builds a snapshot from the remaining hands and the current trick.
// Every card not mentioned is assigned to completed tricks in deck order, so the
// result satisfies the deck invariant whenever the hand sizes are consistent.
// The seat to move follows the last card of the trick, or is lead if the trick
// is empty.
func Endgame(t testing.TB, hands [domain.NumSeats]string, trick []Play, trump domain.Suit, lead domain.Seat) *domain.Snapshot {
	t.Helper()
	snap := &domain.Snapshot{Trump: trump, SeatToMove: lead}
	used := make(map[domain.Card]bool)
	for i, h := range hands {
		snap.Hands[i] = Cards(t, h)
		for _, c := range snap.Hands[i] {
			used[c] = true
		}
	}
	for _, p := range trick {
		c, err := domain.ParseCard(p.Card)
		if err != nil {
			t.Fatalf("dealtest: %v", err)
		}
		snap.CurrentTrick = append(snap.CurrentTrick, domain.PlayedCard{Card: c, Seat: p.Seat})
		used[c] = true
		snap.SeatToMove = p.Seat.Next()
	}

	var rest []domain.Card
	for _, c := range domain.FullDeck() {
		if !used[c] {
			rest = append(rest, c)
		}
	}
	if len(rest)%domain.NumSeats != 0 {
		t.Fatalf("dealtest: %d leftover cards do not form whole tricks", len(rest))
	}
	for i := 0; i < len(rest); i += domain.NumSeats {
		var tr domain.Trick
		for j := 0; j < domain.NumSeats; j++ {
			tr = append(tr, domain.PlayedCard{Card: rest[i+j], Seat: domain.Seat(j)})
		}
		snap.History = append(snap.History, tr)
		snap.TricksWon[domain.North]++
	}
	return snap
}

// Deal returns a full 13-card deal with each seat holding one suit:
// North spades, East hearts, South diamonds, West clubs.
func Deal(trump domain.Suit, lead domain.Seat) *domain.Snapshot {
	snap := &domain.Snapshot{Trump: trump, SeatToMove: lead}
	bySuit := map[domain.Seat]domain.Suit{
		domain.North: domain.Spades,
		domain.East:  domain.Hearts,
		domain.South: domain.Diamonds,
		domain.West:  domain.Clubs,
	}
	for seat, suit := range bySuit {
		for r := domain.Rank(2); r <= domain.Ace; r++ {
			snap.Hands[seat] = append(snap.Hands[seat], domain.Card{Rank: r, Suit: suit})
		}
	}
	return snap
}

// Shuffled deals the deck round-robin after rotating it by offset, giving
// mixed-suit hands that are stable for a given offset.
func Shuffled(offset int, trump domain.Suit, lead domain.Seat) *domain.Snapshot {
	deck := domain.FullDeck()
	snap := &domain.Snapshot{Trump: trump, SeatToMove: lead}
	for i := range deck {
		c := deck[(i*7+offset)%len(deck)]
		seat := domain.Seat(i % domain.NumSeats)
		snap.Hands[seat] = append(snap.Hands[seat], c)
	}
	return snap
}
