// Package rules implements the card-play legality checks that every engine
// answer must pass before it is applied to the authoritative game.
package rules

import (
	"fmt"
	"sort"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// Validate reports whether seat may play card in snap. It never corrects the
// card; callers treat a non-nil result as an invalid answer.
func Validate(snap *domain.Snapshot, seat domain.Seat, card domain.Card) error {
	if !card.Valid() {
		return domain.WrapEngineError(domain.ErrInvalidCard.Code, domain.ErrInvalidCard.Message, fmt.Errorf("%d/%d", card.Rank, card.Suit))
	}
	if !seat.Valid() {
		return domain.WrapEngineError(domain.ErrMalformedSnapshot.Code, "seat out of range", nil)
	}
	hand := snap.Hands[seat]
	if !hand.Contains(card) {
		return domain.WrapEngineError(domain.ErrCardNotHeld.Code, domain.ErrCardNotHeld.Message, fmt.Errorf("%s does not hold %s", seat, card))
	}
	if lead, ok := snap.CurrentTrick.LeadSuit(); ok && card.Suit != lead && hand.HasSuit(lead) {
		return domain.WrapEngineError(domain.ErrMustFollowSuit.Code, domain.ErrMustFollowSuit.Message, fmt.Errorf("%s led, %s played %s", lead, seat, card))
	}
	return nil
}

// LegalCards returns the cards seat may play, in hand order.
func LegalCards(snap *domain.Snapshot, seat domain.Seat) []domain.Card {
	return legalFrom(snap.Hands[seat], snap.CurrentTrick)
}

func legalFrom(hand domain.Hand, trick domain.Trick) []domain.Card {
	if lead, ok := trick.LeadSuit(); ok && hand.HasSuit(lead) {
		out := make([]domain.Card, 0, len(hand))
		for _, c := range hand {
			if c.Suit == lead {
				out = append(out, c)
			}
		}
		return out
	}
	return append([]domain.Card(nil), hand...)
}

// LegalFrom is LegalCards for an arbitrary hand and trick, used by search engines
// walking hypothetical positions.
func LegalFrom(hand domain.Hand, trick domain.Trick) []domain.Card {
	return legalFrom(hand, trick)
}

// FirstLegal returns the first card in seat's hand that passes Validate.
func FirstLegal(snap *domain.Snapshot, seat domain.Seat) (domain.Card, bool) {
	if !seat.Valid() {
		return domain.Card{}, false
	}
	for _, c := range snap.Hands[seat] {
		if Validate(snap, seat, c) == nil {
			return c, true
		}
	}
	return domain.Card{}, false
}

// Beats reports whether challenger wins over best, where best is the card
// currently winning the trick.
func Beats(challenger, best domain.Card, trump domain.Suit) bool {
	if challenger.Suit == best.Suit {
		return challenger.Rank > best.Rank
	}
	if trump != domain.NoTrump && challenger.Suit == trump {
		return true
	}
	return false
}

// TrickWinner returns the position in trick of the winning card so far.
// The trick must not be empty.
func TrickWinner(trick domain.Trick, trump domain.Suit) int {
	best := 0
	for i := 1; i < len(trick); i++ {
		if Beats(trick[i].Card, trick[best].Card, trump) {
			best = i
		}
	}
	return best
}

// SortCards orders cards by suit then ascending rank.
func SortCards(cards []domain.Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Suit != cards[j].Suit {
			return cards[i].Suit < cards[j].Suit
		}
		return cards[i].Rank < cards[j].Rank
	})
}

// Apply returns a new snapshot with the seat to move playing card. A completed
// trick moves to History, credits its winner and passes the lead. Apply does not
// validate; callers run Validate first.
func Apply(snap *domain.Snapshot, card domain.Card) *domain.Snapshot {
	next := snap.Clone()
	seat := next.SeatToMove
	next.Hands[seat] = next.Hands[seat].Without(card)
	next.CurrentTrick = append(next.CurrentTrick, domain.PlayedCard{Card: card, Seat: seat})
	next.SeatToMove = seat.Next()
	if len(next.CurrentTrick) == domain.NumSeats {
		winner := next.CurrentTrick[TrickWinner(next.CurrentTrick, next.Trump)].Seat
		next.History = append(next.History, next.CurrentTrick)
		next.CurrentTrick = nil
		next.TricksWon[winner]++
		next.SeatToMove = winner
	}
	return next
}
