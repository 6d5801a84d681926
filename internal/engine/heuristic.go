package engine

import (
	"context"
	"fmt"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/rules"
)

// Lowest plays the lowest legal card of the shortest suit among the legal
// cards. It does no search and cannot hang, which makes it the bottom of every
// fallback chain.
type Lowest struct{}

func (Lowest) Name() string { return "lowest" }

func (Lowest) Choose(_ context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, error) {
	legal := rules.LegalCards(snap, seat)
	if len(legal) == 0 {
		return domain.Card{}, fmt.Errorf("lowest: %s has no legal card", seat)
	}
	return lowestOfShortest(legal, domain.NoTrump), nil
}

// lowestOfShortest picks the lowest card of the shortest suit in cards,
// skipping avoid unless it is the only suit present. Ties go to the lower suit.
func lowestOfShortest(cards []domain.Card, avoid domain.Suit) domain.Card {
	var count [4]int
	for _, c := range cards {
		count[c.Suit]++
	}
	best := -1
	for _, s := range domain.Suits {
		if count[s] == 0 || (s == avoid && !onlySuit(count, s)) {
			continue
		}
		if best < 0 || count[s] < count[best] {
			best = int(s)
		}
	}
	if best < 0 {
		best = int(avoid)
	}
	return lowestIn(cards, domain.Suit(best))
}

func onlySuit(count [4]int, s domain.Suit) bool {
	for i, n := range count {
		if domain.Suit(i) != s && n > 0 {
			return false
		}
	}
	return true
}

func lowestIn(cards []domain.Card, s domain.Suit) domain.Card {
	var out domain.Card
	found := false
	for _, c := range cards {
		if c.Suit == s && (!found || c.Rank < out.Rank) {
			out, found = c, true
		}
	}
	return out
}

func highestIn(cards []domain.Card, s domain.Suit) (domain.Card, bool) {
	var out domain.Card
	found := false
	for _, c := range cards {
		if c.Suit == s && (!found || c.Rank > out.Rank) {
			out, found = c, true
		}
	}
	return out, found
}

// Heuristic is a rule-of-thumb player: second hand low, third hand high, win
// as cheaply as possible, ruff low when void, and lead winners before low cards.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Choose(_ context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, error) {
	legal := rules.LegalCards(snap, seat)
	if len(legal) == 0 {
		return domain.Card{}, fmt.Errorf("heuristic: %s has no legal card", seat)
	}
	if len(legal) == 1 {
		return legal[0], nil
	}
	if len(snap.CurrentTrick) == 0 {
		return heuristicLead(snap, legal), nil
	}
	return heuristicFollow(snap, seat, legal), nil
}

func heuristicLead(snap *domain.Snapshot, legal []domain.Card) domain.Card {
	played := playedSet(snap)
	// Cash a master card in a side suit first.
	for _, s := range domain.Suits {
		if s == snap.Trump {
			continue
		}
		top, ok := highestIn(legal, s)
		if ok && isMaster(top, played, legal) {
			return top
		}
	}
	// Otherwise lead low from the longest side suit.
	longest := -1
	var count [4]int
	for _, c := range legal {
		count[c.Suit]++
	}
	for _, s := range domain.Suits {
		if s == snap.Trump || count[s] == 0 {
			continue
		}
		if longest < 0 || count[s] > count[longest] {
			longest = int(s)
		}
	}
	if longest < 0 {
		return lowestIn(legal, snap.Trump)
	}
	return lowestIn(legal, domain.Suit(longest))
}

// isMaster reports whether no unseen card of c's suit outranks it.
func isMaster(c domain.Card, played map[domain.Card]bool, own []domain.Card) bool {
	for r := c.Rank + 1; r <= domain.Ace; r++ {
		higher := domain.Card{Rank: r, Suit: c.Suit}
		if played[higher] {
			continue
		}
		if containsCard(own, higher) {
			continue
		}
		return false
	}
	return true
}

func heuristicFollow(snap *domain.Snapshot, seat domain.Seat, legal []domain.Card) domain.Card {
	trick := snap.CurrentTrick
	lead, _ := trick.LeadSuit()
	winIdx := rules.TrickWinner(trick, snap.Trump)
	winning := trick[winIdx]
	position := len(trick) // 1 = second hand, 2 = third, 3 = fourth

	if domain.SameSide(winning.Seat, seat) && (position == 3 || position == 2 && isMaster(winning.Card, playedSet(snap), snap.Hands[seat])) {
		return cheapest(legal, snap.Trump, lead)
	}
	if position == 1 {
		return cheapest(legal, snap.Trump, lead)
	}

	var winners []domain.Card
	for _, c := range legal {
		if rules.Beats(c, winning.Card, snap.Trump) {
			winners = append(winners, c)
		}
	}
	if len(winners) == 0 {
		return cheapest(legal, snap.Trump, lead)
	}
	if position == 2 {
		// Third hand high within the winners of the led suit.
		if top, ok := highestIn(winners, lead); ok {
			return top
		}
	}
	return lowestWinner(winners, snap.Trump)
}

func lowestWinner(winners []domain.Card, trump domain.Suit) domain.Card {
	best := winners[0]
	for _, c := range winners[1:] {
		// Prefer non-trump winners, then the lowest rank.
		if best.Suit == trump && c.Suit != trump {
			best = c
			continue
		}
		if (c.Suit == trump) == (best.Suit == trump) && c.Rank < best.Rank {
			best = c
		}
	}
	return best
}

// cheapest returns the least valuable card to give away: lowest of the led
// suit when following, otherwise the lowest of the shortest non-trump suit.
func cheapest(legal []domain.Card, trump, lead domain.Suit) domain.Card {
	for _, c := range legal {
		if c.Suit == lead {
			return lowestIn(legal, lead)
		}
	}
	return lowestOfShortest(legal, trump)
}

func playedSet(snap *domain.Snapshot) map[domain.Card]bool {
	played := make(map[domain.Card]bool, 52)
	for _, t := range snap.History {
		for _, pc := range t {
			played[pc.Card] = true
		}
	}
	for _, pc := range snap.CurrentTrick {
		played[pc.Card] = true
	}
	return played
}

func containsCard(cards []domain.Card, c domain.Card) bool {
	for _, x := range cards {
		if x == c {
			return true
		}
	}
	return false
}
