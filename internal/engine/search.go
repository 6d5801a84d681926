package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/rules"
)

// DefaultMinimaxTricks is the horizon of the minimax engine, counted in
// completed tricks.
const DefaultMinimaxTricks = 2

// ctxCheckInterval is how many nodes are visited between context checks.
const ctxCheckInterval = 256

// Search is an alpha-beta engine over the fully visible (double-dummy) position.
// It scores a line by tricks won by the mover's partnership within Horizon
// tricks; Horizon 0 searches to the end of the hand.
type Search struct {
	name     string
	Horizon  int
	UseTable bool
}

// NewMinimax returns a depth-limited search looking horizon tricks ahead.
func NewMinimax(horizon int) *Search {
	return &Search{name: "minimax", Horizon: horizon}
}

// NewSolver returns an exact double-dummy solver: unlimited horizon with a
// transposition table at trick boundaries.
func NewSolver() *Search {
	return &Search{name: "solver", UseTable: true}
}

func (e *Search) Name() string { return e.name }

func (e *Search) Choose(ctx context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, error) {
	c, _, err := e.Solve(ctx, snap, seat)
	return c, err
}

// Solve returns the chosen card and the number of tricks the mover's side takes
// within the horizon with best play. Ties choose the lowest card.
func (e *Search) Solve(ctx context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, int, error) {
	legal := rules.LegalCards(snap, seat)
	if len(legal) == 0 {
		return domain.Card{}, 0, fmt.Errorf("%s: %s has no legal card", e.name, seat)
	}
	rules.SortCards(legal)

	st := newPosition(snap, seat)
	horizon := e.Horizon
	if horizon <= 0 {
		horizon = math.MaxInt32
	}
	s := &searcher{ctx: ctx, side: seat, trump: snap.Trump}
	if e.UseTable {
		s.table = make(map[tableKey]bound)
	}

	candidates := s.distinct(st, legal)
	sortAscending(candidates)
	best, bestVal := candidates[0], -1
	for _, c := range candidates {
		st.play(c)
		v, err := s.afterPlay(st, bestVal, math.MaxInt32, horizon)
		st.undo()
		if err != nil {
			return domain.Card{}, 0, err
		}
		if v > bestVal {
			best, bestVal = c, v
		}
	}
	return best, bestVal, nil
}

// position is the mutable search state. Hands are tracked as 52-bit masks.
type position struct {
	hands  [domain.NumSeats]uint64
	trick  domain.Trick
	toMove domain.Seat
	// saved tricks for undo when a play completes a trick
	stack []savedTrick
}

type savedTrick struct {
	trick  domain.Trick
	toMove domain.Seat
}

func newPosition(snap *domain.Snapshot, seat domain.Seat) *position {
	p := &position{
		trick:  append(domain.Trick(nil), snap.CurrentTrick...),
		toMove: seat,
	}
	for i, h := range snap.Hands {
		for _, c := range h {
			p.hands[i] |= 1 << uint(c.Index())
		}
	}
	return p
}

func (p *position) play(c domain.Card) {
	p.hands[p.toMove] &^= 1 << uint(c.Index())
	p.stack = append(p.stack, savedTrick{toMove: p.toMove})
	p.trick = append(p.trick, domain.PlayedCard{Card: c, Seat: p.toMove})
	p.toMove = p.toMove.Next()
}

func (p *position) undo() {
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if len(p.trick) == 0 {
		// The play completed a trick that was then cleared; restore it.
		p.trick = top.trick
	}
	last := p.trick[len(p.trick)-1]
	p.trick = p.trick[:len(p.trick)-1]
	p.hands[last.Seat] |= 1 << uint(last.Card.Index())
	p.toMove = top.toMove
}

// closeTrick clears a full trick, hands the lead to the winner and returns it.
func (p *position) closeTrick(trump domain.Suit) domain.Seat {
	winner := p.trick[rules.TrickWinner(p.trick, trump)].Seat
	p.stack[len(p.stack)-1].trick = p.trick
	p.trick = nil
	p.toMove = winner
	return winner
}

func (p *position) cardsLeft() bool {
	return p.hands[0]|p.hands[1]|p.hands[2]|p.hands[3] != 0
}

func (p *position) legal() []domain.Card {
	mask := p.hands[p.toMove]
	if lead, ok := p.trick.LeadSuit(); ok {
		if suitMask := mask & suitBits(lead); suitMask != 0 {
			mask = suitMask
		}
	}
	return cardsOf(mask)
}

func suitBits(s domain.Suit) uint64 { return uint64(0x1FFF) << (13 * uint(s)) }

func cardsOf(mask uint64) []domain.Card {
	var out []domain.Card
	for i := 0; i < 52; i++ {
		if mask&(1<<uint(i)) != 0 {
			out = append(out, domain.Card{Suit: domain.Suit(i / 13), Rank: domain.Rank(i%13 + 2)})
		}
	}
	return out
}

type tableKey struct {
	hands   [domain.NumSeats]uint64
	toMove  domain.Seat
	horizon int
}

type bound struct{ lower, upper int }

type searcher struct {
	ctx   context.Context
	side  domain.Seat
	trump domain.Suit
	table map[tableKey]bound
	nodes int
}

// afterPlay finishes the bookkeeping of a card just played and returns the
// value of the resulting position.
func (s *searcher) afterPlay(p *position, alpha, beta, horizon int) (int, error) {
	if len(p.trick) < domain.NumSeats {
		return s.search(p, alpha, beta, horizon)
	}
	winner := p.closeTrick(s.trump)
	gain := 0
	if domain.SameSide(winner, s.side) {
		gain = 1
	}
	if horizon-1 == 0 || !p.cardsLeft() {
		return gain, nil
	}
	v, err := s.search(p, alpha-gain, beta-gain, horizon-1)
	return v + gain, err
}

func (s *searcher) search(p *position, alpha, beta, horizon int) (int, error) {
	s.nodes++
	if s.nodes%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			return 0, err
		}
	}

	var key tableKey
	atBoundary := s.table != nil && len(p.trick) == 0
	if atBoundary {
		key = tableKey{hands: p.hands, toMove: p.toMove, horizon: horizon}
		if b, ok := s.table[key]; ok {
			if b.lower >= beta {
				return b.lower, nil
			}
			if b.upper <= alpha {
				return b.upper, nil
			}
			if b.lower > alpha {
				alpha = b.lower
			}
			if b.upper < beta {
				beta = b.upper
			}
		}
	}

	alpha0, beta0 := alpha, beta
	moves := s.distinct(p, p.legal())
	if len(moves) == 0 {
		return 0, nil
	}
	maximizing := domain.SameSide(p.toMove, s.side)
	best := math.MaxInt32
	if maximizing {
		best = math.MinInt32
	}
	for _, c := range moves {
		p.play(c)
		v, err := s.afterPlay(p, alpha, beta, horizon)
		p.undo()
		if err != nil {
			return 0, err
		}
		if maximizing {
			if v > best {
				best = v
			}
			if best > alpha {
				alpha = best
			}
		} else {
			if v < best {
				best = v
			}
			if best < beta {
				beta = best
			}
		}
		if alpha >= beta {
			break
		}
	}

	if atBoundary {
		b, ok := s.table[key]
		if !ok {
			b = bound{lower: math.MinInt32, upper: math.MaxInt32}
		}
		switch {
		case best <= alpha0:
			b.upper = min(b.upper, best)
		case best >= beta0:
			b.lower = max(b.lower, best)
		default:
			b.lower, b.upper = best, best
		}
		s.table[key] = b
	}
	return best, nil
}

// distinct drops cards equivalent to the card before them: two cards of one
// suit are equivalent when every rank between them is out of play and not part
// of the current trick. cards must be ordered by suit then rank.
func (s *searcher) distinct(p *position, cards []domain.Card) []domain.Card {
	if len(cards) < 2 {
		return cards
	}
	inPlay := p.hands[0] | p.hands[1] | p.hands[2] | p.hands[3]
	for _, pc := range p.trick {
		inPlay |= 1 << uint(pc.Card.Index())
	}
	out := cards[:0:0]
	for i, c := range cards {
		if i > 0 {
			prev := cards[i-1]
			if prev.Suit == c.Suit && gapOutOfPlay(prev, c, inPlay) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func gapOutOfPlay(lo, hi domain.Card, inPlay uint64) bool {
	for r := lo.Rank + 1; r < hi.Rank; r++ {
		if inPlay&(1<<uint(domain.Card{Rank: r, Suit: lo.Suit}.Index())) != 0 {
			return false
		}
	}
	return true
}

func sortAscending(cards []domain.Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Rank != cards[j].Rank {
			return cards[i].Rank < cards[j].Rank
		}
		return cards[i].Suit < cards[j].Suit
	})
}
