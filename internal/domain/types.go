// Package domain defines the core card-play types shared by the move supervisor,
// its decision engines, and the isolation runner.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Seat is one of the four fixed positions at the table.
type Seat uint8

const (
	North Seat = iota
	East
	South
	West
)

// NumSeats is the number of players at a bridge table.
const NumSeats = 4

var seatNames = [NumSeats]string{"N", "E", "S", "W"}

func (s Seat) String() string {
	if int(s) < NumSeats {
		return seatNames[s]
	}
	return "Seat(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of N/E/S/W.
func (s Seat) Valid() bool { return int(s) < NumSeats }

// Next returns the seat that plays after s (clockwise).
func (s Seat) Next() Seat { return (s + 1) % NumSeats }

// Partner returns the seat across the table.
func (s Seat) Partner() Seat { return (s + 2) % NumSeats }

// SameSide reports whether a and b are partners (or the same seat).
func SameSide(a, b Seat) bool { return a%2 == b%2 }

// ParseSeat accepts N/E/S/W, case-insensitive, or the full seat name.
func ParseSeat(s string) (Seat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH":
		return North, nil
	case "E", "EAST":
		return East, nil
	case "S", "SOUTH":
		return South, nil
	case "W", "WEST":
		return West, nil
	}
	return 0, fmt.Errorf("unknown seat %q", s)
}

// Suit is a card suit. Ordering follows bridge rank: clubs lowest, spades highest.
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
	// NoTrump marks a contract without a trump suit. It is never a card's suit.
	NoTrump
)

// Suits lists the four card suits, lowest first.
var Suits = [4]Suit{Clubs, Diamonds, Hearts, Spades}

var suitLetters = [5]string{"C", "D", "H", "S", "NT"}

func (s Suit) String() string {
	if s <= NoTrump {
		return suitLetters[s]
	}
	return "Suit(" + strconv.Itoa(int(s)) + ")"
}

// ParseSuit accepts C/D/H/S/NT, the unicode suit symbols, or "" for no trump.
func ParseSuit(s string) (Suit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "♣":
		return Clubs, nil
	case "D", "♦":
		return Diamonds, nil
	case "H", "♥":
		return Hearts, nil
	case "S", "♠":
		return Spades, nil
	case "NT", "N", "":
		return NoTrump, nil
	}
	return 0, fmt.Errorf("unknown suit %q", s)
}

// Rank is a card rank from 2 through 14 (ace).
type Rank uint8

const (
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

func (r Rank) String() string {
	switch r {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	}
	return strconv.Itoa(int(r))
}

// Card is a (rank, suit) pair. It has no identity beyond its value.
type Card struct {
	Rank Rank
	Suit Suit
}

// String renders the card as suit letter followed by rank, e.g. "SA" or "H10".
func (c Card) String() string { return c.Suit.String() + c.Rank.String() }

// Valid reports whether c is one of the 52 standard cards.
func (c Card) Valid() bool { return c.Rank >= 2 && c.Rank <= Ace && c.Suit < NoTrump }

// Index maps c to 0..51, grouped by suit.
func (c Card) Index() int { return int(c.Suit)*13 + int(c.Rank) - 2 }

// ParseCard reads forms like "SA", "H10", "HT", "♠A" or "AS".
func ParseCard(s string) (Card, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return Card{}, fmt.Errorf("empty card")
	}
	runes := []rune(t)
	suitPart, rankPart := string(runes[0]), string(runes[1:])
	suit, err := ParseSuit(suitPart)
	if err != nil || suit == NoTrump {
		// Try rank-first notation.
		suitPart, rankPart = string(runes[len(runes)-1]), string(runes[:len(runes)-1])
		suit, err = ParseSuit(suitPart)
		if err != nil || suit == NoTrump {
			return Card{}, fmt.Errorf("parse card %q: bad suit", s)
		}
	}
	rank, err := parseRank(rankPart)
	if err != nil {
		return Card{}, fmt.Errorf("parse card %q: %w", s, err)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

func parseRank(s string) (Rank, error) {
	switch s {
	case "A":
		return Ace, nil
	case "K":
		return King, nil
	case "Q":
		return Queen, nil
	case "J":
		return Jack, nil
	case "T", "10":
		return 10, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 2 || n > 9 {
		return 0, fmt.Errorf("bad rank %q", s)
	}
	return Rank(n), nil
}

// FullDeck returns the 52 cards ordered by suit then rank.
func FullDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, s := range Suits {
		for r := Rank(2); r <= Ace; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// Hand is the set of cards a seat currently holds.
type Hand []Card

// Contains reports whether the hand holds c.
func (h Hand) Contains(c Card) bool {
	for _, x := range h {
		if x == c {
			return true
		}
	}
	return false
}

// HasSuit reports whether the hand holds any card of suit s.
func (h Hand) HasSuit(s Suit) bool {
	for _, x := range h {
		if x.Suit == s {
			return true
		}
	}
	return false
}

// CountSuit returns how many cards of suit s the hand holds.
func (h Hand) CountSuit(s Suit) int {
	n := 0
	for _, x := range h {
		if x.Suit == s {
			n++
		}
	}
	return n
}

// Without returns a copy of the hand with c removed.
func (h Hand) Without(c Card) Hand {
	out := make(Hand, 0, len(h))
	for _, x := range h {
		if x != c {
			out = append(out, x)
		}
	}
	return out
}

// PlayedCard is one card contributed to a trick.
type PlayedCard struct {
	Card Card
	Seat Seat
}

// Trick is the ordered sequence of cards played to one trick (0..4 entries).
type Trick []PlayedCard

// LeadSuit returns the suit of the first card and whether the trick has started.
func (t Trick) LeadSuit() (Suit, bool) {
	if len(t) == 0 {
		return NoTrump, false
	}
	return t[0].Card.Suit, true
}

// Snapshot is an immutable description of one decision point.
// Engines must treat it as read-only.
type Snapshot struct {
	Hands        [NumSeats]Hand
	CurrentTrick Trick
	History      []Trick
	Trump        Suit
	SeatToMove   Seat
	TricksWon    [NumSeats]int
}

// Clone returns a deep copy, used by engines that need scratch state.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		CurrentTrick: append(Trick(nil), s.CurrentTrick...),
		Trump:        s.Trump,
		SeatToMove:   s.SeatToMove,
		TricksWon:    s.TricksWon,
	}
	for i := range s.Hands {
		out.Hands[i] = append(Hand(nil), s.Hands[i]...)
	}
	if s.History != nil {
		out.History = make([]Trick, len(s.History))
		for i, t := range s.History {
			out.History[i] = append(Trick(nil), t...)
		}
	}
	return out
}

// Tier is a difficulty level mapped to a decision engine. Higher is stronger.
type Tier int

const (
	TierNovice Tier = iota
	TierBeginner
	TierIntermediate
	TierAdvanced
	TierExpert
)

// TierEmergency is not a configurable tier. It labels decisions answered by the
// supervisor's own first-legal-card terminus after every engine failed.
const TierEmergency Tier = -1

var tierNames = map[Tier]string{
	TierEmergency:    "emergency",
	TierNovice:       "novice",
	TierBeginner:     "beginner",
	TierIntermediate: "intermediate",
	TierAdvanced:     "advanced",
	TierExpert:       "expert",
}

func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return "tier-" + strconv.Itoa(int(t))
}

// ParseTier accepts a tier name or its numeric level.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range tierNames {
		if n == name {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		return Tier(n), nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// MoveRequest asks for one card for Seat at the given difficulty.
// A zero Deadline means "use the tier's configured deadline".
type MoveRequest struct {
	Snapshot *Snapshot
	Seat     Seat
	Tier     Tier
	Deadline time.Duration
}

// ExecMode selects how the isolation runner executes an engine.
type ExecMode string

const (
	ModeInProcess  ExecMode = "inprocess"
	ModeSubprocess ExecMode = "subprocess"
)

// OutcomeKind tags the variant of an Outcome.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeTimeout OutcomeKind = "timeout"
	OutcomeCrashed OutcomeKind = "crashed"
	OutcomeInvalid OutcomeKind = "invalid"
)

// Outcome is the result of a single engine attempt. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Outcome struct {
	Kind       OutcomeKind
	Card       Card   // Success
	ExitSignal string // Crashed
	Reason     string // Timeout, Invalid
	Elapsed    time.Duration
}

// Success builds a successful outcome.
func Success(c Card) Outcome { return Outcome{Kind: OutcomeSuccess, Card: c} }

// Timeout builds a timeout outcome.
func Timeout(reason string) Outcome { return Outcome{Kind: OutcomeTimeout, Reason: reason} }

// Crashed builds a crash outcome carrying the worker's exit status.
func Crashed(exitSignal string) Outcome { return Outcome{Kind: OutcomeCrashed, ExitSignal: exitSignal} }

// Invalid builds an invalid-answer outcome.
func Invalid(reason string) Outcome { return Outcome{Kind: OutcomeInvalid, Reason: reason} }

// OK reports whether the outcome carries a card.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "success(" + o.Card.String() + ")"
	case OutcomeCrashed:
		return "crashed(" + o.ExitSignal + ")"
	default:
		return string(o.Kind) + "(" + o.Reason + ")"
	}
}

// Err returns the coded error matching a failed outcome, or nil on success.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeTimeout:
		return WrapEngineError(ErrEngineTimeout.Code, ErrEngineTimeout.Message, errorf(o.Reason))
	case OutcomeCrashed:
		return WrapEngineError(ErrEngineCrashed.Code, ErrEngineCrashed.Message, errorf(o.ExitSignal))
	default:
		return WrapEngineError(ErrEngineInvalid.Code, ErrEngineInvalid.Message, errorf(o.Reason))
	}
}

func errorf(detail string) error {
	if detail == "" {
		return nil
	}
	return fmt.Errorf("%s", detail)
}

// Attempt records one tier tried by the supervisor.
type Attempt struct {
	Seq     int
	Tier    Tier
	Engine  string
	Mode    ExecMode
	Outcome Outcome
}

// DecisionState is the supervisor's state machine position.
type DecisionState string

const (
	StateAttempting           DecisionState = "attempting"
	StateSucceeded            DecisionState = "succeeded"
	StateExhaustedToEmergency DecisionState = "exhausted_to_emergency"
	StateFailed               DecisionState = "failed"
)

// Decision is the supervisor's final answer for one MoveRequest.
type Decision struct {
	ID         string
	Seat       Seat
	Requested  Tier
	AnsweredBy Tier
	Card       Card
	State      DecisionState
	Emergency  bool
	Attempts   []Attempt
	CreatedAt  int64
}
