package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseCard(t *testing.T) {
	cases := []struct {
		in   string
		want Card
	}{
		{"SA", Card{Rank: Ace, Suit: Spades}},
		{"h10", Card{Rank: 10, Suit: Hearts}},
		{"HT", Card{Rank: 10, Suit: Hearts}},
		{"D2", Card{Rank: 2, Suit: Diamonds}},
		{"♣Q", Card{Rank: Queen, Suit: Clubs}},
		{"KS", Card{Rank: King, Suit: Spades}},
		{"10C", Card{Rank: 10, Suit: Clubs}},
	}
	for _, tc := range cases {
		got, err := ParseCard(tc.in)
		if err != nil {
			t.Errorf("ParseCard(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCard(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseCard_Rejects(t *testing.T) {
	for _, in := range []string{"", "X9", "S1", "S11", "NT", "Z"} {
		if _, err := ParseCard(in); err == nil {
			t.Errorf("ParseCard(%q): expected error", in)
		}
	}
}

func TestCardString_RoundTrip(t *testing.T) {
	for _, c := range FullDeck() {
		got, err := ParseCard(c.String())
		if err != nil {
			t.Fatalf("ParseCard(%q): %v", c.String(), err)
		}
		if got != c {
			t.Errorf("round trip %v -> %v", c, got)
		}
	}
}

func TestFullDeck_IndexUnique(t *testing.T) {
	seen := make(map[int]bool)
	for _, c := range FullDeck() {
		if !c.Valid() {
			t.Errorf("%v not valid", c)
		}
		if seen[c.Index()] {
			t.Errorf("duplicate index %d for %v", c.Index(), c)
		}
		seen[c.Index()] = true
	}
	if len(seen) != 52 {
		t.Errorf("deck size = %d, want 52", len(seen))
	}
}

func TestSeat_Rotation(t *testing.T) {
	if North.Next() != East || West.Next() != North {
		t.Error("Next does not rotate clockwise")
	}
	if North.Partner() != South || East.Partner() != West {
		t.Error("Partner mismatch")
	}
	if !SameSide(North, South) || SameSide(North, East) {
		t.Error("SameSide mismatch")
	}
}

func TestParseTier(t *testing.T) {
	got, err := ParseTier("Expert")
	if err != nil || got != TierExpert {
		t.Errorf("ParseTier(Expert) = %v, %v", got, err)
	}
	got, err = ParseTier("2")
	if err != nil || got != TierIntermediate {
		t.Errorf("ParseTier(2) = %v, %v", got, err)
	}
	if _, err := ParseTier("grandmaster"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestSnapshotClone_Independent(t *testing.T) {
	s := &Snapshot{
		Hands:        [NumSeats]Hand{{{Rank: Ace, Suit: Spades}}},
		CurrentTrick: Trick{{Card: Card{Rank: 2, Suit: Clubs}, Seat: West}},
		History:      []Trick{{{Card: Card{Rank: 3, Suit: Clubs}, Seat: North}}},
	}
	c := s.Clone()
	c.Hands[0][0] = Card{Rank: 2, Suit: Hearts}
	c.CurrentTrick[0].Seat = East
	c.History[0][0].Seat = South

	if s.Hands[0][0] != (Card{Rank: Ace, Suit: Spades}) {
		t.Error("clone shares hand storage")
	}
	if s.CurrentTrick[0].Seat != West || s.History[0][0].Seat != North {
		t.Error("clone shares trick storage")
	}
}

func TestEngineError_IsWrapped(t *testing.T) {
	wrapped := fmt.Errorf("decide: %w", WrapEngineError(ErrTierNotRegistered.Code, "tier 9", nil))
	if !errors.Is(wrapped, ErrTierNotRegistered) {
		t.Error("expected wrapped error to match sentinel by code")
	}
	if !IsConfigurationError(wrapped) {
		t.Error("expected configuration class")
	}
	if IsConfigurationError(ErrEngineTimeout) {
		t.Error("timeout is not a configuration error")
	}
}

func TestOutcome_String(t *testing.T) {
	if got := Success(Card{Rank: Ace, Suit: Spades}).String(); got != "success(SA)" {
		t.Errorf("got %q", got)
	}
	if got := Crashed("signal: killed").String(); got != "crashed(signal: killed)" {
		t.Errorf("got %q", got)
	}
	if Timeout("deadline").OK() {
		t.Error("timeout must not be OK")
	}
}

func TestOutcome_Err(t *testing.T) {
	if err := Success(Card{Rank: 2, Suit: Clubs}).Err(); err != nil {
		t.Errorf("success err = %v", err)
	}
	cases := map[string]struct {
		out  Outcome
		want *EngineError
	}{
		"timeout": {Timeout("slow"), ErrEngineTimeout},
		"crashed": {Crashed("exit status 3"), ErrEngineCrashed},
		"invalid": {Invalid("bad card"), ErrEngineInvalid},
	}
	for name, tc := range cases {
		err := tc.out.Err()
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want code %d", name, err, tc.want.Code)
		}
	}
	if msg := Crashed("exit status 3").Err().Error(); !strings.Contains(msg, "exit status 3") {
		t.Errorf("crash message %q lacks the exit status", msg)
	}
}
