package rules

import (
	"errors"
	"testing"

	"github.com/bridgetrainer/playengine/internal/dealtest"
	"github.com/bridgetrainer/playengine/internal/domain"
)

func card(t *testing.T, s string) domain.Card {
	t.Helper()
	c, err := domain.ParseCard(s)
	if err != nil {
		t.Fatalf("ParseCard: %v", err)
	}
	return c
}

// spadeLedSnapshot: North holds SA and H2, West led S5.
func spadeLedSnapshot(t *testing.T) *domain.Snapshot {
	return dealtest.Endgame(t, [4]string{
		"SA H2",
		"S3 H3",
		"S4 H4",
		"D2",
	}, []dealtest.Play{{Seat: domain.West, Card: "S5"}}, domain.NoTrump, domain.West)
}

func TestValidate_MustFollowSuit(t *testing.T) {
	snap := spadeLedSnapshot(t)

	if err := Validate(snap, domain.North, card(t, "SA")); err != nil {
		t.Errorf("SA should be legal: %v", err)
	}
	err := Validate(snap, domain.North, card(t, "H2"))
	if !errors.Is(err, domain.ErrMustFollowSuit) {
		t.Errorf("H2: err = %v, want ErrMustFollowSuit", err)
	}
}

func TestValidate_CardNotHeld(t *testing.T) {
	snap := spadeLedSnapshot(t)
	err := Validate(snap, domain.North, card(t, "SK"))
	if !errors.Is(err, domain.ErrCardNotHeld) {
		t.Errorf("err = %v, want ErrCardNotHeld", err)
	}
}

func TestValidate_VoidMayDiscardOrRuff(t *testing.T) {
	snap := dealtest.Endgame(t, [4]string{
		"H2 C9",
		"S3 H3",
		"S4 H4",
		"D2",
	}, []dealtest.Play{{Seat: domain.West, Card: "S5"}}, domain.Hearts, domain.West)

	for _, c := range []string{"H2", "C9"} {
		if err := Validate(snap, domain.North, card(t, c)); err != nil {
			t.Errorf("%s should be legal when void in spades: %v", c, err)
		}
	}
}

func TestValidate_LeadAnything(t *testing.T) {
	snap := dealtest.Deal(domain.Spades, domain.East)
	for _, c := range snap.Hands[domain.East] {
		if err := Validate(snap, domain.East, c); err != nil {
			t.Errorf("lead %s: %v", c, err)
		}
	}
}

func TestValidate_InvalidCard(t *testing.T) {
	snap := dealtest.Deal(domain.NoTrump, domain.North)
	err := Validate(snap, domain.North, domain.Card{Rank: 1, Suit: domain.Spades})
	if !errors.Is(err, domain.ErrInvalidCard) {
		t.Errorf("err = %v, want ErrInvalidCard", err)
	}
}

func TestLegalCards(t *testing.T) {
	snap := spadeLedSnapshot(t)
	got := LegalCards(snap, domain.North)
	if len(got) != 1 || got[0] != card(t, "SA") {
		t.Errorf("LegalCards = %v, want [SA]", got)
	}
}

func TestFirstLegal(t *testing.T) {
	snap := dealtest.Endgame(t, [4]string{
		"H2 SA",
		"S3 H3",
		"S4 H4",
		"D2",
	}, []dealtest.Play{{Seat: domain.West, Card: "S5"}}, domain.NoTrump, domain.West)

	got, ok := FirstLegal(snap, domain.North)
	if !ok || got != card(t, "SA") {
		t.Errorf("FirstLegal = %v, %v; want SA", got, ok)
	}

	empty := &domain.Snapshot{}
	if _, ok := FirstLegal(empty, domain.North); ok {
		t.Error("expected no legal card for empty hand")
	}
}

func TestTrickWinner(t *testing.T) {
	cases := []struct {
		name  string
		trick []string
		trump domain.Suit
		want  int
	}{
		{"highest of led suit", []string{"S5", "SK", "S9", "H2"}, domain.NoTrump, 1},
		{"off-suit never wins at notrump", []string{"S5", "HA", "DA", "CA"}, domain.NoTrump, 0},
		{"ruff wins", []string{"S5", "SK", "H2", "S9"}, domain.Hearts, 2},
		{"overruff", []string{"S5", "H2", "H9", "SA"}, domain.Hearts, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tr domain.Trick
			for i, s := range tc.trick {
				tr = append(tr, domain.PlayedCard{Card: card(t, s), Seat: domain.Seat(i)})
			}
			if got := TrickWinner(tr, tc.trump); got != tc.want {
				t.Errorf("TrickWinner = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCheckSnapshot_Valid(t *testing.T) {
	if err := CheckSnapshot(dealtest.Deal(domain.NoTrump, domain.North)); err != nil {
		t.Errorf("full deal: %v", err)
	}
	if err := CheckSnapshot(spadeLedSnapshot(t)); err != nil {
		t.Errorf("endgame: %v", err)
	}
	if err := CheckSnapshot(dealtest.Shuffled(5, domain.Hearts, domain.South)); err != nil {
		t.Errorf("shuffled: %v", err)
	}
}

func TestCheckSnapshot_Rejects(t *testing.T) {
	dup := dealtest.Deal(domain.NoTrump, domain.North)
	dup.Hands[domain.East][0] = dup.Hands[domain.North][0]

	missing := dealtest.Deal(domain.NoTrump, domain.North)
	missing.Hands[domain.West] = missing.Hands[domain.West][1:]

	emptyMover := dealtest.Deal(domain.NoTrump, domain.North)
	emptyMover.History = []domain.Trick{}
	for i := 0; i < 13; i++ {
		emptyMover.History = append(emptyMover.History, domain.Trick{
			{Card: emptyMover.Hands[domain.North][i], Seat: domain.North},
			{Card: emptyMover.Hands[domain.East][i], Seat: domain.East},
			{Card: emptyMover.Hands[domain.South][i], Seat: domain.South},
			{Card: emptyMover.Hands[domain.West][i], Seat: domain.West},
		})
	}
	emptyMover.Hands = [4]domain.Hand{}

	wrongTurn := spadeLedSnapshot(t)
	wrongTurn.SeatToMove = domain.South

	cases := map[string]*domain.Snapshot{
		"nil":         nil,
		"duplicate":   dup,
		"missing":     missing,
		"empty mover": emptyMover,
		"wrong turn":  wrongTurn,
	}
	for name, snap := range cases {
		err := CheckSnapshot(snap)
		if !errors.Is(err, domain.ErrMalformedSnapshot) {
			t.Errorf("%s: err = %v, want ErrMalformedSnapshot", name, err)
		}
	}
}

func TestApply_CompletesTrick(t *testing.T) {
	snap := dealtest.Endgame(t, [4]string{
		"SA H2",
		"S3 H3",
		"S4 H4",
		"D2",
	}, []dealtest.Play{{Seat: domain.West, Card: "S5"}}, domain.NoTrump, domain.West)

	next := Apply(snap, card(t, "SA"))
	next = Apply(next, card(t, "S3"))
	next = Apply(next, card(t, "S4"))

	if len(next.CurrentTrick) != 0 {
		t.Fatalf("current trick not cleared: %v", next.CurrentTrick)
	}
	if next.SeatToMove != domain.North {
		t.Errorf("SeatToMove = %v, want N (won with SA)", next.SeatToMove)
	}
	if next.TricksWon[domain.North] != snap.TricksWon[domain.North]+1 {
		t.Errorf("TricksWon[N] = %d", next.TricksWon[domain.North])
	}
	if len(next.History) != len(snap.History)+1 {
		t.Errorf("history length = %d", len(next.History))
	}
	if err := CheckSnapshot(next); err != nil {
		t.Errorf("CheckSnapshot after apply: %v", err)
	}
	if len(snap.Hands[domain.North]) != 2 {
		t.Error("Apply mutated the input snapshot")
	}
}
