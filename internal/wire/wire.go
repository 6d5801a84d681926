// Package wire defines the JSON form of snapshots and the worker protocol:
// one request object on stdin, one response line on stdout.
package wire

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// Play is one card of a trick.
type Play struct {
	Seat string `json:"seat"`
	Card string `json:"card"`
}

// Snapshot is the JSON form of domain.Snapshot. Hands are keyed by seat letter.
type Snapshot struct {
	Hands        map[string][]string `json:"hands"`
	CurrentTrick []Play              `json:"current_trick"`
	History      [][]Play            `json:"history"`
	Trump        string              `json:"trump"`
	SeatToMove   string              `json:"seat_to_move"`
	TricksWon    map[string]int      `json:"tricks_won,omitempty"`
}

// Request asks a worker to run Engine for Seat.
type Request struct {
	Engine   string    `json:"engine"`
	Seat     string    `json:"seat"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Response carries either the chosen card or an error message.
type Response struct {
	Card  string `json:"card,omitempty"`
	Error string `json:"error,omitempty"`
}

// EncodeSnapshot converts a snapshot to its wire form.
func EncodeSnapshot(snap *domain.Snapshot) *Snapshot {
	out := &Snapshot{
		Hands:        make(map[string][]string, domain.NumSeats),
		CurrentTrick: encodeTrick(snap.CurrentTrick),
		History:      make([][]Play, 0, len(snap.History)),
		Trump:        snap.Trump.String(),
		SeatToMove:   snap.SeatToMove.String(),
		TricksWon:    make(map[string]int, domain.NumSeats),
	}
	for i, h := range snap.Hands {
		seat := domain.Seat(i).String()
		cards := make([]string, len(h))
		for j, c := range h {
			cards[j] = c.String()
		}
		out.Hands[seat] = cards
		out.TricksWon[seat] = snap.TricksWon[i]
	}
	for _, t := range snap.History {
		out.History = append(out.History, encodeTrick(t))
	}
	return out
}

func encodeTrick(t domain.Trick) []Play {
	out := make([]Play, len(t))
	for i, pc := range t {
		out[i] = Play{Seat: pc.Seat.String(), Card: pc.Card.String()}
	}
	return out
}

// DecodeSnapshot converts a wire snapshot back to the domain form. It checks
// syntax only; deck consistency is rules.CheckSnapshot's job.
func DecodeSnapshot(w *Snapshot) (*domain.Snapshot, error) {
	if w == nil {
		return nil, domain.WrapEngineError(domain.ErrMalformedSnapshot.Code, "snapshot missing", nil)
	}
	snap := &domain.Snapshot{}
	for name, cards := range w.Hands {
		seat, err := domain.ParseSeat(name)
		if err != nil {
			return nil, malformed("hands", err)
		}
		for _, s := range cards {
			c, err := domain.ParseCard(s)
			if err != nil {
				return nil, malformed("hand "+name, err)
			}
			snap.Hands[seat] = append(snap.Hands[seat], c)
		}
	}
	trick, err := decodeTrick(w.CurrentTrick)
	if err != nil {
		return nil, malformed("current_trick", err)
	}
	snap.CurrentTrick = trick
	for i, t := range w.History {
		trick, err := decodeTrick(t)
		if err != nil {
			return nil, malformed(fmt.Sprintf("history[%d]", i), err)
		}
		snap.History = append(snap.History, trick)
	}
	if snap.Trump, err = domain.ParseSuit(w.Trump); err != nil {
		return nil, malformed("trump", err)
	}
	if snap.SeatToMove, err = domain.ParseSeat(w.SeatToMove); err != nil {
		return nil, malformed("seat_to_move", err)
	}
	for name, n := range w.TricksWon {
		seat, err := domain.ParseSeat(name)
		if err != nil {
			return nil, malformed("tricks_won", err)
		}
		snap.TricksWon[seat] = n
	}
	return snap, nil
}

func decodeTrick(plays []Play) (domain.Trick, error) {
	var out domain.Trick
	for _, p := range plays {
		seat, err := domain.ParseSeat(p.Seat)
		if err != nil {
			return nil, err
		}
		c, err := domain.ParseCard(p.Card)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PlayedCard{Card: c, Seat: seat})
	}
	return out, nil
}

func malformed(field string, cause error) error {
	return domain.WrapEngineError(domain.ErrMalformedSnapshot.Code, "snapshot "+field, cause)
}

// WriteRequest encodes req as a single JSON line.
func WriteRequest(w io.Writer, req *Request) error {
	return json.NewEncoder(w).Encode(req)
}

// ReadRequest decodes one request from r.
func ReadRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, domain.WrapEngineError(domain.ErrWorkerProtocol.Code, "decode request", err)
	}
	return &req, nil
}

// WriteResponse encodes resp as a single JSON line.
func WriteResponse(w io.Writer, resp Response) error {
	return json.NewEncoder(w).Encode(resp)
}

// ParseResponse decodes a worker's stdout. Empty output and trailing bytes
// after the first object are rejected.
func ParseResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, domain.WrapEngineError(domain.ErrWorkerProtocol.Code, "decode response", err)
	}
	if resp.Card == "" && resp.Error == "" {
		return Response{}, domain.WrapEngineError(domain.ErrWorkerProtocol.Code, "response has neither card nor error", nil)
	}
	return resp, nil
}
