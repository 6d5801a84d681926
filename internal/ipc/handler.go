// Package ipc provides the HTTP API for the move supervisor.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/guard"
	"github.com/bridgetrainer/playengine/internal/rules"
	"github.com/bridgetrainer/playengine/internal/store"
	"github.com/bridgetrainer/playengine/internal/supervisor"
	"github.com/bridgetrainer/playengine/internal/wire"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Supervisor *supervisor.Supervisor
	Ledger     *store.Ledger
	Guard      *guard.Guard
	Logger     *slog.Logger
}

// MoveRequest is the body for POST /api/v1/move and the payload of a
// websocket move message.
type MoveRequest struct {
	RequestID  string         `json:"request_id,omitempty"`
	Tier       string         `json:"tier"`
	Seat       string         `json:"seat,omitempty"`
	DeadlineMS int            `json:"deadline_ms,omitempty"`
	Snapshot   *wire.Snapshot `json:"snapshot"`
}

// AttemptView is the JSON form of one attempt.
type AttemptView struct {
	Seq        int    `json:"seq"`
	Tier       string `json:"tier"`
	Engine     string `json:"engine"`
	Mode       string `json:"mode"`
	Outcome    string `json:"outcome"`
	Card       string `json:"card,omitempty"`
	ExitSignal string `json:"exit_signal,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// DecisionView is the JSON form of a decision.
type DecisionView struct {
	ID         string        `json:"decision_id"`
	Seat       string        `json:"seat"`
	Requested  string        `json:"requested_tier"`
	AnsweredBy string        `json:"answered_by"`
	Card       string        `json:"card,omitempty"`
	State      string        `json:"state"`
	Emergency  bool          `json:"emergency"`
	Attempts   []AttemptView `json:"attempts,omitempty"`
	CreatedAt  int64         `json:"created_at"`
}

// TierView describes one configured tier.
type TierView struct {
	Tier       string `json:"tier"`
	Level      int    `json:"level"`
	Engine     string `json:"engine"`
	Mode       string `json:"mode"`
	DeadlineMS int64  `json:"deadline_ms"`
}

// EngineStatsView counts attempt outcomes for one engine.
type EngineStatsView struct {
	Engine   string         `json:"engine"`
	Outcomes map[string]int `json:"outcomes"`
}

// StatsView is the response for GET /api/v1/stats.
type StatsView struct {
	Decisions map[string]int    `json:"decisions"`
	Engines   []EngineStatsView `json:"engines"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h.Logger
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTiers handles GET /api/v1/tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	descs := h.Supervisor.Tiers.List()
	out := make([]TierView, 0, len(descs))
	for _, d := range descs {
		out = append(out, TierView{
			Tier:       d.Tier.String(),
			Level:      int(d.Tier),
			Engine:     d.Engine,
			Mode:       string(d.Mode),
			DeadlineMS: d.Deadline.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// maxMoveBytes caps one move request, over HTTP or websocket.
const maxMoveBytes = 64 << 10

// Move handles POST /api/v1/move.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMoveBytes)).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, APIError{Code: 413, Message: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	view, err := h.decide(r.Context(), clientKey(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) decide(ctx context.Context, client string, req MoveRequest) (*DecisionView, error) {
	if err := h.Guard.CheckRateLimit(client); err != nil {
		return nil, err
	}
	mr, err := toMoveRequest(req)
	if err != nil {
		return nil, err
	}
	d, err := h.Supervisor.Decide(ctx, mr)
	if err != nil {
		h.logger().Error("move failed", "request", req.RequestID, "err", err)
		return nil, err
	}
	return decisionView(d), nil
}

// toMoveRequest decodes and checks an API request. Every failure is a client
// error: a bad field or a snapshot that breaks the deck invariant.
func toMoveRequest(req MoveRequest) (domain.MoveRequest, error) {
	var mr domain.MoveRequest
	if req.Tier == "" {
		return mr, badRequest("tier is required")
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return mr, badRequest(err.Error())
	}
	if req.DeadlineMS < 0 {
		return mr, badRequest("deadline_ms must not be negative")
	}
	snap, err := wire.DecodeSnapshot(req.Snapshot)
	if err != nil {
		return mr, err
	}
	if err := rules.CheckSnapshot(snap); err != nil {
		return mr, err
	}
	seat := snap.SeatToMove
	if req.Seat != "" {
		if seat, err = domain.ParseSeat(req.Seat); err != nil {
			return mr, badRequest(err.Error())
		}
		if seat != snap.SeatToMove {
			return mr, badRequest(fmt.Sprintf("seat %s is not to move (%s is)", seat, snap.SeatToMove))
		}
	}
	return domain.MoveRequest{
		Snapshot: snap,
		Seat:     seat,
		Tier:     tier,
		Deadline: time.Duration(req.DeadlineMS) * time.Millisecond,
	}, nil
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func badRequest(msg string) error {
	return domain.WrapEngineError(domain.ErrInvalidRequest.Code, msg, nil)
}

// GetDecision handles GET /api/v1/decisions/{id}.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.Ledger.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionView(d))
}

// ListAttempts handles GET /api/v1/decisions/{id}/attempts.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.Ledger.AttemptsOf(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptViews(attempts))
}

// ListDecisions handles GET /api/v1/decisions?limit=N, newest first.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := h.Ledger.Decisions.ListRecent(r.Context(), h.Ledger.DB, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]DecisionView, 0, len(rows))
	for _, row := range rows {
		out = append(out, *rowView(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Ledger.Decisions.CountByState(r.Context(), h.Ledger.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	engines, err := h.Ledger.Attempts.StatsByEngine(r.Context(), h.Ledger.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	out := StatsView{Decisions: make(map[string]int, len(counts)), Engines: []EngineStatsView{}}
	for state, n := range counts {
		out.Decisions[string(state)] = n
	}
	for _, es := range engines {
		v := EngineStatsView{Engine: es.Engine, Outcomes: make(map[string]int, len(es.Outcomes))}
		for kind, n := range es.Outcomes {
			v.Outcomes[string(kind)] = n
		}
		out.Engines = append(out.Engines, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// StreamDecisions handles GET /api/v1/decisions/stream?since_seq=N (SSE).
func (h *Handler) StreamDecisions(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastSeq := int64(0)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			lastSeq = parsed
		}
	}

	ctx := r.Context()
	poll := func() bool {
		rows, err := h.Ledger.Decisions.ListSince(ctx, h.Ledger.DB, lastSeq, 100)
		if err != nil {
			writeSSEError(w, flusher, err)
			return false
		}
		for _, row := range rows {
			writeSSEEvent(w, flusher, row.Seq, rowView(row))
			lastSeq = row.Seq
		}
		return true
	}
	if !poll() {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !poll() {
				return
			}
		}
	}
}

func decisionView(d *domain.Decision) *DecisionView {
	v := &DecisionView{
		ID:         d.ID,
		Seat:       d.Seat.String(),
		Requested:  d.Requested.String(),
		AnsweredBy: d.AnsweredBy.String(),
		State:      string(d.State),
		Emergency:  d.Emergency,
		Attempts:   attemptViews(d.Attempts),
		CreatedAt:  d.CreatedAt,
	}
	if d.State == domain.StateSucceeded || d.State == domain.StateExhaustedToEmergency {
		v.Card = d.Card.String()
	}
	return v
}

// rowView renders a stored decision whose attempts were not loaded.
func rowView(row *store.DecisionRow) *DecisionView {
	v := decisionView(&row.Decision)
	v.Attempts = nil
	return v
}

func attemptViews(attempts []domain.Attempt) []AttemptView {
	out := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		v := AttemptView{
			Seq:        a.Seq,
			Tier:       a.Tier.String(),
			Engine:     a.Engine,
			Mode:       string(a.Mode),
			Outcome:    string(a.Outcome.Kind),
			ExitSignal: a.Outcome.ExitSignal,
			Reason:     a.Outcome.Reason,
			ElapsedMS:  a.Outcome.Elapsed.Milliseconds(),
		}
		if a.Outcome.OK() {
			v.Card = a.Outcome.Card.String()
		}
		out = append(out, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorStatus(err error) (int, APIError) {
	var engErr *domain.EngineError
	if !errors.As(err, &engErr) {
		return http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()}
	}
	status := http.StatusInternalServerError
	switch engErr.Code {
	case domain.ErrInvalidRequest.Code, domain.ErrMalformedSnapshot.Code:
		status = http.StatusBadRequest
	case domain.ErrDecisionNotFound.Code:
		status = http.StatusNotFound
	case domain.ErrTierNotRegistered.Code:
		status = http.StatusUnprocessableEntity
	case domain.ErrRateLimitExceeded.Code:
		status = http.StatusTooManyRequests
	}
	return status, APIError{Code: engErr.Code, Message: engErr.Message}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	writeJSON(w, status, body)
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, seq int64, v *DecisionView) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", seq, data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
