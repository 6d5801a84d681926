// Package worker is the child-process side of subprocess isolation. A worker
// reads one request from stdin, runs the named engine and writes one response
// line to stdout. Any abnormal exit is detected by the parent as a crash.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/engine"
	"github.com/bridgetrainer/playengine/internal/wire"
)

// Serve handles a single request. Engine errors and panics are reported in
// the response rather than as a process failure; the returned error is only
// set when the request could not be read or the response could not be written.
func Serve(ctx context.Context, r io.Reader, w io.Writer, reg *engine.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	req, err := wire.ReadRequest(r)
	if err != nil {
		return err
	}
	resp := handle(ctx, req, reg, logger)
	if err := wire.WriteResponse(w, resp); err != nil {
		return domain.WrapEngineError(domain.ErrWorkerProtocol.Code, "write response", err)
	}
	return nil
}

func handle(ctx context.Context, req *wire.Request, reg *engine.Registry, logger *slog.Logger) (resp wire.Response) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("engine panicked", "engine", req.Engine, "panic", p)
			resp = wire.Response{Error: fmt.Sprintf("engine %s panicked: %v", req.Engine, p)}
		}
	}()

	eng, err := reg.Get(req.Engine)
	if err != nil {
		return wire.Response{Error: err.Error()}
	}
	seat, err := domain.ParseSeat(req.Seat)
	if err != nil {
		return wire.Response{Error: err.Error()}
	}
	snap, err := wire.DecodeSnapshot(req.Snapshot)
	if err != nil {
		return wire.Response{Error: err.Error()}
	}

	logger.Debug("engine started", "engine", req.Engine, "seat", seat.String())
	card, err := eng.Choose(ctx, snap, seat)
	if err != nil {
		return wire.Response{Error: err.Error()}
	}
	return wire.Response{Card: card.String()}
}
