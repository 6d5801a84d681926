// Package runner executes one decision engine attempt under a deadline, either
// in the caller's process or in a freshly spawned worker process, and reports
// the result as a domain.Outcome. It never returns an error: every failure is
// an outcome the supervisor can recover from.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/engine"
	"github.com/bridgetrainer/playengine/internal/wire"
)

// DefaultDeadline applies to descriptors configured without one.
const DefaultDeadline = 2 * time.Second

// waitDelay bounds how long Wait keeps draining pipes after the worker is
// killed, in case it left children holding stdout open.
const waitDelay = 250 * time.Millisecond

// maxOutput caps captured worker stdout and stderr.
const maxOutput = 64 << 10

// Descriptor is one entry of a fallback chain: which engine answers a tier and
// how it is executed.
type Descriptor struct {
	Tier     domain.Tier
	Engine   string
	Mode     domain.ExecMode
	Deadline time.Duration
}

// Runner executes attempts. Engines serves in-process attempts; subprocess
// attempts run WorkerCommand with WorkerArgs, passing the engine by name.
type Runner struct {
	Engines       *engine.Registry
	Pool          *Pool
	WorkerCommand string
	WorkerArgs    []string
	Env           map[string]string
	Logger        *slog.Logger

	mu     sync.Mutex
	active map[int64]*exec.Cmd
	seq    atomic.Int64
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Run performs one attempt bounded by d.Deadline.
func (r *Runner) Run(ctx context.Context, d Descriptor, req domain.MoveRequest) domain.Outcome {
	deadline := d.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	var out domain.Outcome
	switch d.Mode {
	case domain.ModeInProcess, "":
		out = r.runInProcess(ctx, d, req)
	case domain.ModeSubprocess:
		out = r.runSubprocess(ctx, d, req)
	default:
		out = domain.Invalid(fmt.Sprintf("unknown execution mode %q", d.Mode))
	}
	out.Elapsed = time.Since(start)
	return out
}

type choice struct {
	card domain.Card
	err  error
}

func (r *Runner) runInProcess(ctx context.Context, d Descriptor, req domain.MoveRequest) domain.Outcome {
	if r.Engines == nil {
		return domain.Invalid("no in-process engines configured")
	}
	eng, err := r.Engines.Get(d.Engine)
	if err != nil {
		return domain.Invalid(err.Error())
	}

	// The engine gets its own copy so an abandoned goroutine never shares
	// state with later attempts.
	snap := req.Snapshot.Clone()
	done := make(chan choice, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- choice{err: fmt.Errorf("engine %s panicked: %v", d.Engine, p)}
			}
		}()
		c, err := eng.Choose(ctx, snap, req.Seat)
		done <- choice{card: c, err: err}
	}()

	select {
	case res := <-done:
		if ctx.Err() != nil {
			return timeoutOutcome(ctx)
		}
		if res.err != nil {
			return domain.Invalid(res.err.Error())
		}
		return domain.Success(res.card)
	case <-ctx.Done():
		r.logger().Warn("in-process engine abandoned", "engine", d.Engine, "tier", d.Tier.String())
		return timeoutOutcome(ctx)
	}
}

func (r *Runner) runSubprocess(ctx context.Context, d Descriptor, req domain.MoveRequest) domain.Outcome {
	if r.WorkerCommand == "" {
		return domain.Invalid("no worker command configured")
	}
	if r.Pool != nil {
		release, err := r.Pool.Acquire(ctx)
		if err != nil {
			return domain.Timeout(err.Error())
		}
		defer release()
	}

	var stdin bytes.Buffer
	if err := wire.WriteRequest(&stdin, &wire.Request{
		Engine:   d.Engine,
		Seat:     req.Seat.String(),
		Snapshot: wire.EncodeSnapshot(req.Snapshot),
	}); err != nil {
		return domain.Invalid("encode request: " + err.Error())
	}

	cmd := exec.CommandContext(ctx, r.WorkerCommand, r.WorkerArgs...)
	cmd.Env = r.environ()
	cmd.Stdin = &stdin
	stdout := &cappedBuffer{limit: maxOutput}
	stderr := &cappedBuffer{limit: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return timeoutOutcome(ctx)
		}
		return domain.Crashed("start: " + err.Error())
	}
	id := r.track(cmd)
	err := cmd.Wait()
	r.untrack(id)

	logger := r.logger().With("engine", d.Engine, "tier", d.Tier.String(), "pid", cmd.Process.Pid)
	if ctx.Err() != nil {
		logger.Warn("worker killed at deadline")
		return timeoutOutcome(ctx)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn("worker crashed", "status", exitErr.ProcessState.String(), "stderr", stderr.String())
			return domain.Crashed(exitErr.ProcessState.String())
		}
		if errors.Is(err, exec.ErrWaitDelay) {
			// Exited cleanly but left its output pipe open past WaitDelay.
			logger.Warn("worker output not closed", "stderr", stderr.String())
		} else {
			return domain.Crashed(err.Error())
		}
	}

	resp, err := wire.ParseResponse(stdout.Bytes())
	if err != nil {
		return domain.Invalid(err.Error())
	}
	if resp.Error != "" {
		return domain.Invalid(resp.Error)
	}
	card, err := domain.ParseCard(resp.Card)
	if err != nil {
		return domain.Invalid(err.Error())
	}
	return domain.Success(card)
}

func timeoutOutcome(ctx context.Context) domain.Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Timeout(domain.ErrEngineTimeout.Message)
	}
	return domain.Timeout("request cancelled: " + ctx.Err().Error())
}

// environ returns nil (inherit) when no extra variables are configured.
func (r *Runner) environ() []string {
	if len(r.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+r.Env[k])
	}
	return env
}

func (r *Runner) track(cmd *exec.Cmd) int64 {
	id := r.seq.Add(1)
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[int64]*exec.Cmd)
	}
	r.active[id] = cmd
	r.mu.Unlock()
	return id
}

func (r *Runner) untrack(id int64) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Active returns the number of worker processes currently running.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// StopAll kills every running worker. In-flight attempts observe the kill as a
// crash and fall back. Used at shutdown.
func (r *Runner) StopAll() {
	r.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(r.active))
	for _, c := range r.active {
		cmds = append(cmds, c)
	}
	r.mu.Unlock()

	for _, c := range cmds {
		// Wait is owned by runSubprocess; Kill only signals.
		_ = c.Process.Kill()
	}
}

// cappedBuffer keeps the first limit bytes written and silently drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }
