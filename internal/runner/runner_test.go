package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bridgetrainer/playengine/internal/dealtest"
	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/engine"
	"github.com/bridgetrainer/playengine/internal/worker"
)

const helperEnv = "PLAYENGINE_TEST_WORKER"

// TestMain turns the test binary into a worker process when helperEnv is set,
// so subprocess attempts run real engines without a separate build.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		if err := worker.Serve(context.Background(), os.Stdin, os.Stdout, testEngines(), nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testEngines() *engine.Registry {
	reg := engine.NewDefaultRegistry()
	extra := []engine.Engine{
		engine.Func{EngineName: "sleepy", Fn: func(context.Context, *domain.Snapshot, domain.Seat) (domain.Card, error) {
			time.Sleep(time.Hour)
			return domain.Card{}, nil
		}},
		engine.Func{EngineName: "exits", Fn: func(context.Context, *domain.Snapshot, domain.Seat) (domain.Card, error) {
			os.Exit(3)
			return domain.Card{}, nil
		}},
		engine.Func{EngineName: "panics", Fn: func(context.Context, *domain.Snapshot, domain.Seat) (domain.Card, error) {
			var h domain.Hand
			return h[5], nil
		}},
		engine.Func{EngineName: "fails", Fn: func(context.Context, *domain.Snapshot, domain.Seat) (domain.Card, error) {
			return domain.Card{}, errors.New("no idea")
		}},
		engine.Func{EngineName: "cooperative", Fn: func(ctx context.Context, _ *domain.Snapshot, _ domain.Seat) (domain.Card, error) {
			<-ctx.Done()
			return domain.Card{}, ctx.Err()
		}},
	}
	for _, e := range extra {
		_ = reg.Register(e)
	}
	return reg
}

func helperRunner() *Runner {
	return &Runner{
		Engines:       testEngines(),
		Pool:          NewPool(4, time.Second),
		WorkerCommand: os.Args[0],
		WorkerArgs:    []string{"-test.run=^$"},
		Env:           map[string]string{helperEnv: "1"},
	}
}

func moveRequest() domain.MoveRequest {
	return domain.MoveRequest{
		Snapshot: dealtest.Deal(domain.NoTrump, domain.North),
		Seat:     domain.North,
		Tier:     domain.TierExpert,
	}
}

func sh(t *testing.T, script string) *Runner {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return &Runner{WorkerCommand: path, WorkerArgs: []string{"-c", script}, Pool: NewPool(2, time.Second)}
}

func subprocess(engineName string, deadline time.Duration) Descriptor {
	return Descriptor{Tier: domain.TierExpert, Engine: engineName, Mode: domain.ModeSubprocess, Deadline: deadline}
}

func inProcess(engineName string, deadline time.Duration) Descriptor {
	return Descriptor{Tier: domain.TierNovice, Engine: engineName, Mode: domain.ModeInProcess, Deadline: deadline}
}

// ---------------------------------------------------------------------------
// In-process mode
// ---------------------------------------------------------------------------

func TestInProcess_Success(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), inProcess("lowest", time.Second), moveRequest())
	if out.Kind != domain.OutcomeSuccess || out.Card.String() != "S2" {
		t.Errorf("outcome = %v, want success(S2)", out)
	}
}

func TestInProcess_TimeoutAbandonsEngine(t *testing.T) {
	r := helperRunner()
	start := time.Now()
	out := r.Run(context.Background(), inProcess("sleepy", 50*time.Millisecond), moveRequest())
	if out.Kind != domain.OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run took %v", elapsed)
	}
}

func TestInProcess_CooperativeEngineTimesOut(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), inProcess("cooperative", 30*time.Millisecond), moveRequest())
	if out.Kind != domain.OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
}

func TestInProcess_PanicIsInvalid(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), inProcess("panics", time.Second), moveRequest())
	if out.Kind != domain.OutcomeInvalid || !strings.Contains(out.Reason, "panicked") {
		t.Errorf("outcome = %v, want invalid(panicked)", out)
	}
}

func TestInProcess_ErrorIsInvalid(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), inProcess("fails", time.Second), moveRequest())
	if out.Kind != domain.OutcomeInvalid || !strings.Contains(out.Reason, "no idea") {
		t.Errorf("outcome = %v", out)
	}
}

func TestInProcess_UnknownEngineIsInvalid(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), inProcess("oracle", time.Second), moveRequest())
	if out.Kind != domain.OutcomeInvalid {
		t.Errorf("outcome = %v, want invalid", out)
	}
}

func TestInProcess_ParentCancel(t *testing.T) {
	r := helperRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := r.Run(ctx, inProcess("cooperative", time.Second), moveRequest())
	if out.Kind != domain.OutcomeTimeout || !strings.Contains(out.Reason, "cancelled") {
		t.Errorf("outcome = %v", out)
	}
}

// ---------------------------------------------------------------------------
// Subprocess mode
// ---------------------------------------------------------------------------

func TestSubprocess_ParentCancelIsTimeout(t *testing.T) {
	r := helperRunner()
	r.Pool = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := r.Run(ctx, subprocess("lowest", time.Second), moveRequest())
	if out.Kind != domain.OutcomeTimeout || !strings.Contains(out.Reason, "cancelled") {
		t.Errorf("outcome = %v, want timeout(request cancelled)", out)
	}
	if r.Active() != 0 {
		t.Errorf("active workers = %d, want 0", r.Active())
	}
}

func TestSubprocess_Success(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), subprocess("solver", 5*time.Second), domain.MoveRequest{
		Snapshot: dealtest.Endgame(t, [4]string{"S2 S3", "H2 H3", "SA SQ", "SK S4"}, nil, domain.NoTrump, domain.North),
		Seat:     domain.North,
	})
	if out.Kind != domain.OutcomeSuccess {
		t.Fatalf("outcome = %v, want success", out)
	}
	if out.Card.Suit != domain.Spades {
		t.Errorf("card = %v, want a spade", out.Card)
	}
	if r.Active() != 0 {
		t.Errorf("Active = %d after Run", r.Active())
	}
}

func TestSubprocess_HangIsKilledAtDeadline(t *testing.T) {
	r := helperRunner()
	deadline := 300 * time.Millisecond
	start := time.Now()
	out := r.Run(context.Background(), subprocess("sleepy", deadline), moveRequest())
	elapsed := time.Since(start)

	if out.Kind != domain.OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
	if elapsed > deadline+waitDelay+time.Second {
		t.Errorf("Run took %v, deadline %v", elapsed, deadline)
	}
}

func TestSubprocess_ExitIsCrash(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), subprocess("exits", 5*time.Second), moveRequest())
	if out.Kind != domain.OutcomeCrashed || out.ExitSignal != "exit status 3" {
		t.Errorf("outcome = %v, want crashed(exit status 3)", out)
	}
}

func TestSubprocess_KilledBySignalIsCrash(t *testing.T) {
	r := sh(t, "kill -9 $$")
	out := r.Run(context.Background(), subprocess("solver", 5*time.Second), moveRequest())
	if out.Kind != domain.OutcomeCrashed || out.ExitSignal != "signal: killed" {
		t.Errorf("outcome = %v, want crashed(signal: killed)", out)
	}
}

func TestSubprocess_ShellHang(t *testing.T) {
	r := sh(t, "exec sleep 10")
	start := time.Now()
	out := r.Run(context.Background(), subprocess("solver", 200*time.Millisecond), moveRequest())
	if out.Kind != domain.OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run took %v", elapsed)
	}
}

func TestSubprocess_PanicInWorkerIsInvalid(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), subprocess("panics", 5*time.Second), moveRequest())
	if out.Kind != domain.OutcomeInvalid || !strings.Contains(out.Reason, "panicked") {
		t.Errorf("outcome = %v, want invalid(panicked)", out)
	}
}

func TestSubprocess_ErrorResponseIsInvalid(t *testing.T) {
	r := helperRunner()
	out := r.Run(context.Background(), subprocess("fails", 5*time.Second), moveRequest())
	if out.Kind != domain.OutcomeInvalid || !strings.Contains(out.Reason, "no idea") {
		t.Errorf("outcome = %v", out)
	}
}

func TestSubprocess_GarbageOutputIsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":  "cat >/dev/null; echo 'hello'",
		"empty":     "cat >/dev/null",
		"bad card":  `cat >/dev/null; echo '{"card":"Z9"}'`,
		"no fields": `cat >/dev/null; echo '{}'`,
	}
	for name, script := range cases {
		t.Run(name, func(t *testing.T) {
			r := sh(t, script)
			out := r.Run(context.Background(), subprocess("solver", 5*time.Second), moveRequest())
			if out.Kind != domain.OutcomeInvalid {
				t.Errorf("outcome = %v, want invalid", out)
			}
		})
	}
}

func TestSubprocess_MissingBinaryIsCrash(t *testing.T) {
	r := &Runner{WorkerCommand: "/nonexistent/bridgeworker"}
	out := r.Run(context.Background(), subprocess("solver", time.Second), moveRequest())
	if out.Kind != domain.OutcomeCrashed {
		t.Errorf("outcome = %v, want crashed", out)
	}
}

func TestSubprocess_PoolExhaustedIsTimeout(t *testing.T) {
	r := helperRunner()
	r.Pool = NewPool(1, 50*time.Millisecond)
	release, err := r.Pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	out := r.Run(context.Background(), subprocess("lowest", time.Second), moveRequest())
	if out.Kind != domain.OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
}

func TestSubprocess_StopAllKillsWorkers(t *testing.T) {
	r := helperRunner()
	var wg sync.WaitGroup
	var out domain.Outcome
	wg.Add(1)
	go func() {
		defer wg.Done()
		out = r.Run(context.Background(), subprocess("sleepy", 10*time.Second), moveRequest())
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.Active() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	r.StopAll()
	wg.Wait()

	if out.Kind != domain.OutcomeCrashed {
		t.Errorf("outcome = %v, want crashed", out)
	}
}

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2, 20*time.Millisecond)
	rel1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	rel2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if p.InUse() != 2 {
		t.Errorf("InUse = %d, want 2", p.InUse())
	}

	_, err = p.Acquire(context.Background())
	if !errors.Is(err, domain.ErrPoolExhausted) {
		t.Errorf("err = %v, want ErrPoolExhausted", err)
	}

	rel1()
	rel3, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	rel2()
	rel3()
	if p.InUse() != 0 {
		t.Errorf("InUse = %d, want 0", p.InUse())
	}
}

func TestPool_WaitsForRelease(t *testing.T) {
	p := NewPool(1, time.Second)
	rel, _ := p.Acquire(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		rel()
	}()
	rel2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rel2()
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	if n != 6 || err != nil {
		t.Errorf("Write = %d, %v", n, err)
	}
	b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Errorf("buffer = %q", b.String())
	}
}
