// Package main is the entry point for the bridge move supervisor service.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bridgetrainer/playengine/internal/config"
	"github.com/bridgetrainer/playengine/internal/engine"
	"github.com/bridgetrainer/playengine/internal/guard"
	"github.com/bridgetrainer/playengine/internal/ipc"
	"github.com/bridgetrainer/playengine/internal/runner"
	"github.com/bridgetrainer/playengine/internal/store"
	"github.com/bridgetrainer/playengine/internal/supervisor"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bridgeplay %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	// Resolve config path: --config flag > BP_CONFIG env > auto-discover next to exe.
	path := *configPath
	if path == "" {
		path = os.Getenv("BP_CONFIG")
	}
	if path == "" {
		path = discoverFile("config.json")
	}
	if path == "" {
		fatal("no config found. Place config.json next to the exe, use --config <path>, or set BP_CONFIG.")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		fatal(fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()
	ledger := store.NewLedger(db)

	// Wire engines and the fallback chain.
	engines := engine.NewDefaultRegistry()
	if err := cfg.CheckEngines(engines.List()); err != nil {
		fatal(err.Error())
	}
	tiers, err := supervisor.NewTiers(cfg.Descriptors())
	if err != nil {
		fatal(err.Error())
	}

	r := &runner.Runner{
		Engines:       engines,
		Pool:          runner.NewPool(cfg.MaxConcurrentWorkers, cfg.AcquireTimeout()),
		WorkerCommand: cfg.Worker.Command,
		WorkerArgs:    cfg.Worker.Args,
		Env:           cfg.Worker.Env,
		Logger:        logger.With("component", "runner"),
	}
	sup := supervisor.New(tiers, r, ledger, logger.With("component", "supervisor"))

	g := guard.NewGuard(guard.GuardConfig{RateLimitPerMinute: cfg.RateLimitPerMinute})
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				g.Sweep()
			}
		}
	}()

	handler := &ipc.Handler{
		Supervisor: sup,
		Ledger:     ledger,
		Guard:      g,
		Logger:     logger.With("component", "ipc"),
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCh
		logger.Info("shutting down")
		stopSweep()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		shutdown(ctx, logger, r, srv)
	}()

	for _, d := range tiers.List() {
		logger.Info("tier", "tier", d.Tier.String(), "engine", d.Engine, "mode", string(d.Mode), "deadline", d.Deadline)
	}
	logger.Info("bridge move supervisor listening", "url", ipc.FormatListenURL(cfg.ListenAddr), "version", version)

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		fatal(fmt.Sprintf("server error: %v", err))
	}
	// Start returns as soon as Shutdown begins; the ledger stays open until
	// in-flight decisions have drained.
	<-done
}

type workerStopper interface {
	StopAll()
}

type serverStopper interface {
	Shutdown(ctx context.Context) error
}

// shutdown kills running workers first so in-flight decisions fall through to
// the in-process bottom tier, then waits for the HTTP server to drain.
func shutdown(ctx context.Context, logger *slog.Logger, workers workerStopper, srv serverStopper) {
	workers.StopAll()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", "err", err)
	}
}

// discoverFile looks for name next to the executable, then in the cwd.
func discoverFile(name string) string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return ""
}

// fatal prints an error and, on Windows, waits for a keypress so the user can
// read the message when the exe is launched by double-click.
func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	if runtime.GOOS == "windows" {
		fmt.Fprintln(os.Stderr, "\nPress Enter to exit...")
		bufio.NewReader(os.Stdin).ReadBytes('\n')
	}
	os.Exit(1)
}
