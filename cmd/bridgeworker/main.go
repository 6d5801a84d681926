// Package main runs one decision engine in an isolated process. It reads a
// single request from stdin, writes a single response line to stdout, and
// exits. Logs go to stderr.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bridgetrainer/playengine/internal/engine"
	"github.com/bridgetrainer/playengine/internal/worker"
)

func main() {
	level := slog.LevelWarn
	if s := os.Getenv("BP_WORKER_LOG_LEVEL"); s != "" {
		_ = level.UnmarshalText([]byte(s))
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := worker.Serve(context.Background(), os.Stdin, os.Stdout, engine.NewDefaultRegistry(), logger); err != nil {
		logger.Error("worker failed", "err", err)
		os.Exit(1)
	}
}
