package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/engine"
	"github.com/bridgetrainer/playengine/internal/runner"
)

// TierConfig maps one difficulty tier to an engine and an execution mode.
type TierConfig struct {
	Tier       string `json:"tier"`
	Engine     string `json:"engine"`
	Mode       string `json:"mode"`
	DeadlineMS int    `json:"deadline_ms"`
}

// WorkerConfig defines how to launch an isolated worker process.
type WorkerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// Config holds the move supervisor's runtime configuration.
type Config struct {
	DBPath               string       `json:"db_path"`
	ListenAddr           string       `json:"listen_addr"`
	LogLevel             string       `json:"log_level"`
	Tiers                []TierConfig `json:"tiers"`
	Worker               WorkerConfig `json:"worker"`
	MaxConcurrentWorkers int          `json:"max_concurrent_workers"`
	PoolAcquireTimeoutMS int          `json:"pool_acquire_timeout_ms"`
	RateLimitPerMinute   int          `json:"rate_limit_per_minute"`
	ShutdownTimeoutSec   int          `json:"shutdown_timeout_sec"`
}

// DefaultDeadlineMS applies to tiers configured without a deadline.
const DefaultDeadlineMS = 2000

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentWorkers == 0 {
		c.MaxConcurrentWorkers = 5
	}
	if c.PoolAcquireTimeoutMS == 0 {
		c.PoolAcquireTimeoutMS = 500
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeoutSec == 0 {
		c.ShutdownTimeoutSec = 5
	}
	for i := range c.Tiers {
		if c.Tiers[i].Mode == "" {
			c.Tiers[i].Mode = string(domain.ModeInProcess)
		}
		if c.Tiers[i].DeadlineMS == 0 {
			c.Tiers[i].DeadlineMS = DefaultDeadlineMS
		}
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if len(c.Tiers) == 0 {
		problems = append(problems, "at least one tier is required")
	}
	if c.MaxConcurrentWorkers < 0 {
		problems = append(problems, "max_concurrent_workers must not be negative")
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, "rate_limit_per_minute must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	seen := make(map[domain.Tier]bool)
	bottom := -1
	for i, tc := range c.Tiers {
		tier, err := domain.ParseTier(tc.Tier)
		if err != nil {
			problems = append(problems, fmt.Sprintf("tiers[%d]: %v", i, err))
			continue
		}
		if seen[tier] {
			problems = append(problems, fmt.Sprintf("tiers[%d]: duplicate tier %s", i, tier))
		}
		seen[tier] = true
		if tc.Engine == "" {
			problems = append(problems, fmt.Sprintf("tiers[%d]: engine is required", i))
		}
		switch domain.ExecMode(tc.Mode) {
		case domain.ModeInProcess:
		case domain.ModeSubprocess:
			if c.Worker.Command == "" {
				problems = append(problems, fmt.Sprintf("tiers[%d]: subprocess mode needs worker.command", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("tiers[%d]: unknown mode %q", i, tc.Mode))
		}
		if tc.DeadlineMS < 0 {
			problems = append(problems, fmt.Sprintf("tiers[%d]: deadline_ms must be positive", i))
		}
		if bottom < 0 || tier < mustTier(c.Tiers[bottom].Tier) {
			bottom = i
		}
	}
	if bottom >= 0 {
		if domain.ExecMode(c.Tiers[bottom].Mode) != domain.ModeInProcess {
			problems = append(problems, "the lowest tier must run in-process")
		}
		if minimal := (engine.Lowest{}).Name(); c.Tiers[bottom].Engine != minimal {
			problems = append(problems, fmt.Sprintf("the lowest tier must use the %q engine", minimal))
		}
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

func mustTier(s string) domain.Tier {
	t, _ := domain.ParseTier(s)
	return t
}

// Descriptors converts the tier table into runner descriptors.
func (c *Config) Descriptors() []runner.Descriptor {
	out := make([]runner.Descriptor, 0, len(c.Tiers))
	for _, tc := range c.Tiers {
		out = append(out, runner.Descriptor{
			Tier:     mustTier(tc.Tier),
			Engine:   tc.Engine,
			Mode:     domain.ExecMode(tc.Mode),
			Deadline: time.Duration(tc.DeadlineMS) * time.Millisecond,
		})
	}
	return out
}

// CheckEngines reports tiers naming an engine that is not in known.
func (c *Config) CheckEngines(known []string) error {
	set := make(map[string]bool, len(known))
	for _, n := range known {
		set[n] = true
	}
	var missing []string
	for _, tc := range c.Tiers {
		if !set[tc.Engine] {
			missing = append(missing, tc.Engine)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return domain.WrapEngineError(domain.ErrConfigInvalid.Code,
		"unknown engines: "+strings.Join(missing, ", ")+" (known: "+strings.Join(known, ", ")+")", nil)
}

// AcquireTimeout returns the pool acquire timeout.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.PoolAcquireTimeoutMS) * time.Millisecond
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
