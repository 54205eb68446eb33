package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"TaskForce/internal/game"
	"TaskForce/internal/logging"
)

var ErrInvalidConfig = errors.New("server: invalid config")

// Config is the server configuration, read from server.yaml.
type Config struct {
	Addr string `yaml:"addr"`
	// Mission is a mission file path; empty runs the embedded default.
	Mission        string        `yaml:"mission"`
	JournalDir     string        `yaml:"journal_dir"`
	LogLevel       string        `yaml:"log_level"`
	TickHz         int           `yaml:"tick_hz"`
	BacklogSeconds float64       `yaml:"backlog_seconds"`
	Workers        int           `yaml:"workers"`
	ClientBuffer   int           `yaml:"client_buffer"`
	IdleTTL        time.Duration `yaml:"idle_ttl"`
	// DefaultSession is never reaped by the idle sweep.
	DefaultSession string `yaml:"default_session"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		TickHz:         game.DefaultTickHz,
		BacklogSeconds: game.DefaultBacklogS,
		Workers:        game.DefaultWorkers,
		ClientBuffer:   game.DefaultClientBuffer,
		IdleTTL:        10 * time.Minute,
		DefaultSession: "default",
	}
}

// Overrides holds optional command-line values. A nil field keeps the file
// or default value.
type Overrides struct {
	Addr           *string
	Mission        *string
	JournalDir     *string
	LogLevel       *string
	TickHz         *int
	BacklogSeconds *float64
	Workers        *int
	ClientBuffer   *int
	IdleTTL        *time.Duration
}

func (o Overrides) apply(base Config) Config {
	if o.Addr != nil {
		base.Addr = *o.Addr
	}
	if o.Mission != nil {
		base.Mission = *o.Mission
	}
	if o.JournalDir != nil {
		base.JournalDir = *o.JournalDir
	}
	if o.LogLevel != nil {
		base.LogLevel = *o.LogLevel
	}
	if o.TickHz != nil {
		base.TickHz = *o.TickHz
	}
	if o.BacklogSeconds != nil {
		base.BacklogSeconds = *o.BacklogSeconds
	}
	if o.Workers != nil {
		base.Workers = *o.Workers
	}
	if o.ClientBuffer != nil {
		base.ClientBuffer = *o.ClientBuffer
	}
	if o.IdleTTL != nil {
		base.IdleTTL = *o.IdleTTL
	}
	return base
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", cleanPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("%w: parse %q: %v", ErrInvalidConfig, cleanPath, err)
	}
	return cfg, nil
}

// ResolveConfig loads path, applies overrides and validates the result.
func ResolveConfig(path string, o Overrides) (Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	cfg = o.apply(cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if c.TickHz <= 0 || c.TickHz > 1000 {
		errs = append(errs, fmt.Errorf("tick_hz %d out of range (1-1000)", c.TickHz))
	}
	if c.BacklogSeconds < 0 {
		errs = append(errs, fmt.Errorf("backlog_seconds %v is negative", c.BacklogSeconds))
	}
	if c.Workers < 0 || c.ClientBuffer < 0 {
		errs = append(errs, errors.New("workers and client_buffer must not be negative"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, INFO when unset or invalid.
func (c Config) Level() logging.Level {
	lvl, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}
