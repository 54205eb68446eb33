package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"TaskForce/internal/audit"
	"TaskForce/internal/game"
	"TaskForce/internal/logging"
	"TaskForce/internal/scenario"
)

// App wires the session hub, the mission and the HTTP surface.
type App struct {
	cfg     Config
	log     *logging.Logger
	mission *scenario.Mission
	hub     *game.Hub
}

// NewApp loads the configured mission and prepares the hub. Sessions are
// created on first use and run until ctx is canceled.
func NewApp(ctx context.Context, cfg Config, log *logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Default()
	}
	mission := scenario.Default()
	if cfg.Mission != "" {
		m, err := scenario.Load(cfg.Mission)
		if err != nil {
			return nil, err
		}
		mission = m
	}
	a := &App{cfg: cfg, log: log, mission: mission}
	a.hub = game.NewHub(ctx, a.newSession, log.With("component", "hub"))
	return a, nil
}

// Hub returns the session hub.
func (a *App) Hub() *game.Hub { return a.hub }

// newSession builds a session with its own journal and starts the mission
// before the tick loop runs.
func (a *App) newSession(id string) (*game.Session, error) {
	var s *game.Session
	journal, err := audit.Open(audit.Config{
		SessionID: id,
		Dir:       a.cfg.JournalDir,
		Clock: func() uint64 {
			if s == nil {
				return 0
			}
			return s.Tick()
		},
		Logger: a.log.With("component", "audit").With("session", id),
	})
	if err != nil {
		return nil, err
	}
	s = game.NewSession(game.Config{
		ID:             id,
		TickHz:         a.cfg.TickHz,
		BacklogSeconds: a.cfg.BacklogSeconds,
		Workers:        a.cfg.Workers,
		ClientBuffer:   a.cfg.ClientBuffer,
		Logger:         a.log,
		Journal:        journal,
	})
	if err := scenario.Start(context.Background(), s, a.mission); err != nil {
		s.Teardown()
		return nil, fmt.Errorf("start mission %s: %w", a.mission.Meta.ID, err)
	}
	a.log.Info("session created", "session", id, "mission", a.mission.Meta.ID)
	return s, nil
}

// cleanupLoop reaps idle sessions until ctx is done.
func (a *App) cleanupLoop(ctx context.Context) {
	if a.cfg.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.hub.CleanupIdle(a.cfg.IdleTTL, a.cfg.DefaultSession); n > 0 {
				a.log.Info("idle sessions removed", "count", n)
			}
		}
	}
}

// Run serves HTTP until ctx is canceled, then shuts down and tears every
// session down.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.DefaultSession != "" {
		if _, err := a.hub.GetSession(a.cfg.DefaultSession); err != nil {
			return err
		}
	}
	go a.cleanupLoop(ctx)

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.log.Info("starting web server", "addr", a.cfg.Addr, "mission", a.mission.Meta.ID, "tick_hz", a.cfg.TickHz)

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	case err = <-errCh:
	}
	a.hub.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
