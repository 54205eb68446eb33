package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"TaskForce/internal/audit"
	"TaskForce/internal/game"
)

const apiTimeout = 5 * time.Second

// historySource is the query side of the session journal.
type historySource interface {
	Flush(ctx context.Context) error
	TaskHistory(ctx context.Context, id string) ([]audit.Entry, error)
}

// Routes returns the HTTP handler.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("GET /api/tasks/{id}/history", a.handleTaskHistory)
	mux.HandleFunc("/ws", a.serveWS)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorDTO{Error: err.Error()})
}

func (a *App) sessionID(r *http.Request) string {
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	return a.cfg.DefaultSession
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthDTO{Status: "ok", Sessions: a.hub.IDs()})
}

func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	s, ok := a.hub.Get(a.sessionID(r))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown session"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()
	var view game.StateView
	if err := s.Do(ctx, func(s *game.Session) { view = s.View() }); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *App) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := a.hub.Get(a.sessionID(r))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown session"))
		return
	}
	src, ok := s.Journal().(historySource)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("session has no journal"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	defer cancel()
	if err := src.Flush(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	id := r.PathValue("id")
	entries, err := src.TaskHistory(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, historyDTO{Session: s.ID, Task: id, Entries: entries})
}
