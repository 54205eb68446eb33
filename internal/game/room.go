package game

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"TaskForce/internal/logging"
)

// Factory builds a configured session for id. The hub starts it.
type Factory func(id string) (*Session, error)

// Hub keeps the running sessions keyed by id.
type Hub struct {
	Sessions map[string]*Session
	Mu       sync.Mutex

	factory Factory
	log     *logging.Logger
	ctx     context.Context
	wg      sync.WaitGroup
}

func NewHub(ctx context.Context, factory Factory, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Discard()
	}
	return &Hub{
		Sessions: map[string]*Session{},
		factory:  factory,
		log:      log,
		ctx:      ctx,
	}
}

// Get returns a running session.
func (h *Hub) Get(id string) (*Session, bool) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	s, ok := h.Sessions[id]
	return s, ok
}

// GetSession returns session id, creating and starting it on first use.
func (h *Hub) GetSession(id string) (*Session, error) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	if s, ok := h.Sessions[id]; ok {
		return s, nil
	}
	if h.factory == nil {
		return nil, errors.New("game: hub has no session factory")
	}
	s, err := h.factory(id)
	if err != nil {
		return nil, err
	}
	h.Sessions[id] = s
	h.start(s)
	return s, nil
}

// Add registers and starts an already built session.
func (h *Hub) Add(s *Session) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	if old, ok := h.Sessions[s.ID]; ok && old != s {
		old.Teardown()
	}
	h.Sessions[s.ID] = s
	h.start(s)
}

func (h *Hub) start(s *Session) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := s.Run(h.ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Warn("session stopped", "session", s.ID, "err", err)
		}
	}()
}

// IDs returns the session ids in sorted order.
func (h *Hub) IDs() []string {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	out := make([]string, 0, len(h.Sessions))
	for id := range h.Sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Remove tears down session id.
func (h *Hub) Remove(id string) {
	h.Mu.Lock()
	s, ok := h.Sessions[id]
	delete(h.Sessions, id)
	h.Mu.Unlock()
	if ok {
		s.Teardown()
	}
}

// CleanupIdle tears down sessions that have had no clients for longer than
// ttl. keep lists ids that are never removed.
func (h *Hub) CleanupIdle(ttl time.Duration, keep ...string) int {
	now := time.Now()
	pinned := make(map[string]bool, len(keep))
	for _, id := range keep {
		pinned[id] = true
	}
	h.Mu.Lock()
	var idle []*Session
	for id, s := range h.Sessions {
		if pinned[id] || s.IdleFor(now) < ttl {
			continue
		}
		idle = append(idle, s)
		delete(h.Sessions, id)
	}
	h.Mu.Unlock()
	for _, s := range idle {
		h.log.Info("removing idle session", "session", s.ID)
		s.Teardown()
	}
	return len(idle)
}

// Close tears down every session and waits for their loops to exit.
func (h *Hub) Close() {
	h.Mu.Lock()
	all := make([]*Session, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		all = append(all, s)
	}
	h.Sessions = map[string]*Session{}
	h.Mu.Unlock()
	for _, s := range all {
		s.Teardown()
	}
	h.wg.Wait()
}
