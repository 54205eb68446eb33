package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"TaskForce/internal/core"
)

func TestHubCreatesSessionsOnce(t *testing.T) {
	built := 0
	hub := NewHub(context.Background(), func(id string) (*Session, error) {
		built++
		return NewSession(Config{ID: id, TickHz: 50}), nil
	}, nil)
	defer hub.Close()

	a, err := hub.GetSession("alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := hub.GetSession("alpha")
	if err != nil || a != b {
		t.Fatalf("expected the same session, got %p %p (%v)", a, b, err)
	}
	if built != 1 {
		t.Fatalf("factory should run once, ran %d times", built)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Do(ctx, func(*Session) {}); err != nil {
		t.Fatalf("session should be running: %v", err)
	}

	if _, err := hub.GetSession("bravo"); err != nil {
		t.Fatal(err)
	}
	if ids := hub.IDs(); len(ids) != 2 || ids[0] != "alpha" || ids[1] != "bravo" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestHubFactoryError(t *testing.T) {
	boom := errors.New("boom")
	hub := NewHub(context.Background(), func(string) (*Session, error) { return nil, boom }, nil)
	defer hub.Close()
	if _, err := hub.GetSession("x"); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	if _, ok := hub.Get("x"); ok {
		t.Fatal("failed session should not be registered")
	}
}

func TestHubCleanupIdle(t *testing.T) {
	hub := NewHub(context.Background(), func(id string) (*Session, error) {
		return NewSession(Config{ID: id}), nil
	}, nil)
	defer hub.Close()

	idle, _ := hub.GetSession("idle")
	busy, _ := hub.GetSession("busy")
	pinned, _ := hub.GetSession("lobby")

	c := NewClient("c", core.FactionAny, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := busy.Attach(ctx, c, 0); err != nil {
		t.Fatalf("attach: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if n := hub.CleanupIdle(time.Millisecond, "lobby"); n != 1 {
		t.Fatalf("expected one idle session removed, got %d", n)
	}
	if _, ok := hub.Get("idle"); ok {
		t.Fatal("idle session should be gone")
	}
	if _, ok := hub.Get("busy"); !ok {
		t.Fatal("session with a client should stay")
	}
	if _, ok := hub.Get("lobby"); !ok || pinned == nil {
		t.Fatal("pinned session should stay")
	}
	if err := idle.Do(ctx, func(*Session) {}); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("removed session should be stopped, got %v", err)
	}
}
