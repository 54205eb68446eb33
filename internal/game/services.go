package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"TaskForce/internal/core"
	"TaskForce/internal/dag"
	"TaskForce/internal/logging"
	"TaskForce/internal/tasks"
	"TaskForce/internal/vars"
)

var (
	ErrUnknownSpawnKind = errors.New("game: unknown spawn kind")
	ErrUnknownSpawn     = errors.New("game: unknown spawn handle")
	ErrSessionStopped   = errors.New("game: session stopped")
	ErrInvalidReward    = errors.New("game: invalid reward")
)

// Markers places and removes map markers.
type Markers = tasks.Markers

type SpawnKind string

const (
	SpawnPatrol SpawnKind = "patrol"
	SpawnSmoke  SpawnKind = "smoke"
	SpawnCache  SpawnKind = "cache"
)

// Patrol routes.
const (
	RouteCircle = "circle"
	RouteWander = "wander"
)

// SpawnRequest describes a group of entities to create.
type SpawnRequest struct {
	ID        string
	Kind      SpawnKind
	Faction   core.Faction
	Pos       core.Vec2
	Count     int
	Formation string
	// Route selects the patrol path: "circle" (default) or "wander".
	Route     string
	Radius    float64
	Speed     float64
	Tags      []string
	Seed      int64
}

// Handle identifies a spawned group for later removal.
type Handle struct {
	ID    string
	Kind  SpawnKind
	Token string
}

// Spawner creates and removes external entities. Calls run on worker
// goroutines and must not touch session state directly.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (Handle, error)
	Despawn(ctx context.Context, h Handle) error
}

// Notifier delivers text messages to a faction or to everyone.
type Notifier interface {
	Notify(faction core.Faction, text string)
	Broadcast(text string)
}

// Reward is the payload handed to a Rewarder.
type Reward struct {
	Kind   string
	Amount float64
	Note   string
}

// Rewarder applies rewards to a target (a faction or a player id).
type Rewarder interface {
	Grant(target string, r Reward) error
}

// RewardJournal records granted rewards.
type RewardJournal interface {
	RewardGranted(target, kind string, amount float64)
}

// StoreMarkers publishes markers as replicated variables under marker:<id>.
// Removed markers are published as null.
type StoreMarkers struct {
	store *vars.Store
	log   *logging.Logger
}

func NewStoreMarkers(store *vars.Store, log *logging.Logger) *StoreMarkers {
	return &StoreMarkers{store: store, log: log}
}

func (m *StoreMarkers) Place(id string, pos core.Vec2, faction core.Faction) {
	rec := map[string]any{"pos": []any{pos.X, pos.Y}, "faction": string(faction)}
	if err := m.store.Set("marker:"+id, rec, true); err != nil {
		m.log.Warn("marker place failed", "marker", id, "err", err)
	}
}

func (m *StoreMarkers) Remove(id string) {
	if _, ok := m.store.Lookup("marker:" + id); !ok {
		return
	}
	if err := m.store.Set("marker:"+id, nil, true); err != nil {
		m.log.Warn("marker remove failed", "marker", id, "err", err)
	}
}

// ChatSink receives chat messages for attached clients.
type ChatSink interface {
	Chat(msg ChatMessage)
}

// ChannelNotifier logs messages and pushes them to attached clients.
type ChannelNotifier struct {
	sink ChatSink
	tick func() uint64
	log  *logging.Logger
}

func NewChannelNotifier(sink ChatSink, tick func() uint64, log *logging.Logger) *ChannelNotifier {
	return &ChannelNotifier{sink: sink, tick: tick, log: log}
}

func (n *ChannelNotifier) Notify(faction core.Faction, text string) {
	n.log.Info("notify", "faction", faction, "text", text)
	n.sink.Chat(ChatMessage{Faction: faction, Text: text, Tick: n.tick()})
}

func (n *ChannelNotifier) Broadcast(text string) {
	n.log.Info("broadcast", "text", text)
	n.sink.Chat(ChatMessage{Faction: core.FactionAny, Text: text, Global: true, Tick: n.tick()})
}

// phaseAnnouncer broadcasts labelled phase entries to every client.
type phaseAnnouncer struct {
	dag.NoOpEffects
	notifier Notifier
}

func (a phaseAnnouncer) OnEnter(p *dag.Phase) {
	if p.Label != "" {
		a.notifier.Broadcast("Phase: " + p.Label)
	}
}

// LedgerRewarder keeps a per-target ledger in the variable store:
// reward:<target> lists the grants and reward:<target>:<kind> holds the
// running total. It must be called on the tick goroutine.
type LedgerRewarder struct {
	store   *vars.Store
	journal RewardJournal
	log     *logging.Logger
}

func NewLedgerRewarder(store *vars.Store, journal RewardJournal, log *logging.Logger) *LedgerRewarder {
	return &LedgerRewarder{store: store, journal: journal, log: log}
}

func (r *LedgerRewarder) Grant(target string, rw Reward) error {
	target = strings.TrimSpace(target)
	if target == "" || rw.Kind == "" {
		return fmt.Errorf("%w: target and kind are required", ErrInvalidReward)
	}
	if rw.Amount < 0 {
		return fmt.Errorf("%w: negative amount %v", ErrInvalidReward, rw.Amount)
	}

	ledgerKey := "reward:" + target
	ledger, _ := r.store.Get(ledgerKey, nil).([]any)
	entry := map[string]any{"kind": rw.Kind, "amount": rw.Amount, "note": rw.Note}
	if err := r.store.Set(ledgerKey, append(ledger, entry), true); err != nil {
		return err
	}
	totalKey := ledgerKey + ":" + rw.Kind
	if err := r.store.Set(totalKey, r.store.Number(totalKey, 0)+rw.Amount, true); err != nil {
		return err
	}
	if r.journal != nil {
		r.journal.RewardGranted(target, rw.Kind, rw.Amount)
	}
	r.log.Info("reward granted", "target", target, "kind", rw.Kind, "amount", rw.Amount)
	return nil
}
