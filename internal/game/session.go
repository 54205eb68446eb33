package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"TaskForce/internal/actions"
	"TaskForce/internal/core"
	"TaskForce/internal/dag"
	"TaskForce/internal/logging"
	"TaskForce/internal/tasks"
	"TaskForce/internal/triggers"
	"TaskForce/internal/vars"
)

var (
	ErrNoMission      = errors.New("game: no mission loaded")
	ErrMissionStarted = errors.New("game: mission already started")
	ErrUnknownPlayer  = errors.New("game: unknown player")
	ErrUnknownHold    = errors.New("game: unknown hold action")
	ErrOutOfRange     = errors.New("game: out of range")
	ErrHoldTooShort   = errors.New("game: hold too short")
	ErrWrongFaction   = errors.New("game: wrong faction")
)

// Journal is the audit sink a session reports to. *audit.Journal
// satisfies it.
type Journal interface {
	tasks.Auditor
	triggers.Auditor
	dag.Auditor
	RewardJournal
}

// Config configures a Session. Zero fields take defaults; nil collaborators
// are replaced by the built-in implementations.
type Config struct {
	ID             string
	TickHz         int
	BacklogSeconds float64
	Workers        int
	ClientBuffer   int
	InboxSize      int
	Seed           int64
	Epoch          time.Time

	Logger   *logging.Logger
	Journal  Journal
	Markers  Markers
	Spawner  Spawner
	Notifier Notifier
	Rewarder Rewarder
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.TickHz <= 0 {
		c.TickHz = DefaultTickHz
	}
	if c.BacklogSeconds <= 0 {
		c.BacklogSeconds = DefaultBacklogS
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = DefaultClientBuffer
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	if c.Epoch.IsZero() {
		c.Epoch = time.Now()
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
}

// Player is a connected participant with an entity in the world.
type Player struct {
	ID      string
	Name    string
	Faction core.Faction
	Entity  EntityID
}

// HoldAction is an interaction a player completes by holding it for
// Duration seconds within Radius of Pos.
type HoldAction struct {
	ID       string
	Label    string
	Pos      core.Vec2
	Radius   float64
	Duration float64
	Faction  core.Faction
	Action   actions.Action
}

// Session is one mission instance. All state below is owned by the tick
// goroutine; other goroutines reach it through Submit or Do.
type Session struct {
	ID  string
	cfg Config
	log *logging.Logger

	store    *vars.Store
	registry *tasks.Registry
	engine   *triggers.Engine
	nav      *dag.Navigator
	table    *actions.Table
	world    *World
	backlog  *vars.History
	work     *WorkQueue

	markers  Markers
	spawner  Spawner
	notifier Notifier
	rewarder Rewarder
	journal  Journal

	players map[string]*Player
	holds   map[string]*HoldAction
	spawned map[string]Handle

	ctx  context.Context
	tick atomic.Uint64
	now  float64
	dt   float64

	inbox    chan Mutation
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	// loopMu orders Run starting against Teardown; loop tracks a live Run.
	loopMu sync.Mutex
	loop   sync.WaitGroup

	clients    *clientSet
	lastActive atomic.Int64
}

func NewSession(cfg Config) *Session {
	cfg.applyDefaults()
	log := cfg.Logger.With("session", cfg.ID)
	s := &Session{
		ID:      cfg.ID,
		cfg:     cfg,
		log:     log,
		store:   vars.NewStore(),
		table:   actions.NewTable(),
		world:   NewWorld(),
		backlog: vars.NewHistory(cfg.BacklogSeconds, float64(cfg.TickHz), 8),
		journal: cfg.Journal,
		players: make(map[string]*Player),
		holds:   make(map[string]*HoldAction),
		spawned: make(map[string]Handle),
		ctx:     context.Background(),
		dt:      1.0 / float64(cfg.TickHz),
		inbox:   make(chan Mutation, cfg.InboxSize),
		stop:    make(chan struct{}),
		clients: newClientSet(log),
	}
	s.touch()

	s.markers = cfg.Markers
	if s.markers == nil {
		s.markers = NewStoreMarkers(s.store, log)
	}
	s.spawner = cfg.Spawner
	if s.spawner == nil {
		s.spawner = NewWorldSpawner(s.Submit, cfg.Seed)
	}
	s.notifier = cfg.Notifier
	if s.notifier == nil {
		s.notifier = NewChannelNotifier(s.clients, s.Tick, log)
	}
	s.rewarder = cfg.Rewarder
	if s.rewarder == nil {
		var rj RewardJournal
		if s.journal != nil {
			rj = s.journal
		}
		s.rewarder = NewLedgerRewarder(s.store, rj, log)
	}

	regOpts := []tasks.Option{
		tasks.WithMarkers(s.markers),
		tasks.WithLogger(log.With("component", "tasks")),
		tasks.WithClock(s.Tick),
	}
	engOpts := []triggers.Option{triggers.WithLogger(log.With("component", "triggers"))}
	if s.journal != nil {
		regOpts = append(regOpts, tasks.WithAuditor(s.journal))
		engOpts = append(engOpts, triggers.WithAuditor(s.journal))
	}
	s.registry = tasks.NewRegistry(s.store, regOpts...)
	s.engine = triggers.NewEngine(s.table, engOpts...)
	s.registry.OnTransition(func(tr tasks.Transition) {
		if tr.To.Terminal() && s.nav != nil {
			s.nav.Advance(s.ctx, tr.TaskID)
		}
	})

	s.work = NewWorkQueue(cfg.Workers, cfg.InboxSize, s.Submit, log.With("component", "work"))
	registerBuiltins(s)
	registerConditions(s)
	return s
}

// Table exposes the action table so callers can register extra handlers
// before the mission starts.
func (s *Session) Table() *actions.Table { return s.table }

// Store returns the session variable store. Tick goroutine only.
func (s *Session) Store() *vars.Store { return s.store }

// Registry returns the task registry. Tick goroutine only.
func (s *Session) Registry() *tasks.Registry { return s.registry }

// Engine returns the trigger engine. Tick goroutine only.
func (s *Session) Engine() *triggers.Engine { return s.engine }

// Navigator returns the loaded navigator, nil before LoadPhases.
func (s *Session) Navigator() *dag.Navigator { return s.nav }

// Journal returns the configured audit sink, nil when none is set.
func (s *Session) Journal() Journal { return s.journal }

// World returns the entity table. Tick goroutine only.
func (s *Session) World() *World { return s.world }

// Tick returns the number of completed ticks. Safe from any goroutine.
func (s *Session) Tick() uint64 { return s.tick.Load() }

// Elapsed returns simulated seconds since the session started.
func (s *Session) Elapsed() float64 { return s.now }

// Clock maps simulated time onto wall time for trigger cooldowns.
func (s *Session) Clock() time.Time {
	return s.cfg.Epoch.Add(time.Duration(s.now * float64(time.Second)))
}

// LoadPhases validates the phase graph and its actions and builds the
// navigator. It fails once the mission has started.
func (s *Session) LoadPhases(phases []*dag.Phase) error {
	if s.nav != nil && s.nav.Started() {
		return ErrMissionStarted
	}
	for _, p := range phases {
		var conds []actions.Condition
		for _, e := range p.Next {
			conds = append(conds, e.When)
		}
		list := append(append(append([]actions.Action(nil), p.OnEnter...), p.OnComplete...), p.OnFailure...)
		if err := s.table.Validate(list, conds); err != nil {
			return fmt.Errorf("phase %s: %w", p.ID, err)
		}
	}
	g, err := dag.NewGraph(phases)
	if err != nil {
		return err
	}
	opts := []dag.Option{
		dag.WithLogger(s.log.With("component", "navigator")),
		dag.WithEffects(phaseAnnouncer{notifier: s.notifier}),
	}
	if s.journal != nil {
		opts = append(opts, dag.WithAuditor(s.journal))
	}
	s.nav = dag.NewNavigator(g, s.table, s.registry, s.store, opts...)
	return nil
}

// SetVariable writes key. Tick goroutine only.
func (s *Session) SetVariable(key string, value any, replicate bool) error {
	return s.store.Set(key, value, replicate)
}

// GetVariable reads key, returning def when unset.
func (s *Session) GetVariable(key string, def any) any {
	return s.store.Get(key, def)
}

func (s *Session) CreateTask(d tasks.Descriptor) (string, error) {
	return s.registry.Create(d)
}

func (s *Session) UpdateTaskState(id string, to tasks.State) (tasks.State, error) {
	return s.registry.UpdateState(id, to)
}

func (s *Session) CreateTrigger(d triggers.Descriptor) (string, error) {
	return s.engine.Create(d)
}

func (s *Session) DeleteTrigger(id string) { s.engine.Delete(id) }

// InitTasks enters the first phase of the loaded mission.
func (s *Session) InitTasks() error {
	if s.nav == nil {
		return ErrNoMission
	}
	s.nav.InitTasks(s.ctx)
	return nil
}

// NavigatorAdvance signals the navigator that key (a phase id or task id)
// completed. completed=false is ignored.
func (s *Session) NavigatorAdvance(key string, completed bool) error {
	if s.nav == nil {
		return ErrNoMission
	}
	s.nav.Signal(s.ctx, key, completed)
	return nil
}

// Submit queues m for the start of the next tick. It returns false once the
// session has stopped.
func (s *Session) Submit(m Mutation) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.stop:
		return false
	}
}

// Do runs fn on the tick goroutine and waits for it to finish.
func (s *Session) Do(ctx context.Context, fn func(s *Session)) error {
	done := make(chan struct{})
	if !s.Submit(func(s *Session) {
		defer close(done)
		fn(s)
	}) {
		return ErrSessionStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return ErrSessionStopped
	}
}

// Run drives the session at TickHz until ctx is canceled or Teardown is
// called.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("game: session already running")
	}
	defer s.running.Store(false)
	s.loopMu.Lock()
	select {
	case <-s.stop:
		s.loopMu.Unlock()
		return nil
	default:
	}
	s.loop.Add(1)
	s.loopMu.Unlock()
	defer s.loop.Done()
	s.ctx = ctx

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickHz))
	defer ticker.Stop()

	s.log.Info("session running", "tick_hz", s.cfg.TickHz)
	var pending []Mutation
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case m := <-s.inbox:
			pending = append(pending, m)
		case <-ticker.C:
			s.step(pending)
			clear(pending)
			pending = pending[:0]
		}
	}
}

// Step drains queued mutations and runs a single tick. It must not be called
// while Run is active.
func (s *Session) Step() {
	var pending []Mutation
	for {
		select {
		case m := <-s.inbox:
			pending = append(pending, m)
		default:
			s.step(pending)
			return
		}
	}
}

func (s *Session) step(muts []Mutation) {
	s.tick.Add(1)
	s.now += s.dt
	for _, m := range muts {
		s.apply(m)
	}
	updatePatrols(s.world, s.dt)
	s.engine.Tick(s.ctx, s.Clock(), s.world)
	s.flush()
}

func (s *Session) apply(m Mutation) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("mutation panicked", "panic", r)
		}
	}()
	m(s)
}

// flush publishes this tick's replicated writes to the backlog and clients.
func (s *Session) flush() {
	updates := s.store.Drain()
	if len(updates) == 0 {
		return
	}
	s.backlog.Push(updates...)
	data, err := vars.EncodeBatch(updates)
	if err != nil {
		s.log.Error("encode batch failed", "err", err)
		return
	}
	s.clients.broadcast(Outbound{Kind: OutBatch, Data: data, Seq: updates[len(updates)-1].Seq})
}

// AttachResult is what a client needs to initialize its replica.
type AttachResult struct {
	Updates []Update
	Resumed bool
	Tick    uint64
	Seq     uint64
	Player  *Player
}

// Update re-exports vars.Update for transport code.
type Update = vars.Update

// Attach registers c and returns either the backlog since resumeSeq or, when
// that is no longer available, a full snapshot. A client with a concrete
// faction also joins as a player.
func (s *Session) Attach(ctx context.Context, c *Client, resumeSeq uint64) (AttachResult, error) {
	var res AttachResult
	err := s.Do(ctx, func(s *Session) { res = s.attach(c, resumeSeq) })
	return res, err
}

func (s *Session) attach(c *Client, resumeSeq uint64) AttachResult {
	var res AttachResult
	if resumeSeq > 0 {
		if ups, ok := s.backlog.Since(resumeSeq); ok {
			res.Updates, res.Resumed = ups, true
		}
	}
	if !res.Resumed {
		res.Updates = s.store.Snapshot()
	}
	if c.PlayerID == "" && c.Faction != core.FactionAny {
		p := s.JoinPlayer(c.Name, c.Faction)
		c.PlayerID = p.ID
	}
	if p, ok := s.players[c.PlayerID]; ok {
		res.Player = p
	}
	s.clients.add(c)
	s.touch()
	res.Tick, res.Seq = s.Tick(), s.store.Seq()
	s.log.Info("client attached", "client", c.ID, "faction", c.Faction, "resumed", res.Resumed)
	return res
}

// Detach removes c and its player. Safe from any goroutine.
func (s *Session) Detach(c *Client) {
	s.clients.remove(c.ID)
	s.touch()
	if c.PlayerID == "" {
		return
	}
	id := c.PlayerID
	s.Submit(func(s *Session) { s.LeavePlayer(id) })
}

// Clients returns the number of attached clients.
func (s *Session) Clients() int { return s.clients.len() }

// IdleFor reports how long the session has had no attach or detach activity
// while no client is attached.
func (s *Session) IdleFor(now time.Time) time.Duration {
	if s.clients.len() > 0 {
		return 0
	}
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

// JoinPlayer spawns a player entity at the faction's respawn point.
func (s *Session) JoinPlayer(name string, faction core.Faction) *Player {
	pos := core.Vec2{}
	if v, err := actions.ToVec(s.store.Get(respawnKey(faction), nil)); err == nil {
		pos = v
	}
	p := &Player{ID: uuid.NewString(), Name: name, Faction: faction}
	p.Entity = s.world.Spawn(pos, faction, "player")
	s.world.SetComponent(p.Entity, CompOwner, &OwnerComponent{PlayerID: p.ID})
	s.players[p.ID] = p
	s.log.Info("player joined", "player", p.ID, "name", name, "faction", faction)
	return p
}

func (s *Session) MovePlayer(id string, pos core.Vec2) error {
	p, ok := s.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if tr := s.world.Transform(p.Entity); tr != nil {
		tr.Pos = clampVec(pos, WorldW, WorldH)
	}
	return nil
}

func (s *Session) LeavePlayer(id string) {
	p, ok := s.players[id]
	if !ok {
		return
	}
	s.world.RemoveEntity(p.Entity)
	delete(s.players, id)
	s.log.Info("player left", "player", id)
}

func (s *Session) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// DestroyEntity marks id destroyed, as reported by the host simulation.
func (s *Session) DestroyEntity(id EntityID) bool {
	return s.world.Destroy(id, s.now)
}

// AddHoldAction registers h and publishes it under hold:<id>.
func (s *Session) AddHoldAction(h HoldAction) error {
	if h.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownHold)
	}
	if h.Radius <= 0 {
		h.Radius = DefaultHoldRadius
	}
	if h.Faction == "" {
		h.Faction = core.FactionAny
	}
	s.holds[h.ID] = &h
	return s.store.Set(holdKey(h.ID), map[string]any{
		"label":    h.Label,
		"pos":      []any{h.Pos.X, h.Pos.Y},
		"radius":   h.Radius,
		"duration": h.Duration,
		"faction":  string(h.Faction),
	}, true)
}

func (s *Session) RemoveHoldAction(id string) {
	if _, ok := s.holds[id]; !ok {
		return
	}
	delete(s.holds, id)
	if err := s.store.Set(holdKey(id), nil, true); err != nil {
		s.log.Warn("hold unpublish failed", "hold", id, "err", err)
	}
}

// Interact completes hold action holdID for playerID after it was held for
// held seconds. The hold's action runs and the hold is removed once the
// action succeeds; a failed action leaves the hold in place for a retry.
func (s *Session) Interact(playerID, holdID string, held float64) error {
	p, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	h, ok := s.holds[holdID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHold, holdID)
	}
	if !h.Faction.Matches(p.Faction) {
		return ErrWrongFaction
	}
	tr := s.world.Transform(p.Entity)
	if tr == nil || tr.Pos.Sub(h.Pos).Len() > h.Radius {
		return ErrOutOfRange
	}
	if held < h.Duration {
		return fmt.Errorf("%w: %.1fs of %.1fs", ErrHoldTooShort, held, h.Duration)
	}
	if !h.Action.IsZero() {
		if err := s.table.Run(s.ctx, h.Action); err != nil {
			return fmt.Errorf("hold %s: %w", holdID, err)
		}
	}
	// The action may have replaced the hold under the same id.
	if s.holds[holdID] == h {
		s.RemoveHoldAction(holdID)
	}
	s.log.Info("hold completed", "hold", holdID, "player", playerID)
	return nil
}

// StateView is a read-only summary for the HTTP API.
type StateView struct {
	ID       string       `json:"id"`
	Tick     uint64       `json:"tick"`
	Elapsed  float64      `json:"elapsed"`
	Phase    string       `json:"phase"`
	Complete bool         `json:"complete"`
	Tasks    []tasks.Task `json:"tasks"`
	Triggers []string     `json:"triggers"`
	Holds    []string     `json:"holds"`
	Players  int          `json:"players"`
	Clients  int          `json:"clients"`
	Entities int          `json:"entities"`
}

// View summarizes the session. Tick goroutine only.
func (s *Session) View() StateView {
	v := StateView{
		ID:       s.ID,
		Tick:     s.Tick(),
		Elapsed:  s.now,
		Tasks:    s.registry.List(),
		Triggers: s.engine.IDs(),
		Players:  len(s.players),
		Clients:  s.clients.len(),
		Entities: s.world.Len(),
	}
	if s.nav != nil {
		v.Phase = string(s.nav.Current())
		v.Complete = s.nav.Complete()
	}
	for id := range s.holds {
		v.Holds = append(v.Holds, id)
	}
	sort.Strings(v.Holds)
	return v
}

// WaitIdle blocks until background jobs have delivered their results.
func (s *Session) WaitIdle() { s.work.Wait() }

// Teardown stops the session and releases its resources once a running tick
// loop has exited, so it must not be called from a mutation. Attached clients
// are closed. A journal that implements io.Closer is closed too.
func (s *Session) Teardown() {
	s.stopOnce.Do(func() {
		s.loopMu.Lock()
		close(s.stop)
		s.loopMu.Unlock()
		// The journal and clients outlive the last tick.
		s.loop.Wait()
		s.work.Close()
		s.clients.closeAll()
		if c, ok := s.journal.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.log.Warn("journal close failed", "err", err)
			}
		}
		s.log.Info("session torn down", "tick", s.Tick())
	})
}

func respawnKey(f core.Faction) string { return "respawn:" + string(f) }
func holdKey(id string) string         { return "hold:" + id }
