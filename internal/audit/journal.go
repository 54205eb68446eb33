// Package audit keeps a session-scoped journal of mission events: task
// transitions, trigger activations, phase changes and reward grants.
//
// Entries are indexed in an in-memory SQLite database that lives as long as
// the session, and optionally appended to zstd-compressed JSONL files. All
// writes go through one writer goroutine so the tick loop never blocks on I/O.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"TaskForce/internal/dag"
	"TaskForce/internal/logging"
	"TaskForce/internal/tasks"
)

// ErrClosed is returned by queries after Close.
var ErrClosed = errors.New("audit: journal closed")

// Kind classifies an entry.
type Kind string

const (
	KindTask    Kind = "task"
	KindTrigger Kind = "trigger"
	KindPhase   Kind = "phase"
	KindReward  Kind = "reward"
)

// Entry is one journal record.
type Entry struct {
	Seq     int64     `json:"seq"`
	Session string    `json:"session"`
	Kind    Kind      `json:"kind"`
	Subject string    `json:"subject"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Amount  float64   `json:"amount,omitempty"`
	Tick    uint64    `json:"tick"`
	At      time.Time `json:"at"`
}

// Config configures a Journal.
type Config struct {
	SessionID string
	// Dir enables the compressed JSONL journal when non-empty.
	Dir string
	// Clock supplies the session tick for entries that do not carry one.
	Clock  func() uint64
	Logger *logging.Logger
	// Buffer is the writer queue size.
	Buffer int
}

type req struct {
	entry Entry
	done  chan struct{}
}

// Journal records session events. Record methods are safe for concurrent use
// and never block; entries are dropped when the writer falls behind.
type Journal struct {
	cfg  Config
	db   *sql.DB
	file *JSONLZstdWriter
	log  *logging.Logger

	// mu orders sends on ch against Close closing it.
	mu      sync.RWMutex
	ch      chan req
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	seq     atomic.Int64
	dropped atomic.Uint64
}

// Open creates the in-memory index and starts the writer goroutine.
func Open(cfg Config) (*Journal, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4096
	}
	if cfg.Clock == nil {
		cfg.Clock = func() uint64 { return 0 }
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open audit index: %w", err)
	}
	// A single connection keeps the in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{
		cfg: cfg,
		db:  db,
		log: cfg.Logger,
		ch:  make(chan req, cfg.Buffer),
	}
	if cfg.Dir != "" {
		j.file = NewJSONLZstdWriter(cfg.Dir, "journal-"+cfg.SessionID)
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY,
			session TEXT NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			from_state TEXT NOT NULL DEFAULT '',
			to_state TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL DEFAULT 0,
			tick INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS entries_subject ON entries(kind, subject, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
	}
	return nil
}

// Close drains pending entries and releases the index and journal file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed.Store(true)
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		if j.file != nil {
			err = j.file.Close()
		}
		if cerr := j.db.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// Dropped returns how many entries were discarded because the queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Record enqueues e, assigning its sequence number and timestamp.
func (j *Journal) Record(e Entry) {
	if j == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed.Load() {
		return
	}
	e.Seq = j.seq.Add(1)
	e.Session = j.cfg.SessionID
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case j.ch <- req{entry: e}:
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warn("audit queue full, dropping entries", "session", j.cfg.SessionID)
		}
	}
}

// Flush blocks until every entry recorded before the call has been written.
func (j *Journal) Flush(ctx context.Context) error {
	if j == nil {
		return ErrClosed
	}
	done := make(chan struct{})
	if err := j.send(ctx, req{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) send(ctx context.Context, r req) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed.Load() {
		return ErrClosed
	}
	select {
	case j.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskTransition implements tasks.Auditor.
func (j *Journal) TaskTransition(tr tasks.Transition) {
	j.Record(Entry{Kind: KindTask, Subject: tr.TaskID, From: string(tr.From), To: string(tr.To), Tick: tr.Tick})
}

// TriggerActivated implements triggers.Auditor.
func (j *Journal) TriggerActivated(id string, tick uint64) {
	j.Record(Entry{Kind: KindTrigger, Subject: id, To: "activated", Tick: tick})
}

// PhaseChanged implements dag.Auditor.
func (j *Journal) PhaseChanged(phase dag.PhaseID, reason string) {
	j.Record(Entry{Kind: KindPhase, Subject: string(phase), To: reason, Tick: j.cfg.Clock()})
}

// RewardGranted records a reward handed to target.
func (j *Journal) RewardGranted(target, kind string, amount float64) {
	j.Record(Entry{Kind: KindReward, Subject: target, To: kind, Amount: amount, Tick: j.cfg.Clock()})
}

func (j *Journal) loop() {
	ctx := context.Background()
	insert, err := j.db.Prepare(`INSERT OR REPLACE INTO entries(seq,session,kind,subject,from_state,to_state,amount,tick,at) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		j.log.Error("audit prepare failed", "err", err)
	}
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var waiters []chan struct{}
	write := func(tx *sql.Tx, r req) {
		if r.done != nil {
			waiters = append(waiters, r.done)
			return
		}
		e := r.entry
		if tx != nil && insert != nil {
			if _, err := tx.Stmt(insert).Exec(e.Seq, e.Session, string(e.Kind), e.Subject, e.From, e.To, e.Amount, int64(e.Tick), e.At.Format(time.RFC3339Nano)); err != nil {
				j.log.Warn("audit insert failed", "seq", e.Seq, "err", err)
			}
		}
		if j.file != nil {
			if err := j.file.Write(e); err != nil {
				j.log.Warn("audit journal write failed", "err", err)
			}
		}
	}

	for r := range j.ch {
		tx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			j.log.Warn("audit begin failed", "err", err)
			tx = nil
		}
		write(tx, r)
		// Batch whatever else is already queued into the same transaction.
	batch:
		for {
			select {
			case next, ok := <-j.ch:
				if !ok {
					break batch
				}
				write(tx, next)
			default:
				break batch
			}
		}
		if tx != nil {
			if err := tx.Commit(); err != nil {
				j.log.Warn("audit commit failed", "err", err)
			}
		}
		for _, w := range waiters {
			close(w)
		}
		waiters = waiters[:0]
	}
}

// TaskHistory returns the recorded transitions of one task in order.
func (j *Journal) TaskHistory(ctx context.Context, id string) ([]Entry, error) {
	return j.query(ctx, `SELECT seq,session,kind,subject,from_state,to_state,amount,tick,at FROM entries WHERE kind=? AND subject=? ORDER BY seq`, string(KindTask), id)
}

// Recent returns up to limit of the newest entries, oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := j.query(ctx, `SELECT seq,session,kind,subject,from_state,to_state,amount,tick,at FROM entries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Counts returns the number of entries per kind.
func (j *Journal) Counts(ctx context.Context) (map[Kind]int, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM entries GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("audit counts: %w", err)
	}
	defer rows.Close()
	out := make(map[Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[Kind(kind)] = n
	}
	return out, rows.Err()
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
			tick int64
			at   string
		)
		if err := rows.Scan(&e.Seq, &e.Session, &kind, &e.Subject, &e.From, &e.To, &e.Amount, &tick, &at); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Tick = uint64(tick)
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
