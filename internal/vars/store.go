// Package vars is the session variable store: server-owned key/value state
// with change notification, per-key versions and replication to client
// replicas.
//
// A Store is not safe for concurrent use. The session tick goroutine is its
// only writer; other goroutines go through the session mutation queue.
package vars

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrEncoding is returned when a value cannot be represented on the wire.
	ErrEncoding = errors.New("vars: unserializable value")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("vars: invalid key")
)

type entry struct {
	value      *structpb.Value
	version    uint64
	replicated bool
}

// Update is one replicated write: the value of Key at Version. Seq is the
// store-wide flush sequence assigned by Drain.
type Update struct {
	Key     string
	Version uint64
	Seq     uint64
	Value   *structpb.Value
}

// Interface returns the decoded Go value.
func (u Update) Interface() any {
	if u.Value == nil {
		return nil
	}
	return u.Value.AsInterface()
}

// Change is delivered to OnChange listeners after every successful Set.
type Change struct {
	Key        string
	Old        any
	New        any
	Existed    bool
	Replicated bool
	Version    uint64
}

// Store holds the authoritative session variables.
type Store struct {
	entries   map[string]*entry
	pending   []string
	inPending map[string]bool
	seq       uint64
	listeners []func(Change)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries:   make(map[string]*entry),
		inPending: make(map[string]bool),
	}
}

// Set overwrites key. When replicate is true the key's version is bumped and
// the write is queued for the next Drain. On ErrEncoding the previous value
// is left untouched.
func (s *Store) Set(key string, value any, replicate bool) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	encoded, err := Encode(value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	e, existed := s.entries[key]
	var old any
	if existed {
		old = e.value.AsInterface()
	} else {
		e = &entry{}
		s.entries[key] = e
	}
	e.value = encoded
	e.replicated = replicate
	if replicate {
		e.version++
		if !s.inPending[key] {
			s.inPending[key] = true
			s.pending = append(s.pending, key)
		}
	}

	change := Change{
		Key:        key,
		Old:        old,
		New:        encoded.AsInterface(),
		Existed:    existed,
		Replicated: replicate,
		Version:    e.version,
	}
	for _, fn := range s.listeners {
		fn(change)
	}
	return nil
}

// Get returns the value of key or def when unset. It never fails.
func (s *Store) Get(key string, def any) any {
	if e, ok := s.entries[key]; ok {
		return e.value.AsInterface()
	}
	return def
}

// Lookup returns the value of key and whether it is set.
func (s *Store) Lookup(key string) (any, bool) {
	if e, ok := s.entries[key]; ok {
		return e.value.AsInterface(), true
	}
	return nil, false
}

// Bool returns key as a bool, or def when unset or not a bool.
func (s *Store) Bool(key string, def bool) bool {
	if b, ok := s.Get(key, def).(bool); ok {
		return b
	}
	return def
}

// Number returns key as a float64, or def when unset or not a number.
func (s *Store) Number(key string, def float64) float64 {
	if n, ok := s.Get(key, def).(float64); ok {
		return n
	}
	return def
}

// String returns key as a string, or def when unset or not a string.
func (s *Store) String(key string, def string) string {
	if str, ok := s.Get(key, def).(string); ok {
		return str
	}
	return def
}

// Version returns the replication version of key, 0 if never replicated.
func (s *Store) Version(key string) uint64 {
	if e, ok := s.entries[key]; ok {
		return e.version
	}
	return 0
}

// Replicated reports whether the last write to key was replicated.
func (s *Store) Replicated(key string) bool {
	e, ok := s.entries[key]
	return ok && e.replicated
}

// Keys returns the keys with the given prefix in sorted order.
func (s *Store) Keys(prefix string) []string {
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of keys.
func (s *Store) Len() int { return len(s.entries) }

// OnChange registers a listener called synchronously after each Set.
func (s *Store) OnChange(fn func(Change)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

// Pending reports how many keys await the next Drain.
func (s *Store) Pending() int { return len(s.pending) }

// Drain returns the queued replicated writes in first-write order and clears
// the queue. Several writes to one key within a tick collapse into the last
// one, carrying the latest version.
func (s *Store) Drain() []Update {
	if len(s.pending) == 0 {
		return nil
	}
	out := make([]Update, 0, len(s.pending))
	for _, key := range s.pending {
		e := s.entries[key]
		delete(s.inPending, key)
		if e == nil || !e.replicated {
			continue
		}
		s.seq++
		out = append(out, Update{Key: key, Version: e.version, Seq: s.seq, Value: e.value})
	}
	s.pending = s.pending[:0]
	return out
}

// Seq returns the last flush sequence handed out by Drain.
func (s *Store) Seq() uint64 { return s.seq }

// Snapshot returns every replicated key at its current version, sorted by key.
func (s *Store) Snapshot() []Update {
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.replicated {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]Update, len(keys))
	for i, k := range keys {
		e := s.entries[k]
		out[i] = Update{Key: k, Version: e.version, Seq: s.seq, Value: e.value}
	}
	return out
}

// Encode converts a Go value into its wire form.
func Encode(value any) (*structpb.Value, error) {
	v, err := structpb.NewValue(normalize(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if !finite(v) {
		return nil, fmt.Errorf("%w: non-finite number", ErrEncoding)
	}
	return v, nil
}

// normalize widens the typed containers structpb refuses.
func normalize(value any) any {
	switch v := value.(type) {
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	}
	return value
}

func finite(v *structpb.Value) bool {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return !math.IsNaN(kind.NumberValue) && !math.IsInf(kind.NumberValue, 0)
	case *structpb.Value_ListValue:
		for _, item := range kind.ListValue.GetValues() {
			if !finite(item) {
				return false
			}
		}
	case *structpb.Value_StructValue:
		for _, item := range kind.StructValue.GetFields() {
			if !finite(item) {
				return false
			}
		}
	}
	return true
}
