package vars

import "sync"

// History is a fixed-size ring of recently flushed updates. Reconnecting
// clients resume from the last sequence they saw instead of taking a full
// snapshot. It is safe for concurrent use: the tick goroutine pushes while
// connection goroutines read.
type History struct {
	buf   []Update
	head  int
	size  int
	mu    sync.RWMutex
	limit int
}

// NewHistory keeps roughly seconds worth of updates at the given flush rate,
// assuming perFlush updates per flush.
func NewHistory(seconds, hz float64, perFlush int) *History {
	if perFlush < 1 {
		perFlush = 1
	}
	n := int(seconds*hz)*perFlush + 4
	return &History{buf: make([]Update, n), limit: n}
}

// Push appends flushed updates. Seq must be increasing.
func (h *History) Push(updates ...Update) {
	h.mu.Lock()
	for _, u := range updates {
		h.buf[h.head] = u
		h.head = (h.head + 1) % h.limit
		if h.size < h.limit {
			h.size++
		}
	}
	h.mu.Unlock()
}

// Last returns the newest sequence held, 0 when empty.
func (h *History) Last() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return 0
	}
	return h.buf[(h.head-1+h.limit)%h.limit].Seq
}

// Since returns the updates with Seq greater than seq in flush order. ok is
// false when updates after seq have already been evicted, or when seq is
// ahead of the newest update (a sequence from an earlier run), in which case
// the caller must fall back to a snapshot.
func (h *History) Since(seq uint64) (out []Update, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return nil, seq == 0
	}
	newest := h.buf[(h.head-1+h.limit)%h.limit]
	oldest := h.buf[(h.head-h.size+h.limit)%h.limit]
	if seq > newest.Seq || oldest.Seq > seq+1 {
		return nil, false
	}
	for i := h.size - 1; i >= 0; i-- {
		u := h.buf[(h.head-1-i+h.limit)%h.limit]
		if u.Seq > seq {
			out = append(out, u)
		}
	}
	return out, true
}

// Len returns the number of updates held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}
