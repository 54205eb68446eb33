package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicaIgnoresStaleDeliveries(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("k", "v1", true))
	first := s.Drain()
	require.NoError(t, s.Set("k", "v2", true))
	second := s.Drain()

	r := NewReplica()
	assert.Equal(t, 1, r.ApplyAll(second))
	assert.Equal(t, 0, r.ApplyAll(first))
	assert.Equal(t, 0, r.ApplyAll(second))

	assert.Equal(t, "v2", r.Get("k", nil))
	assert.Equal(t, uint64(2), r.Version("k"))
	assert.Equal(t, second[0].Seq, r.Seq())
	assert.Equal(t, "dflt", r.Get("other", "dflt"))
}

func TestBatchCodec(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("mission:phase", "infil", true))
	require.NoError(t, s.Set("task:t1", map[string]any{"state": "ASSIGNED", "pos": []any{1.0, 2.0}}, true))
	require.NoError(t, s.Set("g1_done", true, true))
	batch := s.Drain()

	data, err := EncodeBatch(batch)
	require.NoError(t, err)

	decoded, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(batch))

	r := NewReplica()
	r.ApplyAll(decoded)
	assert.Equal(t, []string{"g1_done", "mission:phase", "task:t1"}, r.Keys())
	assert.Equal(t, "infil", r.Get("mission:phase", nil))
	assert.Equal(t, true, r.Get("g1_done", nil))
	rec := r.Get("task:t1", nil).(map[string]any)
	assert.Equal(t, "ASSIGNED", rec["state"])
	assert.Equal(t, batch[2].Seq, decoded[2].Seq)
}

func TestDecodeBatchRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeBatch([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrMalformedBatch)
}

func TestHistorySince(t *testing.T) {
	t.Parallel()

	h := NewHistory(0, 0, 1) // four slots
	s := NewStore()
	for i := 0; i < 6; i++ {
		require.NoError(t, s.Set("k", i, true))
		h.Push(s.Drain()...)
	}
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, uint64(6), h.Last())

	got, ok := h.Since(4)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(5), got[0].Seq)
	assert.Equal(t, uint64(6), got[1].Seq)

	got, ok = h.Since(6)
	assert.True(t, ok)
	assert.Empty(t, got)

	_, ok = h.Since(1)
	assert.False(t, ok, "seq 2 was evicted")
}

func TestHistorySinceRejectsFutureSeq(t *testing.T) {
	t.Parallel()

	h := NewHistory(1, 4, 1)
	s := NewStore()
	require.NoError(t, s.Set("a", 1, true))
	require.NoError(t, s.Set("b", 2, true))
	h.Push(s.Drain()...)
	require.Equal(t, uint64(2), h.Last())

	got, ok := h.Since(500)
	assert.False(t, ok, "a sequence from an earlier run needs a snapshot")
	assert.Empty(t, got)
}

func TestReplicaBeginAfterRestart(t *testing.T) {
	t.Parallel()

	before := NewStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, before.Set("phase", i, true))
	}
	r := NewReplica()
	r.ApplyAll(before.Snapshot())
	require.Equal(t, uint64(3), r.Version("phase"))

	// A restarted server counts versions from 1 again.
	after := NewStore()
	require.NoError(t, after.Set("phase", "infil", true))

	r.Begin(true)
	assert.Zero(t, r.ApplyAll(after.Snapshot()), "resumed stream keeps the newer held version")

	r.Begin(false)
	assert.Zero(t, r.Seq())
	assert.Equal(t, 1, r.ApplyAll(after.Snapshot()))
	assert.Equal(t, "infil", r.Get("phase", nil))
}
