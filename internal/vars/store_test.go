package vars

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnsetReturnsDefault(t *testing.T) {
	t.Parallel()

	s := NewStore()
	assert.Equal(t, false, s.Get("g1_done", false))
	assert.Equal(t, "fallback", s.String("missing", "fallback"))
	assert.Equal(t, 4.0, s.Number("missing", 4))
	assert.True(t, s.Bool("missing", true))
	_, ok := s.Lookup("missing")
	assert.False(t, ok)
}

func TestSetOverwritesAndVersions(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("score", 1, true))
	require.NoError(t, s.Set("score", 2, true))
	require.NoError(t, s.Set("local", "x", false))

	assert.Equal(t, 2.0, s.Get("score", nil))
	assert.Equal(t, uint64(2), s.Version("score"))
	assert.Equal(t, uint64(0), s.Version("local"))
	assert.False(t, s.Replicated("local"))
	assert.Equal(t, []string{"local", "score"}, s.Keys(""))
}

func TestSetUnserializableKeepsPrevious(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("k", "ok", true))

	err := s.Set("k", struct{ A int }{1}, true)
	require.ErrorIs(t, err, ErrEncoding)
	err = s.Set("k", math.NaN(), true)
	require.ErrorIs(t, err, ErrEncoding)

	assert.Equal(t, "ok", s.Get("k", nil))
	assert.Equal(t, uint64(1), s.Version("k"))
}

func TestSetRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.ErrorIs(t, s.Set(" ", 1, true), ErrInvalidKey)
	assert.Equal(t, 0, s.Len())
}

func TestStructuredValues(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("task:t1", map[string]any{
		"id":    "t1",
		"state": "CREATED",
		"tags":  []string{"assault", "hvt"},
	}, true))

	rec, ok := s.Get("task:t1", nil).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CREATED", rec["state"])
	assert.Equal(t, []any{"assault", "hvt"}, rec["tags"])
}

func TestDrainCoalescesPerKey(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("a", 1, true))
	require.NoError(t, s.Set("b", 1, true))
	require.NoError(t, s.Set("a", 2, true))
	require.NoError(t, s.Set("local", 1, false))

	batch := s.Drain()
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].Key)
	assert.Equal(t, uint64(2), batch[0].Version)
	assert.Equal(t, 2.0, batch[0].Interface())
	assert.Equal(t, "b", batch[1].Key)
	assert.Less(t, batch[0].Seq, batch[1].Seq)

	assert.Empty(t, s.Drain())
	assert.Equal(t, 0, s.Pending())
}

func TestDrainSkipsKeysTurnedLocal(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("a", 1, true))
	require.NoError(t, s.Set("a", 2, false))
	assert.Empty(t, s.Drain())
}

func TestOnChange(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	require.NoError(t, s.Set("flag", false, true))
	require.NoError(t, s.Set("flag", true, true))
	_ = s.Set("flag", make(chan int), true)

	require.Len(t, changes, 2)
	assert.False(t, changes[0].Existed)
	assert.Equal(t, false, changes[1].Old)
	assert.Equal(t, true, changes[1].New)
	assert.Equal(t, uint64(2), changes[1].Version)
}

func TestSnapshotOnlyReplicated(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("b", 1, true))
	require.NoError(t, s.Set("a", 1, true))
	require.NoError(t, s.Set("hidden", 1, false))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key)
	assert.Equal(t, "b", snap[1].Key)
}
