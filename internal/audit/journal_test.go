package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TaskForce/internal/tasks"
)

func openTestJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	tick := uint64(7)
	j, err := Open(Config{SessionID: "alpha", Dir: dir, Clock: func() uint64 { return tick }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestTaskHistory(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t, "")
	j.TaskTransition(tasks.Transition{TaskID: "t1", From: tasks.Created, To: tasks.Assigned, Tick: 1})
	j.TaskTransition(tasks.Transition{TaskID: "t2", From: tasks.Created, To: tasks.Canceled, Tick: 2})
	j.TaskTransition(tasks.Transition{TaskID: "t1", From: tasks.Assigned, To: tasks.Succeeded, Tick: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, j.Flush(ctx))

	hist, err := j.TaskHistory(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "CREATED", hist[0].From)
	assert.Equal(t, "SUCCEEDED", hist[1].To)
	assert.Equal(t, uint64(3), hist[1].Tick)
	assert.Equal(t, "alpha", hist[1].Session)
	assert.Less(t, hist[0].Seq, hist[1].Seq)
}

func TestCountsAndRecent(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t, "")
	j.TriggerActivated("g1", 4)
	j.PhaseChanged("infil", "enter")
	j.PhaseChanged("infil", "complete")
	j.RewardGranted("WEST", "supply", 50)

	ctx := context.Background()
	require.NoError(t, j.Flush(ctx))

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindTrigger: 1, KindPhase: 2, KindReward: 1}, counts)

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, KindPhase, recent[0].Kind)
	assert.Equal(t, KindReward, recent[1].Kind)
	assert.Equal(t, 50.0, recent[1].Amount)
	assert.Equal(t, uint64(7), recent[1].Tick)
}

func TestCompressedJournalRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := Open(Config{SessionID: "bravo", Dir: dir})
	require.NoError(t, err)

	j.TaskTransition(tasks.Transition{TaskID: "t1", From: tasks.Created, To: tasks.Assigned})
	j.TriggerActivated("g1", 2)
	require.NoError(t, j.Flush(context.Background()))
	path := j.file.Path()
	require.NoError(t, j.Close())

	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	entries, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindTask, entries[0].Kind)
	assert.Equal(t, "g1", entries[1].Subject)
}

func TestClosedJournal(t *testing.T) {
	t.Parallel()

	j, err := Open(Config{SessionID: "charlie"})
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	j.TriggerActivated("late", 1)
	_, err = j.TaskHistory(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.Flush(context.Background()), ErrClosed)
}

func TestRecordDuringClose(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		j, err := Open(Config{SessionID: "delta", Buffer: 8})
		require.NoError(t, err)

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-stop:
					return
				default:
				}
				j.TaskTransition(tasks.Transition{TaskID: "t1", From: tasks.Created, To: tasks.Assigned})
				_ = j.Flush(context.Background())
			}
		}()

		require.NoError(t, j.Close())
		close(stop)
		<-done
		assert.ErrorIs(t, j.Flush(context.Background()), ErrClosed)
	}
}
