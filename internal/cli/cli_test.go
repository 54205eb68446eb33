package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TaskForce/internal/audit"
	"TaskForce/internal/tasks"
)

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

const cyclicMission = `
mission: {id: loop, name: Loop}
phases:
  - {id: a, order: 0, next: [b]}
  - {id: b, order: 1, next: [a]}
`

func TestValidateDefaultMission(t *testing.T) {
	out, err := executeCommand(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "op_nightfall")
	assert.Contains(t, out, "initial phase: infil")
}

func TestValidateRejectsCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cyclicMission), 0o644))

	_, err := executeCommand(t, "validate", path)
	assert.Error(t, err)
}

func TestPhasesListsInOrder(t *testing.T) {
	out, err := executeCommand(t, "phases")
	require.NoError(t, err)

	infil := bytes.Index([]byte(out), []byte("infil"))
	assault := bytes.Index([]byte(out), []byte("assault"))
	debrief := bytes.Index([]byte(out), []byte("debrief"))
	require.True(t, infil >= 0 && assault >= 0 && debrief >= 0, out)
	assert.Less(t, infil, assault)
	assert.Less(t, assault, debrief)
	assert.Contains(t, out, "* infil")
	assert.Contains(t, out, "requires: recon")
	assert.Contains(t, out, "terminal")
}

func TestJournalCommand(t *testing.T) {
	dir := t.TempDir()
	j, err := audit.Open(audit.Config{SessionID: "alpha", Dir: dir})
	require.NoError(t, err)
	j.TaskTransition(tasks.Transition{TaskID: "recon", From: tasks.Created, To: tasks.Assigned, Tick: 1})
	j.TaskTransition(tasks.Transition{TaskID: "intel", From: tasks.Created, To: tasks.Assigned, Tick: 1})
	j.RewardGranted("WEST", "score", 10)
	require.NoError(t, j.Close())

	files, err := filepath.Glob(filepath.Join(dir, "journal-alpha-*.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	out, err := executeCommand(t, "journal", files[0])
	require.NoError(t, err)
	assert.Contains(t, out, "CREATED -> ASSIGNED")
	assert.Contains(t, out, "score +10")

	out, err = executeCommand(t, "journal", "--subject", "intel", files[0])
	journalFlags.subject = ""
	require.NoError(t, err)
	assert.Contains(t, out, "intel")
	assert.NotContains(t, out, "recon")

	_, err = executeCommand(t, "journal", filepath.Join(dir, "missing.jsonl.zst"))
	assert.Error(t, err)
}

func TestServeOverridesOnlyChangedFlags(t *testing.T) {
	require.NoError(t, serveCmd.ParseFlags([]string{"--tick-hz", "25", "--idle-ttl", "90s"}))

	o := serveOverrides(serveCmd)
	require.NotNil(t, o.TickHz)
	assert.Equal(t, 25, *o.TickHz)
	require.NotNil(t, o.IdleTTL)
	assert.Equal(t, 90*time.Second, *o.IdleTTL)
	assert.Nil(t, o.Addr)
	assert.Nil(t, o.Workers)
	assert.Nil(t, o.LogLevel)
}
