package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		minLevel  Level
		logLevel  Level
		shouldLog bool
	}{
		{"debug allowed at debug", LevelDebug, LevelDebug, true},
		{"debug blocked at info", LevelInfo, LevelDebug, false},
		{"info allowed at info", LevelInfo, LevelInfo, true},
		{"info blocked at warn", LevelWarn, LevelInfo, false},
		{"warn allowed at warn", LevelWarn, LevelWarn, true},
		{"warn blocked at error", LevelError, LevelWarn, false},
		{"error allowed at error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWriter(&buf, tt.minLevel)
			l.log(tt.logLevel, "hello")
			if tt.shouldLog {
				assert.Contains(t, buf.String(), levelNames[tt.logLevel]+": hello")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoggerFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelDebug).With("session", "alpha")

	l.Warn("trigger action failed", "trigger", "g1", "err", errors.New("boom"))

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, `WARN: trigger action failed | err="boom" session=alpha trigger=g1`, line)
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriter(&buf, LevelWarn)
	child := root.With("component", "tasks")

	child.Info("hidden")
	assert.Empty(t, buf.String())

	root.SetLevel(LevelInfo)
	child.Info("shown")
	assert.Contains(t, buf.String(), "INFO: shown | component=tasks")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFormatValueQuotesSpaces(t *testing.T) {
	assert.Equal(t, `"two words"`, formatValue("two words"))
	assert.Equal(t, "one", formatValue("one"))
	assert.Equal(t, `""`, formatValue(""))
	assert.Equal(t, "42", formatValue(42))
}
