package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer, level Level) Logger {
	return NewWithConfig(Config{Level: level, Writer: buf, NoColor: true})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, WarnLevel)

	l.Info("hidden")
	l.Warn("shown")
	l.Errorf("also %s", "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN  shown")
	assert.Contains(t, out, "ERROR also shown")
}

func TestFieldsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, DebugLevel).
		WithPrefix("engine").
		WithFields(map[string]interface{}{"tick": 3, "backend": "serial"})

	l.Debug("done")
	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "DEBUG [engine] backend=serial tick=3 done", line)
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	var buf bytes.Buffer
	root := newTestLogger(&buf, InfoLevel).(*logger)
	child := root.WithField("flock", "a")

	root.out.level = ErrorLevel
	child.Info("suppressed")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable("FLOCK", "AGENTS")
	tbl.AddRow("prey", "120")
	tbl.AddRow("hunters", "8")
	tbl.Fprint(&buf, true)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "FLOCK    AGENTS"))
	assert.True(t, strings.HasPrefix(lines[3], "hunters  8"))
}
