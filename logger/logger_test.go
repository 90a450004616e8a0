package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		ok    bool
	}{
		{"debug", DebugLevel, true},
		{"TRACE", DebugLevel, true},
		{"info", InfoLevel, true},
		{"", InfoLevel, true},
		{"Warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"fatal", FatalLevel, true},
		{"verbose", InfoLevel, false},
	}

	for _, tt := range tests {
		level, ok := ParseLevel(tt.name)
		assert.Equal(t, tt.level, level, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)

	l.Debug("hidden")
	assert.Zero(t, buf.Len(), "debug must be filtered at info level")

	l.With("device", "inv1").Info("conversation done", "name", "GetPower")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "conversation done", rec["msg"])
	assert.Equal(t, "inv1", rec["device"])
	assert.Equal(t, "GetPower", rec["name"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_SetLevelSharedWithChild(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, ErrorLevel, false)
	child := l.With("k", "v")

	assert.Equal(t, ErrorLevel, child.Level())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())

	child.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestZapLogger_Level(t *testing.T) {
	l, err := NewZap(WarnLevel, false)
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, l.Level())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	assert.Equal(t, DebugLevel, l.With("a", 1).Level())
}

func TestSetLogger(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	m := NewMockLogger()
	m.On("Info", "hello", []any{"k", 1}).Return()

	SetLogger(m)
	Info("hello", "k", 1)
	m.AssertExpectations(t)

	SetLogger(nil)
	assert.Same(t, m, GetLogger())
}

func TestMockLogger_Helpers(t *testing.T) {
	m := NewMockLogger()
	m.ExpectWith("device", "inv1")
	m.Allow("Debug", "Info")
	m.On("Warn", "boom", []any{"k", 2}).Return()

	child := m.With("device", "inv1")
	assert.Same(t, m, child)

	child.Debug("ignored")
	child.Info("ignored too", "k", 1)
	child.Warn("boom", "k", 2)

	m.AssertCalled(t, "Warn", "boom", []any{"k", 2})
	m.AssertExpectations(t)
}
