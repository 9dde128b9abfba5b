package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unbekannt"))
}

func TestNew_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	l.Info("ignored")
	l.Warn("retrieval failed", "kind", "timeout")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "retrieval failed", record["msg"])
	assert.Equal(t, "timeout", record["kind"])
	assert.Same(t, l, slog.Default())
}

func TestNew_Text(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	New(Config{Level: slog.LevelInfo, Format: "text", Output: &buf}).Info("hallo", "k", 2)
	assert.Contains(t, buf.String(), "msg=hallo")
	assert.Contains(t, buf.String(), "k=2")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Ist ein", Truncate("Ist ein", 10))
	assert.Equal(t, "Für d...", Truncate("Für die Inanspruchnahme", 5))
}
