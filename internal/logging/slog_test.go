package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("VERBOSE"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestJSONLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json").With("component", "hub")

	log.Info(context.Background(), "client registered", "conn", "c1")
	log.Debug(context.Background(), "hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "client registered", line["msg"])
	assert.Equal(t, "hub", line["component"])
	assert.Equal(t, "c1", line["conn"])
}

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "text")

	log.Debug(context.Background(), "slice received", "index", 2)
	assert.Contains(t, buf.String(), "slice received")
	assert.Contains(t, buf.String(), "index=2")
}
