package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log, err := Init("test-service", slog.LevelInfo, Options{Stdout: &buf})
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("hello", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "test-service", rec["service"])
	assert.Equal(t, "hello", rec["msg"])
}

func TestInit_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "chartd.log")
	log, err := Init("svc", slog.LevelDebug, Options{File: path, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	log.Debug("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError,
		"info": slog.LevelInfo, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceID(ctx))

	ctx = WithTraceID(ctx, "test-trace-123")
	assert.Equal(t, "test-trace-123", TraceID(ctx))
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("ws", ts)
	assert.True(t, strings.HasPrefix(tid, "ws-"))
	assert.Contains(t, tid, "123456789")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	FromContext(context.Background(), base).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")

	FromContext(WithTraceID(context.Background(), "abc-123"), base).Info("traced")
	assert.Contains(t, buf.String(), `"trace_id":"abc-123"`)
}
