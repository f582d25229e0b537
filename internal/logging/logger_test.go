package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/devbridge/internal/config"
)

func fileConfig(t *testing.T, format string) config.LoggingConfig {
	t.Helper()
	cfg := config.DefaultLoggingConfig()
	cfg.Dir = filepath.Join(t.TempDir(), "logs")
	cfg.Console.Enabled = false
	cfg.File = config.SinkConfig{Enabled: true, Level: "debug", Format: format}
	t.Cleanup(func() { _ = Shutdown() })
	return cfg
}

func TestNewLogger_FileSinks(t *testing.T) {
	cfg := fileConfig(t, "text")

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Debug("relay started", "port", 8000)
	logger.Warn("origin dropped", "instance", "counter")

	main, err := os.ReadFile(filepath.Join(cfg.Dir, MainLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(main), "relay started")
	assert.Contains(t, string(main), "origin dropped")

	errs, err := os.ReadFile(filepath.Join(cfg.Dir, ErrorLogFile))
	require.NoError(t, err)
	assert.NotContains(t, string(errs), "relay started")
	assert.Contains(t, string(errs), "instance=counter")
}

func TestNewLogger_JSON(t *testing.T) {
	cfg := fileConfig(t, "json")

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("test json", "key", "value")

	content, err := os.ReadFile(filepath.Join(cfg.Dir, MainLogFile))
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &rec))
	assert.Equal(t, "test json", rec["msg"])
	assert.Equal(t, "value", rec["key"])
}

func TestNewLogger_NoSinks(t *testing.T) {
	cfg := config.DefaultLoggingConfig()
	cfg.Console.Enabled = false
	cfg.File.Enabled = false
	cfg.Dir = filepath.Join(t.TempDir(), "unused")

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Error("dropped")
	assert.NoDirExists(t, cfg.Dir)
}

func TestNewLogger_BadDir(t *testing.T) {
	cfg := fileConfig(t, "text")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Dir = filepath.Join(blocker, "logs")

	_, err := NewLogger(cfg)
	assert.Error(t, err)
	assert.Error(t, Initialize(cfg))
}

func TestInitialize_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := fileConfig(t, "text")
	require.NoError(t, Initialize(cfg))
	slog.Info("via default")

	content, err := os.ReadFile(filepath.Join(cfg.Dir, MainLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Logging initialized")
	assert.Contains(t, string(content), "via default")
	assert.NoError(t, Shutdown())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanout(t *testing.T) {
	var debug, warn bytes.Buffer
	debugH := slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug})
	warnH := slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewFanout(debugH, warnH)).With("component", "relay").WithGroup("req")
	logger.Debug("low", "id", 1)
	logger.Warn("high", "id", 2)

	assert.Contains(t, debug.String(), "low")
	assert.Contains(t, debug.String(), "component=relay")
	assert.Contains(t, debug.String(), "req.id=2")
	assert.NotContains(t, warn.String(), "low")
	assert.Contains(t, warn.String(), "high")

	f := NewFanout(warnH)
	assert.False(t, f.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, f.Enabled(context.Background(), slog.LevelError))
}

func TestFanout_HandleContinuesAfterError(t *testing.T) {
	var buf bytes.Buffer
	ok := slog.NewTextHandler(&buf, nil)
	bad := failingHandler{ok}

	f := NewFanout(bad, ok)
	err := f.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "still written", 0))
	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, buf.String(), "still written")
}
