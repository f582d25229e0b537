package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/syntrixbase/devbridge/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file names inside LoggingConfig.Dir.
const (
	MainLogFile  = "devbridge.log"
	ErrorLogFile = "errors.log"
)

var (
	logFiles   []io.Closer
	logFilesMu sync.Mutex
)

// Initialize builds a logger from cfg and installs it as the slog default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	slog.Info("Logging initialized",
		"level", cfg.Level,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
		"dir", cfg.Dir,
	)
	return nil
}

// NewLogger creates a logger writing to the enabled sinks. The file sink
// writes every record to devbridge.log and warnings and above to errors.log.
// With no sink enabled records are discarded.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, newHandler(os.Stdout, cfg.Console.Format, ParseLevel(cfg.Console.Level)))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		main := openRotating(cfg, MainLogFile)
		handlers = append(handlers, newHandler(main, cfg.File.Format, ParseLevel(cfg.File.Level)))

		errs := openRotating(cfg, ErrorLogFile)
		handlers = append(handlers, newHandler(errs, cfg.File.Format, slog.LevelWarn))
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	case 1:
		return slog.New(handlers[0]), nil
	}
	return slog.New(NewFanout(handlers...)), nil
}

// Shutdown closes every log file opened by NewLogger.
func Shutdown() error {
	logFilesMu.Lock()
	defer logFilesMu.Unlock()

	var firstErr error
	for _, f := range logFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close log file: %w", err)
		}
	}
	logFiles = nil
	return firstErr
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openRotating(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	logFilesMu.Lock()
	logFiles = append(logFiles, f)
	logFilesMu.Unlock()
	return f
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
