package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"vidkiosk/internal/config"
)

// RunLogPattern matches every per-run daemon log file.
const RunLogPattern = "vidkiosk-*.log"

// Options configures New.
type Options struct {
	Level  string
	Format string // "console" (default) or "json"
	// OutputPaths lists files or the names stdout and stderr. Empty means stdout.
	OutputPaths []string
	// Stream receives a copy of every record when set.
	Stream *StreamHub
}

// New builds a logger. Debug level also records the call site.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := levelVar.Level() <= slog.LevelDebug

	w, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newConsoleHandler(w, levelVar, addSource)
	case "json":
		handler = newJSONHandler(w, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(newStreamHandler(handler, opts.Stream)), nil
}

// NewDaemonLogger logs to stdout and to a new file per run under the log
// directory, so retention prunes whole runs. It returns this run's file.
func NewDaemonLogger(cfg *config.Config, hub *StreamHub, now time.Time) (*slog.Logger, string, error) {
	if cfg == nil {
		logger, err := New(Options{Stream: hub})
		return logger, "", err
	}
	outputs := []string{"stdout"}
	var runLog string
	if cfg.Paths.LogDir != "" {
		runLog = filepath.Join(cfg.Paths.LogDir, RunLogName(now))
		outputs = append(outputs, runLog)
	}
	logger, err := New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Stream:      hub,
	})
	if err != nil {
		return nil, "", err
	}
	return logger, runLog, nil
}

// RunLogName is the log file name for a daemon started at now.
func RunLogName(now time.Time) string {
	return "vidkiosk-" + now.UTC().Format("20060102T150405Z") + ".log"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutputs(paths []string) (io.Writer, error) {
	var writers []io.Writer
	var seen []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(seen, p) {
			continue
		}
		seen = append(seen, p)
		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", p, err)
			}
			writers = append(writers, f)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
