// Package logging sets up per-run structured logging with size-based
// rotation.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "vecview_"
	fileSuffix = ".log"
	timeLayout = "20060102_150405"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Dir holds the per-run log files. Empty disables file logging.
	Dir string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the number of run logs and rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr mirrors output to stderr.
	WriteToStderr bool
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Dir:           "logs",
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// RunLogPath returns the log file for a run started at t.
func RunLogPath(dir string, t time.Time) string {
	return filepath.Join(dir, filePrefix+t.Format(timeLayout)+fileSuffix)
}

// Setup creates the run log file, prunes old runs and returns the logger
// together with a cleanup function that closes the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}

	var (
		outputs []io.Writer
		writer  *RotatingWriter
	)

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		// Make room for the file about to be created
		if err := Prune(cfg.Dir, cfg.MaxFiles-1); err != nil {
			return nil, nil, err
		}

		var err error
		writer, err = NewRotatingWriter(RunLogPath(cfg.Dir, time.Now()), cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, writer)
	}
	if cfg.WriteToStderr {
		outputs = append(outputs, os.Stderr)
	}

	var output io.Writer
	switch len(outputs) {
	case 0:
		output = io.Discard
	case 1:
		output = outputs[0]
	default:
		output = io.MultiWriter(outputs...)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	logger := slog.New(handler)

	cleanup := func() {
		if writer != nil {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}
	return logger, cleanup, nil
}

// Prune removes the oldest run logs in dir so that at most keep remain.
// Rotated siblings (.1, .2, ...) of a removed run go with it.
func Prune(dir string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	runs, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return fmt.Errorf("failed to list log files: %w", err)
	}
	if len(runs) <= keep {
		return nil
	}

	// The timestamp layout sorts lexically.
	sort.Strings(runs)
	for _, run := range runs[:len(runs)-keep] {
		_ = os.Remove(run)
		rotated, _ := filepath.Glob(run + ".*")
		for _, r := range rotated {
			_ = os.Remove(r)
		}
	}
	return nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
