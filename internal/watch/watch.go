// Package watch reloads the console when another process changes a
// persisted chromem database.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Yates-Labs/vecview/internal/vectordb"
)

// DefaultDebounce is how long the directory must stay quiet before a reload.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc is called once per burst of changes.
type ReloadFunc func(ctx context.Context) error

// Watcher watches a database directory and its collection directories.
type Watcher struct {
	root     string
	debounce time.Duration
	reload   ReloadFunc
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New starts watching root. Events are not delivered until Run is called.
func New(root string, reload ReloadFunc, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:     abs,
		debounce: DefaultDebounce,
		reload:   reload,
		logger:   slog.Default(),
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers reloads until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	w.logger.Info("watching database directory", slog.String("path", w.root))

	pending := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.root {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
			pending++
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			w.logger.Info("database changed on disk, reloading", slog.Int("events", pending))
			pending = 0
			if err := w.reload(ctx); err != nil {
				w.logger.Error("reload failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// addTree watches root and its direct subdirectories, one per collection.
func (w *Watcher) addTree() error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if path != w.root {
			return filepath.SkipDir
		}
		return nil
	})
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if base == vectordb.LockFileName {
		return false
	}
	// Editor and export temp files
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}
