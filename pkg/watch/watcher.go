// Package watch re-runs consolidation when files under the data directory
// change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a directory tree and reports debounced batches of
// changed paths.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	ignore   []string
	debounce time.Duration
	logger   *slog.Logger

	// OnChange receives the changed paths, sorted. It runs on the watch
	// loop, so calls never overlap.
	OnChange func(ctx context.Context, paths []string) error
	OnError  func(path string, err error)
}

// NewWatcher creates a watcher for root and every directory below it.
// Events for paths under any ignore path, such as the output directory or
// the artifact files, are dropped. An ignore path that is root or one of
// its parents is dropped instead.
func NewWatcher(root string, debounce time.Duration, ignore ...string) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsWatcher,
		root:     absRoot,
		debounce: debounce,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, p := range ignore {
		abs, err := filepath.Abs(p)
		if p == "" || err != nil || within(absRoot, abs) {
			continue
		}
		w.ignore = append(w.ignore, abs)
	}

	if err := w.addTree(absRoot); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

// addTree watches dir and its subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch directory: %w", err)
			}
			w.reportError(path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether path is under an ignored directory or is one of
// the temp files the writers create.
func (w *Watcher) ignored(path string) bool {
	for _, ig := range w.ignore {
		if within(path, ig) {
			return true
		}
	}
	return strings.Contains(filepath.Base(path), ".tmp-")
}

func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// Run starts the watch loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			path, err := filepath.Abs(event.Name)
			if err != nil || w.ignored(path) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					if err := w.addTree(path); err != nil {
						w.reportError(path, err)
					}
				}
			}

			w.logger.Debug("change detected", "path", path, "op", event.Op.String())
			pending[path] = true

			// Debounce rapid changes
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			if w.OnChange != nil {
				if err := w.OnChange(ctx, paths); err != nil {
					w.reportError(w.root, err)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

func (w *Watcher) reportError(path string, err error) {
	w.logger.Warn("watch error", "path", path, "error", err)
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
