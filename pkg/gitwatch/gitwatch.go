// Package gitwatch watches workspace trees for changes that matter to
// the shell's git panel and publishes debounced git-changed signals.
// Everything here is best-effort: a watch that cannot be established is
// logged and skipped, never fatal.
package gitwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
)

// DefaultDebounce is the settle window applied when none is configured.
const DefaultDebounce = 400 * time.Millisecond

// Watcher watches one workspace root recursively. Inside .git only
// HEAD, packed-refs, and the refs tree are interesting; object and
// index churn would otherwise drown the debounce window.
type Watcher struct {
	workspaceID string
	root        string
	debounce    time.Duration
	hub         *telemetry.Hub
	logger      *observability.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher prepares a watcher for the workspace root. Start must be
// called to begin watching.
func NewWatcher(workspaceID, root string, debounce time.Duration, hub *telemetry.Hub, logger *observability.Logger) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		workspaceID: workspaceID,
		root:        root,
		debounce:    debounce,
		hub:         hub,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start establishes the watches and launches the event loop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.fsw = fsw
	w.addTree(w.root)
	go w.run()
	return nil
}

// Stop halts the event loop and releases the watches. Safe to call
// once after Start.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("close watcher", "workspace_id", w.workspaceID, "error", err)
	}
}

// addTree watches dir and every directory below it. The .git subtree
// is special-cased: only .git itself and .git/refs are watched.
func (w *Watcher) addTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("walk skipped", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			w.addWatch(path)
			w.addRefs(path)
			return filepath.SkipDir
		}
		w.addWatch(path)
		return nil
	})
	if err != nil {
		w.logger.Warn("walk watch tree", "workspace_id", w.workspaceID, "error", err)
	}
}

func (w *Watcher) addRefs(gitDir string) {
	refs := filepath.Join(gitDir, "refs")
	filepath.WalkDir(refs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Debug("watch failed", "path", dir, "error", err)
	}
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := 0

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.maybeWatchNewDir(ev)
			pending++
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "workspace_id", w.workspaceID, "error", err)

		case <-timerC:
			w.hub.Publish(telemetry.Signal{
				Kind:        telemetry.SignalGitChanged,
				WorkspaceID: w.workspaceID,
				Data:        map[string]any{"changes": pending},
			})
			pending = 0
			timer = nil
			timerC = nil
		}
	}
}

// relevant filters out noise: chmod-only events and everything inside
// .git except HEAD, packed-refs, and refs.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	part, rest, found := strings.Cut(rel, "/")
	if part == ".git" {
		if !found {
			return false
		}
		return rest == "HEAD" || rest == "packed-refs" || strings.HasPrefix(rest, "refs/")
	}
	return true
}

// maybeWatchNewDir extends the watch set when a directory appears, so
// nested creation keeps reporting.
func (w *Watcher) maybeWatchNewDir(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return
	}
	w.addTree(ev.Name)
}
