// Package watch reports changes under the open folder so the file tree can
// refresh.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/prose/internal/document"
	"github.com/starford/prose/internal/storage"
)

// Change kinds.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// DefaultQuiet is the debounce window used when none is configured.
const DefaultQuiet = 200 * time.Millisecond

// Change is one observed filesystem change.
type Change struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Callback receives a debounced batch of changes under root.
type Callback func(root string, changes []Change)

// Watch runs an fsnotify watcher on root until ctx is cancelled. Events are
// collected and delivered to cb once no new event arrived for quiet.
// Directories created at runtime are added to the watch list.
func Watch(ctx context.Context, root string, quiet time.Duration, logger *slog.Logger, cb Callback) error {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watch: started", slog.String("root", root))

	var (
		pending []Change
		seen    = map[Change]struct{}{}
		flushT  *time.Timer
		flushCh <-chan time.Time
	)
	schedule := func() {
		if flushT == nil {
			flushT = time.NewTimer(quiet)
			flushCh = flushT.C
			return
		}
		if !flushT.Stop() {
			select {
			case <-flushT.C:
			default:
			}
		}
		flushT.Reset(quiet)
	}
	record := func(c Change) {
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		pending = append(pending, c)
		schedule()
	}

	for {
		select {
		case <-ctx.Done():
			if flushT != nil {
				flushT.Stop()
			}
			logger.Info("watch: stopped", slog.String("root", root))
			return nil

		case <-flushCh:
			batch := pending
			pending, seen = nil, map[Change]struct{}{}
			if len(batch) > 0 && cb != nil {
				cb(root, batch)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if hidden(root, ev.Name) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watch: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					record(Change{Kind: Created, Path: ev.Name})
					continue
				}
				if document.IsMarkdownFile(filepath.Base(ev.Name)) {
					record(Change{Kind: Created, Path: ev.Name})
				}
			case ev.Op&fsnotify.Write != 0:
				if document.IsMarkdownFile(filepath.Base(ev.Name)) {
					record(Change{Kind: Updated, Path: ev.Name})
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports the old name only; a rename target
				// arrives as its own Create.
				record(Change{Kind: Deleted, Path: ev.Name})
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// hidden reports whether p lies under an entry the tree never shows.
func hidden(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	if strings.HasPrefix(rel, "..") {
		return true
	}
	for dir := rel; dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if storage.Skip(filepath.Base(dir)) {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and its visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.Skip(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// Manager keeps one watcher running for the current folder.
type Manager struct {
	parent context.Context
	quiet  time.Duration
	logger *slog.Logger
	cb     Callback

	mu     sync.Mutex
	root   string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager whose watchers stop when parent is done.
func NewManager(parent context.Context, quiet time.Duration, logger *slog.Logger, cb Callback) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{parent: parent, quiet: quiet, logger: logger, cb: cb}
}

// Reset stops the running watcher and starts one on root. An empty root
// only stops.
func (m *Manager) Reset(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if root == m.root && m.cancel != nil {
		return
	}
	m.stopLocked()
	m.root = root
	if root == "" {
		return
	}
	ctx, cancel := context.WithCancel(m.parent)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		if err := Watch(ctx, root, m.quiet, m.logger, m.cb); err != nil {
			m.logger.Warn("watch: start failed",
				slog.String("root", root),
				slog.String("error", err.Error()))
		}
	}()
}

// Root returns the folder being watched.
func (m *Manager) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

// Close stops the running watcher and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.root = ""
}

func (m *Manager) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
}
