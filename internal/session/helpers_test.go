package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
	"github.com/starford/prose/internal/storage"
)

// memStore is an in-memory Backend. Writes block on gate when it is set.
type memStore struct {
	mu      sync.Mutex
	files   map[string]string
	writes  []string
	started int
	fail    error
	gate    chan struct{}
}

func newMemStore(files map[string]string) *memStore {
	if files == nil {
		files = map[string]string{}
	}
	return &memStore{files: files}
}

func (m *memStore) Read(_ context.Context, p string) (storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[p]
	if !ok {
		return storage.File{}, &apperr.StorageError{Op: "read", Path: p, Err: apperr.ErrNotFound}
	}
	return storage.File{
		Name:    filepath.Base(p),
		Path:    p,
		Content: c,
		Size:    int64(len(c)),
		Target:  document.PathTarget{Path: p},
	}, nil
}

func (m *memStore) Write(_ context.Context, t document.Target, content string) error {
	m.mu.Lock()
	m.started++
	gate, fail := m.gate, m.fail
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail != nil {
		return &apperr.StorageError{Op: "write", Path: t.Key(), Err: fail}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[t.Key()] = content
	m.writes = append(m.writes, t.Key())
	return nil
}

func (m *memStore) Target(p string) (document.Target, error) {
	return document.PathTarget{Path: p}, nil
}

func (m *memStore) CheckAccess(context.Context, string) bool { return true }
func (m *memStore) Mount(context.Context, string) error      { return nil }
func (m *memStore) List(context.Context, string) ([]storage.Entry, error) {
	return nil, nil
}

func (m *memStore) ResolveReference(ctx context.Context, root, ref string) (storage.File, error) {
	return m.Read(ctx, filepath.Join(root, ref))
}

func (m *memStore) Kind() string { return "mem" }
func (m *memStore) Close() error { return nil }

func (m *memStore) get(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[p]
	return c, ok
}

func (m *memStore) startedWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *memStore) writeLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	kinds  []string
	status []Status
}

func (r *recorder) Notify(kind string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	if st, ok := data.(Status); ok {
		r.status = append(r.status, st)
	}
}

func (r *recorder) has(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (r *recorder) lastStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.status) == 0 {
		return Status{}
	}
	return r.status[len(r.status)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// newTestController runs a session over store with a short auto-save delay.
func newTestController(t *testing.T, store storage.Backend, rec *recorder) *Controller {
	t.Helper()
	return newDelayedController(t, store, rec, 20*time.Millisecond)
}

func newDelayedController(t *testing.T, store storage.Backend, rec *recorder, delay time.Duration) *Controller {
	t.Helper()
	if rec == nil {
		rec = &recorder{}
	}
	c := NewController(Deps{
		Store:    store,
		Notifier: rec,
		Logger:   quietLogger(),
		Now:      fixedClock(1000),
	}, Config{AutoSaveDelay: delay})
	t.Cleanup(c.Close)
	return c
}

func do(t *testing.T, c *Controller, fn func(s *Session) error) {
	t.Helper()
	if err := c.Do(context.Background(), fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

// query runs fn on the loop and returns its result.
func query[T any](t *testing.T, c *Controller, fn func(s *Session) T) T {
	t.Helper()
	out := make(chan T, 1)
	do(t, c, func(s *Session) error {
		out <- fn(s)
		return nil
	})
	return <-out
}

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
