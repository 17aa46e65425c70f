package internal

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/prose/internal/session"
	"github.com/starford/prose/internal/storage"
	"github.com/starford/prose/internal/testutil"
)

func TestRunRequiresConfig(t *testing.T) {
	err := Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "config is required") {
		t.Fatalf("err = %v", err)
	}
}

type kinds struct {
	mu   sync.Mutex
	seen []string
}

func (k *kinds) Notify(kind string, _ any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.seen = append(k.seen, kind)
}

func TestNewCoreOpensWorkspace(t *testing.T) {
	dir, _ := testutil.TestWorkspace(t, map[string]string{"a.md": "# A"})
	cfg := NewDefaultConfig()
	cfg.Workspace.Path = dir

	rec := &kinds{}
	c, err := newCore(context.Background(), cfg, testutil.Logger(), rec)
	if err != nil {
		t.Fatalf("newCore: %v", err)
	}
	defer c.close()

	snap, err := c.ctrl.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Root != dir {
		t.Errorf("root = %q, want %q", snap.Root, dir)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.seen) != 1 || rec.seen[0] != session.EventFolder {
		t.Errorf("events = %v", rec.seen)
	}
}

func TestNewCoreHandleStorage(t *testing.T) {
	dir, _ := testutil.TestWorkspace(t, map[string]string{"notes/a.md": "# A"})
	cfg := NewDefaultConfig()
	cfg.Workspace.Path = dir
	cfg.Workspace.Storage = storage.KindHandle

	c, err := newCore(context.Background(), cfg, testutil.Logger(), nil)
	if err != nil {
		t.Fatalf("newCore: %v", err)
	}
	defer c.close()

	if c.store.Kind() != storage.KindHandle {
		t.Errorf("kind = %q", c.store.Kind())
	}
	err = c.ctrl.Do(context.Background(), func(s *session.Session) error {
		return s.OpenReference(context.Background(), "notes/a.md")
	})
	if err != nil {
		t.Fatalf("open reference: %v", err)
	}
	snap, _ := c.ctrl.Snapshot(context.Background())
	if snap.Markdown != "# A" || len(snap.Documents) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestNewCoreErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Editor.Renderer = "nope"
	if _, err := newCore(context.Background(), cfg, testutil.Logger(), nil); err == nil {
		t.Error("expected renderer error")
	}

	cfg = NewDefaultConfig()
	cfg.Workspace.Path = filepath.Join(t.TempDir(), "missing")
	if _, err := newCore(context.Background(), cfg, testutil.Logger(), nil); err == nil {
		t.Error("expected workspace error")
	}
}
