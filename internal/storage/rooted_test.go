package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
)

func mounted(t *testing.T) (*Rooted, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewRooted()
	if err := r.Mount(context.Background(), dir); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, dir
}

func TestRootedRequiresMount(t *testing.T) {
	r := NewRooted()
	if _, err := r.Read(context.Background(), "/tmp/x.md"); !errors.Is(err, apperr.ErrNoFolder) {
		t.Errorf("err = %v, want ErrNoFolder", err)
	}
}

func TestRootedReadWriteThroughHandle(t *testing.T) {
	ctx := context.Background()
	r, dir := mounted(t)
	writeFile(t, filepath.Join(dir, "notes", "a.md"), "first")

	f, err := r.Read(ctx, filepath.Join(dir, "notes", "a.md"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	ht, ok := f.Target.(document.HandleTarget)
	if !ok {
		t.Fatalf("target = %T, want HandleTarget", f.Target)
	}
	if !strings.HasPrefix(ht.Key(), "handle:") || ht.Name() != "a.md" {
		t.Errorf("handle key %q name %q", ht.Key(), ht.Name())
	}

	if err := r.Write(ctx, f.Target, "second"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "notes", "a.md"))
	if string(got) != "second" {
		t.Errorf("content = %q", got)
	}

	again, err := r.Read(ctx, filepath.Join(dir, "notes", "a.md"))
	if err != nil {
		t.Fatal(err)
	}
	if again.Target.Key() != f.Target.Key() {
		t.Errorf("handle identity changed: %q vs %q", again.Target.Key(), f.Target.Key())
	}
}

func TestRootedRejectsPathTargets(t *testing.T) {
	r, dir := mounted(t)
	err := r.Write(context.Background(), document.PathTarget{Path: filepath.Join(dir, "x.md")}, "x")
	if !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestRootedTargetStaysInside(t *testing.T) {
	ctx := context.Background()
	r, dir := mounted(t)
	tgt, err := r.Target(filepath.Join(dir, "new", "doc.md"))
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if err := r.Write(ctx, tgt, "fresh"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "new", "doc.md"))
	if string(got) != "fresh" {
		t.Errorf("content = %q", got)
	}
	if _, err := r.Target(filepath.Join(dir, "..", "escape.md")); !errors.Is(err, apperr.ErrOutsideRoot) {
		t.Errorf("err = %v, want ErrOutsideRoot", err)
	}
}

func TestRootedBlocksSymlinkEscape(t *testing.T) {
	ctx := context.Background()
	r, dir := mounted(t)
	outside := filepath.Join(t.TempDir(), "secret.md")
	writeFile(t, outside, "secret")
	if err := os.Symlink(outside, filepath.Join(dir, "link.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := r.Read(ctx, filepath.Join(dir, "link.md")); err == nil {
		t.Error("expected symlink escape to fail")
	}
}

func TestRootedListAndReference(t *testing.T) {
	ctx := context.Background()
	r, dir := mounted(t)
	writeFile(t, filepath.Join(dir, "a.md"), "a")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref")
	writeFile(t, filepath.Join(dir, "sub", "b.md"), "b")

	items, err := r.List(ctx, dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("entries = %+v, want a.md and sub", items)
	}

	f, err := r.ResolveReference(ctx, dir, "sub/b.md")
	if err != nil {
		t.Fatalf("ResolveReference: %v", err)
	}
	if f.Content != "b" || f.Path != filepath.Join(dir, "sub", "b.md") {
		t.Errorf("resolved = %+v", f)
	}
	if _, err := r.ResolveReference(ctx, dir, "../x.md"); !errors.Is(err, apperr.ErrOutsideRoot) {
		t.Errorf("err = %v, want ErrOutsideRoot", err)
	}
}
