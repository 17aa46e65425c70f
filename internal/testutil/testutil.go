// Package testutil provides shared test helpers for setting up workspaces and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/prose/internal/prefs"
	"github.com/starford/prose/internal/storage"
)

// TestPrefs creates a temporary preferences database that is automatically cleaned up.
func TestPrefs(t *testing.T) *prefs.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "prose-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := prefs.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary folder holding files (relative path to
// content) and a path-addressed backend.
func TestWorkspace(t *testing.T, files map[string]string) (string, storage.Backend) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
	return dir, storage.NewFS()
}

// WriteFile writes content to p, creating parent directories.
func WriteFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
