package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
)

var skippedDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
}

// Skip reports whether a directory entry is hidden from listings.
func Skip(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "$") {
		return true
	}
	_, ok := skippedDirs[name]
	return ok
}

// Contains reports whether p lies inside root after lexical cleaning.
func Contains(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(root, string(os.PathSeparator))+string(os.PathSeparator))
}

// joinReference resolves ref against root and rejects results outside it.
func joinReference(root, ref string) (string, error) {
	if ref == "" {
		return "", apperr.Invalid(apperr.ErrInvalid, "empty reference")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("storage: resolve root: %w", err)
	}
	joined := filepath.Join(abs, filepath.FromSlash(ref))
	if !Contains(abs, joined) || joined == abs {
		return "", apperr.Invalid(apperr.ErrOutsideRoot, "%s", ref)
	}
	return joined, nil
}

// storageErr wraps an OS error with the matching apperr sentinel.
func storageErr(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		err = fmt.Errorf("%w: %w", apperr.ErrPermission, err)
	}
	return &apperr.StorageError{Op: op, Path: path, Err: err}
}

func checkAccess(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func checkDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("storage: resolve dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", storageErr("mount", abs, err)
	}
	if !info.IsDir() {
		return "", apperr.Invalid(apperr.ErrInvalid, "not a directory: %s", abs)
	}
	return abs, nil
}

// writeHandle streams content through a handle's writable.
func writeHandle(ctx context.Context, h document.Handle, content string) error {
	w, err := h.CreateWritable(ctx)
	if err != nil {
		return storageErr("write", h.Name(), err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return storageErr("write", h.Name(), err)
	}
	if err := w.Close(); err != nil {
		return storageErr("commit", h.Name(), err)
	}
	return nil
}

func toEntries(dir string, des []fs.DirEntry, isDir func(fs.DirEntry) bool) []Entry {
	out := make([]Entry, 0, len(des))
	for _, d := range des {
		if Skip(d.Name()) {
			continue
		}
		out = append(out, Entry{
			Name:  d.Name(),
			Path:  filepath.Join(dir, d.Name()),
			IsDir: isDir(d),
		})
	}
	return out
}
