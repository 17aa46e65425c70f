package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
)

// FS implements Backend on the local file system, addressing files by
// absolute path.
type FS struct {
	opts options
}

// NewFS creates a path-addressed backend.
func NewFS(opts ...Option) *FS {
	return &FS{opts: buildOptions(opts)}
}

// Kind implements Backend.
func (f *FS) Kind() string { return KindPath }

// Close implements Backend.
func (f *FS) Close() error { return nil }

// Read returns the file at path. Content is not loaded past the read limit.
func (f *FS) Read(_ context.Context, path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("storage: resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return File{}, storageErr("read", abs, err)
	}
	if !info.Mode().IsRegular() {
		return File{}, apperr.Invalid(apperr.ErrNotFile, "%s", abs)
	}
	file := File{
		Name:   info.Name(),
		Path:   abs,
		Size:   info.Size(),
		Target: document.PathTarget{Path: abs},
	}
	if file.Size > f.opts.maxRead {
		return file, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return File{}, storageErr("read", abs, err)
	}
	file.Content = string(data)
	file.Size = int64(len(data))
	return file, nil
}

// Write persists content to a path target atomically (tmp file, fsync,
// rename), or streams it through a handle target.
func (f *FS) Write(ctx context.Context, target document.Target, content string) error {
	switch t := target.(type) {
	case document.PathTarget:
		return writeAtomic(t.Path, []byte(content))
	case document.HandleTarget:
		return writeHandle(ctx, t.Handle, content)
	default:
		return apperr.Invalid(apperr.ErrUnsupported, "no save target")
	}
}

func writeAtomic(path string, content []byte) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("storage: resolve path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageErr("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".prose-tmp-*")
	if err != nil {
		return storageErr("create temp", dir, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return storageErr("write temp", abs, err)
	}
	if err := tmp.Sync(); err != nil {
		return storageErr("fsync", abs, err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("close temp", abs, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return storageErr("rename", abs, err)
	}
	success = true
	return nil
}

// Target implements Backend.
func (f *FS) Target(path string) (document.Target, error) {
	if path == "" {
		return nil, apperr.Invalid(apperr.ErrInvalid, "empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve path: %w", err)
	}
	return document.PathTarget{Path: abs}, nil
}

// CheckAccess implements Backend.
func (f *FS) CheckAccess(_ context.Context, path string) bool {
	return checkAccess(path)
}

// Mount checks that dir is a readable directory. Path-addressed files need
// no further setup.
func (f *FS) Mount(_ context.Context, dir string) error {
	_, err := checkDir(dir)
	return err
}

// List implements Backend.
func (f *FS) List(_ context.Context, dir string) ([]Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve dir: %w", err)
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		return nil, storageErr("list", abs, err)
	}
	return toEntries(abs, des, func(d fs.DirEntry) bool {
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(abs, d.Name()))
			return err == nil && info.IsDir()
		}
		return d.IsDir()
	}), nil
}

// ResolveReference implements Backend.
func (f *FS) ResolveReference(ctx context.Context, root, ref string) (File, error) {
	p, err := joinReference(root, ref)
	if err != nil {
		return File{}, err
	}
	return f.Read(ctx, p)
}
