package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
)

// Rooted implements Backend on directory capabilities. Mount opens an
// os.Root and every file under it is addressed by a handle minted from that
// root; symlinks cannot escape it. Paths outside the mounted folder are not
// reachable.
type Rooted struct {
	opts options

	mu      sync.RWMutex
	current *mount
	mounts  []*mount
}

type mount struct {
	id   string
	dir  string
	root *os.Root
}

// NewRooted creates a capability-addressed backend with nothing mounted.
func NewRooted(opts ...Option) *Rooted {
	return &Rooted{opts: buildOptions(opts)}
}

// Kind implements Backend.
func (r *Rooted) Kind() string { return KindHandle }

// Mount opens dir as the current root. Handles minted from earlier mounts
// stay writable until Close.
func (r *Rooted) Mount(_ context.Context, dir string) error {
	abs, err := checkDir(dir)
	if err != nil {
		return err
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return storageErr("mount", abs, err)
	}
	m := &mount{id: uuid.NewString(), dir: abs, root: root}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = m
	r.mounts = append(r.mounts, m)
	return nil
}

// Close releases every mounted root.
func (r *Rooted) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, m := range r.mounts {
		if err := m.root.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.mounts = nil
	r.current = nil
	return first
}

// resolve maps an absolute or root-relative path into the current mount.
func (r *Rooted) resolve(path string) (*mount, string, error) {
	r.mu.RLock()
	m := r.current
	r.mu.RUnlock()
	if m == nil {
		return nil, "", apperr.Invalid(apperr.ErrNoFolder, "no directory mounted")
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.dir, p)
	}
	rel, err := filepath.Rel(m.dir, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return nil, "", apperr.Invalid(apperr.ErrOutsideRoot, "%s", path)
	}
	return m, rel, nil
}

// Read implements Backend.
func (r *Rooted) Read(ctx context.Context, path string) (File, error) {
	m, rel, err := r.resolve(path)
	if err != nil {
		return File{}, err
	}
	return r.read(ctx, m, rel)
}

func (r *Rooted) read(_ context.Context, m *mount, rel string) (File, error) {
	abs := filepath.Join(m.dir, rel)
	info, err := m.root.Stat(rel)
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
		Target: document.HandleTarget{Handle: &rootHandle{m: m, rel: rel}},
	}
	if file.Size > r.opts.maxRead {
		return file, nil
	}
	data, err := m.root.ReadFile(rel)
	if err != nil {
		return File{}, storageErr("read", abs, err)
	}
	file.Content = string(data)
	file.Size = int64(len(data))
	return file, nil
}

// Write implements Backend. Only handle targets are accepted.
func (r *Rooted) Write(ctx context.Context, target document.Target, content string) error {
	t, ok := target.(document.HandleTarget)
	if !ok {
		return apperr.Invalid(apperr.ErrUnsupported, "handle backend cannot write to a bare path")
	}
	return writeHandle(ctx, t.Handle, content)
}

// Target mints a handle for a path inside the current mount.
func (r *Rooted) Target(path string) (document.Target, error) {
	if path == "" {
		return nil, apperr.Invalid(apperr.ErrInvalid, "empty path")
	}
	m, rel, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	if rel == "." {
		return nil, apperr.Invalid(apperr.ErrNotFile, "%s", path)
	}
	return document.HandleTarget{Handle: &rootHandle{m: m, rel: rel}}, nil
}

// CheckAccess implements Backend.
func (r *Rooted) CheckAccess(_ context.Context, path string) bool {
	return checkAccess(path)
}

// List implements Backend.
func (r *Rooted) List(_ context.Context, dir string) ([]Entry, error) {
	m, rel, err := r.resolve(dir)
	if err != nil {
		return nil, err
	}
	des, err := fs.ReadDir(m.root.FS(), filepath.ToSlash(rel))
	if err != nil {
		return nil, storageErr("list", filepath.Join(m.dir, rel), err)
	}
	base := filepath.Join(m.dir, rel)
	return toEntries(base, des, func(d fs.DirEntry) bool {
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := m.root.Stat(filepath.Join(rel, d.Name()))
			return err == nil && info.IsDir()
		}
		return d.IsDir()
	}), nil
}

// ResolveReference implements Backend. root must be the mounted folder.
func (r *Rooted) ResolveReference(ctx context.Context, root, ref string) (File, error) {
	p, err := joinReference(root, ref)
	if err != nil {
		return File{}, err
	}
	m, rel, err := r.resolve(p)
	if err != nil {
		return File{}, err
	}
	return r.read(ctx, m, rel)
}

// rootHandle is a writable file capability inside a mount.
type rootHandle struct {
	m   *mount
	rel string
}

func (h *rootHandle) ID() string {
	return "handle:" + h.m.id + "/" + filepath.ToSlash(h.rel)
}

func (h *rootHandle) Name() string { return filepath.Base(h.rel) }

// CreateWritable opens a temp file next to the target. Content becomes
// visible under the target name only when the writer is closed.
func (h *rootHandle) CreateWritable(ctx context.Context) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Dir(h.rel)
	if dir != "." {
		if err := h.m.root.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	tmp := filepath.Join(dir, ".prose-tmp-"+uuid.NewString())
	f, err := h.m.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &commitWriter{f: f, root: h.m.root, tmp: tmp, dst: h.rel}, nil
}

type commitWriter struct {
	f    *os.File
	root *os.Root
	tmp  string
	dst  string
	err  error
}

func (w *commitWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

// Close fsyncs and renames the temp file over the target.
func (w *commitWriter) Close() error {
	err := w.err
	if err == nil {
		err = w.f.Sync()
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = w.root.Rename(w.tmp, w.dst)
	}
	if err != nil {
		_ = w.root.Remove(w.tmp)
	}
	return err
}
