// Package storage defines the file capabilities the session consumes and the
// two backends that provide them: FS addresses files by path, Rooted mints
// opaque handles from a mounted directory capability.
package storage

import (
	"context"
	"fmt"

	"github.com/starford/prose/internal/document"
)

// Backend kinds accepted by New.
const (
	KindPath   = "path"
	KindHandle = "handle"
)

// DefaultMaxRead is the largest file whose content Read loads.
const DefaultMaxRead int64 = 10 << 20

// File is the result of a read. Content is empty when Size exceeds the
// backend's read limit.
type File struct {
	Name    string
	Path    string
	Content string
	Size    int64
	Target  document.Target
}

// Entry is one directory listing row.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
}

// Backend is the storage capability used by the session and file tree.
type Backend interface {
	// Read loads the file at path.
	Read(ctx context.Context, path string) (File, error)
	// Write persists content to target.
	Write(ctx context.Context, target document.Target, content string) error
	// Target mints a save target for a path chosen by the user.
	Target(path string) (document.Target, error)
	// CheckAccess reports whether path can be opened.
	CheckAccess(ctx context.Context, path string) bool
	// Mount records dir as the open folder.
	Mount(ctx context.Context, dir string) error
	// List returns the visible entries of dir.
	List(ctx context.Context, dir string) ([]Entry, error)
	// ResolveReference reads ref relative to root. The result must stay
	// inside root and be a regular file.
	ResolveReference(ctx context.Context, root, ref string) (File, error)
	// Kind names the backend.
	Kind() string
	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	maxRead int64
}

// WithMaxRead caps the size of files whose content is loaded.
func WithMaxRead(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRead = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxRead: DefaultMaxRead}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the backend for kind.
func New(kind string, opts ...Option) (Backend, error) {
	switch kind {
	case "", KindPath:
		return NewFS(opts...), nil
	case KindHandle:
		return NewRooted(opts...), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}
