// Package document defines the in-memory model of one open file or unsaved buffer.
package document

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

// Target is where a document persists. It is either a PathTarget or a
// HandleTarget; a nil Target means the document has never been saved.
type Target interface {
	// Key is the identity a document takes once saved to this target.
	Key() string
	// Name is the file name shown to the user.
	Name() string
	isTarget()
}

// PathTarget addresses a file by filesystem path.
type PathTarget struct {
	Path string
}

func (t PathTarget) Key() string  { return t.Path }
func (t PathTarget) Name() string { return filepath.Base(t.Path) }
func (PathTarget) isTarget()      {}

// Handle is an opaque writable file capability.
type Handle interface {
	ID() string
	Name() string
	CreateWritable(ctx context.Context) (io.WriteCloser, error)
}

// HandleTarget addresses a file through a capability handle.
type HandleTarget struct {
	Handle Handle
}

func (t HandleTarget) Key() string  { return t.Handle.ID() }
func (t HandleTarget) Name() string { return t.Handle.Name() }
func (HandleTarget) isTarget()      {}

// Document is one open file or buffer and its edit state.
type Document struct {
	ID          string
	DisplayName string
	Content     string
	Dirty       bool
	Target      Target
}

// New creates a clean document. target may be nil for unsaved buffers.
func New(id, displayName, content string, target Target) *Document {
	return &Document{
		ID:          id,
		DisplayName: displayName,
		Content:     content,
		Target:      target,
	}
}

// MarkDirty flags unsaved changes.
func (d *Document) MarkDirty() {
	d.Dirty = true
}

// MarkSaved records a successful write of content. A nil target keeps the
// current one.
func (d *Document) MarkSaved(content string, target Target) {
	d.Content = content
	if target != nil {
		d.Target = target
	}
	d.Dirty = false
}

// Saved reports whether the document has a storage target.
func (d *Document) Saved() bool {
	return d.Target != nil
}

// Title is the tab label: display name with a trailing "*" while dirty.
func (d *Document) Title() string {
	if d.Dirty {
		return d.DisplayName + "*"
	}
	return d.DisplayName
}

var markdownExtRe = regexp.MustCompile(`(?i)\.(md|markdown)$`)

// DisplayName derives a display name from a file name.
func DisplayName(filename string) string {
	return markdownExtRe.ReplaceAllString(filepath.Base(filename), "")
}

var (
	markdownExts  = map[string]struct{}{"md": {}, "markdown": {}, "txt": {}, "text": {}, "mdown": {}, "mkd": {}, "mdx": {}}
	markdownNames = map[string]struct{}{"readme": {}, "changelog": {}, "license": {}, "todo": {}, "notes": {}}
)

// IsMarkdownFile reports whether name looks like a readable text document.
func IsMarkdownFile(name string) bool {
	lower := strings.ToLower(name)
	if i := strings.LastIndex(lower, "."); i >= 0 {
		if _, ok := markdownExts[lower[i+1:]]; ok {
			return true
		}
	}
	base := lower
	if i := strings.Index(lower, "."); i >= 0 {
		base = lower[:i]
	}
	_, ok := markdownNames[base]
	return ok
}
