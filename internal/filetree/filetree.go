// Package filetree builds the folder sidebar: directories first, markdown-like
// files only, with depth and fan-out caps.
package filetree

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/starford/prose/internal/document"
	"github.com/starford/prose/internal/storage"
)

const (
	// MaxDepth is the deepest level whose children are listed. The root is
	// depth 0.
	MaxDepth = 10
	// MaxEntries caps the children kept per directory.
	MaxEntries = 1000
)

// Lister lists one directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]storage.Entry, error)
}

// Node is one entry of the tree.
type Node struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	IsDir     bool    `json:"isDir"`
	Depth     int     `json:"depth"`
	Loaded    bool    `json:"loaded,omitempty"`
	Truncated bool    `json:"truncated,omitempty"`
	Children  []*Node `json:"children,omitempty"`
}

// Loader lists directories through a Lister.
type Loader struct {
	lister     Lister
	logger     *slog.Logger
	maxDepth   int
	maxEntries int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLimits overrides the depth and per-directory caps.
func WithLimits(depth, entries int) Option {
	return func(l *Loader) {
		if depth > 0 {
			l.maxDepth = depth
		}
		if entries > 0 {
			l.maxEntries = entries
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(lister Lister, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{lister: lister, logger: logger, maxDepth: MaxDepth, maxEntries: MaxEntries}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load lists the first level under root. Subdirectories are left unloaded.
func (l *Loader) Load(ctx context.Context, root string) (*Node, error) {
	n := rootNode(root)
	if err := l.fill(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Expand loads the children of n. Loaded nodes, files and nodes at the depth
// cap are left as they are.
func (l *Loader) Expand(ctx context.Context, n *Node) error {
	if !n.IsDir || n.Loaded || n.Depth >= l.maxDepth {
		return nil
	}
	return l.fill(ctx, n)
}

// LoadAll walks root eagerly down to the depth cap. Listing errors below the
// root are logged and leave that directory empty.
func (l *Loader) LoadAll(ctx context.Context, root string) (*Node, error) {
	n := rootNode(root)
	if err := l.fill(ctx, n); err != nil {
		return nil, err
	}
	l.walk(ctx, n)
	return n, nil
}

func (l *Loader) walk(ctx context.Context, n *Node) {
	for _, c := range n.Children {
		if !c.IsDir || c.Depth >= l.maxDepth {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := l.fill(ctx, c); err != nil {
			l.logger.Warn("filetree: list failed",
				slog.String("path", c.Path),
				slog.String("error", err.Error()))
			c.Loaded = true
			continue
		}
		l.walk(ctx, c)
	}
}

func rootNode(root string) *Node {
	return &Node{Name: filepath.Base(root), Path: root, IsDir: true}
}

func (l *Loader) fill(ctx context.Context, n *Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := l.lister.List(ctx, n.Path)
	if err != nil {
		return fmt.Errorf("filetree: list %s: %w", n.Path, err)
	}
	children := make([]*Node, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir && !document.IsMarkdownFile(e.Name) {
			continue
		}
		children = append(children, &Node{Name: e.Name, Path: e.Path, IsDir: e.IsDir, Depth: n.Depth + 1})
	}
	Sort(children)
	if len(children) > l.maxEntries {
		children = children[:l.maxEntries]
		n.Truncated = true
	}
	n.Children = children
	n.Loaded = true
	return nil
}

// Sort orders directories before files, then by case-insensitive name.
func Sort(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.Name < b.Name
	})
}

// Files returns the slash-separated paths of every file under n relative to
// n, in tree order.
func Files(n *Node) []string {
	var out []string
	var visit func(*Node)
	visit = func(c *Node) {
		for _, child := range c.Children {
			if child.IsDir {
				visit(child)
				continue
			}
			rel, err := filepath.Rel(n.Path, child.Path)
			if err != nil {
				rel = child.Name
			}
			out = append(out, filepath.ToSlash(rel))
		}
	}
	visit(n)
	return out
}

// Match is one search result.
type Match struct {
	Path    string `json:"path"`
	Rel     string `json:"rel"`
	Score   int    `json:"score"`
	Indexes []int  `json:"indexes,omitempty"`
}

// Search fuzzy-matches query against the relative paths of files under root.
// An empty query returns files in tree order. limit <= 0 means no limit.
func (l *Loader) Search(ctx context.Context, root, query string, limit int) ([]Match, error) {
	tree, err := l.LoadAll(ctx, root)
	if err != nil {
		return nil, err
	}
	files := Files(tree)

	var out []Match
	if strings.TrimSpace(query) == "" {
		out = make([]Match, 0, len(files))
		for _, rel := range files {
			out = append(out, Match{Path: filepath.Join(root, filepath.FromSlash(rel)), Rel: rel})
		}
	} else {
		found := fuzzy.Find(query, files)
		out = make([]Match, 0, len(found))
		for _, m := range found {
			out = append(out, Match{
				Path:    filepath.Join(root, filepath.FromSlash(m.Str)),
				Rel:     m.Str,
				Score:   m.Score,
				Indexes: m.MatchedIndexes,
			})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
