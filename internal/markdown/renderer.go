// Package markdown renders markdown source to HTML.
//
// Two engines implement Renderer: Builtin, a small line-classifier that needs
// nothing outside this package, and Goldmark, backed by github.com/yuin/goldmark.
// The engine is picked once at startup with New.
package markdown

import (
	"fmt"
	"strings"
)

// Engine names accepted by New.
const (
	EngineBuiltin  = "builtin"
	EngineGoldmark = "goldmark"
)

// Renderer converts markdown to an HTML fragment. Implementations are pure
// and safe for concurrent use.
type Renderer interface {
	Render(markdown string) string
}

// New returns the renderer for engine.
func New(engine string) (Renderer, error) {
	switch strings.ToLower(engine) {
	case EngineBuiltin:
		return Builtin{}, nil
	case "", EngineGoldmark:
		return NewGoldmark(), nil
	default:
		return nil, fmt.Errorf("markdown: unknown engine %q", engine)
	}
}

// Func adapts a plain function to Renderer.
type Func func(string) string

func (f Func) Render(markdown string) string { return f(markdown) }
