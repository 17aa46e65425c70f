package markdown

import (
	"bytes"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Goldmark renders GitHub-flavoured markdown with goldmark. Raw HTML in the
// source is dropped. The engine is stateless, so one instance serves all
// callers.
type Goldmark struct {
	engine   goldmark.Markdown
	fallback Renderer
}

// NewGoldmark builds the goldmark renderer. Conversion errors fall back to
// the builtin engine.
func NewGoldmark() *Goldmark {
	return &Goldmark{
		engine: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithXHTML()),
		),
		fallback: Builtin{},
	}
}

// Render implements Renderer.
func (g *Goldmark) Render(markdown string) string {
	if markdown == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := g.engine.Convert([]byte(markdown), &buf); err != nil {
		slog.Warn("markdown: goldmark convert failed, using builtin", slog.String("error", err.Error()))
		return g.fallback.Render(markdown)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
