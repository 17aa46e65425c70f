package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

// Builtin is the self-contained fallback renderer. It covers headings,
// paragraphs, fenced code, block quotes, flat lists, rules and the common
// inline marks. It does not aim for CommonMark compliance.
type Builtin struct{}

type lineKind int

const (
	lineBlank lineKind = iota
	lineFence
	lineHeading
	lineRule
	lineQuote
	lineBullet
	lineOrdered
	lineText
)

type listKind int

const (
	listNone listKind = iota
	listUnordered
	listOrdered
)

var (
	fenceRe   = regexp.MustCompile("^```(.*)$")
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	ruleRe    = regexp.MustCompile(`^(?:-{3,}|_{3,}|\*{3,})$`)
	quoteRe   = regexp.MustCompile(`^>\s?(.*)$`)
	bulletRe  = regexp.MustCompile(`^[-*+]\s+(.*)$`)
	orderedRe = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
)

// line is one classified input line. text holds the payload after the
// block marker; level is the heading depth.
type line struct {
	kind  lineKind
	raw   string
	text  string
	level int
}

func classify(raw string) line {
	trimmed := strings.TrimSpace(raw)
	l := line{kind: lineText, raw: raw, text: trimmed}
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		l.kind, l.text = lineFence, strings.TrimSpace(m[1])
		return l
	}
	if trimmed == "" {
		l.kind = lineBlank
		return l
	}
	if m := headingRe.FindStringSubmatch(trimmed); m != nil {
		l.kind, l.level, l.text = lineHeading, len(m[1]), m[2]
		return l
	}
	if ruleRe.MatchString(trimmed) {
		l.kind = lineRule
		return l
	}
	if m := quoteRe.FindStringSubmatch(trimmed); m != nil {
		l.kind, l.text = lineQuote, m[1]
		return l
	}
	if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
		l.kind, l.text = lineBullet, m[1]
		return l
	}
	if m := orderedRe.FindStringSubmatch(trimmed); m != nil {
		l.kind, l.text = lineOrdered, m[1]
		return l
	}
	return l
}

// renderState is the per-call block state. Nothing outlives a Render call.
type renderState struct {
	out []string

	list listKind

	inQuote bool
	quote   []string

	inFence bool
	lang    string
	code    []string

	para []string
}

// Render implements Renderer.
func (Builtin) Render(markdown string) string {
	if markdown == "" {
		return ""
	}
	s := &renderState{}
	for _, raw := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		s.feed(raw)
	}
	s.flushParagraph()
	s.flushQuote()
	s.closeList()
	s.flushCode()
	return strings.Join(s.out, "\n")
}

func (s *renderState) feed(raw string) {
	l := classify(raw)

	if l.kind == lineFence {
		if s.inFence {
			s.flushCode()
			return
		}
		s.flushParagraph()
		s.flushQuote()
		s.closeList()
		s.inFence = true
		if fields := strings.Fields(l.text); len(fields) > 0 {
			s.lang = strings.ToLower(fields[0])
		}
		return
	}
	if s.inFence {
		s.code = append(s.code, raw)
		return
	}

	// Any non-quote line ends an open quote.
	if l.kind != lineQuote {
		s.flushQuote()
	}

	switch l.kind {
	case lineBlank:
		s.flushParagraph()
		s.closeList()

	case lineHeading:
		s.flushParagraph()
		s.closeList()
		s.out = append(s.out, fmt.Sprintf("<h%d>%s</h%d>", l.level, formatInline(l.text), l.level))

	case lineRule:
		s.flushParagraph()
		s.closeList()
		s.out = append(s.out, "<hr />")

	case lineQuote:
		s.flushParagraph()
		s.closeList()
		s.inQuote = true
		s.quote = append(s.quote, l.text)

	case lineBullet, lineOrdered:
		s.flushParagraph()
		s.openList(l.kind)
		s.out = append(s.out, "<li>"+formatInline(l.text)+"</li>")

	default:
		s.para = append(s.para, strings.TrimRight(l.raw, " \t"))
	}
}

func (s *renderState) openList(kind lineKind) {
	want := listUnordered
	if kind == lineOrdered {
		want = listOrdered
	}
	if s.list == want {
		return
	}
	s.closeList()
	s.list = want
	if want == listOrdered {
		s.out = append(s.out, "<ol>")
	} else {
		s.out = append(s.out, "<ul>")
	}
}

func (s *renderState) closeList() {
	switch s.list {
	case listUnordered:
		s.out = append(s.out, "</ul>")
	case listOrdered:
		s.out = append(s.out, "</ol>")
	}
	s.list = listNone
}

func (s *renderState) flushParagraph() {
	if len(s.para) == 0 {
		return
	}
	if joined := strings.TrimSpace(strings.Join(s.para, "\n")); joined != "" {
		s.out = append(s.out, "<p>"+breakLines(formatInline(joined))+"</p>")
	}
	s.para = s.para[:0]
}

func (s *renderState) flushQuote() {
	if !s.inQuote {
		return
	}
	if text := strings.TrimSpace(strings.Join(s.quote, "\n")); text != "" {
		s.out = append(s.out, "<blockquote>"+breakLines(formatInline(text))+"</blockquote>")
	}
	s.inQuote = false
	s.quote = s.quote[:0]
}

func (s *renderState) flushCode() {
	if !s.inFence {
		return
	}
	class := ""
	if s.lang != "" {
		class = ` class="language-` + escapeAttr(s.lang) + `"`
	}
	s.out = append(s.out, "<pre><code"+class+">"+escapeHTML(strings.Join(s.code, "\n"))+"</code></pre>")
	s.inFence = false
	s.lang = ""
	s.code = s.code[:0]
}

func breakLines(s string) string {
	return strings.ReplaceAll(s, "\n", "<br />")
}
