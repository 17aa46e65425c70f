package markdown

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	codeSpanRe = regexp.MustCompile("`([^`]+)`")
	imageRe    = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"([^"]+)")?\)`)
	linkRe     = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)(?:\s+"([^"]+)")?\)`)
	tokenRe    = regexp.MustCompile("\x00([0-9]+)\x00")

	// Applied in order, one left-to-right pass each.
	emphasisRules = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`\*\*(.+?)\*\*`), "<strong>${1}</strong>"},
		{regexp.MustCompile(`__(.+?)__`), "<strong>${1}</strong>"},
		{regexp.MustCompile(`~~(.+?)~~`), "<del>${1}</del>"},
		{regexp.MustCompile(`\*(.+?)\*`), "<em>${1}</em>"},
		{regexp.MustCompile(`_(.+?)_`), "<em>${1}</em>"},
	}

	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// tokens holds HTML fragments lifted out of the text while emphasis rules run.
// A token is its index wrapped in NUL bytes, which never occur in input.
type tokens []string

func (t *tokens) put(fragment string) string {
	*t = append(*t, fragment)
	return "\x00" + strconv.Itoa(len(*t)-1) + "\x00"
}

func (t tokens) restore(s string) string {
	if len(t) == 0 {
		return s
	}
	return tokenRe.ReplaceAllStringFunc(s, func(m string) string {
		i, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || i >= len(t) {
			return ""
		}
		return t.restore(t[i])
	})
}

// formatInline applies the inline rules to one block of text.
func formatInline(text string) string {
	var toks tokens
	s := escapeHTML(strings.ReplaceAll(text, "\x00", "\uFFFD"))

	s = codeSpanRe.ReplaceAllStringFunc(s, func(m string) string {
		return toks.put("<code>" + m[1:len(m)-1] + "</code>")
	})

	s = imageRe.ReplaceAllStringFunc(s, func(m string) string {
		g := imageRe.FindStringSubmatch(m)
		tag := `<img src="` + quoteAttr(safeURL(g[2], true)) + `" alt="` + quoteAttr(toks.restore(g[1])) + `"` + titleAttr(g[3]) + ` />`
		return toks.put(tag)
	})

	s = linkRe.ReplaceAllStringFunc(s, func(m string) string {
		g := linkRe.FindStringSubmatch(m)
		open := `<a href="` + quoteAttr(safeURL(g[2], false)) + `" target="_blank" rel="noopener noreferrer"` + titleAttr(g[3]) + `>`
		return toks.put(open) + g[1] + toks.put("</a>")
	})

	for _, r := range emphasisRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return toks.restore(s)
}

func titleAttr(title string) string {
	if title == "" {
		return ""
	}
	return ` title="` + quoteAttr(title) + `"`
}

// safeURL replaces script-capable URLs with "#". Images may use data:image/.
func safeURL(escaped string, image bool) string {
	u := strings.ToLower(strings.TrimSpace(html.UnescapeString(escaped)))
	switch {
	case strings.HasPrefix(u, "javascript:"), strings.HasPrefix(u, "vbscript:"):
		return "#"
	case strings.HasPrefix(u, "data:"):
		if image && strings.HasPrefix(u, "data:image/") {
			return escaped
		}
		return "#"
	}
	return escaped
}

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// escapeAttr escapes raw text for a double-quoted attribute.
func escapeAttr(s string) string {
	return quoteAttr(escapeHTML(s))
}

// quoteAttr finishes escaping text that is already HTML-escaped.
func quoteAttr(escaped string) string {
	return strings.ReplaceAll(escaped, `"`, "&quot;")
}
