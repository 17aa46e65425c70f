package markdown

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/starford/prose/internal/document"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	mdLinkRe   = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	schemeRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
)

// References returns the local documents a markdown source links to, in
// order of first appearance and without duplicates. Inline links count when
// they are relative and point at a markdown-like file. Wikilinks count as
// "<target>.md" unless they already carry an extension; aliases
// ([[Target|Alias]]) are dropped.
func References(markdown string) []string {
	type hit struct {
		pos    int
		target string
	}
	var hits []hit

	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(markdown, -1) {
		if t, ok := localLink(markdown[m[2]:m[3]]); ok {
			hits = append(hits, hit{m[0], t})
		}
	}
	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(markdown, -1) {
		if t, ok := wikiTarget(markdown[m[2]:m[3]]); ok {
			hits = append(hits, hit{m[0], t})
		}
	}

	// Restore source order across both patterns.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, ok := seen[h.target]; ok {
			continue
		}
		seen[h.target] = struct{}{}
		out = append(out, h.target)
	}
	return out
}

func localLink(raw string) (string, bool) {
	if schemeRe.MatchString(raw) || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "//") {
		return "", false
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" || !document.IsMarkdownFile(path.Base(raw)) {
		return "", false
	}
	return path.Clean(raw), true
}

func wikiTarget(raw string) (string, bool) {
	target := raw
	if i := strings.Index(raw, "|"); i >= 0 {
		target = raw[:i]
	}
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	if path.Ext(target) == "" {
		target += ".md"
	}
	return target, true
}
