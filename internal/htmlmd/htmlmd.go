// Package htmlmd converts HTML from a rich-text editing surface back to
// markdown. It is an ordered table of pattern substitutions, not an HTML
// parser: each rule runs once over the whole fragment, so nested block
// structures come out flattened.
package htmlmd

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// rule is one substitution. Exactly one of repl and fn is set.
type rule struct {
	name string
	re   *regexp.Regexp
	repl string
	fn   func(c *converter, m []string) string
}

// Tag patterns use `<tag(?:\s[^>]*)?>` so a tag name never matches a longer
// one (b vs br and blockquote, p vs pre).
var rules = []rule{
	{name: "code-block", re: regexp.MustCompile(`(?is)<pre(?:\s[^>]*)?>\s*(<code(?:\s[^>]*)?>)(.*?)</code>\s*</pre>`), fn: codeBlock},
	{name: "pre", re: regexp.MustCompile(`(?is)(<pre(?:\s[^>]*)?>)(.*?)</pre>`), fn: codeBlock},
	{name: "code", re: regexp.MustCompile(`(?is)<code(?:\s[^>]*)?>(.*?)</code>`), fn: codeSpan},
	{name: "table", re: regexp.MustCompile(`(?is)<table(?:\s[^>]*)?>(.*?)</table>`), fn: table},
	{name: "block-gap", re: regexp.MustCompile(`>[ \t]*\n\s*<`), repl: "><"},
	{name: "h1", re: regexp.MustCompile(`(?is)<h1(?:\s[^>]*)?>(.*?)</h1>`), repl: "# ${1}\n\n"},
	{name: "h2", re: regexp.MustCompile(`(?is)<h2(?:\s[^>]*)?>(.*?)</h2>`), repl: "## ${1}\n\n"},
	{name: "h3", re: regexp.MustCompile(`(?is)<h3(?:\s[^>]*)?>(.*?)</h3>`), repl: "### ${1}\n\n"},
	{name: "h4", re: regexp.MustCompile(`(?is)<h4(?:\s[^>]*)?>(.*?)</h4>`), repl: "#### ${1}\n\n"},
	{name: "h5", re: regexp.MustCompile(`(?is)<h5(?:\s[^>]*)?>(.*?)</h5>`), repl: "##### ${1}\n\n"},
	{name: "h6", re: regexp.MustCompile(`(?is)<h6(?:\s[^>]*)?>(.*?)</h6>`), repl: "###### ${1}\n\n"},
	{name: "p", re: regexp.MustCompile(`(?is)<p(?:\s[^>]*)?>(.*?)</p>`), repl: "${1}\n\n"},
	{name: "br", re: regexp.MustCompile(`(?i)<br(?:\s[^>]*)?/?>`), repl: "\n"},
	{name: "strong", re: regexp.MustCompile(`(?is)<strong(?:\s[^>]*)?>(.*?)</strong>`), repl: "**${1}**"},
	{name: "b", re: regexp.MustCompile(`(?is)<b(?:\s[^>]*)?>(.*?)</b>`), repl: "**${1}**"},
	{name: "em", re: regexp.MustCompile(`(?is)<em(?:\s[^>]*)?>(.*?)</em>`), repl: "*${1}*"},
	{name: "i", re: regexp.MustCompile(`(?is)<i(?:\s[^>]*)?>(.*?)</i>`), repl: "*${1}*"},
	{name: "strike", re: regexp.MustCompile(`(?is)<(del|s|strike)(?:\s[^>]*)?>(.*?)</(?:del|s|strike)>`), repl: "~~${2}~~"},
	{name: "checkbox", re: regexp.MustCompile(`(?i)<input(?:\s[^>]*)?/?>`), fn: checkbox},
	{name: "img", re: regexp.MustCompile(`(?i)<img(?:\s[^>]*)?/?>`), fn: image},
	{name: "a", re: regexp.MustCompile(`(?is)<a(?:\s[^>]*)?>(.*?)</a>`), fn: link},
	{name: "ul", re: regexp.MustCompile(`(?is)<ul(?:\s[^>]*)?>(.*?)</ul>`), repl: "${1}\n"},
	{name: "ol", re: regexp.MustCompile(`(?is)<ol(?:\s[^>]*)?>(.*?)</ol>`), repl: "${1}\n"},
	{name: "li", re: regexp.MustCompile(`(?is)<li(?:\s[^>]*)?>(.*?)</li>`), repl: "- ${1}\n"},
	{name: "blockquote", re: regexp.MustCompile(`(?is)<blockquote(?:\s[^>]*)?>(.*?)</blockquote>`), repl: "> ${1}\n\n"},
	{name: "hr", re: regexp.MustCompile(`(?i)<hr(?:\s[^>]*)?/?>`), repl: "\n---\n\n"},
	{name: "div", re: regexp.MustCompile(`(?is)<div(?:\s[^>]*)?>(.*?)</div>`), repl: "${1}\n"},
	{name: "strip", re: regexp.MustCompile(`<[^>]*>`), repl: ""},
}

var (
	attrRe     = regexp.MustCompile(`(?i)\s([a-z-]+)\s*=\s*"([^"]*)"`)
	langRe     = regexp.MustCompile(`language-([A-Za-z0-9_+-]+)`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
	tokenRe    = regexp.MustCompile("\x00([0-9]+)\x00")
	rowRe      = regexp.MustCompile(`(?is)<tr(?:\s[^>]*)?>(.*?)</tr>`)
	cellRe     = regexp.MustCompile(`(?is)<t[hd](?:\s[^>]*)?>(.*?)</t[hd]>`)
)

// converter carries literal fragments protected from later rules.
type converter struct {
	literals []string
}

func (c *converter) protect(s string) string {
	c.literals = append(c.literals, s)
	return "\x00" + strconv.Itoa(len(c.literals)-1) + "\x00"
}

func (c *converter) restore(s string) string {
	return tokenRe.ReplaceAllStringFunc(s, func(m string) string {
		i, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || i >= len(c.literals) {
			return ""
		}
		return c.literals[i]
	})
}

// ToMarkdown converts an HTML fragment to markdown.
func ToMarkdown(fragment string) string {
	c := &converter{}
	s := strings.ReplaceAll(fragment, "\x00", "\uFFFD")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	for _, r := range rules {
		if r.fn != nil {
			s = r.re.ReplaceAllStringFunc(s, func(m string) string {
				return r.fn(c, r.re.FindStringSubmatch(m))
			})
			continue
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}

	s = decodeText(s)
	s = newlinesRe.ReplaceAllString(s, "\n\n")
	return c.restore(strings.TrimSpace(s))
}

// Rules returns the rule names in application order.
func Rules() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func decodeText(s string) string {
	return strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
}

func codeBlock(c *converter, m []string) string {
	lang := ""
	if l := langRe.FindStringSubmatch(m[1]); l != nil {
		lang = strings.ToLower(l[1])
	}
	body := html.UnescapeString(tagRe.ReplaceAllString(m[2], ""))
	body = strings.TrimSuffix(body, "\n")
	return "\n\n" + c.protect("```"+lang+"\n"+body+"\n```") + "\n\n"
}

func codeSpan(c *converter, m []string) string {
	body := html.UnescapeString(tagRe.ReplaceAllString(m[1], ""))
	if body == "" {
		return ""
	}
	return c.protect("`" + body + "`")
}

func attrs(tag string) map[string]string {
	out := make(map[string]string)
	for _, a := range attrRe.FindAllStringSubmatch(tag, -1) {
		out[strings.ToLower(a[1])] = a[2]
	}
	return out
}

// table emits a pipe table. The first row becomes the header; alignment is
// not kept.
func table(_ *converter, m []string) string {
	var lines []string
	for _, row := range rowRe.FindAllStringSubmatch(m[1], -1) {
		cells := cellRe.FindAllStringSubmatch(row[1], -1)
		if len(cells) == 0 {
			continue
		}
		texts := make([]string, len(cells))
		for i, c := range cells {
			texts[i] = strings.TrimSpace(strings.ReplaceAll(c[1], "\n", " "))
		}
		lines = append(lines, "| "+strings.Join(texts, " | ")+" |")
		if len(lines) == 1 {
			lines = append(lines, "|"+strings.Repeat("---|", len(cells)))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n" + strings.Join(lines, "\n") + "\n\n"
}

// checkbox keeps task-list markers; other inputs are dropped.
func checkbox(_ *converter, m []string) string {
	a := attrs(m[0])
	if !strings.EqualFold(a["type"], "checkbox") {
		return ""
	}
	if _, ok := a["checked"]; ok {
		return "[x]"
	}
	return "[ ]"
}

func image(_ *converter, m []string) string {
	a := attrs(m[0])
	if a["src"] == "" {
		return ""
	}
	return "![" + a["alt"] + "](" + a["src"] + titleSuffix(a["title"]) + ")"
}

func link(_ *converter, m []string) string {
	open := m[0][:strings.Index(m[0], ">")+1]
	a := attrs(open)
	label := m[1]
	if a["href"] == "" {
		return label
	}
	return "[" + label + "](" + a["href"] + titleSuffix(a["title"]) + ")"
}

func titleSuffix(title string) string {
	if title == "" {
		return ""
	}
	return ` "` + title + `"`
}
