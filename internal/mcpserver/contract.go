package mcpserver

// SyntaxGuide lists the markdown the preview renders. It is served as the
// prose://syntax resource.
const SyntaxGuide = `# Prose Markdown Syntax

## Blocks

- ` + "`# Heading`" + ` through ` + "`###### Heading`" + `
- Paragraphs separated by a blank line; single newlines join the paragraph
- ` + "`> quote`" + ` lines form one blockquote
- ` + "`- item`" + `, ` + "`* item`" + ` or ` + "`+ item`" + ` for bullet lists, ` + "`1. item`" + ` for ordered lists
- Fenced code blocks with an optional language: ` + "```go" + `
- ` + "`---`" + `, ` + "`***`" + ` or ` + "`___`" + ` for a horizontal rule

## Inline

- ` + "`**bold**`" + ` or ` + "`__bold__`" + `, ` + "`*italic*`" + ` or ` + "`_italic_`" + `
- ` + "`~~strike~~`" + `
- ` + "`` `code` ``" + `
- ` + "`[label](url \"title\")`" + ` and ` + "`![alt](src \"title\")`" + `

## Links between documents

Relative links to markdown files and ` + "`[[wikilinks]]`" + ` are resolved against
the open folder. ` + "`javascript:`" + `, ` + "`vbscript:`" + ` and ` + "`data:`" + ` URLs are
neutralised (images may use ` + "`data:image/`" + `).
`
