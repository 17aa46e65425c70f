// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the markdown tools and the session over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/filetree"
	"github.com/starford/prose/internal/htmlmd"
	"github.com/starford/prose/internal/markdown"
	"github.com/starford/prose/internal/session"
)

const syntaxURI = "prose://syntax"

// Server wraps the MCP server with Prose tools.
type Server struct {
	mcp    *server.MCPServer
	ctrl   *session.Controller
	render markdown.Renderer
	tree   *filetree.Loader
}

// New creates a new MCP server with all tools registered.
func New(ctrl *session.Controller, render markdown.Renderer, tree *filetree.Loader, version string) *Server {
	if render == nil {
		render = markdown.Builtin{}
	}
	s := &Server{ctrl: ctrl, render: render, tree: tree}

	s.mcp = server.NewMCPServer(
		"Prose",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("render_markdown",
		mcp.WithDescription("Render markdown to an HTML fragment the way the preview does."),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("Markdown source")),
	), s.renderMarkdown)

	s.mcp.AddTool(mcp.NewTool("html_to_markdown",
		mcp.WithDescription("Convert an HTML fragment from the editor back to markdown."),
		mcp.WithString("html", mcp.Required(), mcp.Description("HTML fragment")),
	), s.htmlToMarkdown)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the open documents with their dirty state and which one is active."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a markdown file by path and make it active."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path, or a path relative to the open folder")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the markdown of an open document."),
		mcp.WithString("id", mcp.Description("Document id (defaults to the active document)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List markdown files and folders, directories first."),
		mcp.WithString("path", mcp.Description("Directory to list (defaults to the open folder)")),
	), s.listDirectory)

	s.mcp.AddTool(mcp.NewTool("search_files",
		mcp.WithDescription("Fuzzy-search file paths under the open folder."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Characters to match in order")),
	), s.searchFiles)

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Markdown Syntax",
			mcp.WithResourceDescription("Markdown constructs supported by the preview."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(apperr.Message(err))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) renderMarkdown(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.render.Render(src)), nil
}

func (s *Server) htmlToMarkdown(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(htmlmd.ToMarkdown(html)), nil
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.ctrl.Snapshot(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(snap.Documents), nil
}

func (s *Server) openDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opened := make(chan string, 1)
	err = s.ctrl.Do(ctx, func(sess *session.Session) error {
		var openErr error
		if sess.Root() != "" && !filepath.IsAbs(path) {
			openErr = sess.OpenReference(ctx, path)
		} else {
			openErr = sess.Open(ctx, path)
		}
		if openErr != nil {
			return openErr
		}
		opened <- sess.Active().ID
		return nil
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("opened: " + <-opened), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	content := make(chan string, 1)
	err := s.ctrl.Do(ctx, func(sess *session.Session) error {
		if id == "" {
			content <- sess.Active().Content
			return nil
		}
		doc, ok := sess.Document(id)
		if !ok {
			return &apperr.StorageError{Op: "read", Path: id, Err: apperr.ErrNotFound}
		}
		content <- doc.Content
		return nil
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(<-content), nil
}

func (s *Server) root(ctx context.Context) (string, error) {
	snap, err := s.ctrl.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if snap.Root == "" {
		return "", apperr.Invalid(apperr.ErrNoFolder, "open a folder first")
	}
	return snap.Root, nil
}

func (s *Server) listDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := req.GetString("path", "")
	if dir == "" {
		root, err := s.root(ctx)
		if err != nil {
			return toolError(err), nil
		}
		dir = root
	}
	node, err := s.tree.Load(ctx, dir)
	if err != nil {
		return toolError(err), nil
	}
	lines := make([]string, 0, len(node.Children))
	for _, c := range node.Children {
		if c.IsDir {
			lines = append(lines, c.Name+"/")
		} else {
			lines = append(lines, c.Name)
		}
	}
	if node.Truncated {
		lines = append(lines, "...")
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := s.root(ctx)
	if err != nil {
		return toolError(err), nil
	}
	matches, err := s.tree.Search(ctx, root, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.Rel
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readSyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     SyntaxGuide,
		},
	}, nil
}
