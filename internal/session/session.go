// Package session owns the open documents of one window: which one is
// active, whether the user is reading or editing, the editable surface HTML
// and the auto-save debounce. A Session is not safe for concurrent use; run
// it through a Controller.
package session

import (
	"fmt"
	"log/slog"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/prose/internal/dialog"
	"github.com/starford/prose/internal/document"
	"github.com/starford/prose/internal/htmlmd"
	"github.com/starford/prose/internal/markdown"
	"github.com/starford/prose/internal/storage"
)

// Mode is the view mode of the active document.
type Mode int

const (
	ModeReading Mode = iota
	ModeEditing
)

func (m Mode) String() string {
	switch m {
	case ModeReading:
		return "reading"
	case ModeEditing:
		return "editing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

const (
	WelcomeID   = "untitled.md"
	WelcomeName = "Welcome"
	// UntitledName is the display name of new buffers.
	UntitledName = "Untitled"
	// Template is the content of new buffers.
	Template = "# Document Title\n\nStart writing your content here..."
)

const welcomeContent = "# Prose\n\n*A clean markdown reader and editor*\n\n" +
	"Welcome to **Prose**, a focused space for writing and reading without clutter.\n\n" +
	"## Quick Start\n\n" +
	"1. **Open Folder** to browse your markdown library\n" +
	"2. Toggle **Edit** when you want to write\n" +
	"3. Save, or let auto-save keep every thought safe\n\n" +
	"## Highlights\n\n" +
	"- Tabs for juggling multiple drafts\n" +
	"- File-tree navigation for entire folders\n" +
	"- Offline-friendly markdown rendering\n\n" +
	"Happy writing!\n"

// Config holds session tunables.
type Config struct {
	AutoSaveDelay time.Duration
	MaxFileSize   int64
}

// DefaultConfig returns a 2s auto-save delay and a 10 MiB open limit.
func DefaultConfig() Config {
	return Config{
		AutoSaveDelay: 2 * time.Second,
		MaxFileSize:   10 << 20,
	}
}

// Deps are the collaborators of a Session. Store is required.
type Deps struct {
	Store    storage.Backend
	Dialogs  dialog.Dialogs
	Renderer markdown.Renderer
	// Surface renders content into the editable surface. It defaults to
	// markdown.Builtin, whose output the converter inverts.
	Surface  markdown.Renderer
	// Convert turns surface HTML into markdown.
	Convert  func(string) string
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Session is the state of one window.
type Session struct {
	cfg     Config
	store   storage.Backend
	dialogs dialog.Dialogs
	render  markdown.Renderer
	editor  markdown.Renderer
	convert func(string) string
	notify  Notifier
	logger  *slog.Logger
	now     func() time.Time
	// post queues fn onto the goroutine that owns the session.
	post func(fn func())

	docs     *orderedmap.OrderedMap[string, *document.Document]
	activeID string
	mode     Mode
	surface  string
	rendered string
	root     string

	timer        *time.Timer
	timerGen     uint64
	saving       bool
	lastUntitled int64
}

// New creates a session holding the welcome document. post must run its
// argument on the goroutine that owns the session.
func New(deps Deps, cfg Config, post func(func())) *Session {
	def := DefaultConfig()
	if cfg.AutoSaveDelay <= 0 {
		cfg.AutoSaveDelay = def.AutoSaveDelay
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	s := &Session{
		cfg:     cfg,
		store:   deps.Store,
		dialogs: deps.Dialogs,
		render:  deps.Renderer,
		editor:  deps.Surface,
		convert: deps.Convert,
		notify:  deps.Notifier,
		logger:  deps.Logger,
		now:     deps.Now,
		post:    post,
		docs:    orderedmap.New[string, *document.Document](),
	}
	if s.dialogs == nil {
		s.dialogs = dialog.Contextual{}
	}
	if s.render == nil {
		s.render = markdown.Builtin{}
	}
	if s.editor == nil {
		s.editor = markdown.Builtin{}
	}
	if s.convert == nil {
		s.convert = htmlmd.ToMarkdown
	}
	if s.notify == nil {
		s.notify = nopNotifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	welcome := document.New(WelcomeID, WelcomeName, welcomeContent, nil)
	s.docs.Set(welcome.ID, welcome)
	s.activeID = welcome.ID
	return s
}

// Active returns the active document.
func (s *Session) Active() *document.Document {
	doc, _ := s.docs.Get(s.activeID)
	return doc
}

// Document returns a copy of the document with id.
func (s *Session) Document(id string) (document.Document, bool) {
	doc, ok := s.docs.Get(id)
	if !ok {
		return document.Document{}, false
	}
	return *doc, true
}

// Len returns the number of open documents.
func (s *Session) Len() int { return s.docs.Len() }

// Mode returns the current view mode.
func (s *Session) Mode() Mode { return s.mode }

// Root returns the open folder, or "" when none is open.
func (s *Session) Root() string { return s.root }

// SetRoot records dir as the open folder without consulting dialogs.
func (s *Session) SetRoot(dir string) {
	s.root = dir
	s.notify.Notify(EventFolder, map[string]string{"path": dir})
}

// References lists the local documents the active document links to.
func (s *Session) References() []string {
	return markdown.References(s.Active().Content)
}

// DocumentInfo is the snapshot view of one document.
type DocumentInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Title  string `json:"title"`
	Dirty  bool   `json:"dirty"`
	Saved  bool   `json:"saved"`
	Active bool   `json:"active"`
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Documents []DocumentInfo `json:"documents"`
	ActiveID  string         `json:"activeId"`
	Mode      string         `json:"mode"`
	Root      string         `json:"root"`
	Markdown  string         `json:"markdown"`
	HTML      string         `json:"html"`
	Saving    bool           `json:"saving"`
}

// Snapshot describes the session. HTML is the surface while editing and the
// rendered preview while reading.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Documents: make([]DocumentInfo, 0, s.docs.Len()),
		ActiveID:  s.activeID,
		Mode:      s.mode.String(),
		Root:      s.root,
		Saving:    s.saving,
	}
	for pair := s.docs.Oldest(); pair != nil; pair = pair.Next() {
		d := pair.Value
		snap.Documents = append(snap.Documents, DocumentInfo{
			ID:     d.ID,
			Name:   d.DisplayName,
			Title:  d.Title(),
			Dirty:  d.Dirty,
			Saved:  d.Saved(),
			Active: d.ID == s.activeID,
		})
	}
	active := s.Active()
	snap.Markdown = active.Content
	if s.mode == ModeEditing {
		snap.HTML = s.surface
	} else {
		snap.HTML = s.render.Render(active.Content)
	}
	return snap
}

func (s *Session) docEvent(d *document.Document) DocEvent {
	return DocEvent{ID: d.ID, Title: d.Title()}
}

// shutdown stops the pending auto-save timer.
func (s *Session) shutdown() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}
