package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/dialog"
	"github.com/starford/prose/internal/filetree"
	"github.com/starford/prose/internal/htmlmd"
	"github.com/starford/prose/internal/markdown"
	"github.com/starford/prose/internal/prefs"
	"github.com/starford/prose/internal/session"
	"github.com/starford/prose/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	ctrl   *session.Controller
	render markdown.Renderer
	tree   *filetree.Loader
	prefs  prefs.Store
}

// NewHandler creates a new Handler.
func NewHandler(ctrl *session.Controller, render markdown.Renderer, tree *filetree.Loader, store prefs.Store) *Handler {
	if render == nil {
		render = markdown.Builtin{}
	}
	return &Handler{ctrl: ctrl, render: render, tree: tree, prefs: store}
}

// command runs fn on the session with answers attached and replies with the
// resulting snapshot.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, op string, answers dialog.Answers, fn func(ctx context.Context, s *session.Session) error) {
	ctx := dialog.WithAnswers(r.Context(), answers)
	snap := make(chan session.Snapshot, 1)
	err := h.ctrl.Do(ctx, func(s *session.Session) error {
		if err := fn(ctx, s); err != nil {
			return err
		}
		snap <- s.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, <-snap)
}

// Render handles POST /render.
//
//	@Summary	Render markdown to HTML
//	@Tags		preview
//	@Accept		json
//	@Produce	json
//	@Param		body	body		RenderRequest	true	"Markdown source"
//	@Success	200		{object}	RenderResponse
//	@Router		/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "render", err)
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{HTML: h.render.Render(req.Markdown)})
}

// Convert handles POST /convert.
//
//	@Summary	Convert editor HTML to markdown
//	@Tags		preview
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ConvertRequest	true	"HTML fragment"
//	@Success	200		{object}	ConvertResponse
//	@Router		/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "convert", err)
		return
	}
	writeJSON(w, http.StatusOK, ConvertResponse{Markdown: htmlmd.ToMarkdown(req.HTML)})
}

// Session handles GET /session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.Snapshot(r.Context())
	if err != nil {
		writeError(w, "session", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// New handles POST /session/new.
func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "new", dialog.Answers{}, func(_ context.Context, s *session.Session) error {
		s.NewDocument()
		return nil
	})
}

// Open handles POST /session/open.
//
//	@Summary	Open a file by path
//	@Tags		session
//	@Accept		json
//	@Produce	json
//	@Param		body	body		OpenRequest	true	"File to open"
//	@Success	200		{object}	SessionResponse
//	@Failure	404		{object}	errResponse
//	@Failure	422		{object}	errResponse
//	@Router		/session/open [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "open", err)
		return
	}
	h.command(w, r, "open", dialog.Answers{}, func(ctx context.Context, s *session.Session) error {
		return s.Open(ctx, req.Path)
	})
}

// Reference handles POST /session/reference.
func (h *Handler) Reference(w http.ResponseWriter, r *http.Request) {
	var req ReferenceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "reference", err)
		return
	}
	h.command(w, r, "reference", dialog.Answers{}, func(ctx context.Context, s *session.Session) error {
		return s.OpenReference(ctx, req.Ref)
	})
}

// Folder handles POST /session/folder.
func (h *Handler) Folder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "folder", err)
		return
	}
	h.command(w, r, "folder", dialog.Answers{Directory: req.Path}, func(ctx context.Context, s *session.Session) error {
		_, err := s.OpenFolder(ctx)
		return err
	})
}

// Switch handles POST /session/switch.
func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "switch", err)
		return
	}
	h.command(w, r, "switch", dialog.Answers{}, func(_ context.Context, s *session.Session) error {
		return s.Switch(req.ID)
	})
}

// Toggle handles POST /session/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "toggle", dialog.Answers{}, func(_ context.Context, s *session.Session) error {
		s.ToggleEdit()
		return nil
	})
}

// Edit handles POST /session/edit.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "edit", err)
		return
	}
	h.command(w, r, "edit", dialog.Answers{}, func(_ context.Context, s *session.Session) error {
		return s.Edit(req.HTML)
	})
}

// Save handles POST /session/save. An untargeted document needs a path
// exactly like save-as.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveAsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "save", err)
		return
	}
	h.command(w, r, "save", dialog.Answers{SaveTarget: req.Path}, func(ctx context.Context, s *session.Session) error {
		return s.Save(ctx)
	})
}

// SaveAs handles POST /session/save-as.
func (h *Handler) SaveAs(w http.ResponseWriter, r *http.Request) {
	var req SaveAsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "save as", err)
		return
	}
	h.command(w, r, "save as", dialog.Answers{SaveTarget: req.Path}, func(ctx context.Context, s *session.Session) error {
		return s.SaveAs(ctx)
	})
}

// Close handles POST /session/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "close", err)
		return
	}
	h.command(w, r, "close", dialog.Answers{Confirmed: req.Confirm}, func(ctx context.Context, s *session.Session) error {
		id := req.ID
		if id == "" {
			id = s.Active().ID
		}
		return s.Close(ctx, id)
	})
}

// References handles GET /session/references.
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	refs := make(chan []string, 1)
	if err := h.ctrl.Do(r.Context(), func(s *session.Session) error {
		refs <- s.References()
		return nil
	}); err != nil {
		writeError(w, "references", err)
		return
	}
	list := <-refs
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: list})
}

// Root returns the open folder or a validation error when none is open.
func (h *Handler) Root(ctx context.Context) (string, error) {
	snap, err := h.ctrl.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if snap.Root == "" {
		return "", apperr.Invalid(apperr.ErrNoFolder, "open a folder first")
	}
	return snap.Root, nil
}

// Tree handles GET /tree?path=.
//
//	@Summary	List one level of the open folder
//	@Tags		tree
//	@Produce	json
//	@Param		path	query		string	false	"Directory inside the open folder"
//	@Success	200		{object}	TreeResponse
//	@Failure	422		{object}	errResponse
//	@Router		/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	root, err := h.Root(r.Context())
	if err != nil {
		writeError(w, "tree", err)
		return
	}
	dir := r.URL.Query().Get("path")
	if dir == "" {
		dir = root
	}
	if !storage.Contains(root, dir) {
		writeError(w, "tree", apperr.Invalid(apperr.ErrOutsideRoot, "%s", dir))
		return
	}
	node, err := h.tree.Load(r.Context(), dir)
	if err != nil {
		writeError(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Tree: node})
}

// TreeSearch handles GET /tree/search?q=&limit=.
func (h *Handler) TreeSearch(w http.ResponseWriter, r *http.Request) {
	root, err := h.Root(r.Context())
	if err != nil {
		writeError(w, "tree search", err)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	results, err := h.tree.Search(r.Context(), root, q.Get("q"), limit)
	if err != nil {
		writeError(w, "tree search", err)
		return
	}
	if results == nil {
		results = []filetree.Match{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Prefs handles GET /prefs.
func (h *Handler) Prefs(w http.ResponseWriter, r *http.Request) {
	all, err := h.prefs.All(r.Context())
	if err != nil {
		writeError(w, "prefs", err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// SetPref handles PUT /prefs/{key}.
func (h *Handler) SetPref(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req PrefRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, "set pref", err)
		return
	}
	if err := h.prefs.Set(r.Context(), key, req.Value); err != nil {
		writeError(w, "set pref", err)
		return
	}
	slog.Debug("api: preference saved", slog.String("key", key), slog.String("value", req.Value))
	writeJSON(w, http.StatusOK, map[string]string{key: req.Value})
}
