package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Deps are the collaborators mounted by NewRouter.
type Deps struct {
	Handler *Handler
	Assets  *AssetHandler
	// Events, if non-nil, is mounted at GET /events.
	Events      http.Handler
	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := d.Handler

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	// Stateless conversion.
	r.Post("/render", h.Render)
	r.Post("/convert", h.Convert)

	// Session commands.
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.Session)
		r.Get("/references", h.References)
		r.Post("/new", h.New)
		r.Post("/open", h.Open)
		r.Post("/reference", h.Reference)
		r.Post("/folder", h.Folder)
		r.Post("/switch", h.Switch)
		r.Post("/toggle", h.Toggle)
		r.Post("/edit", h.Edit)
		r.Post("/save", h.Save)
		r.Post("/save-as", h.SaveAs)
		r.Post("/close", h.Close)
	})

	// File tree.
	r.Get("/tree", h.Tree)
	r.Get("/tree/search", h.TreeSearch)

	// Preferences.
	r.Get("/prefs", h.Prefs)
	r.Put("/prefs/{key}", h.SetPref)

	if d.Assets != nil {
		r.Get("/assets/*", d.Assets.ServeFile)
	}
	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
