package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/storage"
)

// RootFunc returns the folder assets are served from.
type RootFunc func(ctx context.Context) (string, error)

// AssetHandler serves files inside the open folder so the preview can load
// relative images.
type AssetHandler struct {
	root RootFunc
}

// NewAssetHandler creates a handler that resolves paths against root.
func NewAssetHandler(root RootFunc) *AssetHandler {
	return &AssetHandler{root: root}
}

// safeName cleans a slash-separated request path and rejects traversal and
// hidden entries.
func safeName(raw string) (string, error) {
	name, err := url.PathUnescape(strings.TrimPrefix(raw, "/"))
	if err != nil {
		return "", apperr.Invalid(apperr.ErrInvalid, "bad asset path")
	}
	if name == "" || strings.Contains(name, "\\") {
		return "", apperr.Invalid(apperr.ErrInvalid, "bad asset path")
	}
	cleaned := path.Clean(name)
	if !fs.ValidPath(cleaned) || cleaned == "." {
		return "", apperr.Invalid(apperr.ErrOutsideRoot, "%s", name)
	}
	for _, part := range strings.Split(cleaned, "/") {
		if storage.Skip(part) {
			return "", &apperr.StorageError{Op: "asset", Path: name, Err: apperr.ErrNotFound}
		}
	}
	return cleaned, nil
}

// ServeFile handles GET /assets/*. The folder is opened as an os.Root so
// symlinks cannot lead outside it.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name, err := safeName(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, "asset", err)
		return
	}
	dir, err := h.root(r.Context())
	if err != nil {
		writeError(w, "asset", err)
		return
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		writeError(w, "asset", &apperr.StorageError{Op: "open root", Path: dir, Err: mapFS(err)})
		return
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		writeError(w, "asset", &apperr.StorageError{Op: "open", Path: name, Err: mapFS(err)})
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, "asset", &apperr.StorageError{Op: "stat", Path: name, Err: apperr.ErrNotFound})
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func mapFS(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return apperr.ErrPermission
	default:
		// os.Root reports escapes as a generic path error.
		return apperr.ErrPermission
	}
}
