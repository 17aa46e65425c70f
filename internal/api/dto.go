package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/prose/internal/filetree"
	"github.com/starford/prose/internal/session"
)

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	Markdown string `json:"markdown" example:"# Hello"`
}

// RenderResponse is returned by POST /render.
type RenderResponse struct {
	HTML string `json:"html" example:"<h1>Hello</h1>"`
}

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	HTML string `json:"html" example:"<h1>Hello</h1>"`
}

// ConvertResponse is returned by POST /convert.
type ConvertResponse struct {
	Markdown string `json:"markdown" example:"# Hello"`
}

// OpenRequest is the body of POST /session/open.
type OpenRequest struct {
	Path string `json:"path" example:"/home/me/notes/todo.md" validate:"required"`
}

func (r OpenRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Path, validation.Required))
}

// ReferenceRequest is the body of POST /session/reference.
type ReferenceRequest struct {
	Ref string `json:"ref" example:"docs/setup.md" validate:"required"`
}

func (r ReferenceRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Ref, validation.Required))
}

// FolderRequest is the body of POST /session/folder. An empty path means the
// dialog was dismissed.
type FolderRequest struct {
	Path string `json:"path"`
}

// SwitchRequest is the body of POST /session/switch.
type SwitchRequest struct {
	ID string `json:"id" validate:"required"`
}

func (r SwitchRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.ID, validation.Required))
}

// EditRequest is the body of POST /session/edit.
type EditRequest struct {
	HTML string `json:"html"`
}

// SaveAsRequest is the body of POST /session/save-as. An empty path means the
// dialog was dismissed.
type SaveAsRequest struct {
	Path string `json:"path"`
}

// CloseRequest is the body of POST /session/close. ID defaults to the active
// document.
type CloseRequest struct {
	ID      string `json:"id"`
	Confirm bool   `json:"confirm"`
}

// PrefRequest is the body of PUT /prefs/{key}.
type PrefRequest struct {
	Value string `json:"value" validate:"required"`
}

func (r PrefRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Value, validation.Required))
}

// SessionResponse is returned by every session command.
type SessionResponse = session.Snapshot

// CancelledResponse is returned when the user dismissed a dialog.
type CancelledResponse struct {
	Cancelled bool `json:"cancelled" example:"true"`
}

// ReferencesResponse lists local links in the active document.
type ReferencesResponse struct {
	References []string `json:"references"`
}

// TreeResponse wraps one directory listing.
type TreeResponse struct {
	Tree *filetree.Node `json:"tree"`
}

// SearchResponse wraps quick-open matches.
type SearchResponse struct {
	Results []filetree.Match `json:"results"`
}
