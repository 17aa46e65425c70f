package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
	"github.com/starford/prose/internal/storage"
)

// fail logs err, publishes its user-visible message and returns it wrapped
// with op. Cancellations pass through silently.
func (s *Session) fail(op string, err error) error {
	if apperr.IsCancelled(err) {
		return err
	}
	if apperr.IsValidation(err) {
		s.logger.Warn("session: "+op+" rejected", slog.String("error", err.Error()))
	} else {
		s.logger.Error("session: "+op+" failed", slog.String("error", err.Error()))
	}
	s.notify.Notify(EventStatus, Status{Message: apperr.Message(err), Error: true})
	return fmt.Errorf("session: %s: %w", op, err)
}

// untitledID returns a fresh untitled-<millis>.md id, strictly increasing
// within the session.
func (s *Session) untitledID() string {
	ms := s.now().UnixMilli()
	if ms <= s.lastUntitled {
		ms = s.lastUntitled + 1
	}
	for {
		id := fmt.Sprintf("untitled-%d.md", ms)
		if _, taken := s.docs.Get(id); !taken {
			s.lastUntitled = ms
			return id
		}
		ms++
	}
}

// NewDocument opens an untitled buffer and makes it active.
func (s *Session) NewDocument() string {
	doc := document.New(s.untitledID(), UntitledName, Template, nil)
	s.docs.Set(doc.ID, doc)
	s.notify.Notify(EventOpened, s.docEvent(doc))
	s.switchTo(doc.ID)
	return doc.ID
}

// Open reads path through storage and opens it.
func (s *Session) Open(ctx context.Context, path string) error {
	file, err := s.store.Read(ctx, path)
	if err != nil {
		return s.fail("open", err)
	}
	return s.OpenFile(file)
}

// OpenFile opens an already-read file. Files over the size limit are
// rejected without touching the document set. A file that is already open
// is activated as is, keeping any unsaved edits.
func (s *Session) OpenFile(file storage.File) error {
	if file.Size > s.cfg.MaxFileSize {
		return s.fail("open", apperr.Invalid(apperr.ErrTooLarge, "%s is %d bytes", file.Name, file.Size))
	}
	id := file.Path
	if file.Target != nil {
		id = file.Target.Key()
	}
	if id == "" {
		return s.fail("open", apperr.Invalid(apperr.ErrInvalid, "file has no identity"))
	}
	if _, ok := s.docs.Get(id); !ok {
		doc := document.New(id, document.DisplayName(file.Name), file.Content, file.Target)
		s.docs.Set(id, doc)
		s.notify.Notify(EventOpened, s.docEvent(doc))
	}
	s.switchTo(id)
	return nil
}

// OpenReference opens ref relative to the open folder.
func (s *Session) OpenReference(ctx context.Context, ref string) error {
	if s.root == "" {
		return s.fail("open reference", apperr.Invalid(apperr.ErrNoFolder, "open a folder first"))
	}
	file, err := s.store.ResolveReference(ctx, s.root, ref)
	if err != nil {
		return s.fail("open reference", err)
	}
	return s.OpenFile(file)
}

// OpenFolder asks for a directory, mounts it and records it as the root.
func (s *Session) OpenFolder(ctx context.Context) (string, error) {
	dir, err := s.dialogs.SelectDirectory(ctx)
	if err != nil {
		return "", s.fail("open folder", err)
	}
	if !s.store.CheckAccess(ctx, dir) {
		return "", s.fail("open folder", &apperr.StorageError{Op: "access", Path: dir, Err: apperr.ErrPermission})
	}
	if err := s.store.Mount(ctx, dir); err != nil {
		return "", s.fail("open folder", err)
	}
	s.SetRoot(dir)
	s.logger.Info("session: folder opened", slog.String("path", dir))
	return dir, nil
}

// Switch makes id the active document, auto-saving the one being left.
func (s *Session) Switch(id string) error {
	if _, ok := s.docs.Get(id); !ok {
		return fmt.Errorf("session: switch %s: %w", id, apperr.ErrNotFound)
	}
	s.switchTo(id)
	return nil
}

func (s *Session) switchTo(id string) {
	if id == s.activeID {
		return
	}
	if leaving := s.Active(); leaving != nil {
		s.autoSave(leaving)
	}
	s.activate(id)
}

// activate points the session at id and refreshes the surface.
func (s *Session) activate(id string) {
	s.activeID = id
	if s.mode == ModeEditing {
		s.syncSurface()
	}
	s.notify.Notify(EventActive, s.docEvent(s.Active()))
}

// syncSurface renders the active document into the editable surface. It
// uses the surface renderer, not the reading engine, so constructs the
// converter has no rule for (tables, task lists, raw HTML) survive as text.
func (s *Session) syncSurface() {
	html := s.editor.Render(s.Active().Content)
	s.surface = html
	s.rendered = html
}

// pullSurface folds surface edits into the active document's content.
func (s *Session) pullSurface() {
	if s.mode != ModeEditing || s.surface == s.rendered {
		return
	}
	doc := s.Active()
	if md := s.convert(s.surface); md != doc.Content {
		doc.Content = md
		doc.MarkDirty()
		s.notify.Notify(EventChanged, s.docEvent(doc))
	}
}

// ToggleEdit switches between reading and editing. Entering edit mode saves
// first; leaving it folds surface edits back into markdown and saves.
func (s *Session) ToggleEdit() Mode {
	doc := s.Active()
	switch s.mode {
	case ModeReading:
		s.autoSave(doc)
		s.mode = ModeEditing
		s.syncSurface()
	default:
		s.pullSurface()
		s.autoSave(doc)
		s.mode = ModeReading
		s.surface, s.rendered = "", ""
	}
	s.notify.Notify(EventMode, map[string]string{"mode": s.mode.String()})
	return s.mode
}

// Edit records new surface HTML from the editor.
func (s *Session) Edit(html string) error {
	if s.mode != ModeEditing {
		return s.fail("edit", apperr.Invalid(apperr.ErrNotEditing, "edit while %s", s.mode))
	}
	if html == s.surface {
		return nil
	}
	s.surface = html
	doc := s.Active()
	if md := s.convert(html); md != doc.Content {
		doc.Content = md
		doc.MarkDirty()
		s.notify.Notify(EventChanged, s.docEvent(doc))
		s.scheduleAutoSave(doc)
	}
	return nil
}

// Save writes the active document, or delegates to SaveAs when it has no
// target yet.
func (s *Session) Save(ctx context.Context) error {
	s.pullSurface()
	doc := s.Active()
	if doc.Target == nil {
		return s.SaveAs(ctx)
	}
	content := doc.Content
	if err := s.store.Write(ctx, doc.Target, content); err != nil {
		return s.fail("save", err)
	}
	doc.MarkSaved(content, nil)
	s.notify.Notify(EventChanged, s.docEvent(doc))
	s.notify.Notify(EventStatus, Status{Message: StatusSaved})
	return nil
}

// SaveAs asks for a target, writes the active document there and re-keys it
// under the new identity.
func (s *Session) SaveAs(ctx context.Context) error {
	s.pullSurface()
	doc := s.Active()
	path, err := s.dialogs.SelectSaveTarget(ctx, doc.DisplayName+".md")
	if err != nil {
		return s.fail("save as", err)
	}
	target, err := s.store.Target(path)
	if err != nil {
		return s.fail("save as", err)
	}
	content := doc.Content
	if err := s.store.Write(ctx, target, content); err != nil {
		return s.fail("save as", err)
	}

	from := doc.ID
	s.rekey(doc, target.Key())
	doc.MarkSaved(content, target)
	doc.DisplayName = document.DisplayName(target.Name())
	s.notify.Notify(EventRenamed, RenameEvent{From: from, To: doc.ID, Title: doc.Title()})
	s.notify.Notify(EventStatus, Status{Message: StatusSaved})
	return nil
}

// rekey moves doc to newID. Another document already open under newID is
// dropped since its file was just overwritten.
func (s *Session) rekey(doc *document.Document, newID string) {
	if doc.ID == newID {
		return
	}
	oldID := doc.ID
	s.docs.Delete(oldID)
	if other, ok := s.docs.Get(newID); ok && other != doc {
		s.docs.Delete(newID)
		s.notify.Notify(EventClosed, DocEvent{ID: newID})
	}
	doc.ID = newID
	s.docs.Set(newID, doc)
	if s.activeID == oldID {
		s.activeID = newID
	}
}

// Close removes id after confirming unsaved changes. Closing the active
// document activates the newest remaining one; closing the last one opens a
// fresh untitled buffer.
func (s *Session) Close(ctx context.Context, id string) error {
	doc, ok := s.docs.Get(id)
	if !ok {
		return fmt.Errorf("session: close %s: %w", id, apperr.ErrNotFound)
	}
	if doc.Dirty {
		msg := fmt.Sprintf("%q has unsaved changes. Close anyway?", doc.DisplayName)
		confirmed, err := s.dialogs.Confirm(ctx, msg)
		if err != nil {
			return s.fail("close", err)
		}
		if !confirmed {
			return fmt.Errorf("session: close %s: %w", id, apperr.ErrCancelled)
		}
	}

	wasActive := id == s.activeID
	s.docs.Delete(id)
	s.notify.Notify(EventClosed, DocEvent{ID: id})

	if s.docs.Len() == 0 {
		s.activeID = ""
		doc := document.New(s.untitledID(), UntitledName, Template, nil)
		s.docs.Set(doc.ID, doc)
		s.notify.Notify(EventOpened, s.docEvent(doc))
		s.activate(doc.ID)
		return nil
	}
	if wasActive {
		s.activate(s.docs.Newest().Key)
	}
	return nil
}
