package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/document"
)

// scheduleAutoSave re-arms the debounce timer for doc. Only the most recent
// timer may fire; earlier ones are invalidated by the generation counter.
func (s *Session) scheduleAutoSave(doc *document.Document) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(s.cfg.AutoSaveDelay, func() {
		s.post(func() {
			if gen != s.timerGen {
				return
			}
			s.timer = nil
			// doc may have been closed or replaced since the edit.
			if cur, ok := s.docs.Get(doc.ID); ok && cur == doc {
				s.autoSave(doc)
			}
		})
	})
}

// AutoSave saves the active document in the background.
func (s *Session) AutoSave() {
	s.autoSave(s.Active())
}

// autoSave writes doc off the session goroutine. It is a no-op when doc is
// clean, has no target, or another auto-save is in flight.
func (s *Session) autoSave(doc *document.Document) {
	if doc == nil || !doc.Dirty || doc.Target == nil {
		return
	}
	if s.saving {
		s.logger.Debug("session: auto-save skipped, save in flight", slog.String("id", doc.ID))
		return
	}
	s.saving = true
	content, target := doc.Content, doc.Target
	s.notify.Notify(EventStatus, Status{Message: StatusSaving})

	go func() {
		err := s.store.Write(context.Background(), target, content)
		s.post(func() { s.finishAutoSave(doc, target, content, err) })
	}()
}

// finishAutoSave runs on the session goroutine once a write returns. Dirty is
// cleared only if doc is still open, still points at the written target, and
// has not been edited since.
func (s *Session) finishAutoSave(doc *document.Document, target document.Target, content string, err error) {
	s.saving = false
	if err != nil {
		s.logger.Error("session: auto-save failed",
			slog.String("id", doc.ID),
			slog.String("error", err.Error()))
		s.notify.Notify(EventStatus, Status{Message: StatusFailed + ": " + apperr.Message(err), Error: true})
		return
	}
	if cur, ok := s.docs.Get(doc.ID); ok && cur == doc &&
		doc.Target != nil && doc.Target.Key() == target.Key() && doc.Content == content {
		doc.MarkSaved(content, nil)
		s.notify.Notify(EventChanged, s.docEvent(doc))
	}
	s.logger.Debug("session: auto-saved", slog.String("id", doc.ID))
	s.notify.Notify(EventStatus, Status{Message: StatusSaved})
}
