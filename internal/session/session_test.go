package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/dialog"
	"github.com/starford/prose/internal/markdown"
	"github.com/starford/prose/internal/storage"
)

// bareSession is a Session without a loop. Posted work is dropped, so
// tests using it must not depend on auto-save completion.
func bareSession(store storage.Backend, rec *recorder) *Session {
	if rec == nil {
		rec = &recorder{}
	}
	return New(Deps{
		Store:    store,
		Notifier: rec,
		Logger:   quietLogger(),
		Now:      fixedClock(1000),
	}, Config{}, func(func()) {})
}

func TestNewSessionStartsWithWelcome(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	if s.Len() != 1 || s.Active().ID != WelcomeID || s.Active().DisplayName != WelcomeName {
		t.Fatalf("initial session = %+v", s.Snapshot())
	}
	if s.Mode() != ModeReading {
		t.Errorf("mode = %s, want reading", s.Mode())
	}
}

func TestModeString(t *testing.T) {
	if ModeReading.String() != "reading" || ModeEditing.String() != "editing" {
		t.Error("unexpected mode names")
	}
	if Mode(7).String() != "Mode(7)" {
		t.Errorf("Mode(7) = %s", Mode(7))
	}
}

func TestNewDocumentIDsStrictlyIncrease(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	a := s.NewDocument()
	b := s.NewDocument()
	if a != "untitled-1000.md" || b != "untitled-1001.md" {
		t.Errorf("ids = %q, %q", a, b)
	}
	if s.Active().ID != b || s.Active().Content != Template || s.Active().DisplayName != UntitledName {
		t.Errorf("active = %+v", s.Active())
	}
}

func TestOpenFileRejectsOversized(t *testing.T) {
	rec := &recorder{}
	s := bareSession(newMemStore(nil), rec)
	err := s.OpenFile(storage.File{Name: "big.md", Path: "/w/big.md", Size: 10<<20 + 1})
	if !apperr.IsValidation(err) || !errors.Is(err, apperr.ErrTooLarge) {
		t.Fatalf("err = %v, want too-large validation error", err)
	}
	if s.Len() != 1 || s.Active().ID != WelcomeID {
		t.Errorf("document set changed: %+v", s.Snapshot())
	}
	if st := rec.lastStatus(); !st.Error || st.Message != "File is too large to open (over 10MB)" {
		t.Errorf("status = %+v", st)
	}
}

func TestOpenAlreadyOpenKeepsEdits(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "original"})
	s := bareSession(store, nil)
	ctx := context.Background()
	if err := s.Open(ctx, "/w/a.md"); err != nil {
		t.Fatal(err)
	}
	s.Active().Content = "edited"
	s.Active().MarkDirty()
	s.NewDocument()

	if err := s.Open(ctx, "/w/a.md"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	if a := s.Active(); a.ID != "/w/a.md" || a.Content != "edited" || a.DisplayName != "a" {
		t.Errorf("active = %+v", a)
	}
}

func TestOpenMissingFileCreatesNothing(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	err := s.Open(context.Background(), "/w/missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestCloseLastSynthesizesUntitled(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	if err := s.Close(context.Background(), WelcomeID); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if a := s.Active(); !strings.HasPrefix(a.ID, "untitled-") || a.Content != Template {
		t.Errorf("active = %+v", a)
	}
}

func TestCloseDirtyNeedsConfirmation(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	id := s.NewDocument()
	s.Active().MarkDirty()

	err := s.Close(context.Background(), id)
	if !apperr.IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	if _, ok := s.Document(id); !ok {
		t.Fatal("dirty document closed without confirmation")
	}

	ctx := dialog.WithAnswers(context.Background(), dialog.Answers{Confirmed: true})
	if err := s.Close(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Document(id); ok {
		t.Error("document still open after confirmed close")
	}
}

func TestCloseActivatesNewestRemaining(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a", "/w/b.md": "b", "/w/c.md": "c"})
	s := bareSession(store, nil)
	ctx := context.Background()
	for _, p := range []string{"/w/a.md", "/w/b.md", "/w/c.md"} {
		if err := s.Open(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Switch("/w/a.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx, "/w/a.md"); err != nil {
		t.Fatal(err)
	}
	if s.Active().ID != "/w/c.md" {
		t.Errorf("active = %q, want /w/c.md", s.Active().ID)
	}

	// Closing an inactive document leaves the active one alone.
	if err := s.Close(ctx, "/w/b.md"); err != nil {
		t.Fatal(err)
	}
	if s.Active().ID != "/w/c.md" {
		t.Errorf("active = %q, want /w/c.md", s.Active().ID)
	}
}

func TestSwitchUnknown(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	if err := s.Switch("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSaveAsThenSaveWritesNewTarget(t *testing.T) {
	store := newMemStore(map[string]string{"/w/old.md": "old"})
	rec := &recorder{}
	s := bareSession(store, rec)
	ctx := context.Background()
	if err := s.Open(ctx, "/w/old.md"); err != nil {
		t.Fatal(err)
	}

	asCtx := dialog.WithAnswers(ctx, dialog.Answers{SaveTarget: "/w/new.md"})
	if err := s.SaveAs(asCtx); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if _, ok := s.Document("/w/old.md"); ok {
		t.Error("old id still open after save as")
	}
	a := s.Active()
	if a.ID != "/w/new.md" || a.DisplayName != "new" || a.Dirty {
		t.Errorf("re-keyed doc = %+v", a)
	}
	if !rec.has(EventRenamed) {
		t.Error("missing document.renamed event")
	}

	a.Content = "changed"
	a.MarkDirty()
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := store.get("/w/new.md"); got != "changed" {
		t.Errorf("new target = %q, want changed", got)
	}
	if got, _ := store.get("/w/old.md"); got != "old" {
		t.Errorf("old target overwritten: %q", got)
	}
	if s.Active().Dirty {
		t.Error("dirty after save")
	}
}

func TestSaveAsDropsDocumentAtNewID(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a", "/w/b.md": "b"})
	s := bareSession(store, nil)
	ctx := context.Background()
	_ = s.Open(ctx, "/w/a.md")
	_ = s.Open(ctx, "/w/b.md")
	if err := s.SaveAs(dialog.WithAnswers(ctx, dialog.Answers{SaveTarget: "/w/a.md"})); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2 (welcome + re-keyed)", s.Len())
	}
	if d, _ := s.Document("/w/a.md"); d.Content != "b" {
		t.Errorf("doc at /w/a.md = %+v", d)
	}
}

func TestSaveUntargetedDelegatesToSaveAs(t *testing.T) {
	store := newMemStore(nil)
	s := bareSession(store, nil)
	s.NewDocument()

	if err := s.Save(context.Background()); !apperr.IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	if len(store.writeLog()) != 0 {
		t.Error("cancelled save wrote something")
	}

	ctx := dialog.WithAnswers(context.Background(), dialog.Answers{SaveTarget: "/w/draft.md"})
	if err := s.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.get("/w/draft.md"); got != Template {
		t.Errorf("draft = %q", got)
	}
	if s.Active().ID != "/w/draft.md" {
		t.Errorf("active id = %q", s.Active().ID)
	}
}

func TestSaveFailureLeavesDocumentDirty(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a"})
	rec := &recorder{}
	s := bareSession(store, rec)
	ctx := context.Background()
	_ = s.Open(ctx, "/w/a.md")
	s.Active().Content = "b"
	s.Active().MarkDirty()
	store.fail = apperr.ErrPermission

	err := s.Save(ctx)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("err = %v, want permission", err)
	}
	if a := s.Active(); !a.Dirty || a.Content != "b" {
		t.Errorf("document mutated by failed save: %+v", a)
	}
	if st := rec.lastStatus(); st.Message != "Permission denied - cannot access this file" {
		t.Errorf("status = %+v", st)
	}
}

func TestToggleTwiceKeepsContent(t *testing.T) {
	content := "# Title\n\nSome *text* with `code`\n\n> quote\n\n1. one\n2. two"
	store := newMemStore(map[string]string{"/w/a.md": content})
	s := bareSession(store, nil)
	_ = s.Open(context.Background(), "/w/a.md")

	if m := s.ToggleEdit(); m != ModeEditing {
		t.Fatalf("mode = %s", m)
	}
	if s.Snapshot().HTML == "" {
		t.Error("surface empty in editing mode")
	}
	if m := s.ToggleEdit(); m != ModeReading {
		t.Fatalf("mode = %s", m)
	}
	if a := s.Active(); a.Content != content || a.Dirty {
		t.Errorf("toggle round trip changed document: %+v", a)
	}
}

func TestEditRequiresEditingMode(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	err := s.Edit("<p>x</p>")
	if !errors.Is(err, apperr.ErrNotEditing) {
		t.Errorf("err = %v, want ErrNotEditing", err)
	}
}

func TestEditConvertsAndMarksDirty(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	s.NewDocument()
	s.ToggleEdit()
	surface := s.Snapshot().HTML

	if err := s.Edit(surface); err != nil {
		t.Fatal(err)
	}
	if s.Active().Dirty {
		t.Error("unchanged surface marked dirty")
	}

	if err := s.Edit("<h1>Notes</h1><p>Hello <strong>there</strong></p>"); err != nil {
		t.Fatal(err)
	}
	a := s.Active()
	if !a.Dirty || a.Content != "# Notes\n\nHello **there**" {
		t.Errorf("after edit = %+v", a)
	}
	if a.Title() != "Untitled*" {
		t.Errorf("title = %q", a.Title())
	}
}

func TestOpenReferenceNeedsFolder(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	err := s.OpenReference(context.Background(), "a.md")
	if !errors.Is(err, apperr.ErrNoFolder) {
		t.Errorf("err = %v, want ErrNoFolder", err)
	}
}

func TestOpenReferenceResolvesUnderRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "b.md"), []byte("bee"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := bareSession(storage.NewFS(), nil)
	ctx := context.Background()

	if _, err := s.OpenFolder(ctx); !apperr.IsCancelled(err) {
		t.Fatalf("OpenFolder without answer: err = %v, want cancelled", err)
	}
	if s.Root() != "" {
		t.Fatal("root set by cancelled dialog")
	}
	if _, err := s.OpenFolder(dialog.WithAnswers(ctx, dialog.Answers{Directory: root})); err != nil {
		t.Fatal(err)
	}
	if err := s.OpenReference(ctx, "docs/b.md"); err != nil {
		t.Fatal(err)
	}
	if a := s.Active(); a.Content != "bee" || a.DisplayName != "b" {
		t.Errorf("active = %+v", a)
	}
	if err := s.OpenReference(ctx, "../escape.md"); !errors.Is(err, apperr.ErrOutsideRoot) {
		t.Errorf("err = %v, want ErrOutsideRoot", err)
	}
}

func TestReferencesOfActive(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "see [b](b.md) and [[c]]"})
	s := bareSession(store, nil)
	_ = s.Open(context.Background(), "/w/a.md")
	refs := s.References()
	if len(refs) != 2 || refs[0] != "b.md" || refs[1] != "c.md" {
		t.Errorf("References = %v", refs)
	}
}

func TestSnapshotDescribesDocuments(t *testing.T) {
	s := bareSession(newMemStore(nil), nil)
	s.NewDocument()
	snap := s.Snapshot()
	if len(snap.Documents) != 2 || snap.Mode != "reading" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Documents[0].ID != WelcomeID || snap.Documents[0].Active || !snap.Documents[1].Active {
		t.Errorf("documents = %+v", snap.Documents)
	}
	if !strings.Contains(snap.HTML, "Document Title") {
		t.Errorf("html = %q", snap.HTML)
	}
}

func TestControllerAutoSavesAfterEdit(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.md")
	if err := os.WriteFile(p, []byte("# Old"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	c := newTestController(t, storage.NewFS(), rec)
	ctx := context.Background()

	do(t, c, func(s *Session) error { return s.Open(ctx, p) })
	do(t, c, func(s *Session) error { s.ToggleEdit(); return nil })
	do(t, c, func(s *Session) error { return s.Edit("<h1>New</h1><p>Body</p>") })

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		data, _ := os.ReadFile(p)
		return string(data) == "# New\n\nBody"
	}, "auto-save did not write the edited content")
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return !query(t, c, func(s *Session) bool { return s.Active().Dirty })
	}, "document still dirty after auto-save")
	if !rec.has(EventStatus) {
		t.Error("no status events published")
	}
}

func TestControllerAutoSaveInFlightGuard(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a"})
	store.gate = make(chan struct{})
	c := newTestController(t, store, nil)
	ctx := context.Background()

	do(t, c, func(s *Session) error {
		if err := s.Open(ctx, "/w/a.md"); err != nil {
			return err
		}
		s.Active().Content = "b"
		s.Active().MarkDirty()
		s.AutoSave()
		s.AutoSave()
		return nil
	})
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return store.startedWrites() == 1 },
		"first auto-save never started")

	// Edit while the write is blocked; completion must keep the doc dirty.
	do(t, c, func(s *Session) error {
		s.Active().Content = "c"
		return nil
	})
	close(store.gate)

	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return !query(t, c, func(s *Session) bool { return s.saving })
	}, "auto-save never completed")
	if n := store.startedWrites(); n != 1 {
		t.Errorf("writes started = %d, want 1", n)
	}
	if got, _ := store.get("/w/a.md"); got != "b" {
		t.Errorf("stored = %q, want b", got)
	}
	if !query(t, c, func(s *Session) bool { return s.Active().Dirty }) {
		t.Error("document edited during write was marked clean")
	}
}

func TestControllerSwitchSavesOutgoing(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a", "/w/b.md": "b"})
	c := newTestController(t, store, nil)
	ctx := context.Background()
	do(t, c, func(s *Session) error {
		if err := s.Open(ctx, "/w/a.md"); err != nil {
			return err
		}
		s.Active().Content = "a2"
		s.Active().MarkDirty()
		return s.Open(ctx, "/w/b.md")
	})
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		got, _ := store.get("/w/a.md")
		return got == "a2"
	}, "outgoing document was not auto-saved")
	if id := query(t, c, func(s *Session) string { return s.Active().ID }); id != "/w/b.md" {
		t.Errorf("active = %q", id)
	}
}

func TestControllerAutoSaveFailureReported(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a"})
	store.fail = apperr.ErrPermission
	rec := &recorder{}
	c := newTestController(t, store, rec)
	ctx := context.Background()
	do(t, c, func(s *Session) error {
		_ = s.Open(ctx, "/w/a.md")
		s.Active().Content = "b"
		s.Active().MarkDirty()
		s.AutoSave()
		return nil
	})
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return strings.HasPrefix(rec.lastStatus().Message, StatusFailed)
	}, "failure status not published")
	if !query(t, c, func(s *Session) bool { return s.Active().Dirty }) {
		t.Error("failed auto-save cleared dirty")
	}
}

func TestControllerClosed(t *testing.T) {
	c := NewController(Deps{Store: newMemStore(nil), Logger: quietLogger()}, Config{})
	c.Close()
	c.Close()
	if err := c.Do(context.Background(), func(*Session) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestControllerRecoversPanics(t *testing.T) {
	c := newTestController(t, newMemStore(nil), nil)
	err := c.Do(context.Background(), func(*Session) error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v", err)
	}
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Errorf("controller dead after panic: %v", err)
	}
}

func TestEditingSurfaceKeepsConstructsWithoutConverterRules(t *testing.T) {
	for _, md := range []string{
		"| a | b |\n|---|---|\n| 1 | 2 |",
		"- [x] done",
		"<b>raw</b>",
	} {
		store := newMemStore(map[string]string{"/w/a.md": md})
		s := New(Deps{
			Store:    store,
			Renderer: markdown.NewGoldmark(),
			Logger:   quietLogger(),
		}, Config{}, func(func()) {})
		if err := s.Open(context.Background(), "/w/a.md"); err != nil {
			t.Fatal(err)
		}
		s.ToggleEdit()

		if err := s.Edit(s.Snapshot().HTML + "<p>more</p>"); err != nil {
			t.Fatal(err)
		}
		if got, want := s.Active().Content, md+"\n\nmore"; got != want {
			t.Errorf("after edit of %q\n got: %q\nwant: %q", md, got, want)
		}
	}
}

func TestControllerDebounceRestartsOnEachEdit(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a"})
	c := newDelayedController(t, store, nil, 150*time.Millisecond)
	ctx := context.Background()

	do(t, c, func(s *Session) error {
		if err := s.Open(ctx, "/w/a.md"); err != nil {
			return err
		}
		s.ToggleEdit()
		return s.Edit("<p>one</p>")
	})
	time.Sleep(50 * time.Millisecond)
	do(t, c, func(s *Session) error { return s.Edit("<p>two</p>") })

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		got, _ := store.get("/w/a.md")
		return got == "two"
	}, "auto-save did not write the last edit")
	time.Sleep(200 * time.Millisecond)
	if log := store.writeLog(); len(log) != 1 {
		t.Errorf("writes = %v, want exactly one", log)
	}
}

func TestControllerLeavingEditingSavesChangedSurface(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a"})
	c := newDelayedController(t, store, nil, time.Hour)
	ctx := context.Background()

	do(t, c, func(s *Session) error {
		if err := s.Open(ctx, "/w/a.md"); err != nil {
			return err
		}
		s.ToggleEdit()
		// The editor changed the surface without an Edit round trip.
		s.surface = "<p>changed</p>"
		if m := s.ToggleEdit(); m != ModeReading {
			t.Errorf("mode = %s", m)
		}
		if !s.Active().Dirty || s.Active().Content != "changed" {
			t.Errorf("after leaving editing = %+v", s.Active())
		}
		return nil
	})
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		got, _ := store.get("/w/a.md")
		return got == "changed"
	}, "leaving editing did not auto-save")
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return !query(t, c, func(s *Session) bool { return s.Active().Dirty })
	}, "document still dirty after auto-save")
}

func TestControllerEnteringEditingSavesDirtyDocument(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a"})
	c := newDelayedController(t, store, nil, time.Hour)
	ctx := context.Background()

	do(t, c, func(s *Session) error {
		if err := s.Open(ctx, "/w/a.md"); err != nil {
			return err
		}
		s.Active().Content = "a2"
		s.Active().MarkDirty()
		s.ToggleEdit()
		return nil
	})
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		got, _ := store.get("/w/a.md")
		return got == "a2"
	}, "entering editing did not save the dirty document")
	if m := query(t, c, func(s *Session) Mode { return s.Mode() }); m != ModeEditing {
		t.Errorf("mode = %s", m)
	}
}

func TestControllerDebounceSavesEditedDocumentAfterSwitch(t *testing.T) {
	store := newMemStore(map[string]string{"/w/a.md": "a", "/w/b.md": "b"})
	store.gate = make(chan struct{})
	c := newDelayedController(t, store, nil, 300*time.Millisecond)
	ctx := context.Background()

	do(t, c, func(s *Session) error {
		if err := s.Open(ctx, "/w/a.md"); err != nil {
			return err
		}
		if err := s.Open(ctx, "/w/b.md"); err != nil {
			return err
		}
		// Hold a write for b so the switch-time save of a is skipped.
		s.Active().Content = "b2"
		s.Active().MarkDirty()
		s.AutoSave()
		if err := s.Switch("/w/a.md"); err != nil {
			return err
		}
		s.ToggleEdit()
		if err := s.Edit("<p>a2</p>"); err != nil {
			return err
		}
		return s.Switch("/w/b.md")
	})
	close(store.gate)

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		got, _ := store.get("/w/a.md")
		return got == "a2"
	}, "debounced save did not write the edited document")
	if got, _ := store.get("/w/b.md"); got != "b2" {
		t.Errorf("b = %q, want b2", got)
	}
}
