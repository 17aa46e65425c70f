package document

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"notes.md", "notes"},
		{"/a/b/Guide.MARKDOWN", "Guide"},
		{"readme.txt", "readme.txt"},
		{"archive.md.bak", "archive.md.bak"},
		{"README", "README"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsMarkdownFile(t *testing.T) {
	yes := []string{"a.md", "B.Markdown", "c.txt", "d.mdx", "README", "license.old", "Notes"}
	no := []string{"a.go", "image.png", "md", "readme2", "page.html"}
	for _, n := range yes {
		if !IsMarkdownFile(n) {
			t.Errorf("IsMarkdownFile(%q) = false", n)
		}
	}
	for _, n := range no {
		if IsMarkdownFile(n) {
			t.Errorf("IsMarkdownFile(%q) = true", n)
		}
	}
}

func TestDocumentLifecycle(t *testing.T) {
	d := New("untitled-1.md", "Untitled", "x", nil)
	if d.Dirty || d.Saved() || d.Title() != "Untitled" {
		t.Fatalf("new document = %+v", d)
	}
	d.MarkDirty()
	if d.Title() != "Untitled*" {
		t.Errorf("Title = %q", d.Title())
	}

	target := PathTarget{Path: "/w/notes.md"}
	d.MarkSaved("y", target)
	if d.Dirty || !d.Saved() || d.Content != "y" || d.Target != target {
		t.Errorf("after save = %+v", d)
	}

	d.MarkDirty()
	d.MarkSaved("z", nil)
	if d.Target != target {
		t.Error("nil target replaced existing one")
	}
}

func TestPathTarget(t *testing.T) {
	pt := PathTarget{Path: "/w/sub/a.md"}
	if pt.Key() != "/w/sub/a.md" || pt.Name() != "a.md" {
		t.Errorf("PathTarget = %q %q", pt.Key(), pt.Name())
	}
}
