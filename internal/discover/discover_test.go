package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/intro.md", "# Intro")
	writeFile(t, root, "docs/api/auth.md", "# Auth")
	writeFile(t, root, "notes/ideas.md", "# Ideas")
	writeFile(t, root, "docs/image.png", "binary")

	d := New(root, []string{"."}, nil)
	paths, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"docs/api/auth.md", "docs/intro.md", "notes/ideas.md"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestDiscoverBuiltinIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md", "ok")
	writeFile(t, root, "node_modules/pkg/readme.md", "no")
	writeFile(t, root, ".git/notes.md", "no")
	writeFile(t, root, ".obsidian/workspace.md", "no")
	writeFile(t, root, "target/doc.md", "no")

	d := New(root, []string{"."}, nil)
	paths, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "keep.md" {
		t.Errorf("got %v, want [keep.md]", paths)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "drafts/\n")
	writeFile(t, root, "keep.md", "ok")
	writeFile(t, root, "drafts/wip.md", "no")

	d := New(root, []string{"."}, nil)
	paths, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "keep.md" {
		t.Errorf("got %v, want [keep.md]", paths)
	}
}

func TestDiscoverUserPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md", "ok")
	writeFile(t, root, "private/secret.md", "no")

	d := New(root, []string{"."}, []string{"private/"})
	paths, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "keep.md" {
		t.Errorf("got %v, want [keep.md]", paths)
	}
}

func TestDiscoverMissingSourceDirNonFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/a.md", "ok")

	d := New(root, []string{"docs", "missing"}, nil)
	paths, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "docs/a.md" {
		t.Errorf("got %v, want [docs/a.md]", paths)
	}
}

func TestDiscoverDeduplicatesOverlappingSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/a.md", "ok")

	d := New(root, []string{".", "docs"}, nil)
	paths, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Errorf("got %v, want single entry", paths)
	}
}

func TestShouldIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "drafts/\n")

	d := New(root, []string{"."}, []string{"private/"})
	tests := []struct {
		path string
		want bool
	}{
		{"docs/a.md", true},
		{"docs/a.txt", false},
		{"node_modules/x/readme.md", false},
		{"drafts/wip.md", false},
		{"private/p.md", false},
	}
	for _, tt := range tests {
		if got := d.ShouldIndex(tt.path); got != tt.want {
			t.Errorf("ShouldIndex(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
