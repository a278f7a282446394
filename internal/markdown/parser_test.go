package markdown

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseHeadings(t *testing.T) {
	content := "# Title\n\nSome text.\n\n## Section\n\nMore text.\n"
	p := NewParser()
	file := p.Parse("doc.md", []byte(content), 0)

	if len(file.Headings) != 2 {
		t.Fatalf("headings: got %d, want 2", len(file.Headings))
	}
	if file.Headings[0].Level != 1 || file.Headings[0].Text != "Title" || file.Headings[0].Line != 1 {
		t.Errorf("heading 0: %+v", file.Headings[0])
	}
	if file.Headings[1].Level != 2 || file.Headings[1].Text != "Section" || file.Headings[1].Line != 5 {
		t.Errorf("heading 1: %+v", file.Headings[1])
	}
}

func TestParseFrontmatter(t *testing.T) {
	content := "---\ntags: [rust, go]\npriority: 3\n---\n# Title\n"
	p := NewParser()
	file := p.Parse("doc.md", []byte(content), 0)

	if file.Frontmatter == nil {
		t.Fatal("frontmatter should be parsed")
	}
	tags, ok := file.Frontmatter["tags"].([]interface{})
	if !ok || len(tags) != 2 || tags[0] != "rust" {
		t.Errorf("tags = %v", file.Frontmatter["tags"])
	}
	if file.Frontmatter["priority"] != 3 {
		t.Errorf("priority = %v (%T)", file.Frontmatter["priority"], file.Frontmatter["priority"])
	}
	// Heading line numbers count the frontmatter block.
	if len(file.Headings) != 1 || file.Headings[0].Line != 5 {
		t.Errorf("headings = %+v", file.Headings)
	}
	if strings.Contains(file.Body, "tags:") {
		t.Error("body should not contain frontmatter")
	}
}

func TestParseMalformedFrontmatterDegrades(t *testing.T) {
	content := "---\n: : not yaml [\n---\n# Title\n"
	p := NewParser()
	file := p.Parse("doc.md", []byte(content), 0)
	if file.Frontmatter != nil {
		t.Errorf("frontmatter should be nil, got %v", file.Frontmatter)
	}
	if len(file.Headings) != 1 {
		t.Errorf("body should still parse, headings = %+v", file.Headings)
	}
}

func TestParseUnclosedFrontmatterIsBody(t *testing.T) {
	content := "---\ntags: [a]\n# Title\n"
	p := NewParser()
	file := p.Parse("doc.md", []byte(content), 0)
	if file.Frontmatter != nil {
		t.Error("unclosed delimiter should not produce frontmatter")
	}
	if !strings.Contains(file.Body, "tags: [a]") {
		t.Error("whole file should remain as body")
	}
}

func TestParseLinks(t *testing.T) {
	content := "# Doc\n\nSee [other](other.md) and [site](https://example.com).\n\nAlso [[notes|my notes]] and [[plain]].\n"
	p := NewParser()
	file := p.Parse("doc.md", []byte(content), 0)

	if len(file.Links) != 3 {
		t.Fatalf("links: got %d (%+v), want 3", len(file.Links), file.Links)
	}
	std := file.Links[0]
	if std.Target != "other.md" || std.Text != "other" || std.IsWikilink {
		t.Errorf("standard link: %+v", std)
	}
	if std.Line != 3 {
		t.Errorf("standard link line = %d, want 3", std.Line)
	}
	wiki := file.Links[1]
	if wiki.Target != "notes" || wiki.Text != "my notes" || !wiki.IsWikilink {
		t.Errorf("wikilink: %+v", wiki)
	}
	if file.Links[2].Target != "plain" || file.Links[2].Text != "plain" {
		t.Errorf("plain wikilink: %+v", file.Links[2])
	}
}

func TestParseDiscardsExternalAndAnchorLinks(t *testing.T) {
	content := "[a](https://x.com) [b](mailto:x@y.z) [c](#frag) [d](real.md)\n"
	p := NewParser()
	file := p.Parse("doc.md", []byte(content), 0)
	if len(file.Links) != 1 || file.Links[0].Target != "real.md" {
		t.Errorf("links = %+v", file.Links)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	c := ContentHash([]byte("hello!"))
	if a != b {
		t.Error("hash should be deterministic")
	}
	if a == c {
		t.Error("hash should change with content")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Errorf("hash should be lowercase hex sha256, got %q", a)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "docs", "a.md"), []byte("# A\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p := NewParser()
	file, err := p.ParseFile(dir, "docs/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if file.RelPath != "docs/a.md" {
		t.Errorf("RelPath = %q", file.RelPath)
	}
	if file.FileSize != 4 {
		t.Errorf("FileSize = %d", file.FileSize)
	}
	if file.ModifiedAt == 0 {
		t.Error("ModifiedAt should be captured")
	}
}

func TestStrip(t *testing.T) {
	p := NewParser()
	tests := []struct {
		name    string
		in      string
		keeps   []string
		drops   []string
	}{
		{
			"formatting removed",
			"# Head\n\nSome **bold** and _italic_ text with [a link](x.md).\n",
			[]string{"Head", "bold", "italic", "a link"},
			[]string{"**", "](", "#"},
		},
		{
			"code kept",
			"```go\nfunc main() {}\n```\n",
			[]string{"func main() {}"},
			[]string{"```"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Strip(tt.in)
			for _, want := range tt.keeps {
				if !strings.Contains(got, want) {
					t.Errorf("Strip(%q) = %q, missing %q", tt.in, got, want)
				}
			}
			for _, bad := range tt.drops {
				if strings.Contains(got, bad) {
					t.Errorf("Strip(%q) = %q, should drop %q", tt.in, got, bad)
				}
			}
		})
	}
}
