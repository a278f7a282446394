// Package e2e exercises the full ingest and query pipeline over a generated
// markdown project.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Note is a markdown file fixture: frontmatter fields plus body sections.
type Note struct {
	Frontmatter map[string]interface{}
	Sections    []Section
}

// Section is one heading with its paragraph text.
type Section struct {
	Heading string
	Text    string
}

// Render serializes the note to markdown with a YAML frontmatter block.
func (n Note) Render() string {
	var b strings.Builder
	if len(n.Frontmatter) > 0 {
		b.WriteString("---\n")
		keys := make([]string, 0, len(n.Frontmatter))
		for k := range n.Frontmatter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, n.Frontmatter[k])
		}
		b.WriteString("---\n")
	}
	for _, s := range n.Sections {
		if s.Heading != "" {
			fmt.Fprintf(&b, "\n# %s\n\n", s.Heading)
		}
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// WriteNote renders the note to root/relPath, creating directories as needed.
func WriteNote(root, relPath string, n Note) error {
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(n.Render()), 0o644)
}

// MarkdownLink formats an inline link to another note.
func MarkdownLink(text, target string) string {
	return fmt.Sprintf("[%s](%s)", text, target)
}
