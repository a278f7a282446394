// Package markdown parses markdown files into the transient representation
// used by the chunker and the ingest pipeline: frontmatter, heading events
// with line numbers, raw links, and a content hash.
package markdown

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/mdvdb/internal/models"
)

var wikilinkRe = regexp.MustCompile(`\[\[([^\]\|]+)(?:\|([^\]]+))?\]\]`)

// Parser turns file bytes into models.MarkdownFile values. It never mutates
// source files; malformed sections degrade silently.
type Parser struct {
	md     goldmark.Markdown
	logger *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		md:     goldmark.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and parses one file below root. relPath is slash-separated.
func (p *Parser) ParseFile(root, relPath string) (*models.MarkdownFile, error) {
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	var modifiedAt int64
	if info, statErr := os.Stat(abs); statErr == nil {
		modifiedAt = info.ModTime().Unix()
	}
	return p.Parse(relPath, data, modifiedAt), nil
}

// Parse parses raw file bytes. The content hash covers the complete bytes,
// frontmatter included.
func (p *Parser) Parse(relPath string, data []byte, modifiedAt int64) *models.MarkdownFile {
	frontmatter, body, lineOffset := p.splitFrontmatter(relPath, data)

	file := &models.MarkdownFile{
		RelPath:     filepath.ToSlash(relPath),
		Body:        string(body),
		Frontmatter: frontmatter,
		BodyOffset:  lineOffset,
		ContentHash: ContentHash(data),
		FileSize:    int64(len(data)),
		ModifiedAt:  modifiedAt,
	}

	starts := lineStarts(body)
	doc := p.md.Parser().Parse(text.NewReader(body))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			line := 1
			if node.Lines().Len() > 0 {
				line = lineAt(starts, node.Lines().At(0).Start)
			}
			file.Headings = append(file.Headings, models.Heading{
				Level: node.Level,
				Text:  nodeText(node, body),
				Line:  line + lineOffset,
			})
		case *ast.Link:
			target := string(node.Destination)
			if externalTarget(target) {
				return ast.WalkContinue, nil
			}
			file.Links = append(file.Links, models.RawLink{
				Target: target,
				Text:   nodeText(node, body),
				Line:   inlineLine(starts, node) + lineOffset,
			})
		}
		return ast.WalkContinue, nil
	})

	p.scanWikilinks(file, body, lineOffset)
	return file
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// body. Parse failures degrade to no frontmatter. Returns the body bytes and
// the number of source lines consumed by the frontmatter block.
func (p *Parser) splitFrontmatter(relPath string, data []byte) (map[string]interface{}, []byte, int) {
	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return nil, data, 0
	}
	firstNL := bytes.IndexByte(data, '\n')
	rest := data[firstNL+1:]
	offset := firstNL + 1
	for {
		nl := bytes.IndexByte(rest, '\n')
		var lineEnd int
		if nl < 0 {
			lineEnd = len(rest)
		} else {
			lineEnd = nl
		}
		line := strings.TrimRight(string(rest[:lineEnd]), "\r")
		if line == "---" {
			block := data[firstNL+1 : offset]
			var frontmatter map[string]interface{}
			if err := yaml.Unmarshal(block, &frontmatter); err != nil {
				p.logger.Debug("frontmatter parse failed, ignoring",
					zap.String("path", relPath), zap.Error(err))
				frontmatter = nil
			}
			var body []byte
			if nl < 0 {
				body = nil
			} else {
				body = rest[nl+1:]
			}
			consumed := bytes.Count(data[:offset+lineEnd], []byte("\n")) + 1
			return frontmatter, body, consumed
		}
		if nl < 0 {
			// No closing delimiter: the whole file is body.
			return nil, data, 0
		}
		rest = rest[nl+1:]
		offset += nl + 1
	}
}

func (p *Parser) scanWikilinks(file *models.MarkdownFile, body []byte, lineOffset int) {
	for i, line := range strings.Split(string(body), "\n") {
		for _, m := range wikilinkRe.FindAllStringSubmatch(line, -1) {
			target := strings.TrimSpace(m[1])
			if target == "" || externalTarget(target) {
				continue
			}
			display := target
			if m[2] != "" {
				display = strings.TrimSpace(m[2])
			}
			file.Links = append(file.Links, models.RawLink{
				Target:     target,
				Text:       display,
				Line:       i + 1 + lineOffset,
				IsWikilink: true,
			})
		}
	}
}

func externalTarget(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "mailto:") ||
		strings.HasPrefix(target, "#")
}

// nodeText collects the raw text of all ast.Text descendants.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// inlineLine finds the 1-based line of an inline node via its first text
// segment, falling back to the nearest ancestor with line information.
func inlineLine(starts []int, n ast.Node) int {
	line := 0
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || line != 0 {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			line = lineAt(starts, t.Segment.Start)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if line != 0 {
		return line
	}
	for parent := n.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Type() == ast.TypeBlock && parent.Lines().Len() > 0 {
			return lineAt(starts, parent.Lines().At(0).Start)
		}
	}
	return 1
}

// lineStarts returns the byte offset of the start of each line.
func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineAt converts a byte offset into a 1-based line number.
func lineAt(starts []int, offset int) int {
	idx := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	return idx
}
