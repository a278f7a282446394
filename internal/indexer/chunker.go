// Package indexer hosts the chunking engine and the ingest pipeline that
// drives the write path: discover, parse, chunk, embed, upsert, persist.
package indexer

import (
	"strings"

	"github.com/hyperjump/mdvdb/internal/models"
)

// Chunker splits parsed markdown files into heading-scoped chunks, with a
// token-window secondary split for oversized sections. Output is fully
// deterministic: identical input bytes and parameters yield identical chunks.
type Chunker struct {
	maxTokens     int
	overlapTokens int
	tok           *Tokenizer
}

// NewChunker creates a chunker. maxTokens bounds chunk size; overlapTokens is
// the token overlap between consecutive sub-chunks of an oversized section.
func NewChunker(maxTokens, overlapTokens int, tok *Tokenizer) *Chunker {
	return &Chunker{
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		tok:           tok,
	}
}

// section is a heading-delimited region of the body before size guarding.
type section struct {
	breadcrumb []string
	content    string
	startLine  int // 1-based body line
	endLine    int
}

// Chunk splits the file into chunks. Line ranges are 1-based inclusive and
// refer to the original file, frontmatter included. A file with no body
// content still yields a single empty chunk so the file is represented in
// the index.
func (c *Chunker) Chunk(file *models.MarkdownFile) []*models.Chunk {
	sections := splitSections(file)
	chunks := make([]*models.Chunk, 0, len(sections))
	for _, sec := range sections {
		for _, part := range c.sizeGuard(sec) {
			idx := len(chunks)
			chunks = append(chunks, &models.Chunk{
				ID:         models.ChunkID(file.RelPath, idx),
				SourcePath: file.RelPath,
				Breadcrumb: part.breadcrumb,
				Content:    part.content,
				StartLine:  part.startLine + file.BodyOffset,
				EndLine:    part.endLine + file.BodyOffset,
				ChunkIndex: idx,
				IsSubSplit: part.isSubSplit,
			})
		}
	}
	return chunks
}

type guardedSection struct {
	breadcrumb []string
	content    string
	startLine  int
	endLine    int
	isSubSplit bool
}

// sizeGuard applies the token-window secondary split when a section exceeds
// the chunk budget. Sub-chunk line ranges are recovered from the byte offset
// of each window within the section content.
func (c *Chunker) sizeGuard(sec section) []guardedSection {
	if c.tok.Count(sec.content) <= c.maxTokens {
		return []guardedSection{{
			breadcrumb: sec.breadcrumb,
			content:    sec.content,
			startLine:  sec.startLine,
			endLine:    sec.endLine,
		}}
	}
	windows := c.tok.Windows(sec.content, c.maxTokens, c.overlapTokens)
	parts := make([]guardedSection, 0, len(windows))
	for _, w := range windows {
		start := sec.startLine + strings.Count(sec.content[:w.Start], "\n")
		end := start + strings.Count(w.Text, "\n")
		parts = append(parts, guardedSection{
			breadcrumb: sec.breadcrumb,
			content:    w.Text,
			startLine:  start,
			endLine:    end,
			isSubSplit: true,
		})
	}
	return parts
}

// splitSections performs the heading-stack primary split. Every heading
// starts a new section running to the line before the next heading; the
// breadcrumb is the stack snapshot after pushing the section's own heading.
// Content before the first heading is the preamble with an empty breadcrumb.
func splitSections(file *models.MarkdownFile) []section {
	lines := strings.Split(file.Body, "\n")

	// Heading lines in body coordinates, discarding any that fall outside
	// the body (defensively possible with pathological frontmatter).
	type headingAt struct {
		level int
		text  string
		line  int // 1-based body line
	}
	var headings []headingAt
	for _, h := range file.Headings {
		line := h.Line - file.BodyOffset
		if line < 1 || line > len(lines) {
			continue
		}
		headings = append(headings, headingAt{level: h.Level, text: h.Text, line: line})
	}

	if len(headings) == 0 {
		content, start, end := trimSection(lines, 1, len(lines))
		return []section{{content: content, startLine: start, endLine: end}}
	}

	var sections []section
	if pre, start, end := trimSection(lines, 1, headings[0].line-1); pre != "" {
		sections = append(sections, section{content: pre, startLine: start, endLine: end})
	}

	type stackEntry struct {
		level int
		text  string
	}
	var stack []stackEntry
	for i, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, stackEntry{level: h.level, text: h.text})

		endLine := len(lines)
		if i+1 < len(headings) {
			endLine = headings[i+1].line - 1
		}
		content, start, end := trimSection(lines, h.line, endLine)

		breadcrumb := make([]string, len(stack))
		for j, e := range stack {
			breadcrumb[j] = e.text
		}
		sections = append(sections, section{
			breadcrumb: breadcrumb,
			content:    content,
			startLine:  start,
			endLine:    end,
		})
	}
	return sections
}

// trimSection joins lines[first..last] (1-based inclusive), dropping trailing
// blank lines from the range. Returns the content and the adjusted 1-based
// range; an empty range yields first as both bounds.
func trimSection(lines []string, first, last int) (string, int, int) {
	for last >= first && strings.TrimSpace(lines[last-1]) == "" {
		last--
	}
	if last < first {
		return "", first, first
	}
	return strings.Join(lines[first-1:last], "\n"), first, last
}
