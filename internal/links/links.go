// Package links maintains the document link graph: resolving markdown and
// wikilink targets to file paths, classifying them against the indexed file
// set, and answering backlink and orphan queries.
package links

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/mdvdb/internal/models"
)

// LinkState classifies a resolved link target.
type LinkState string

const (
	// LinkValid means the target exists in the indexed file set.
	LinkValid LinkState = "valid"
	// LinkBroken means the target resolves to a path that is not indexed.
	LinkBroken LinkState = "broken"
)

// ResolvedLink is an outgoing link with its validity against the file set.
type ResolvedLink struct {
	Entry models.LinkEntry `json:"entry"`
	State LinkState        `json:"state"`
}

// FileLinks is the full link picture for one file.
type FileLinks struct {
	Outgoing []ResolvedLink     `json:"outgoing"`
	Incoming []models.LinkEntry `json:"incoming"`
}

// Resolve turns a raw link target into a project-relative file path, relative
// to the file containing the link. Fragments are stripped, path separators
// normalized, and a .md extension appended when the target has none. Returns
// an empty string for targets that resolve to nothing (for example a bare
// fragment link).
func Resolve(sourcePath, target string) string {
	t := strings.TrimSpace(target)
	if i := strings.IndexByte(t, '#'); i >= 0 {
		t = t[:i]
	}
	if t == "" {
		return ""
	}
	t = strings.ReplaceAll(t, "\\", "/")
	resolved := path.Clean(path.Join(path.Dir(sourcePath), t))
	if !strings.HasSuffix(resolved, ".md") {
		resolved += ".md"
	}
	return resolved
}

// Build constructs the forward link graph from each file's raw links.
// Self-links and duplicate targets within a file are dropped; files with no
// surviving links get no entry at all.
func Build(fileLinks map[string][]models.RawLink) *models.LinkGraph {
	g := &models.LinkGraph{
		Forward:     make(map[string][]models.LinkEntry),
		LastUpdated: time.Now().Unix(),
	}
	for source, raws := range fileLinks {
		entries := resolveFile(source, raws)
		if len(entries) > 0 {
			g.Forward[source] = entries
		}
	}
	return g
}

// UpdateFileLinks replaces one file's forward entries in place.
func UpdateFileLinks(g *models.LinkGraph, source string, raws []models.RawLink) {
	if g.Forward == nil {
		g.Forward = make(map[string][]models.LinkEntry)
	}
	entries := resolveFile(source, raws)
	if len(entries) == 0 {
		delete(g.Forward, source)
	} else {
		g.Forward[source] = entries
	}
	g.LastUpdated = time.Now().Unix()
}

// RemoveFile drops a file's outgoing links from the graph. Links pointing at
// the removed file stay in place and show up as broken.
func RemoveFile(g *models.LinkGraph, source string) {
	if g == nil || g.Forward == nil {
		return
	}
	delete(g.Forward, source)
	g.LastUpdated = time.Now().Unix()
}

func resolveFile(source string, raws []models.RawLink) []models.LinkEntry {
	seen := make(map[string]struct{})
	var entries []models.LinkEntry
	for _, raw := range raws {
		target := Resolve(source, raw.Target)
		if target == "" || target == source {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		entries = append(entries, models.LinkEntry{
			Source:     source,
			Target:     target,
			Text:       raw.Text,
			Line:       raw.Line,
			IsWikilink: raw.IsWikilink,
		})
	}
	return entries
}

// Backlinks inverts the forward graph: target path to the links pointing at
// it, each list ordered by source path.
func Backlinks(g *models.LinkGraph) map[string][]models.LinkEntry {
	incoming := make(map[string][]models.LinkEntry)
	if g == nil {
		return incoming
	}
	for _, entries := range g.Forward {
		for _, e := range entries {
			incoming[e.Target] = append(incoming[e.Target], e)
		}
	}
	for target := range incoming {
		sort.Slice(incoming[target], func(i, j int) bool {
			return incoming[target][i].Source < incoming[target][j].Source
		})
	}
	return incoming
}

// Query reports a file's outgoing links classified against knownFiles plus
// its incoming links.
func Query(g *models.LinkGraph, file string, knownFiles map[string]struct{}) FileLinks {
	var fl FileLinks
	if g == nil {
		return fl
	}
	for _, e := range g.Forward[file] {
		state := LinkBroken
		if _, ok := knownFiles[e.Target]; ok {
			state = LinkValid
		}
		fl.Outgoing = append(fl.Outgoing, ResolvedLink{Entry: e, State: state})
	}
	fl.Incoming = Backlinks(g)[file]
	return fl
}

// Orphans lists indexed files with no incoming and no outgoing links, sorted.
func Orphans(g *models.LinkGraph, knownFiles map[string]struct{}) []string {
	incoming := Backlinks(g)
	var orphans []string
	for file := range knownFiles {
		if g != nil && len(g.Forward[file]) > 0 {
			continue
		}
		if len(incoming[file]) > 0 {
			continue
		}
		orphans = append(orphans, file)
	}
	sort.Strings(orphans)
	return orphans
}
