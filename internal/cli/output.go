// Package cli provides output formatting for the mdvdb command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/mdvdb/internal/links"
	"github.com/hyperjump/mdvdb/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates an -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n\n",
		len(response.Results), response.QueryTime, response.Mode)
	if len(response.Results) == 0 && len(response.Suggestions) > 0 {
		fmt.Fprintf(w, "Did you mean: %s\n", strings.Join(response.Suggestions, ", "))
		return nil
	}
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%d. %s (lines %d-%d)  score %.4f\n",
		rank, result.File.Path, result.StartLine, result.EndLine, result.Score)
	if len(result.Breadcrumb) > 0 {
		fmt.Fprintf(w, "   %s\n", strings.Join(result.Breadcrumb, " > "))
	}
	text := result.Snippet
	if text == "" {
		text = Truncate(result.Content, 200)
	}
	fmt.Fprintf(w, "\n%s\n\n", text)
}

// StatusReport is an index status summary plus the on-disk footprint of the
// index, lexical index, and embedding cache together.
type StatusReport struct {
	models.IndexStatus
	DiskUsageBytes int64 `json:"disk_usage_bytes,omitempty"`
}

// WriteStatus writes an index status summary.
func WriteStatus(w io.Writer, report StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	status := report.IndexStatus
	fmt.Fprintf(w, "documents:       %d\n", status.DocumentCount)
	fmt.Fprintf(w, "chunks:          %d\n", status.ChunkCount)
	fmt.Fprintf(w, "index_size:      %d bytes\n", status.IndexSize)
	if report.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "disk_usage:      %d bytes\n", report.DiskUsageBytes)
	}
	fmt.Fprintf(w, "embedding:       %s/%s (%d dims)\n",
		status.Embedding.Provider, status.Embedding.Model, status.Embedding.Dimensions)
	if status.LastUpdated > 0 {
		fmt.Fprintf(w, "last_updated:    %s\n",
			time.Unix(status.LastUpdated, 0).Format(time.RFC3339))
	}
	fmt.Fprintf(w, "clusters:        %d\n", status.ClusterCount)
	return nil
}

// WriteFileLinks writes the outgoing and incoming links of one file.
func WriteFileLinks(w io.Writer, file string, fl links.FileLinks, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, fl)
	}
	fmt.Fprintf(w, "%s\n", file)
	fmt.Fprintf(w, "  outgoing (%d):\n", len(fl.Outgoing))
	for _, l := range fl.Outgoing {
		marker := ""
		if l.State == links.LinkBroken {
			marker = "  [broken]"
		}
		fmt.Fprintf(w, "    -> %s%s\n", l.Entry.Target, marker)
	}
	fmt.Fprintf(w, "  incoming (%d):\n", len(fl.Incoming))
	for _, l := range fl.Incoming {
		fmt.Fprintf(w, "    <- %s\n", l.Source)
	}
	return nil
}

// WriteOrphans writes the list of files with no links in either direction.
func WriteOrphans(w io.Writer, orphans []string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"orphans": orphans})
	}
	if len(orphans) == 0 {
		fmt.Fprintln(w, "No orphaned files.")
		return nil
	}
	fmt.Fprintf(w, "Orphaned files (%d):\n", len(orphans))
	for _, p := range orphans {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// WriteSchema writes the inferred frontmatter schema.
func WriteSchema(w io.Writer, schema *models.Schema, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, schema)
	}
	if len(schema.Fields) == 0 {
		fmt.Fprintln(w, "No frontmatter fields found.")
		return nil
	}
	for _, f := range schema.Fields {
		required := ""
		if f.Required {
			required = ", required"
		}
		fmt.Fprintf(w, "%-20s %s (%d files%s)\n", f.Name, f.Type, f.OccurrenceCount, required)
		if f.Description != "" {
			fmt.Fprintf(w, "%-20s %s\n", "", f.Description)
		}
		if len(f.SampleValues) > 0 {
			fmt.Fprintf(w, "%-20s e.g. %s\n", "", strings.Join(f.SampleValues, ", "))
		}
	}
	return nil
}

// WriteClusters writes the cluster summary, one cluster per block.
func WriteClusters(w io.Writer, state *models.ClusterState, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, state)
	}
	if len(state.Clusters) == 0 {
		fmt.Fprintln(w, "No clusters. Run index with clustering enabled.")
		return nil
	}
	for _, c := range state.Clusters {
		fmt.Fprintf(w, "[%d] %s (%d files)\n", c.ID, c.Label, len(c.Members))
		for _, m := range c.Members {
			fmt.Fprintf(w, "    %s\n", m)
		}
	}
	return nil
}

// WriteIngestResult writes the outcome of an index run.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Cancelled {
		fmt.Fprintln(w, "Indexing cancelled; partial progress saved.")
	}
	fmt.Fprintf(w, "Indexed %d file(s), skipped %d unchanged, removed %d stale (%d chunks, %d API calls)\n",
		res.FilesIndexed, res.FilesSkipped, res.FilesRemoved, res.ChunksWritten, res.APICalls)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  warning: %s\n", e)
	}
	return nil
}

// ParseFilterArg parses a -filter value into a metadata filter. Supported
// forms: "field" (exists), "field=value" (equals), "field=a,b,c" (membership)
// and "field=min..max" (inclusive range; either bound may be empty).
func ParseFilterArg(arg string) (models.MetadataFilter, error) {
	field, raw, found := strings.Cut(arg, "=")
	field = strings.TrimSpace(field)
	if field == "" {
		return models.MetadataFilter{}, fmt.Errorf("empty filter field in %q", arg)
	}
	if !found {
		return models.Exists(field), nil
	}
	if strings.Contains(raw, "..") {
		lo, hi, _ := strings.Cut(raw, "..")
		var min, max interface{}
		if lo != "" {
			min = coerceValue(lo)
		}
		if hi != "" {
			max = coerceValue(hi)
		}
		if min == nil && max == nil {
			return models.MetadataFilter{}, fmt.Errorf("range filter %q has no bounds", arg)
		}
		return models.Range(field, min, max), nil
	}
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		values := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			values = append(values, coerceValue(strings.TrimSpace(p)))
		}
		return models.In(field, values...), nil
	}
	return models.Equals(field, coerceValue(raw)), nil
}

// coerceValue interprets a filter operand the way YAML frontmatter would:
// numbers and booleans get their native type, everything else stays a string.
func coerceValue(s string) interface{} {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
