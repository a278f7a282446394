package search

import (
	"encoding/json"

	"github.com/hyperjump/mdvdb/internal/config"
	"github.com/hyperjump/mdvdb/internal/models"
)

// ProcessQuery fills configured defaults into zero-valued query fields and
// validates the result.
func ProcessQuery(q *models.SearchQuery, cfg config.SearchConfig) error {
	if q.Limit <= 0 && cfg.DefaultLimit > 0 {
		q.Limit = cfg.DefaultLimit
	}
	if q.MinScore == 0 {
		q.MinScore = cfg.DefaultMinScore
	}
	if q.Mode == "" && cfg.DefaultMode != "" {
		q.Mode = models.SearchMode(cfg.DefaultMode)
	}
	if !q.DecayEnabled && cfg.DecayEnabled {
		q.DecayEnabled = true
	}
	if q.DecayEnabled && q.DecayHalfLife <= 0 {
		q.DecayHalfLife = cfg.DecayHalfLifeDays
	}
	return q.Validate()
}

// enrich turns scored candidates into full results, dropping any that fail
// the query's path prefix or metadata filters.
func (e *Engine) enrich(candidates map[string]float64, q *models.SearchQuery) []*models.SearchResult {
	hits := make([]*models.SearchResult, 0, len(candidates))
	for id, score := range candidates {
		chunk, ok := e.store.Chunk(id)
		if !ok {
			continue
		}
		if q.PathPrefix != "" && !hasPathPrefix(chunk.SourcePath, q.PathPrefix) {
			continue
		}

		file, _ := e.store.File(chunk.SourcePath)
		frontmatter := parseFrontmatter(file)
		if !matchesFilters(frontmatter, q.Filters) {
			continue
		}

		meta := models.FileMeta{
			Path:           chunk.SourcePath,
			PathComponents: models.PathComponents(chunk.SourcePath),
			Frontmatter:    frontmatter,
			ModifiedAt:     e.store.FileMtime(chunk.SourcePath),
		}
		if file != nil {
			meta.FileSize = file.FileSize
		}
		hits = append(hits, &models.SearchResult{
			ChunkID:    chunk.ID,
			Score:      score,
			Breadcrumb: chunk.Breadcrumb,
			Content:    chunk.Content,
			Snippet:    Snippet(chunk.Content, snippetLength),
			StartLine:  chunk.StartLine,
			EndLine:    chunk.EndLine,
			File:       meta,
		})
	}
	return hits
}

// hasPathPrefix matches whole path segments, so "docs" matches "docs/a.md"
// but not "docs-old/a.md".
func hasPathPrefix(path, prefix string) bool {
	if len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || prefix[len(prefix)-1] == '/'
}

// matchesFilters evaluates the ordered filters with AND semantics.
func matchesFilters(frontmatter map[string]interface{}, filters []models.MetadataFilter) bool {
	for _, f := range filters {
		if !f.Matches(frontmatter) {
			return false
		}
	}
	return true
}

func parseFrontmatter(file *models.StoredFile) map[string]interface{} {
	if file == nil || file.FrontmatterJSON == "" {
		return nil
	}
	var fm map[string]interface{}
	if err := json.Unmarshal([]byte(file.FrontmatterJSON), &fm); err != nil {
		return nil
	}
	return fm
}
