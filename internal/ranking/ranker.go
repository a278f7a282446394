package ranking

import (
	"sort"

	"github.com/hyperjump/mdvdb/internal/models"
)

// Rescore runs the full post-retrieval adjustment: multipliers in order,
// min-score cut, stable sort by score descending, truncation to limit.
func Rescore(ctx *ScoringContext, hits []*models.SearchResult, multipliers []Multiplier, minScore float64, limit int) []*models.SearchResult {
	ApplyMultipliers(ctx, hits, multipliers)
	hits = FilterByMinScore(hits, minScore)
	SortByScore(hits)
	return TopN(hits, limit)
}

// FilterByMinScore drops hits scoring below the threshold.
func FilterByMinScore(hits []*models.SearchResult, minScore float64) []*models.SearchResult {
	if minScore <= 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= minScore {
			kept = append(kept, h)
		}
	}
	return kept
}

// SortByScore orders hits by score descending, breaking ties by chunk ID so
// repeated queries return a stable order.
func SortByScore(hits []*models.SearchResult) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// TopN truncates to the first n hits.
func TopN(hits []*models.SearchResult, n int) []*models.SearchResult {
	if n <= 0 || n >= len(hits) {
		return hits
	}
	return hits[:n]
}
