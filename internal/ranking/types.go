// Package ranking rescales and reorders search hits after retrieval: score
// normalization per mode, time decay, link-graph boosting, and the final
// min-score cut.
package ranking

import (
	"time"

	"github.com/hyperjump/mdvdb/internal/models"
)

// ScoringContext carries the query-wide state multipliers need. It is built
// once per query, after the fused candidate list is known.
type ScoringContext struct {
	// Now anchors decay computation so every hit in one query decays
	// against the same instant.
	Now time.Time
	// BoostedFiles are file paths linked to or from the current top hits.
	BoostedFiles map[string]struct{}
}

// NewScoringContext builds a context anchored at the current time.
func NewScoringContext() *ScoringContext {
	return &ScoringContext{
		Now:          time.Now(),
		BoostedFiles: make(map[string]struct{}),
	}
}

// Multiplier adjusts one hit's score. Implementations must be pure with
// respect to the context and result.
type Multiplier interface {
	// Multiply returns the adjusted score for the hit.
	Multiply(ctx *ScoringContext, hit *models.SearchResult, score float64) float64
	// Name identifies the multiplier in logs.
	Name() string
}
