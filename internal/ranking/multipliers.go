package ranking

import (
	"math"
	"time"

	"github.com/hyperjump/mdvdb/internal/models"
)

// LinkBoostFactor is applied to hits from files connected to the top results.
const LinkBoostFactor = 1.2

// DecayMultiplier applies exponential time decay: a hit loses half its score
// every halfLifeDays since the file was last modified.
type DecayMultiplier struct {
	halfLifeDays float64
}

// NewDecayMultiplier creates a decay multiplier with the given half-life.
func NewDecayMultiplier(halfLifeDays float64) *DecayMultiplier {
	return &DecayMultiplier{halfLifeDays: halfLifeDays}
}

// Name returns the multiplier name.
func (m *DecayMultiplier) Name() string {
	return "decay"
}

// Multiply applies the decay factor. Hits without a modification time pass
// through unchanged.
func (m *DecayMultiplier) Multiply(ctx *ScoringContext, hit *models.SearchResult, score float64) float64 {
	if m.halfLifeDays <= 0 || hit.File.ModifiedAt == 0 {
		return score
	}
	age := ctx.Now.Sub(time.Unix(hit.File.ModifiedAt, 0))
	days := age.Hours() / 24
	if days <= 0 {
		return score
	}
	return score * math.Pow(0.5, days/m.halfLifeDays)
}

// LinkBoostMultiplier boosts hits from files connected to the query's top
// results in the link graph.
type LinkBoostMultiplier struct {
	factor float64
}

// NewLinkBoostMultiplier creates a link boost multiplier.
func NewLinkBoostMultiplier() *LinkBoostMultiplier {
	return &LinkBoostMultiplier{factor: LinkBoostFactor}
}

// Name returns the multiplier name.
func (m *LinkBoostMultiplier) Name() string {
	return "link_boost"
}

// Multiply boosts the score when the hit's file is in the boosted set.
func (m *LinkBoostMultiplier) Multiply(ctx *ScoringContext, hit *models.SearchResult, score float64) float64 {
	if _, ok := ctx.BoostedFiles[hit.File.Path]; ok {
		return score * m.factor
	}
	return score
}

// BoostedFiles collects the files linked to or from any of topFiles.
func BoostedFiles(g *models.LinkGraph, topFiles []string) map[string]struct{} {
	boosted := make(map[string]struct{})
	if g == nil || len(topFiles) == 0 {
		return boosted
	}
	top := make(map[string]struct{}, len(topFiles))
	for _, f := range topFiles {
		top[f] = struct{}{}
	}
	for _, f := range topFiles {
		for _, e := range g.Forward[f] {
			boosted[e.Target] = struct{}{}
		}
	}
	for source, entries := range g.Forward {
		for _, e := range entries {
			if _, ok := top[e.Target]; ok {
				boosted[source] = struct{}{}
			}
		}
	}
	return boosted
}

// ApplyMultipliers runs each hit through the multiplier chain in order.
func ApplyMultipliers(ctx *ScoringContext, hits []*models.SearchResult, multipliers []Multiplier) {
	for _, hit := range hits {
		score := hit.Score
		for _, m := range multipliers {
			score = m.Multiply(ctx, hit, score)
		}
		hit.Score = score
	}
}
