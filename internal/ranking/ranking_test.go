package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/hyperjump/mdvdb/internal/models"
)

func hit(chunkID, path string, score float64) *models.SearchResult {
	return &models.SearchResult{
		ChunkID: chunkID,
		Score:   score,
		File:    models.FileMeta{Path: path},
	}
}

func TestNormalizeLexical(t *testing.T) {
	tests := []struct {
		score, k float64
		want     float64
	}{
		{0, 10, 0},
		{-1, 10, 0},
		{10, 10, 0.5},
		{30, 10, 0.75},
	}
	for _, tt := range tests {
		if got := NormalizeLexical(tt.score, tt.k); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeLexical(%v, %v) = %v, want %v", tt.score, tt.k, got, tt.want)
		}
	}
}

func TestNormalizeHybrid(t *testing.T) {
	// Rank 1 in both lists with rrf_k=60: raw = 2/61, best = 2/61.
	raw := 2.0 / 61.0
	if got := NormalizeHybrid(raw, 2, 60); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("perfect hit = %v, want 1", got)
	}
	if got := NormalizeHybrid(1.0/61.0, 2, 60); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("single-list hit = %v, want 0.5", got)
	}
	if got := NormalizeHybrid(0, 2, 60); got != 0 {
		t.Errorf("zero raw = %v", got)
	}
}

func TestDecayMultiplier(t *testing.T) {
	ctx := NewScoringContext()
	m := NewDecayMultiplier(30)

	h := hit("a.md#0", "a.md", 1.0)
	h.File.ModifiedAt = ctx.Now.Add(-30 * 24 * time.Hour).Unix()
	if got := m.Multiply(ctx, h, 1.0); math.Abs(got-0.5) > 1e-3 {
		t.Errorf("one half-life = %v, want 0.5", got)
	}

	h.File.ModifiedAt = ctx.Now.Add(-60 * 24 * time.Hour).Unix()
	if got := m.Multiply(ctx, h, 1.0); math.Abs(got-0.25) > 1e-3 {
		t.Errorf("two half-lives = %v, want 0.25", got)
	}
}

func TestDecayMultiplierPassThrough(t *testing.T) {
	ctx := NewScoringContext()
	m := NewDecayMultiplier(30)

	h := hit("a.md#0", "a.md", 1.0)
	if got := m.Multiply(ctx, h, 1.0); got != 1.0 {
		t.Errorf("zero mtime decayed: %v", got)
	}

	h.File.ModifiedAt = ctx.Now.Add(time.Hour).Unix()
	if got := m.Multiply(ctx, h, 1.0); got != 1.0 {
		t.Errorf("future mtime decayed: %v", got)
	}
}

func TestLinkBoostMultiplier(t *testing.T) {
	ctx := NewScoringContext()
	ctx.BoostedFiles["b.md"] = struct{}{}
	m := NewLinkBoostMultiplier()

	if got := m.Multiply(ctx, hit("b.md#0", "b.md", 0.5), 0.5); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("boosted = %v, want 0.6", got)
	}
	if got := m.Multiply(ctx, hit("a.md#0", "a.md", 0.5), 0.5); got != 0.5 {
		t.Errorf("unboosted = %v", got)
	}
}

func TestBoostedFiles(t *testing.T) {
	g := &models.LinkGraph{Forward: map[string][]models.LinkEntry{
		"top.md":   {{Source: "top.md", Target: "out.md"}},
		"inner.md": {{Source: "inner.md", Target: "top.md"}},
		"far.md":   {{Source: "far.md", Target: "out.md"}},
	}}
	boosted := BoostedFiles(g, []string{"top.md"})
	if _, ok := boosted["out.md"]; !ok {
		t.Error("outgoing target missing")
	}
	if _, ok := boosted["inner.md"]; !ok {
		t.Error("incoming source missing")
	}
	if _, ok := boosted["far.md"]; ok {
		t.Error("unrelated file boosted")
	}
}

func TestBoostedFilesNilGraph(t *testing.T) {
	if got := BoostedFiles(nil, []string{"a.md"}); len(got) != 0 {
		t.Errorf("boosted = %v", got)
	}
}

func TestRescore(t *testing.T) {
	ctx := NewScoringContext()
	ctx.BoostedFiles["b.md"] = struct{}{}
	hits := []*models.SearchResult{
		hit("a.md#0", "a.md", 0.50),
		hit("b.md#0", "b.md", 0.48),
		hit("c.md#0", "c.md", 0.10),
	}
	got := Rescore(ctx, hits, []Multiplier{NewLinkBoostMultiplier()}, 0.2, 10)
	if len(got) != 2 {
		t.Fatalf("hits = %+v", got)
	}
	if got[0].ChunkID != "b.md#0" {
		t.Errorf("boosted hit not first: %s", got[0].ChunkID)
	}
	if math.Abs(got[0].Score-0.576) > 1e-9 {
		t.Errorf("score = %v", got[0].Score)
	}
}

func TestRescoreTruncates(t *testing.T) {
	ctx := NewScoringContext()
	hits := []*models.SearchResult{
		hit("a.md#0", "a.md", 0.9),
		hit("b.md#0", "b.md", 0.8),
		hit("c.md#0", "c.md", 0.7),
	}
	got := Rescore(ctx, hits, nil, 0, 2)
	if len(got) != 2 || got[0].ChunkID != "a.md#0" || got[1].ChunkID != "b.md#0" {
		t.Errorf("hits = %+v", got)
	}
}

func TestSortByScoreStableTieBreak(t *testing.T) {
	hits := []*models.SearchResult{
		hit("z.md#0", "z.md", 0.5),
		hit("a.md#0", "a.md", 0.5),
	}
	SortByScore(hits)
	if hits[0].ChunkID != "a.md#0" {
		t.Errorf("tie break order = %s, %s", hits[0].ChunkID, hits[1].ChunkID)
	}
}
