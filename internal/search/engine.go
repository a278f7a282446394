// Package search runs queries against the vector store and lexical index,
// fuses the retrieval paths, and applies filtering and rescoring.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/mdvdb/internal/config"
	"github.com/hyperjump/mdvdb/internal/embedding"
	"github.com/hyperjump/mdvdb/internal/keyword"
	"github.com/hyperjump/mdvdb/internal/models"
	"github.com/hyperjump/mdvdb/internal/ranking"
	"github.com/hyperjump/mdvdb/internal/vector"
)

const (
	// overFetchSingle is the candidate multiplier for single-path modes.
	overFetchSingle = 3
	// overFetchHybrid is the per-path candidate multiplier for hybrid mode.
	overFetchHybrid = 5
	// linkBoostTopFiles is how many top files seed the link boost set.
	linkBoostTopFiles = 3
)

// Engine answers search queries against one open index pair.
type Engine struct {
	store    *vector.Store
	index    *keyword.Index
	spell    *keyword.SpellChecker
	embedder embedding.Provider
	cfg      config.SearchConfig
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a search engine over the given indexes.
func NewEngine(store *vector.Store, index *keyword.Index, embedder embedding.Provider, cfg config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		index:    index,
		spell:    keyword.NewSpellChecker(index),
		embedder: embedder,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs one query through retrieval, fusion, filtering, and rescoring.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := ProcessQuery(q, e.cfg); err != nil {
		return nil, err
	}

	var (
		candidates map[string]float64
		err        error
	)
	switch q.Mode {
	case models.ModeSemantic:
		candidates, err = e.semantic(ctx, q.Query, q.Limit*overFetchSingle)
	case models.ModeLexical:
		candidates, err = e.lexical(ctx, q.Query, q.Limit*overFetchSingle)
	case models.ModeHybrid:
		candidates, err = e.hybrid(ctx, q.Query, q.Limit*overFetchHybrid)
	default:
		return nil, fmt.Errorf("unknown search mode: %q", q.Mode)
	}
	if err != nil {
		return nil, err
	}

	hits := e.enrich(candidates, q)

	sctx := ranking.NewScoringContext()
	if q.DecayEnabled {
		ranking.ApplyMultipliers(sctx, hits, []ranking.Multiplier{
			ranking.NewDecayMultiplier(q.DecayHalfLife),
		})
	}
	ranking.SortByScore(hits)
	if q.BoostLinks {
		sctx.BoostedFiles = ranking.BoostedFiles(e.store.Links(), topFilePaths(hits, linkBoostTopFiles))
		ranking.ApplyMultipliers(sctx, hits, []ranking.Multiplier{
			ranking.NewLinkBoostMultiplier(),
		})
	}
	hits = ranking.FilterByMinScore(hits, q.MinScore)
	ranking.SortByScore(hits)
	hits = ranking.TopN(hits, q.Limit)

	resp := &models.SearchResponse{
		Results:   hits,
		Query:     q.Query,
		Mode:      q.Mode,
		QueryTime: time.Since(start).Milliseconds(),
	}
	if len(hits) == 0 {
		resp.Suggestions = e.suggestions(q.Query)
	}

	e.logger.Debug("search completed",
		zap.String("query", q.Query),
		zap.String("mode", string(q.Mode)),
		zap.Int("results", len(hits)),
		zap.Int64("took_ms", resp.QueryTime))
	return resp, nil
}

// semantic embeds the query and ranks chunks by cosine similarity, clamped
// into [0,1] so negative similarities score 0.
func (e *Engine) semantic(ctx context.Context, query string, k int) (map[string]float64, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches := e.store.Search(vec, k)
	out := make(map[string]float64, len(matches))
	for _, m := range matches {
		score := m.Score
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		out[m.ChunkID] = score
	}
	return out, nil
}

// lexical runs the BM25 path and squashes scores into [0,1).
func (e *Engine) lexical(ctx context.Context, query string, k int) (map[string]float64, error) {
	hits, err := e.index.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		out[h.ChunkID] = ranking.NormalizeLexical(h.Score, e.cfg.BM25NormK)
	}
	return out, nil
}

// hybrid runs both paths concurrently and fuses them with RRF.
func (e *Engine) hybrid(ctx context.Context, query string, k int) (map[string]float64, error) {
	var semList, lexList RankList

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
		for _, m := range e.store.Search(vec, k) {
			semList = append(semList, m.ChunkID)
		}
		return nil
	})
	g.Go(func() error {
		hits, err := e.index.Search(gctx, query, k)
		if err != nil {
			return fmt.Errorf("lexical search failed: %w", err)
		}
		for _, h := range hits {
			lexList = append(lexList, h.ChunkID)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := []RankList{semList, lexList}
	raw := FuseRRF(lists, e.cfg.RRFK)
	out := make(map[string]float64, len(raw))
	for id, r := range raw {
		out[id] = ranking.NormalizeHybrid(r, len(lists), e.cfg.RRFK)
	}
	return out, nil
}

// suggestions proposes corrected terms for a query that returned nothing.
func (e *Engine) suggestions(query string) []string {
	rewritten, changed := e.spell.SuggestQuery(query)
	if !changed {
		return nil
	}
	original := strings.Fields(strings.ToLower(query))
	corrected := strings.Fields(rewritten)
	var terms []string
	for i := range corrected {
		if i < len(original) && corrected[i] != original[i] {
			terms = append(terms, corrected[i])
		}
	}
	return terms
}

// topFilePaths returns the first n distinct file paths in rank order.
func topFilePaths(hits []*models.SearchResult, n int) []string {
	seen := make(map[string]struct{}, n)
	var out []string
	for _, h := range hits {
		if _, ok := seen[h.File.Path]; ok {
			continue
		}
		seen[h.File.Path] = struct{}{}
		out = append(out, h.File.Path)
		if len(out) == n {
			break
		}
	}
	return out
}
