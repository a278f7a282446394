// Package cluster groups documents by embedding similarity with k-means and
// labels each group using TF-IDF keywords extracted from member texts.
package cluster

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/models"
	"github.com/hyperjump/mdvdb/pkg/utils"
)

const (
	minClusters  = 2
	maxClusters  = 50
	keywordCount = 5
	labelWords   = 3
)

// Clusterer runs full and incremental clustering passes.
type Clusterer struct {
	rebalanceThreshold int
	logger             *zap.Logger
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithLogger sets the logger used by the clusterer.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Clusterer) {
		c.logger = logger
	}
}

// New builds a Clusterer. rebalanceThreshold is the number of incremental
// assignments after which MaybeRebalance triggers a full re-clustering.
func New(rebalanceThreshold int, opts ...Option) *Clusterer {
	c := &Clusterer{
		rebalanceThreshold: rebalanceThreshold,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RebalanceThreshold returns the configured threshold.
func (c *Clusterer) RebalanceThreshold() int {
	return c.rebalanceThreshold
}

// docObservation carries the document identity through the k-means run.
type docObservation struct {
	path   string
	coords clusters.Coordinates
}

func (o docObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o docObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// ClusterAll runs a full k-means pass. vectors maps document path to its
// embedding; texts maps document path to its content for keyword
// extraction. Zero-norm vectors are left out.
func (c *Clusterer) ClusterAll(vectors map[string][]float32, texts map[string]string) (*models.ClusterState, error) {
	paths := make([]string, 0, len(vectors))
	for path, vec := range vectors {
		if norm(vec) == 0 {
			c.logger.Debug("skipping zero-norm vector", zap.String("path", path))
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	n := len(paths)
	if n == 0 {
		return &models.ClusterState{}, nil
	}
	if n == 1 {
		keywords := ExtractKeywords([]string{texts[paths[0]]}, keywordCount)
		return &models.ClusterState{
			Clusters: []models.ClusterInfo{{
				ID:       0,
				Label:    Label(keywords),
				Centroid: vectors[paths[0]],
				Members:  paths,
				Keywords: keywords,
			}},
			DocsAtLastRebalance: 1,
		}, nil
	}

	k := computeK(n)
	if k > n {
		k = n
	}
	obs := make(clusters.Observations, n)
	for i, path := range paths {
		vec := vectors[path]
		coords := make(clusters.Coordinates, len(vec))
		for j, v := range vec {
			coords[j] = float64(v)
		}
		obs[i] = docObservation{path: path, coords: coords}
	}

	km := kmeans.New()
	partitioned, err := km.Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("k-means failed: %w", err)
	}

	state := &models.ClusterState{DocsAtLastRebalance: n}
	for i, cl := range partitioned {
		members := make([]string, 0, len(cl.Observations))
		for _, o := range cl.Observations {
			members = append(members, o.(docObservation).path)
		}
		if len(members) == 0 {
			continue
		}
		sort.Strings(members)

		centroid := make([]float32, len(cl.Center))
		for j, v := range cl.Center {
			centroid[j] = float32(v)
		}
		memberTexts := make([]string, 0, len(members))
		for _, path := range members {
			if t, ok := texts[path]; ok {
				memberTexts = append(memberTexts, t)
			}
		}
		keywords := ExtractKeywords(memberTexts, keywordCount)
		state.Clusters = append(state.Clusters, models.ClusterInfo{
			ID:       i,
			Label:    Label(keywords),
			Centroid: centroid,
			Members:  members,
			Keywords: keywords,
		})
	}

	c.logger.Info("clustered documents",
		zap.Int("documents", n),
		zap.Int("clusters", len(state.Clusters)))
	return state, nil
}

// AssignToNearest adds one document to the cluster whose centroid is most
// similar, updating that centroid as a running mean. Returns the cluster ID.
func (c *Clusterer) AssignToNearest(state *models.ClusterState, path string, vec []float32) (int, error) {
	if len(state.Clusters) == 0 {
		return 0, fmt.Errorf("no clusters exist for assignment")
	}

	best := 0
	bestSim := math.Inf(-1)
	for i := range state.Clusters {
		sim := utils.CosineSimilarity(vec, state.Clusters[i].Centroid)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}

	cl := &state.Clusters[best]
	n := float32(len(cl.Members))
	for i := range cl.Centroid {
		cl.Centroid[i] = (cl.Centroid[i]*n + vec[i]) / (n + 1)
	}
	cl.Members = append(cl.Members, path)
	state.DocsSinceRebalance++

	c.logger.Debug("assigned document to cluster",
		zap.String("path", path),
		zap.Int("cluster", cl.ID),
		zap.Float64("similarity", bestSim))
	return cl.ID, nil
}

// MaybeRebalance re-clusters from scratch once enough incremental
// assignments have accumulated. Reports whether a rebalance ran.
func (c *Clusterer) MaybeRebalance(state *models.ClusterState, vectors map[string][]float32, texts map[string]string) (bool, error) {
	if state.DocsSinceRebalance < c.rebalanceThreshold {
		return false, nil
	}
	c.logger.Info("rebalancing clusters",
		zap.Int("docs_since_rebalance", state.DocsSinceRebalance))
	fresh, err := c.ClusterAll(vectors, texts)
	if err != nil {
		return false, err
	}
	*state = *fresh
	return true, nil
}

// ExtractKeywords ranks terms across the given texts by TF-IDF and returns
// the top n. Tokens shorter than three characters and stop words are
// dropped.
func ExtractKeywords(texts []string, n int) []string {
	if len(texts) == 0 || n <= 0 {
		return nil
	}
	tokenized := make([][]string, len(texts))
	for i, t := range texts {
		tokenized[i] = tokenize(t)
	}

	tf := make(map[string]float64)
	df := make(map[string]float64)
	for _, terms := range tokenized {
		unique := make(map[string]struct{})
		for _, term := range terms {
			tf[term]++
			unique[term] = struct{}{}
		}
		for term := range unique {
			df[term]++
		}
	}

	type scored struct {
		term  string
		score float64
	}
	ranked := make([]scored, 0, len(tf))
	numDocs := float64(len(texts))
	for term, f := range tf {
		idf := math.Log(numDocs / df[term])
		ranked = append(ranked, scored{term: term, score: f * idf})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].term < ranked[j].term
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.term
	}
	return out
}

// Label joins the top keywords into a human-readable cluster label.
func Label(keywords []string) string {
	if len(keywords) == 0 {
		return "Unlabeled"
	}
	if len(keywords) > labelWords {
		keywords = keywords[:labelWords]
	}
	return strings.Join(keywords, " / ")
}

// computeK picks the cluster count for n documents: clamp(sqrt(n/2), 2, 50).
func computeK(n int) int {
	k := int(math.Sqrt(float64(n) / 2))
	if k < minClusters {
		return minClusters
	}
	if k > maxClusters {
		return maxClusters
	}
	return k
}

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return sum
}

func tokenize(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127 && isLetterOrDigit(r))
	})
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if len(w) < 3 || isStopWord(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isLetterOrDigit(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}
