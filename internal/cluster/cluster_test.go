package cluster

import (
	"math"
	"testing"

	"github.com/hyperjump/mdvdb/internal/models"
)

func TestComputeK(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 2},
		{1, 2},
		{4, 2},
		{8, 2},
		{200, 10},
		{10000, 50},
		{1000000, 50},
	}
	for _, tt := range tests {
		if got := computeK(tt.n); got != tt.want {
			t.Errorf("computeK(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestTokenizeDropsStopWordsAndShortTerms(t *testing.T) {
	got := tokenize("The quick brown fox is on a database migration")
	want := []string{"quick", "brown", "fox", "database", "migration"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokenize[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	texts := []string{
		"postgres replication postgres tuning",
		"postgres backup strategies",
		"kubernetes scheduling",
	}
	kws := ExtractKeywords(texts, 5)
	if len(kws) == 0 {
		t.Fatal("no keywords")
	}
	for _, kw := range kws {
		if isStopWord(kw) {
			t.Errorf("stop word in keywords: %q", kw)
		}
	}
}

func TestExtractKeywordsRespectsN(t *testing.T) {
	texts := []string{"alpha beta gamma delta epsilon zeta"}
	if kws := ExtractKeywords(texts, 2); len(kws) != 2 {
		t.Errorf("keywords = %v, want 2", kws)
	}
	if kws := ExtractKeywords(nil, 5); kws != nil {
		t.Errorf("keywords for empty input = %v", kws)
	}
	if kws := ExtractKeywords(texts, 0); kws != nil {
		t.Errorf("keywords for n=0 = %v", kws)
	}
}

func TestLabel(t *testing.T) {
	if got := Label([]string{"alpha", "beta", "gamma", "delta"}); got != "alpha / beta / gamma" {
		t.Errorf("Label = %q", got)
	}
	if got := Label([]string{"solo"}); got != "solo" {
		t.Errorf("Label = %q", got)
	}
	if got := Label(nil); got != "Unlabeled" {
		t.Errorf("Label = %q", got)
	}
}

func TestClusterAllEmpty(t *testing.T) {
	c := New(10)
	state, err := c.ClusterAll(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Clusters) != 0 {
		t.Errorf("clusters = %+v", state.Clusters)
	}
}

func TestClusterAllSingleDocument(t *testing.T) {
	c := New(10)
	state, err := c.ClusterAll(
		map[string][]float32{"a.md": {1, 0, 0}},
		map[string]string{"a.md": "zebra habitat grasslands"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Clusters) != 1 {
		t.Fatalf("clusters = %+v", state.Clusters)
	}
	cl := state.Clusters[0]
	if len(cl.Members) != 1 || cl.Members[0] != "a.md" {
		t.Errorf("members = %v", cl.Members)
	}
	if cl.Label == "Unlabeled" {
		t.Errorf("label = %q", cl.Label)
	}
	if state.DocsAtLastRebalance != 1 {
		t.Errorf("DocsAtLastRebalance = %d", state.DocsAtLastRebalance)
	}
}

func TestClusterAllSkipsZeroNormVectors(t *testing.T) {
	c := New(10)
	state, err := c.ClusterAll(
		map[string][]float32{
			"a.md": {1, 0},
			"z.md": {0, 0},
		},
		map[string]string{"a.md": "zebra", "z.md": "empty"},
	)
	if err != nil {
		t.Fatal(err)
	}
	for _, cl := range state.Clusters {
		for _, m := range cl.Members {
			if m == "z.md" {
				t.Error("zero-norm vector assigned to a cluster")
			}
		}
	}
}

func TestClusterAllAssignsEveryDocument(t *testing.T) {
	vectors := make(map[string][]float32)
	texts := make(map[string]string)
	paths := []string{"a.md", "b.md", "c.md", "d.md", "e.md", "f.md"}
	for i, p := range paths {
		vec := make([]float32, 4)
		vec[i%4] = 1
		vec[(i+1)%4] = 0.2
		vectors[p] = vec
		texts[p] = "document content number"
	}

	c := New(10)
	state, err := c.ClusterAll(vectors, texts)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, cl := range state.Clusters {
		for _, m := range cl.Members {
			if seen[m] {
				t.Errorf("document %s in multiple clusters", m)
			}
			seen[m] = true
		}
		if len(cl.Centroid) != 4 {
			t.Errorf("centroid dims = %d", len(cl.Centroid))
		}
	}
	if len(seen) != len(paths) {
		t.Errorf("assigned %d of %d documents", len(seen), len(paths))
	}
}

func TestAssignToNearestPicksClosest(t *testing.T) {
	state := &models.ClusterState{
		Clusters: []models.ClusterInfo{
			{ID: 0, Centroid: []float32{1, 0}, Members: []string{"a.md"}},
			{ID: 1, Centroid: []float32{0, 1}, Members: []string{"b.md"}},
		},
	}
	c := New(10)
	id, err := c.AssignToNearest(state, "c.md", []float32{0.1, 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("assigned to cluster %d, want 1", id)
	}
	if len(state.Clusters[1].Members) != 2 || state.Clusters[1].Members[1] != "c.md" {
		t.Errorf("members = %v", state.Clusters[1].Members)
	}
	if state.DocsSinceRebalance != 1 {
		t.Errorf("DocsSinceRebalance = %d", state.DocsSinceRebalance)
	}
}

func TestAssignToNearestUpdatesCentroid(t *testing.T) {
	state := &models.ClusterState{
		Clusters: []models.ClusterInfo{
			{ID: 0, Centroid: []float32{1, 0}, Members: []string{"a.md"}},
		},
	}
	c := New(10)
	if _, err := c.AssignToNearest(state, "b.md", []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	got := state.Clusters[0].Centroid
	if math.Abs(float64(got[0])-0.5) > 1e-6 || math.Abs(float64(got[1])-0.5) > 1e-6 {
		t.Errorf("centroid = %v, want [0.5 0.5]", got)
	}
}

func TestAssignToNearestNoClusters(t *testing.T) {
	c := New(10)
	if _, err := c.AssignToNearest(&models.ClusterState{}, "a.md", []float32{1}); err == nil {
		t.Error("expected error for empty state")
	}
}

func TestMaybeRebalanceBelowThreshold(t *testing.T) {
	c := New(5)
	state := &models.ClusterState{DocsSinceRebalance: 4}
	ran, err := c.MaybeRebalance(state, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("rebalanced below threshold")
	}
}

func TestMaybeRebalanceAtThreshold(t *testing.T) {
	c := New(2)
	state := &models.ClusterState{
		Clusters:           []models.ClusterInfo{{ID: 0, Centroid: []float32{1, 0}, Members: []string{"a.md", "b.md", "c.md"}}},
		DocsSinceRebalance: 2,
	}
	vectors := map[string][]float32{
		"a.md": {1, 0},
		"b.md": {0.9, 0.1},
		"c.md": {0, 1},
	}
	texts := map[string]string{
		"a.md": "zebra habitat",
		"b.md": "zebra stripes",
		"c.md": "piano tuning",
	}
	ran, err := c.MaybeRebalance(state, vectors, texts)
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected rebalance to run")
	}
	if state.DocsSinceRebalance != 0 {
		t.Errorf("DocsSinceRebalance = %d after rebalance", state.DocsSinceRebalance)
	}
	if state.DocsAtLastRebalance != 3 {
		t.Errorf("DocsAtLastRebalance = %d", state.DocsAtLastRebalance)
	}
}
