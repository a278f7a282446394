package keyword

import "testing"

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b    string
		maxDist int
		want    int
	}{
		{"", "", 2, 0},
		{"abc", "abc", 2, 0},
		{"", "abc", 3, 3},
		{"kitten", "sitting", 3, 3},
		{"zebra", "zebru", 2, 1},
		{"flaw", "lawn", 2, 2},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b, tt.maxDist); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevenshteinBound(t *testing.T) {
	if got := levenshtein("kitten", "sitting", 2); got <= 2 {
		t.Errorf("bounded distance = %d, want > 2", got)
	}
	if got := levenshtein("a", "abcdef", 2); got <= 2 {
		t.Errorf("length-gap cutoff = %d, want > 2", got)
	}
}

func spellIndex(t *testing.T) *Index {
	t.Helper()
	idx := openTestIndex(t)
	upsert(t, idx, "a.md",
		chunk("a.md", 0, "zebra zebra piano"),
		chunk("a.md", 1, "wizard robot"))
	return idx
}

func TestSuggestCloseTerm(t *testing.T) {
	s := NewSpellChecker(spellIndex(t))
	sugg := s.Suggest("zebru")
	if len(sugg) == 0 || sugg[0].Term != "zebra" {
		t.Fatalf("Suggest(zebru) = %+v", sugg)
	}
	if sugg[0].Distance != 1 {
		t.Errorf("distance = %d", sugg[0].Distance)
	}
}

func TestSuggestNoNearTerm(t *testing.T) {
	s := NewSpellChecker(spellIndex(t))
	if sugg := s.Suggest("xylophone"); len(sugg) != 0 {
		t.Errorf("Suggest(xylophone) = %+v", sugg)
	}
}

func TestSuggestQueryRewrites(t *testing.T) {
	s := NewSpellChecker(spellIndex(t))
	got, changed := s.SuggestQuery("robat piano")
	if !changed || got != "robot piano" {
		t.Errorf("SuggestQuery = %q, %v", got, changed)
	}
}

func TestSuggestQueryKnownTermsUnchanged(t *testing.T) {
	s := NewSpellChecker(spellIndex(t))
	got, changed := s.SuggestQuery("piano wizard")
	if changed || got != "piano wizard" {
		t.Errorf("SuggestQuery = %q, %v", got, changed)
	}
}

func TestRefreshPicksUpNewTerms(t *testing.T) {
	idx := spellIndex(t)
	s := NewSpellChecker(idx)
	if sugg := s.Suggest("quasar"); len(sugg) != 0 {
		t.Fatalf("unexpected suggestion before ingest: %+v", sugg)
	}
	upsert(t, idx, "b.md", chunk("b.md", 0, "quasar jets"))
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	sugg := s.Suggest("quasa")
	if len(sugg) == 0 || sugg[0].Term != "quasar" {
		t.Errorf("Suggest(quasa) after refresh = %+v", sugg)
	}
}
