package keyword

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Suggestion is one candidate replacement for an unknown query term.
type Suggestion struct {
	Term     string
	Distance int
	Count    int // documents containing the term
}

// SpellChecker suggests replacements for query terms that do not occur in
// the index, using the content field dictionary. Intended for searches that
// return zero hits. Terms come back analyzed (lowercased, stemmed), which is
// fine for re-running the query but not for display as-is.
type SpellChecker struct {
	idx            *Index
	maxDistance    int
	maxSuggestions int

	mu      sync.RWMutex
	entries []dictEntry
	known   map[string]struct{}
	loaded  bool
}

type dictEntry struct {
	term  string
	count int
}

// SpellOption configures a SpellChecker.
type SpellOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMaxSuggestions caps the number of suggestions per term.
func WithMaxSuggestions(n int) SpellOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSpellChecker builds a checker over the given index. The dictionary is
// loaded lazily on first use; call Refresh after an ingest to pick up new
// terms.
func NewSpellChecker(idx *Index, opts ...SpellOption) *SpellChecker {
	s := &SpellChecker{
		idx:            idx,
		maxDistance:    2,
		maxSuggestions: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the term dictionary from the index.
func (s *SpellChecker) Refresh() error {
	dict, err := s.idx.idx.FieldDict("content")
	if err != nil {
		return fmt.Errorf("failed to open field dictionary: %w", err)
	}
	defer dict.Close()

	var entries []dictEntry
	known := make(map[string]struct{})
	for {
		e, err := dict.Next()
		if err != nil {
			return fmt.Errorf("failed to read field dictionary: %w", err)
		}
		if e == nil {
			break
		}
		entries = append(entries, dictEntry{term: e.Term, count: int(e.Count)})
		known[e.Term] = struct{}{}
	}

	s.mu.Lock()
	s.entries = entries
	s.known = known
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *SpellChecker) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Refresh()
}

// Suggest returns ranked replacements for a single term: smallest edit
// distance first, ties broken by document count.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	if err := s.ensureLoaded(); err != nil {
		return nil
	}
	term = strings.ToLower(term)

	s.mu.RLock()
	entries := s.entries
	s.mu.RUnlock()

	var out []Suggestion
	for _, e := range entries {
		if e.term == term {
			continue
		}
		d := levenshtein(term, e.term, s.maxDistance)
		if d > s.maxDistance {
			continue
		}
		out = append(out, Suggestion{Term: e.term, Distance: d, Count: e.count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// SuggestQuery rewrites a whole query, replacing each term unknown to the
// index with its best suggestion. The second return value reports whether
// anything changed.
func (s *SpellChecker) SuggestQuery(query string) (string, bool) {
	if err := s.ensureLoaded(); err != nil {
		return query, false
	}

	terms := strings.Fields(strings.ToLower(query))
	changed := false
	for i, term := range terms {
		s.mu.RLock()
		_, ok := s.known[term]
		s.mu.RUnlock()
		if ok {
			continue
		}
		if sugg := s.Suggest(term); len(sugg) > 0 {
			terms[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(terms, " "), true
}
