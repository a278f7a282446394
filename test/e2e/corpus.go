package e2e

import (
	"fmt"
	"path"
)

// topic seeds one strand of the corpus. The signature phrase appears in
// every note of the topic and nowhere else, so lexical retrieval can be
// asserted deterministically.
type topic struct {
	name      string
	signature string
	text      string
}

var topics = []topic{
	{"databases", "postgres vacuum thresholds", "Autovacuum fires when dead tuples pass the postgres vacuum thresholds configured per table."},
	{"languages", "golang goroutine scheduler", "The golang goroutine scheduler multiplexes goroutines onto OS threads with work stealing."},
	{"containers", "kubernetes pod eviction", "Node pressure triggers kubernetes pod eviction ordered by QoS class."},
	{"frontend", "react reconciliation fiber", "The react reconciliation fiber architecture splits rendering into interruptible units."},
	{"ml", "gradient descent minima", "Stochastic noise helps gradient descent minima escape shallow saddle points."},
	{"networking", "tcp congestion window", "Slow start doubles the tcp congestion window every round trip until loss."},
	{"security", "oauth token rotation", "Refresh flows depend on oauth token rotation to bound the blast radius of leaks."},
	{"storage", "lsm compaction levels", "Write amplification grows with the number of lsm compaction levels."},
	{"music", "piano arpeggio voicing", "Practicing piano arpeggio voicing slowly builds evenness across the hand."},
	{"gardening", "tomato pruning suckers", "Removing tomato pruning suckers early channels growth into the main stem."},
}

// QueryCase pairs a query with the files that must appear in its results.
type QueryCase struct {
	Query         string
	ExpectedPaths []string
	Description   string
}

// Corpus is a generated markdown project: file paths to notes plus query
// cases grounded in the signature phrases.
type Corpus struct {
	Notes map[string]Note
	Cases []QueryCase
}

// BuildCorpus generates n notes cycling through the topics. Notes within a
// topic link forward to the next note of the same topic, every third note is
// marked closed, and priorities cycle 1..5.
func BuildCorpus(n int) *Corpus {
	c := &Corpus{Notes: make(map[string]Note, n)}
	byTopic := make(map[string][]string)

	for i := 0; i < n; i++ {
		tp := topics[i%len(topics)]
		path := fmt.Sprintf("notes/%s/%s-%02d.md", tp.name, tp.name, i/len(topics))
		byTopic[tp.name] = append(byTopic[tp.name], path)

		status := "open"
		if i%3 == 0 {
			status = "closed"
		}
		note := Note{
			Frontmatter: map[string]interface{}{
				"topic":    tp.name,
				"status":   status,
				"priority": i%5 + 1,
			},
			Sections: []Section{
				{
					Heading: fmt.Sprintf("%s notes %d", tp.name, i/len(topics)),
					Text:    fmt.Sprintf("%s This is revision %d of the %s strand.", tp.text, i/len(topics), tp.name),
				},
			},
		}
		c.Notes[path] = note
	}

	// Forward links inside each topic strand. Notes of one topic share a
	// directory, so the bare filename is a resolvable relative target.
	for _, paths := range byTopic {
		for i := 0; i+1 < len(paths); i++ {
			note := c.Notes[paths[i]]
			last := len(note.Sections) - 1
			note.Sections[last].Text += " See also " + MarkdownLink("next", path.Base(paths[i+1])) + "."
			c.Notes[paths[i]] = note
		}
	}

	for _, tp := range topics {
		paths := byTopic[tp.name]
		if len(paths) == 0 {
			continue
		}
		c.Cases = append(c.Cases, QueryCase{
			Query:         tp.signature,
			ExpectedPaths: paths,
			Description:   tp.name,
		})
	}
	return c
}

// Write renders every note under root.
func (c *Corpus) Write(root string) error {
	for path, note := range c.Notes {
		if err := WriteNote(root, path, note); err != nil {
			return err
		}
	}
	return nil
}
