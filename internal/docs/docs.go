// Package docs holds the engine's built-in help topics, shown by the
// `automakerd docs` command. Grounded on the teacher's internal/docs
// package (a flat Topic slice plus All/Get lookups) unchanged in shape;
// only content.go's article text is rewritten for this engine's domain.
package docs

import "fmt"

// Topic holds a single documentation article.
type Topic struct {
	Name    string // short slug used as CLI argument
	Title   string // human-readable title
	Summary string // one-line description for topic listing
	Content string // full article text (plain text, no ANSI)
}

// All returns every topic in display order.
func All() []Topic {
	return topics
}

// Get looks up a topic by name. Returns an error with a hint if not found.
func Get(name string) (Topic, error) {
	for _, t := range topics {
		if t.Name == name {
			return t, nil
		}
	}
	return Topic{}, fmt.Errorf("unknown topic %q — run 'automakerd docs' to list available topics", name)
}
