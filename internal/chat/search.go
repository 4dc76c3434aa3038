// ABOUTME: Fuzzy search over conversation titles
// ABOUTME: Titles and queries are NFC-normalized so composed and decomposed accents match

package chat

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/unicode/norm"
)

type titleSource []Thread

func (t titleSource) String(i int) string { return norm.NFC.String(t[i].Title) }
func (t titleSource) Len() int            { return len(t) }

// SearchThreads returns the threads whose titles fuzzy-match query, best
// match first. An empty query returns the whole catalog in order.
func (s *Store) SearchThreads(query string) []Thread {
	threads := s.Threads()
	q := norm.NFC.String(strings.TrimSpace(query))
	if q == "" {
		return threads
	}

	matches := fuzzy.FindFrom(q, titleSource(threads))
	out := make([]Thread, 0, len(matches))
	for _, m := range matches {
		out = append(out, threads[m.Index])
	}
	return out
}
