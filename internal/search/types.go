package search

import (
	"cmp"
	"slices"
	"strings"
)

// Doc is the searchable view of a catalog entry.
type Doc struct {
	ID          string
	Title       string
	Description string
	Detail      string
	Tags        []string
	Category    string
}

// Match is one semantic hit: an entry id and its distance to the query.
type Match struct {
	ID    string
	Score float32
}

// SearchResult represents one matched entry. Score orders like a distance:
// lower is better for both semantic and keyword hits.
type SearchResult struct {
	Doc   Doc
	Score float64
	Why   string
}

// SortResults orders results by ascending score, then ascending entry ID.
func SortResults(results []SearchResult) {
	slices.SortFunc(results, func(a, b SearchResult) int {
		return cmp.Or(cmp.Compare(a.Score, b.Score), strings.Compare(a.Doc.ID, b.Doc.ID))
	})
}
