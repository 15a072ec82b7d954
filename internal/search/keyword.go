package search

import (
	"strings"

	"golang.org/x/text/cases"
)

// KeywordSearch matches entries without embeddings. Every query token must
// occur in the entry's title, id, description, detail, category or tags,
// compared case-folded. Score is the share of tokens not found in the title,
// so title hits sort first.
func KeywordSearch(docs []Doc, query string, limit int) []SearchResult {
	fold := cases.Fold()
	tokens := tokenize(fold, query)
	if len(tokens) == 0 {
		return []SearchResult{}
	}

	out := []SearchResult{}
	for _, d := range docs {
		title := fold.String(d.Title)
		body := fold.String(strings.Join([]string{
			d.ID, d.Description, d.Detail, d.Category, strings.Join(d.Tags, " "),
		}, "\n"))

		inTitle, missing := 0, false
		for _, tok := range tokens {
			if strings.Contains(title, tok) {
				inTitle++
			} else if !strings.Contains(body, tok) {
				missing = true
				break
			}
		}
		if missing {
			continue
		}
		score := 1 - float64(inTitle)/float64(len(tokens))
		out = append(out, SearchResult{Doc: d, Score: score, Why: "keyword"})
	}

	SortResults(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokenize splits q on whitespace and drops repeated tokens.
func tokenize(fold cases.Caser, q string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Fields(fold.String(q)) {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
