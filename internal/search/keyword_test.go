package search

import "testing"

func TestKeywordSearch_ANDAcrossFields(t *testing.T) {
	docs := []Doc{
		{ID: "b", Title: "Box breathing", Tags: []string{"stress"}},
		{ID: "a", Title: "Physiological sigh", Detail: "double inhale", Tags: []string{"breathing", "stress"}},
		{ID: "c", Title: "Desk stretch", Category: "movement"},
	}

	got := KeywordSearch(docs, "Breathing STRESS", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	// "breathing" is in b's title only.
	if got[0].Doc.ID != "b" || got[1].Doc.ID != "a" {
		t.Fatalf("unexpected order: %s, %s", got[0].Doc.ID, got[1].Doc.ID)
	}
	if got[0].Score != 0.5 || got[1].Score != 1 {
		t.Fatalf("unexpected scores: %v, %v", got[0].Score, got[1].Score)
	}
	if got[0].Why != "keyword" {
		t.Fatalf("unexpected why: %q", got[0].Why)
	}

	if got := KeywordSearch(docs, "movement", 0); len(got) != 1 || got[0].Doc.ID != "c" {
		t.Fatalf("category match failed: %+v", got)
	}
	if got := KeywordSearch(docs, "stress", 1); len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
	if got := KeywordSearch(docs, "   ", 0); len(got) != 0 {
		t.Fatalf("blank query should match nothing, got %d", len(got))
	}
}

func TestKeywordSearch_RepeatedTokensCountOnce(t *testing.T) {
	docs := []Doc{{ID: "x", Title: "Walk", Detail: "walk outside"}}
	got := KeywordSearch(docs, "walk WALK", 0)
	if len(got) != 1 || got[0].Score != 0 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSortResults_DistanceThenID(t *testing.T) {
	rs := []SearchResult{
		{Doc: Doc{ID: "z"}, Score: 0.5},
		{Doc: Doc{ID: "b"}, Score: 0.1},
		{Doc: Doc{ID: "a"}, Score: 0.1},
	}
	SortResults(rs)
	if rs[0].Doc.ID != "a" || rs[1].Doc.ID != "b" || rs[2].Doc.ID != "z" {
		t.Fatalf("unexpected order: %v %v %v", rs[0].Doc.ID, rs[1].Doc.ID, rs[2].Doc.ID)
	}
}
