package vectorstore

import (
	"container/heap"
	"sort"
)

// Match is one search hit.
type Match struct {
	Key   string
	Score float32
}

// less orders matches by ascending distance, then ascending key.
func less(a, b Match) bool {
	if a.Score == b.Score {
		return a.Key < b.Key
	}
	return a.Score < b.Score
}

// SortMatches sorts by ascending distance with ascending key as the tie-break.
func SortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool { return less(ms[i], ms[j]) })
}

// worstFirst is a max-heap: the root is the match that would be dropped first.
type worstFirst []Match

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return less(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Match)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK keeps the k best matches offered to it.
type topK struct {
	k int
	h worstFirst
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(worstFirst, 0, k)}
}

func (t *topK) offer(m Match) {
	if len(t.h) < t.k {
		heap.Push(&t.h, m)
		return
	}
	if less(m, t.h[0]) {
		t.h[0] = m
		heap.Fix(&t.h, 0)
	}
}

func (t *topK) sorted() []Match {
	out := make([]Match, len(t.h))
	copy(out, t.h)
	SortMatches(out)
	return out
}
