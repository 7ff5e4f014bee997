// Package rank implements fuzzy scoring of file-pattern candidates and the
// prefix-search result cache that sits above both the file walker and the
// grep driver. Scoring is a thin wrapper around lithammer/fuzzysearch;
// selection for a max-results cap uses a bounded container/heap so the full
// candidate list never needs a full sort.
package rank

import (
	"container/heap"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Candidate is the minimal shape rank needs to score and order a file
// search result. Callers convert their own result types to/from Candidate
// at the package boundary so rank has no dependency on internal/search.
type Candidate struct {
	RelativePath string
	Basename     string
}

// Score returns the fuzzy match score of query against candidate's
// relative path, or (0, false) if query does not fuzzy-match at all. Lower
// scores indicate a closer match, matching fuzzysearch's RankMatchFold
// convention.
func Score(candidate Candidate, query string) (score int, ok bool) {
	if query == "" {
		return 0, true
	}
	if !fuzzy.MatchFold(query, candidate.RelativePath) {
		return 0, false
	}
	return fuzzy.RankMatchFold(query, candidate.RelativePath), true
}

// scoredItem pairs a Candidate with its computed score for heap ordering.
type scoredItem struct {
	candidate Candidate
	score     int
}

// maxHeap is a container/heap.Interface keeping the *worst* (highest) score
// at the root, so TopK can evict it in O(log k) once the heap is full.
type maxHeap []scoredItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(scoredItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK returns the k candidates with the best (lowest) fuzzy score against
// query, in ascending-score order, using a bounded max-heap so only O(k)
// items are ever held and the full candidate slice is never sorted.
// Candidates that don't fuzzy-match query at all are excluded. A k <= 0
// returns every matching candidate, sorted.
func TopK(candidates []Candidate, query string, k int) []Candidate {
	return TopKWith(candidates, query, k, Score)
}

// TopKWith is TopK parameterized on the scoring function, so a caller with a
// per-session Cache can pass Cache.Score to reuse memoized scores across
// calls instead of always re-scoring from scratch.
func TopKWith(candidates []Candidate, query string, k int, scoreFn func(Candidate, string) (int, bool)) []Candidate {
	h := &maxHeap{}
	heap.Init(h)

	for _, c := range candidates {
		score, ok := scoreFn(c, query)
		if !ok {
			continue
		}
		if k <= 0 || h.Len() < k {
			heap.Push(h, scoredItem{candidate: c, score: score})
			continue
		}
		if score < (*h)[0].score {
			heap.Pop(h)
			heap.Push(h, scoredItem{candidate: c, score: score})
		}
	}

	out := make([]Candidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scoredItem).candidate
	}
	return out
}

// Narrows reports whether a query for `fresh` can reuse a cached result set
// computed for `cached`: fresh must have cached as a prefix, and if fresh
// contains a path separator then cached must too (widening the search
// domain from a basename-only search to a path search invalidates reuse).
func Narrows(cached, fresh string) bool {
	if len(fresh) < len(cached) || fresh[:len(cached)] != cached {
		return false
	}
	if containsSep(fresh) && !containsSep(cached) {
		return false
	}
	return true
}

func containsSep(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' || s[i] == '\\' {
			return true
		}
	}
	return false
}
