package rank

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScoreNoMatch(t *testing.T) {
	_, ok := Score(Candidate{RelativePath: "internal/foo/bar.go"}, "zzz-nope")
	if ok {
		t.Fatalf("expected no match")
	}
}

func TestScoreMatch(t *testing.T) {
	score, ok := Score(Candidate{RelativePath: "internal/walker/walker.go"}, "walkego")
	if !ok {
		t.Fatalf("expected a fuzzy match")
	}
	if score < 0 {
		t.Fatalf("expected non-negative score, got %d", score)
	}
}

func TestScoreEmptyQueryMatchesEverything(t *testing.T) {
	_, ok := Score(Candidate{RelativePath: "any/path.go"}, "")
	if !ok {
		t.Fatalf("expected empty query to match")
	}
}

func TestTopKOrdersByBestScoreAndExcludesNonMatches(t *testing.T) {
	candidates := []Candidate{
		{RelativePath: "internal/walker/walker.go"},
		{RelativePath: "internal/walker/walker_test.go"},
		{RelativePath: "internal/rank/cache.go"},
		{RelativePath: "README.md"},
	}

	top := TopK(candidates, "walker", 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top))
	}
	for _, c := range top {
		if c.RelativePath == "README.md" {
			t.Fatalf("non-matching candidate leaked into TopK result: %+v", top)
		}
	}
}

func TestTopKZeroReturnsAllMatches(t *testing.T) {
	candidates := []Candidate{
		{RelativePath: "a/walker.go"},
		{RelativePath: "b/walker.go"},
		{RelativePath: "c/unrelated.go"},
	}
	top := TopK(candidates, "walker", 0)
	if len(top) != 2 {
		t.Fatalf("expected 2 matches with k<=0, got %d", len(top))
	}
}

func TestNarrows(t *testing.T) {
	cases := []struct {
		cached, fresh string
		want          bool
	}{
		{"walk", "walker", true},
		{"walker", "walk", false},
		{"walk", "a/walk", false},
		{"a/walk", "a/walker", true},
		{"", "anything", true},
	}
	for _, c := range cases {
		if got := Narrows(c.cached, c.fresh); got != c.want {
			t.Errorf("Narrows(%q,%q) = %v, want %v", c.cached, c.fresh, got, c.want)
		}
	}
}

func TestCacheGetOrStartReusesRowForSamePattern(t *testing.T) {
	c := NewCache()
	var calls int32

	loader := func() ([]Candidate, error) {
		atomic.AddInt32(&calls, 1)
		return []Candidate{{RelativePath: "a.go"}}, nil
	}

	row1, created1 := c.GetOrStart("walk", loader)
	row2, created2 := c.GetOrStart("walk", loader)

	if !created1 || created2 {
		t.Fatalf("expected first call to create, second to reuse: %v %v", created1, created2)
	}
	if row1 != row2 {
		t.Fatalf("expected the same row for the same pattern")
	}

	res, err := row1.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(res) != 1 || res[0].RelativePath != "a.go" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected loader invoked exactly once, got %d", calls)
	}
}

func TestCacheRowSurvivesWaiterCancellation(t *testing.T) {
	c := NewCache()
	release := make(chan struct{})

	loader := func() ([]Candidate, error) {
		<-release
		return []Candidate{{RelativePath: "slow.go"}}, nil
	}

	row, _ := c.GetOrStart("slow", loader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := row.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The load itself must still be running / about to complete: a second,
	// uncancelled waiter observes the real result.
	close(release)
	res, err := row.Wait(context.Background())
	if err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if len(res) != 1 || res[0].RelativePath != "slow.go" {
		t.Fatalf("unexpected results after cancellation: %+v", res)
	}
}

func TestCacheFindNarrowingPrefersExactThenLongestNarrowing(t *testing.T) {
	c := NewCache()
	done := make(chan struct{})

	loader := func() ([]Candidate, error) {
		return []Candidate{{RelativePath: "walker.go"}}, nil
	}

	row, _ := c.GetOrStart("wal", loader)
	go func() {
		row.Wait(context.Background())
		close(done)
	}()
	<-done

	found, ok := c.FindNarrowing("walk")
	if !ok || found != row {
		t.Fatalf("expected narrowing reuse of 'wal' row for 'walk'")
	}

	longer, _ := c.GetOrStart("walke", loader)
	go longer.Wait(context.Background())
	time.Sleep(10 * time.Millisecond)

	found, ok = c.FindNarrowing("walker")
	if !ok || found.pattern != "walke" {
		t.Fatalf("expected longest narrowing row 'walke', got %+v (ok=%v)", found, ok)
	}

	exact, ok := c.FindNarrowing("wal")
	if !ok || exact != row {
		t.Fatalf("expected exact-match row returned for 'wal'")
	}
}

func TestCacheScoreMemoizesWithinInstance(t *testing.T) {
	c := NewCache()
	cand := Candidate{RelativePath: "internal/walker/walker.go"}

	s1, ok1 := c.Score(cand, "walker")
	s2, ok2 := c.Score(cand, "walker")
	if !ok1 || !ok2 || s1 != s2 {
		t.Fatalf("expected identical memoized score, got (%d,%v) (%d,%v)", s1, ok1, s2, ok2)
	}

	if _, ok := c.Score(cand, "zzz-nope"); ok {
		t.Fatalf("expected no match for unrelated query")
	}
}

func TestRegistryIsolatesCachesByKey(t *testing.T) {
	r := NewRegistry()
	a := r.Get("session-a")
	b := r.Get("session-b")
	if a == b {
		t.Fatalf("expected distinct caches per cache key")
	}
	if r.Get("session-a") != a {
		t.Fatalf("expected Get to return the same cache on repeat calls")
	}

	r.Clear("session-a")
	if r.Get("session-a") == a {
		t.Fatalf("expected Clear to discard the previous cache instance")
	}
}

func TestCacheConcurrentGetOrStartSingleflights(t *testing.T) {
	c := NewCache()
	var calls int32
	var wg sync.WaitGroup

	loader := func() ([]Candidate, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return []Candidate{{RelativePath: "x.go"}}, nil
	}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row, _ := c.GetOrStart("x", loader)
			if _, err := row.Wait(context.Background()); err != nil {
				t.Errorf("wait: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one loader invocation across concurrent callers, got %d", calls)
	}
}
