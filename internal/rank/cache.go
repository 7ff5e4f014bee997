package rank

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

// Loader produces the full candidate set for one file-pattern search. It is
// invoked at most once per distinct pattern within a Cache's lifetime.
type Loader func() ([]Candidate, error)

// Row is one cached file-pattern search. It is created the first time a
// pattern is requested and resolves exactly once; every later request for
// the same pattern (or a narrowing one, via Narrows) observes the same
// resolution without re-running Loader.
//
// Row deliberately does not carry a context.Context of its own: the
// goroutine that drains the underlying singleflight call runs to completion
// regardless of whether the request that created the Row is later
// cancelled, so a departing caller never aborts work other callers (or a
// later narrowing query) still want.
type Row struct {
	pattern string

	mu      sync.Mutex
	results []Candidate
	err     error
	done    chan struct{}
}

func newRow(pattern string) *Row {
	return &Row{pattern: pattern, done: make(chan struct{})}
}

// Wait blocks until the row resolves or ctx is done, whichever comes first.
// A cancelled ctx only stops this particular caller from waiting; it has no
// effect on the underlying load.
func (r *Row) Wait(ctx context.Context) ([]Candidate, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved reports whether the row's load has completed, without blocking.
func (r *Row) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Cache holds every resolved and in-flight Row for one cache key, plus a
// per-candidate scorer memo shared across every pattern queried against
// this Cache instance (a candidate scored for one pattern is frequently
// re-scored for a narrowing pattern moments later).
type Cache struct {
	mu   sync.Mutex
	rows map[string]*Row

	group     singleflight.Group
	scoreMu   sync.Mutex
	scoreMemo map[uint64]int
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		rows:      make(map[string]*Row),
		scoreMemo: make(map[uint64]int),
	}
}

// GetOrStart returns the Row for pattern, creating and starting it via
// loader if this is the first request for that exact pattern. The boolean
// result reports whether this call created the row (false means an
// existing, possibly already-resolved, row was returned).
func (c *Cache) GetOrStart(pattern string, loader Loader) (row *Row, created bool) {
	c.mu.Lock()
	if existing, ok := c.rows[pattern]; ok {
		c.mu.Unlock()
		return existing, false
	}
	row = newRow(pattern)
	c.rows[pattern] = row
	c.mu.Unlock()

	ch := c.group.DoChan(pattern, func() (interface{}, error) {
		return loader()
	})

	go func() {
		res := <-ch
		row.mu.Lock()
		if res.Err == nil {
			if v, ok := res.Val.([]Candidate); ok {
				row.results = v
			}
		} else {
			row.err = res.Err
		}
		row.mu.Unlock()
		close(row.done)
	}()

	return row, true
}

// FindNarrowing returns the best existing row to reuse for pattern: an
// exact match if present, else the longest resolved row whose pattern
// narrows (per Narrows) into pattern.
func (c *Cache) FindNarrowing(pattern string) (*Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if exact, ok := c.rows[pattern]; ok {
		return exact, true
	}

	var best *Row
	for p, row := range c.rows {
		if !row.Resolved() {
			continue
		}
		if !Narrows(p, pattern) {
			continue
		}
		if best == nil || len(p) > len(best.pattern) {
			best = row
		}
	}
	return best, best != nil
}

// RefineWith re-filters and re-sorts a previously resolved candidate set
// against a new (narrowing) query, reusing the cached scan instead of
// re-walking the filesystem, and scoring through c's memo: exactly the "a
// candidate scored for one pattern is frequently re-scored for a narrowing
// pattern moments later" reuse this Cache exists for.
func (c *Cache) RefineWith(cached []Candidate, query string, maxResults int) []Candidate {
	return TopKWith(cached, query, maxResults, c.Score)
}

// Score computes (and memoizes) the fuzzy score of candidate against query
// for this Cache's lifetime, keyed by an xxh3 hash of the pair so the memo
// map holds fixed-size keys rather than concatenated strings.
func (c *Cache) Score(candidate Candidate, query string) (score int, ok bool) {
	key := scoreKey(candidate.RelativePath, query)

	c.scoreMu.Lock()
	if v, hit := c.scoreMemo[key]; hit {
		c.scoreMu.Unlock()
		return v, v >= 0
	}
	c.scoreMu.Unlock()

	s, matched := Score(candidate, query)
	stored := -1
	if matched {
		stored = s
	}

	c.scoreMu.Lock()
	c.scoreMemo[key] = stored
	c.scoreMu.Unlock()

	return s, matched
}

func scoreKey(candidatePath, query string) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(candidatePath)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(query)
	return h.Sum64()
}

// Registry maps a caller-supplied cache key (spec.md's CacheKey, typically
// one per workspace/session) to its Cache.
type Registry struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]*Cache)}
}

// Get returns the Cache for cacheKey, creating it on first use.
func (r *Registry) Get(cacheKey string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[cacheKey]
	if !ok {
		c = NewCache()
		r.caches[cacheKey] = c
	}
	return c
}

// Clear discards the Cache for cacheKey, if any, so its next Get starts
// fresh. In-flight rows already handed out to callers continue to resolve
// normally; they are simply no longer reachable for reuse.
func (r *Registry) Clear(cacheKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, cacheKey)
}
