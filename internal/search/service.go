package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rgsearch/rgsearch/internal/batch"
	"github.com/rgsearch/rgsearch/internal/config"
	"github.com/rgsearch/rgsearch/internal/grepdrv"
	"github.com/rgsearch/rgsearch/internal/grepout"
	"github.com/rgsearch/rgsearch/internal/rank"
	"github.com/rgsearch/rgsearch/internal/rgerr"
	"github.com/rgsearch/rgsearch/internal/walker"
)

// contentSearchConcurrency bounds how many grep children runContentSearch
// starts at once: one root rarely needs more than a handful in flight, and
// an unbounded fan-out would let a query across hundreds of folders exhaust
// file descriptors.
const contentSearchConcurrency = 4

// Service is the search engine's entry point: one Service serves every
// query for a process, holding the file-pattern cache registry (one Cache
// per query's CacheKey) across calls.
type Service struct {
	cfg    config.Defaults
	caches *rank.Registry
	logger *slog.Logger
}

// New returns a ready-to-use Service. A zero config.Defaults{} is valid;
// callers typically pass config.Default() or the result of config.Resolve.
func New(cfg config.Defaults, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, caches: rank.NewRegistry(), logger: logger.With("component", "search")}
}

// ExtendQuery fills zero-valued fields of q from the Service's configured
// defaults. It is idempotent: calling it twice on an already-extended query
// changes nothing, since every field it touches is only filled when still at
// its zero value.
func (s *Service) ExtendQuery(q *Query) {
	if q.MaxFileSize == 0 {
		q.MaxFileSize = s.cfg.MaxFileSize
	}
	for i := range q.Folders {
		if q.Folders[i].FileEncoding == "" {
			q.Folders[i].FileEncoding = "utf-8"
		}
	}
	if len(q.ExcludePattern) == 0 && len(s.cfg.DefaultExcludes) > 0 {
		q.ExcludePattern = make(map[string]ExcludeValue, len(s.cfg.DefaultExcludes))
		for _, pattern := range s.cfg.DefaultExcludes {
			q.ExcludePattern[pattern] = ExcludeValue{Enabled: true}
		}
	}
}

// ClearCache discards the file-pattern cache for cacheKey so its next
// lookup starts fresh (spec.md's explicit cache-invalidation hook, e.g.
// when a workspace's file set changes underneath a long-lived cache key).
func (s *Service) ClearCache(cacheKey string) {
	s.caches.Clear(cacheKey)
}

// Search validates q, dispatches it to the file or content engine, and
// returns a channel of ProgressEvent values. The channel receives batches of
// results as they are found, then exactly one terminal event with Done ==
// true, and is then closed. Cancelling ctx stops the underlying search
// promptly; cached file-pattern rows (internal/rank.Row) are never
// cancelled by this, since they are shared across callers.
func (s *Service) Search(ctx context.Context, q Query) (<-chan ProgressEvent, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	s.ExtendQuery(&q)

	out := make(chan ProgressEvent, 8)
	if q.ContentPattern != nil {
		go s.runContentSearch(ctx, q, out)
	} else {
		go s.runFileSearch(ctx, q, out)
	}

	return out, nil
}

func validate(q Query) error {
	if len(q.Folders) == 0 && len(q.ExtraFiles) == 0 {
		return rgerr.New(rgerr.KindUserFatal, "query has no folders or extra files to search", nil)
	}
	for _, f := range q.Folders {
		if f.Folder == "" {
			return rgerr.New(rgerr.KindUserFatal, "folder query has an empty path", nil)
		}
	}
	if q.ContentPattern != nil && q.ContentPattern.Pattern == "" {
		return rgerr.New(rgerr.KindUserFatal, "content query has an empty pattern", nil)
	}
	return nil
}

func (s *Service) runFileSearch(ctx context.Context, q Query, out chan<- ProgressEvent) {
	defer close(out)

	collector := batch.New(func(items []RawFileMatch, total int) {
		out <- ProgressEvent{Files: items, Total: total}
	})
	collector.BatchSize = s.cfg.BatchSize
	if s.cfg.FlushInterval > 0 {
		collector.FlushInterval = s.cfg.FlushInterval
	}

	if q.CacheKey != "" && q.FilePattern != "" {
		s.runCachedFileSearch(ctx, q, collector, out)
		return
	}

	w := walker.New(s.logger)
	opts := toWalkerOptions(q, s.cfg, s.caches.Get(q.CacheKey))
	result, err := w.Walk(ctx, opts, func(m RawFileMatch) {
		collector.Add(m)
	})
	collector.Flush()

	out <- terminalEvent(len(result.Matches), result.LimitHit, false, ctx, err)
}

// runCachedFileSearch implements the C7 cache-row flow: an exact or
// narrowing cached row is reused via Cache.RefineWith instead of re-walking
// the filesystem; otherwise a fresh walk is both returned to this caller and
// cached via GetOrStart for future narrowing queries.
func (s *Service) runCachedFileSearch(ctx context.Context, q Query, collector *batch.Collector[RawFileMatch], out chan<- ProgressEvent) {
	cache := s.caches.Get(q.CacheKey)

	if row, ok := cache.FindNarrowing(q.FilePattern); ok {
		results, err := row.Wait(ctx)
		if err != nil {
			out <- terminalEvent(0, false, true, ctx, rgerr.Canceled())
			return
		}
		refined := cache.RefineWith(results, q.FilePattern, q.MaxResults)
		matches := make([]RawFileMatch, 0, len(refined))
		for _, c := range refined {
			matches = append(matches, RawFileMatch{RelativePath: c.RelativePath, Basename: c.Basename})
		}
		collector.AddAll(matches)
		collector.Flush()
		out <- terminalEvent(len(matches), q.MaxResults > 0 && len(matches) >= q.MaxResults, true, ctx, nil)
		return
	}

	w := walker.New(s.logger)
	uncappedOpts := toWalkerOptions(q, s.cfg, cache)
	uncappedOpts.MaxResults = 0
	uncappedOpts.ExistsOnly = false

	row, _ := cache.GetOrStart(q.FilePattern, func() ([]rank.Candidate, error) {
		result, err := w.Walk(context.Background(), uncappedOpts, nil)
		if err != nil {
			return nil, err
		}
		candidates := make([]rank.Candidate, len(result.Matches))
		for i, m := range result.Matches {
			candidates[i] = rank.Candidate{RelativePath: m.RelativePath, Basename: m.Basename}
		}
		return candidates, nil
	})

	results, err := row.Wait(ctx)
	if err != nil {
		out <- terminalEvent(0, false, false, ctx, rgerr.Canceled())
		return
	}

	refined := cache.RefineWith(results, q.FilePattern, q.MaxResults)
	matches := make([]RawFileMatch, 0, len(refined))
	for _, c := range refined {
		matches = append(matches, RawFileMatch{RelativePath: c.RelativePath, Basename: c.Basename})
	}
	collector.AddAll(matches)
	collector.Flush()
	out <- terminalEvent(len(matches), q.MaxResults > 0 && len(matches) >= q.MaxResults, false, ctx, nil)
}

// runContentSearch fans its folders out across a bounded pool of grep
// children via errgroup, rather than one at a time: a query spanning many
// workspace roots gets their results interleaved instead of paying for each
// root's grep startup and walk in turn. batch.Collector and totalFiles are
// the only state shared between the goroutines, so both are safe for
// concurrent access (a mutex-free atomic counter and Collector's own
// internal lock, respectively); limitReached cancels the shared context
// once MaxResults is hit so in-flight and not-yet-started children stop
// promptly instead of running to completion.
func (s *Service) runContentSearch(ctx context.Context, q Query, out chan<- ProgressEvent) {
	defer close(out)

	collector := batch.New(func(items []FileTextMatch, total int) {
		out <- ProgressEvent{Text: items, Total: total}
	})
	collector.BatchSize = s.cfg.BatchSize
	if s.cfg.FlushInterval > 0 {
		collector.FlushInterval = s.cfg.FlushInterval
	}

	driver := grepdrv.New(s.cfg.GrepPath)

	searchCtx, limitReached := context.WithCancel(ctx)
	defer limitReached()

	var totalFiles atomic.Int64
	var errOnce sync.Once
	var firstErr error

	g, gCtx := errgroup.WithContext(searchCtx)
	g.SetLimit(contentSearchConcurrency)

	for _, folder := range q.Folders {
		folder := folder
		g.Go(func() error {
			if q.MaxResults > 0 && int(totalFiles.Load()) >= q.MaxResults {
				return nil
			}

			argv := toArgvOptions(q, folder, s.cfg)
			args := grepdrv.BuildArgs(argv)

			dec := grepout.New()
			if q.MaxResults > 0 {
				if remaining := q.MaxResults - int(totalFiles.Load()); remaining > 0 {
					dec.MaxResults = remaining
				}
			}
			dec.OnFile = func(fm grepout.FileMatch) {
				collector.Add(toFileTextMatch(fm))
				if n := totalFiles.Add(1); q.MaxResults > 0 && int(n) >= q.MaxResults {
					limitReached()
				}
			}

			if err := driver.Run(gCtx, args, dec); err != nil {
				if rgErr, ok := err.(*rgerr.Error); ok && rgErr.Kind == rgerr.KindCanceled {
					return nil
				}
				errOnce.Do(func() { firstErr = err })
			}
			return nil
		})
	}
	_ = g.Wait()

	collector.Flush()
	total := int(totalFiles.Load())
	out <- terminalEvent(total, q.MaxResults > 0 && total >= q.MaxResults, false, ctx, firstErr)
}

func toFileTextMatch(fm grepout.FileMatch) FileTextMatch {
	out := FileTextMatch{AbsolutePath: fm.Path, Matches: make([]TextMatch, len(fm.Matches))}
	for i, m := range fm.Matches {
		out.Matches[i] = TextMatch{Preview: m.Preview, Range: m.Range}
	}
	return out
}

func terminalEvent(total int, limitHit bool, fromCache bool, ctx context.Context, err error) ProgressEvent {
	if ctx.Err() != nil {
		return ProgressEvent{Total: total, Done: true, LimitHit: limitHit, FromCache: fromCache, Err: rgerr.Canceled()}
	}
	if err != nil {
		if rgErr, ok := err.(*rgerr.Error); ok {
			return ProgressEvent{Total: total, Done: true, LimitHit: limitHit, FromCache: fromCache, Err: rgErr}
		}
		return ProgressEvent{Total: total, Done: true, LimitHit: limitHit, FromCache: fromCache, Err: rgerr.New(rgerr.KindInvariant, fmt.Sprintf("search failed: %v", err), err)}
	}
	return ProgressEvent{Total: total, Done: true, LimitHit: limitHit, FromCache: fromCache}
}
