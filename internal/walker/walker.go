// Package walker implements the file-search side of a search query: given
// one or more folder roots, a fuzzy file pattern, and include/exclude glob
// expressions, it produces the matching RawFileMatch set. It picks one of
// several traversal backends per root (an external grep's --files mode,
// POSIX find, or a native filepath.WalkDir) depending on what is available
// and what the query needs, and always applies the same final gate
// (extra files, excludes, symlink/loop guard, includes, fuzzy match,
// result counting) regardless of which backend produced the candidate.
package walker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rgsearch/rgsearch/internal/dirtree"
	"github.com/rgsearch/rgsearch/internal/globmatch"
	"github.com/rgsearch/rgsearch/internal/rank"
)

// RawFileMatch is one surviving file, matching spec's C3 result shape.
// Base+"/"+RelativePath reconstructs AbsolutePath; Basename is
// filepath.Base(RelativePath).
type RawFileMatch struct {
	Base         string
	RelativePath string
	Basename     string
	Size         int64
}

// Root describes one folder to search, mirroring a query's FolderQuery.
type Root struct {
	Path                 string
	Exclude              *globmatch.Predicate
	Include              *globmatch.Predicate
	DisregardIgnoreFiles bool
}

// Options configures one Walk call, spanning every Root.
type Options struct {
	Roots          []Root
	ExtraFiles     []string
	FilePattern    string // fuzzy pattern; empty matches every candidate
	MaxResults     int    // 0 means unlimited
	ExistsOnly     bool
	MaxFileSize    int64 // 0 disables the size gate
	FollowSymlinks bool
	GitTrackedOnly bool
	SortByScore    bool

	// GrepPath is the external grep-list backend binary (e.g. "rg"). Empty
	// disables that backend.
	GrepPath string
	// DisableGrepBackend and DisableFindBackend force native traversal,
	// regardless of binary availability (configuration override / testing).
	DisableGrepBackend bool
	DisableFindBackend bool

	// Cache, when set, memoizes fuzzy-match scores across this Walk call
	// (and any other Walk sharing the same Cache, e.g. a narrowing query in
	// the same session). Nil falls back to unmemoized rank.Score.
	Cache *rank.Cache
}

// Result is the terminal outcome of one Walk call.
type Result struct {
	Matches   []RawFileMatch
	LimitHit  bool
	TotalSeen int
}

// Walker runs file searches; it is stateless and safe for concurrent Walk
// calls.
type Walker struct {
	logger *slog.Logger
}

// New returns a Walker logging under component "walker".
func New(logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{logger: logger.With("component", "walker")}
}

// Walk executes opts, calling onMatch for every surviving RawFileMatch as
// soon as it is found (for progress batching) and returning the final
// Result once every root has been exhausted or a limit was hit. Context
// cancellation stops every in-flight root promptly; one root's error does
// not cancel its siblings, matching the per-root isolation policy for
// traversal (contrast with content-reading pipelines, which prefer
// fail-fast).
func (w *Walker) Walk(ctx context.Context, opts Options, onMatch func(RawFileMatch)) (Result, error) {
	var extra []RawFileMatch
	for _, f := range opts.ExtraFiles {
		extra = append(extra, RawFileMatch{
			Base:         filepath.Dir(f),
			RelativePath: filepath.Base(f),
			Basename:     filepath.Base(f),
		})
	}
	extra = filterByPattern(extra, opts.FilePattern, opts.Cache)

	state := &walkState{
		opts:      opts,
		onMatch:   onMatch,
		limitHit:  false,
		seenCount: 0,
	}

	for _, m := range extra {
		if state.emit(m) {
			return state.result(), nil
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A plain errgroup.Group, not errgroup.WithContext: one root's error
	// must not cancel its siblings, so there is no shared derived context to
	// tear down on first failure, only the group's own error aggregation.
	var g errgroup.Group
	for _, root := range opts.Roots {
		root := root
		g.Go(func() error {
			if err := w.walkRoot(ctx, root, state); err != nil {
				return fmt.Errorf("root %s: %w", root.Path, err)
			}
			return nil
		})
	}
	rootErr := g.Wait()

	if state.opts.SortByScore && state.opts.FilePattern != "" {
		state.sortByScore()
	} else {
		state.sortByPath()
	}

	if rootErr != nil && len(state.matches) == 0 {
		return state.result(), rootErr
	}
	return state.result(), nil
}

// walkState accumulates matches across every root under one mutex; it also
// owns the shared SymlinkGuard (a visited-real-path set spans all roots, so
// a symlink loop crossing root boundaries is still caught).
type walkState struct {
	opts    Options
	onMatch func(RawFileMatch)

	mu        sync.Mutex
	matches   []RawFileMatch
	limitHit  bool
	seenCount int

	symGuard *SymlinkGuard
	once     sync.Once
}

func (s *walkState) guard() *SymlinkGuard {
	s.once.Do(func() { s.symGuard = NewSymlinkGuard() })
	return s.symGuard
}

// emit records a pre-approved match (e.g. from the extra-files list, which
// bypasses all other gating) and reports whether a limit has now been hit.
func (s *walkState) emit(m RawFileMatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seenCount++
	if s.opts.ExistsOnly {
		// An existence probe only needs to know a match exists; the match
		// itself is discarded rather than surfaced as a result item.
		s.limitHit = true
		return true
	}
	s.matches = append(s.matches, m)
	if s.onMatch != nil {
		s.onMatch(m)
	}
	if s.opts.MaxResults > 0 && len(s.matches) >= s.opts.MaxResults {
		s.limitHit = true
		return true
	}
	return false
}

func (s *walkState) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limitHit
}

func (s *walkState) sortByPath() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.matches, func(i, j int) bool { return s.matches[i].RelativePath < s.matches[j].RelativePath })
}

func (s *walkState) sortByScore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make([]rank.Candidate, len(s.matches))
	byPath := make(map[string]RawFileMatch, len(s.matches))
	for i, m := range s.matches {
		candidates[i] = rank.Candidate{RelativePath: m.RelativePath, Basename: m.Basename}
		byPath[m.RelativePath] = m
	}
	ranked := rank.TopKWith(candidates, s.opts.FilePattern, 0, scorerFor(s.opts.Cache))
	out := make([]RawFileMatch, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, byPath[c.RelativePath])
	}
	s.matches = out
}

func (s *walkState) result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{Matches: append([]RawFileMatch(nil), s.matches...), LimitHit: s.limitHit, TotalSeen: s.seenCount}
}

// walkRoot traverses one root, picking a backend and applying the common
// gate to every candidate it yields.
func (w *Walker) walkRoot(ctx context.Context, root Root, state *walkState) error {
	absRoot, err := filepath.Abs(root.Path)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	var ignorer Ignorer = newDefaultIgnorer()
	if !root.DisregardIgnoreFiles {
		tree, err := NewGitignoreTree(absRoot)
		if err != nil {
			w.logger.Debug("gitignore scan failed", "root", absRoot, "error", err)
		} else {
			ignorer = NewCompositeIgnorer(ignorer, tree)
		}
	}

	var gitTracked map[string]bool
	if state.opts.GitTrackedOnly {
		gitTracked, err = GitTrackedFiles(absRoot)
		if err != nil {
			w.logger.Debug("git-tracked-only requested but git ls-files failed", "root", absRoot, "error", err)
		}
	}

	prune := func(relDir string) bool {
		return ignorer.IsIgnored(relDir, true)
	}

	backend, lines, errc := w.pickBackend(ctx, absRoot, root, state.opts, prune)
	w.logger.Debug("root traversal started", "root", absRoot, "backend", backend)

	needsTree := backend != backendNative && root.Exclude != nil && root.Exclude.HasSiblingClauses()
	var tree *dirtree.Tree
	if needsTree {
		tree = dirtree.New()
	}

	for cand := range lines {
		if state.isDone() {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if tree != nil {
			tree.AddPath(cand.RelPath)
			continue
		}

		if err := w.gateAndEmit(absRoot, cand, root, state, ignorer, gitTracked); err != nil {
			return err
		}
	}

	if err := <-errc; err != nil {
		return err
	}

	if tree != nil {
		for _, m := range dirtree.MatchDirectoryTree(tree, root.Exclude, state.opts.FilePattern) {
			if state.isDone() {
				break
			}
			if err := w.gateAndEmit(absRoot, fileCandidate{RelPath: m.RelativePath}, root, state, ignorer, gitTracked); err != nil {
				return err
			}
		}
	}

	return nil
}

// gateAndEmit applies the full ordered gate to one candidate: exclude,
// symlink/loop resolution, git-tracked check, size, include, fuzzy match.
func (w *Walker) gateAndEmit(absRoot string, cand fileCandidate, root Root, state *walkState, ignorer Ignorer, gitTracked map[string]bool) error {
	relPath := cand.RelPath
	basename := filepath.Base(relPath)
	absPath := filepath.Join(absRoot, filepath.FromSlash(relPath))

	if ignorer.IsIgnored(relPath, false) {
		return nil
	}

	if root.Exclude != nil {
		matched, pending := root.Exclude.Test(relPath, absPath, basename)
		if !matched && len(pending) > 0 {
			matched = resolveSiblingFromDisk(absPath, pending)
		}
		if matched && relPath != state.opts.FilePattern {
			return nil
		}
	}

	resolvedAbs := absPath
	if state.opts.FollowSymlinks {
		info, err := os.Lstat(absPath)
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			real, isLoop, err := state.guard().Resolve(absPath)
			if err != nil || isLoop {
				return nil
			}
			state.guard().MarkVisited(real)
			resolvedAbs = real
		}
	}

	if gitTracked != nil && !gitTracked[relPath] {
		return nil
	}

	size := cand.Size
	if state.opts.MaxFileSize > 0 {
		if !cand.HasSize {
			info, err := os.Stat(resolvedAbs)
			if err != nil {
				return nil
			}
			size = info.Size()
		}
		if size > state.opts.MaxFileSize {
			return nil
		}
	}

	if cand.HasSize {
		// Binary detection only runs when the native backend already paid
		// for a stat; grep-list/find candidates skip this check rather than
		// adding a second stat purely to classify them.
		if bin, err := isBinary(resolvedAbs); err == nil && bin {
			return nil
		}
	}

	if root.Include != nil {
		matched, pending := root.Include.Test(relPath, absPath, basename)
		if !matched && len(pending) > 0 {
			matched = resolveSiblingFromDisk(absPath, pending)
		}
		if !matched {
			return nil
		}
	}

	if _, ok := fuzzyMatch(relPath, basename, state.opts.FilePattern, state.opts.Cache); !ok {
		return nil
	}

	match := RawFileMatch{Base: absRoot, RelativePath: relPath, Basename: basename, Size: size}
	state.emit(match)
	return nil
}

// scorerFor returns cache.Score when cache is set, so repeated lookups for
// the same (candidate, query) pair within one session are memoized; it
// falls back to the unmemoized package-level Score otherwise.
func scorerFor(cache *rank.Cache) func(rank.Candidate, string) (int, bool) {
	if cache != nil {
		return cache.Score
	}
	return rank.Score
}

func fuzzyMatch(relPath, basename, pattern string, cache *rank.Cache) (rank.Candidate, bool) {
	c := rank.Candidate{RelativePath: relPath, Basename: basename}
	if pattern == "" {
		return c, true
	}
	_, ok := scorerFor(cache)(c, pattern)
	return c, ok
}

func filterByPattern(matches []RawFileMatch, pattern string, cache *rank.Cache) []RawFileMatch {
	if pattern == "" {
		return matches
	}
	out := matches[:0]
	for _, m := range matches {
		if _, ok := fuzzyMatch(m.RelativePath, m.Basename, pattern, cache); ok {
			out = append(out, m)
		}
	}
	return out
}

func resolveSiblingFromDisk(absPath string, pending []globmatch.Pending) bool {
	dir := filepath.Dir(absPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return globmatch.Resolve(pending, names)
}

// pickBackend chooses a traversal strategy for one root. Grep-list is
// preferred when available and no size gate forces a native stat pass;
// find is the POSIX fallback; native is the universal fallback and the
// only backend capable of reporting file size during traversal.
func (w *Walker) pickBackend(ctx context.Context, absRoot string, root Root, opts Options, prune pruneFunc) (backendKind, <-chan fileCandidate, <-chan error) {
	var basenameTerms, pathTerms []string
	if root.Exclude != nil {
		basenameTerms = root.Exclude.BasenameTerms()
		pathTerms = root.Exclude.PathTerms()
	}

	if opts.MaxFileSize <= 0 && !opts.DisableGrepBackend && opts.GrepPath != "" && grepAvailable(opts.GrepPath) {
		lines, errc := listGrep(ctx, opts.GrepPath, absRoot, negate(basenameTerms), negate(pathTerms))
		return backendGrepList, lines, errc
	}
	if opts.MaxFileSize <= 0 && !opts.DisableFindBackend && findAvailable() {
		lines, errc := listFind(ctx, absRoot, basenameTerms)
		return backendFind, lines, errc
	}
	lines, errc := listNative(ctx, absRoot, prune)
	return backendNative, lines, errc
}

// negate prefixes each exclude term with "!" for grep's -g argument
// convention (a bare -g term includes, "!pattern" excludes).
func negate(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = "!" + t
	}
	return out
}
