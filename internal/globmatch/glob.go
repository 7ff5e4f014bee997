// Package globmatch compiles the include/exclude glob expressions used by a
// search query into a callable predicate. An expression is a mapping from
// glob pattern to either an always-on/off boolean or a sibling clause of the
// form {When: "$(basename).ext"}, meaning "this pattern matches only when a
// sibling file named by substituting the candidate's basename into the
// template also exists".
//
// Patterns are split at construction time into an absolute half (patterns
// that are themselves absolute paths) and a relative half, so that matching
// a candidate never needs to join it against every folder root first.
package globmatch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Clause is one entry of a glob expression. A straight boolean clause
// (Sibling == "") always evaluates to Enabled when its Pattern matches.
// A sibling clause only evaluates to true when, in addition to Pattern
// matching, a file named by substituting the candidate's basename (with its
// own extension stripped) into Sibling also exists in the same directory.
type Clause struct {
	Pattern string
	Enabled bool
	Sibling string // e.g. "$(basename).ts"; empty for a plain boolean clause
}

// Expression is the raw form of an include/exclude map as carried on a
// Query: glob pattern -> clause value.
type Expression map[string]Clause

// Pending describes one sibling clause that matched on pattern alone and
// now needs a directory listing to resolve. The caller lists the
// candidate's directory once and passes the names to Predicate.Resolve.
type Pending struct {
	// SiblingName is the exact filename that must be present in the
	// candidate's directory for this clause to fire.
	SiblingName string
}

type half struct {
	bools    map[string]bool // pattern -> Enabled, for plain boolean clauses
	siblings []siblingRule
}

type siblingRule struct {
	pattern string
	tmpl    string
}

// Predicate is a compiled Expression, ready to be tested against candidate
// paths without re-parsing any pattern.
type Predicate struct {
	abs *half
	rel *half
}

// Compile parses expr into a Predicate. Patterns that fail
// doublestar.ValidatePattern are dropped silently (matching the teacher's
// TierMatcher behavior of discarding bad patterns at construction rather
// than failing the whole expression).
func Compile(expr Expression) *Predicate {
	p := &Predicate{abs: &half{bools: map[string]bool{}}, rel: &half{bools: map[string]bool{}}}
	for pattern, clause := range expr {
		if !doublestar.ValidatePattern(normalize(pattern)) {
			continue
		}
		h := p.rel
		if filepath.IsAbs(pattern) {
			h = p.abs
		}
		if clause.Sibling != "" {
			h.siblings = append(h.siblings, siblingRule{pattern: normalize(pattern), tmpl: clause.Sibling})
			continue
		}
		h.bools[normalize(pattern)] = clause.Enabled
	}
	return p
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(p, "./")
}

// Test reports whether relPath matches the predicate. relPath must be
// relative (forward-slashed); absPath, if non-empty, is matched against the
// absolute half. Any sibling clause whose pattern matches is returned as a
// Pending entry for the caller to resolve via Resolve; it does not
// contribute to matched until resolved.
func (p *Predicate) Test(relPath, absPath, basename string) (matched bool, pending []Pending) {
	relPath = normalize(relPath)
	if testHalf(p.rel, relPath, basename) {
		matched = true
	}
	if absPath != "" {
		absPath = normalize(absPath)
		if testHalf(p.abs, absPath, basename) {
			matched = true
		}
	}
	pending = append(pending, collectPending(p.rel, relPath, basename)...)
	if absPath != "" {
		pending = append(pending, collectPending(p.abs, absPath, basename)...)
	}
	return matched, pending
}

func testHalf(h *half, path, basename string) bool {
	for pattern, enabled := range h.bools {
		if !enabled {
			continue
		}
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, basename); ok {
			return true
		}
	}
	return false
}

func collectPending(h *half, path, basename string) []Pending {
	var out []Pending
	for _, rule := range h.siblings {
		matched, _ := doublestar.Match(rule.pattern, path)
		if !matched {
			matched, _ = doublestar.Match(rule.pattern, basename)
		}
		if !matched {
			continue
		}
		out = append(out, Pending{SiblingName: siblingName(rule.tmpl, basename)})
	}
	return out
}

// siblingName substitutes "$(basename)" in tmpl with basename's stem (the
// name without its final extension), e.g. siblingName("$(basename).ts",
// "foo.js") == "foo.ts".
func siblingName(tmpl, basename string) string {
	stem := strings.TrimSuffix(basename, filepath.Ext(basename))
	return strings.ReplaceAll(tmpl, "$(basename)", stem)
}

// Resolve reports whether any Pending clause is satisfied by the given
// directory listing (basenames only, as returned by os.ReadDir).
func Resolve(pending []Pending, dirEntries []string) bool {
	if len(pending) == 0 {
		return false
	}
	names := make(map[string]bool, len(dirEntries))
	for _, n := range dirEntries {
		names[n] = true
	}
	for _, p := range pending {
		if names[p.SiblingName] {
			return true
		}
	}
	return false
}

// HasSiblingClauses reports whether the predicate has any sibling-dependent
// clause at all. When false, callers may skip building a directory listing
// entirely for a matched candidate.
func (p *Predicate) HasSiblingClauses() bool {
	return len(p.abs.siblings) > 0 || len(p.rel.siblings) > 0
}

// BasenameTerms returns the bare filename patterns (no path separator) among
// the enabled boolean clauses — e.g. "*.png", "foo" — suitable for passing
// to an external command as -g arguments.
func (p *Predicate) BasenameTerms() []string {
	return termsFrom(p.rel.bools, false)
}

// PathTerms returns the patterns that contain a path separator among the
// enabled boolean clauses, again suitable for external-command arguments.
func (p *Predicate) PathTerms() []string {
	return termsFrom(p.rel.bools, true)
}

func termsFrom(bools map[string]bool, withSep bool) []string {
	var out []string
	for pattern, enabled := range bools {
		if !enabled {
			continue
		}
		if strings.Contains(pattern, "/") == withSep {
			out = append(out, pattern)
		}
	}
	return out
}
