// Package search implements the Search Service: the entry point that takes
// one Query, dispatches it to internal/walker (file search) or
// internal/grepdrv+internal/grepout (content search), batches progress
// through internal/batch, and streams ProgressEvent values back to the
// caller over a channel until the search completes, errors, or is
// cancelled.
package search

import (
	"github.com/rgsearch/rgsearch/internal/globmatch"
	"github.com/rgsearch/rgsearch/internal/grepout"
	"github.com/rgsearch/rgsearch/internal/rgerr"
	"github.com/rgsearch/rgsearch/internal/walker"
)

// ExcludeValue is one entry of a query's include/exclude map: either a plain
// boolean clause or a sibling clause ({When: "$(basename).ext"}), mirroring
// internal/globmatch.Clause at the query's wire boundary.
type ExcludeValue struct {
	Enabled bool
	When    string
}

func toExpression(m map[string]ExcludeValue) globmatch.Expression {
	if len(m) == 0 {
		return nil
	}
	expr := make(globmatch.Expression, len(m))
	for pattern, v := range m {
		expr[pattern] = globmatch.Clause{Pattern: pattern, Enabled: v.Enabled, Sibling: v.When}
	}
	return expr
}

// FolderQuery describes one search root.
type FolderQuery struct {
	Folder         string
	ExcludePattern map[string]ExcludeValue
	IncludePattern       map[string]ExcludeValue
	FileEncoding         string
	DisregardIgnoreFiles bool
}

// PreviewOptions bounds how much surrounding text a content match's preview
// carries beyond the matched span itself.
type PreviewOptions struct {
	CharsBefore int
	CharsAfter  int
}

// ContentQuery holds a text-search pattern and its matching semantics. A nil
// ContentQuery on a Query means "file search"; a non-nil one means "content
// search".
type ContentQuery struct {
	Pattern         string
	IsRegExp        bool
	IsCaseSensitive bool
	IsWordMatch     bool
	WordSeparators  string
	Preview         PreviewOptions
}

// Query is one search request, covering both the file-search and
// content-search cases (spec.md §3's unified query shape).
type Query struct {
	Folders        []FolderQuery
	ExtraFiles     []string
	FilePattern    string
	IncludePattern map[string]ExcludeValue // applies across every folder, in addition to each folder's own
	ExcludePattern map[string]ExcludeValue
	MaxResults     int
	ExistsOnly     bool
	MaxFileSize    int64
	SortByScore    bool
	CacheKey       string
	FollowSymlinks bool
	GitTrackedOnly bool

	// ContentPattern, when set, switches this query from file search to
	// content search; FilePattern still restricts which files are searched.
	ContentPattern *ContentQuery
}

// RawFileMatch is one file-search result; a type alias keeps the wire shape
// identical to internal/walker's own result so callers never convert.
type RawFileMatch = walker.RawFileMatch

// Range is one matched span within a line.
type Range = grepout.Range

// TextMatch pairs a rendered preview with its Range within one file.
type TextMatch struct {
	Preview string
	Range   Range
}

// FileTextMatch accumulates every TextMatch found in one file during a
// content search.
type FileTextMatch struct {
	AbsolutePath string
	Matches      []TextMatch
}

// ProgressEvent is one update delivered on a Search channel. Exactly one
// terminal event (Done == true) closes out the stream, immediately before
// the channel itself is closed.
type ProgressEvent struct {
	// Files is non-nil for a file-search progress batch.
	Files []RawFileMatch
	// Text is non-nil for a content-search progress batch.
	Text []FileTextMatch

	// Total is the running result count as of this batch.
	Total int

	// Done is true exactly once, on the final event.
	Done bool
	// LimitHit is valid once Done is true.
	LimitHit bool
	// FromCache is valid once Done is true. It reports whether this file
	// search's results were narrowed from a cached row (C7) rather than
	// produced by a fresh filesystem walk.
	FromCache bool
	// Err is non-nil when Done is true and the search failed or was
	// cancelled; nil means a clean, complete (or limited) result.
	Err *rgerr.Error
}
