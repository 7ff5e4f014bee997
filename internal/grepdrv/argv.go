// Package grepdrv builds the external grep invocation for a content search
// and drives the child process, feeding its stdout into internal/grepout and
// translating its exit into a terminal result or an *rgerr.Error.
package grepdrv

import (
	"regexp"
	"strings"
)

// ContentQuery mirrors a search query's content-pattern fields.
type ContentQuery struct {
	Pattern         string
	IsRegExp        bool
	IsCaseSensitive bool
	IsWordMatch     bool
	WordSeparators  string
}

// FolderExcludes is one folder's compiled exclude globs, already normalized
// to forward slashes and joined against its root where the query demanded an
// absolute match (§4.5's path-join rule).
type FolderExcludes struct {
	Globs []string // each entry is passed as "-g !<glob>"
}

// ArgvOptions gathers everything BuildArgs needs to construct one grep
// child's argument list per the wire contract.
type ArgvOptions struct {
	Query          ContentQuery
	FolderExcludes []FolderExcludes
	SharedExcludes []string // globs identical across every folder, hoisted once
	IncludeGlobs   []string
	MaxFileSize    int64
	IgnoreFiles    bool // honor .gitignore etc; false adds --no-ignore
	FollowSymlinks bool
	Encoding       string
	Roots          []string
	ExtraFiles     []string
}

// BuildArgs constructs the full argument list for the external grep binary,
// following the fixed flag order: heading/color contract, case sensitivity,
// globs, size/ignore/symlink/encoding flags, the pattern, then the search
// paths.
func BuildArgs(opts ArgvOptions) []string {
	args := []string{
		"--hidden",
		"--heading",
		"--line-number",
		"--color", "ansi",
		"--colors", "path:none",
		"--colors", "line:none",
		"--colors", "match:fg:red",
		"--colors", "match:style:nobold",
	}

	if opts.Query.IsCaseSensitive {
		args = append(args, "--case-sensitive")
	} else {
		args = append(args, "--ignore-case")
	}

	for _, glob := range opts.IncludeGlobs {
		args = append(args, "-g", glob)
	}
	for _, glob := range opts.SharedExcludes {
		args = append(args, "-g", "!"+glob)
	}
	for _, fe := range opts.FolderExcludes {
		for _, glob := range fe.Globs {
			args = append(args, "-g", "!"+glob)
		}
	}

	if opts.MaxFileSize > 0 {
		args = append(args, "--max-filesize", maxFileSizeArg(opts.MaxFileSize))
	}
	if !opts.IgnoreFiles {
		args = append(args, "--no-ignore")
	}
	if opts.FollowSymlinks {
		args = append(args, "--follow")
	}
	if opts.Encoding != "" {
		args = append(args, "--encoding", opts.Encoding)
	}
	args = append(args, "--no-config", "--no-ignore-global")

	args = append(args, buildPatternArgs(opts.Query)...)

	args = append(args, "--")
	args = append(args, opts.Roots...)
	args = append(args, opts.ExtraFiles...)

	return args
}

// buildPatternArgs applies §4.5's pattern synthesis rules: word-match wraps
// the pattern in a boundary per WordSeparators, a regex ending in an
// unescaped "$" is rewritten to end in "\r?$" (so a CRLF-terminated match
// isn't truncated), and a literal pattern is passed positionally after "--"
// rather than via --regexp, with --fixed-strings to keep it literal.
func buildPatternArgs(q ContentQuery) []string {
	pattern := q.Pattern
	isRegexp := q.IsRegExp

	if q.IsWordMatch {
		pattern = wordWrap(pattern, q.WordSeparators, q.IsRegExp)
		isRegexp = true
	}

	if isRegexp {
		pattern = rewriteTrailingDollar(pattern)
		return []string{"--regexp", pattern}
	}

	return []string{"--fixed-strings", "--", pattern}
}

var unescapedDollar = regexp.MustCompile(`(^|[^\\])\$$`)

func rewriteTrailingDollar(pattern string) string {
	if !unescapedDollar.MatchString(pattern) {
		return pattern
	}
	return unescapedDollar.ReplaceAllString(pattern, `${1}\r?$`)
}

// wordWrap builds a boundary-respecting regex out of pattern (regex or
// literal) using separators to define what counts as a word character; the
// default separators match ripgrep's own -w flag when separators is empty.
func wordWrap(pattern, separators string, isRegex bool) string {
	body := pattern
	if !isRegex {
		body = regexp.QuoteMeta(pattern)
	}
	if separators == "" {
		return `\b(?:` + body + `)\b`
	}
	class := regexp.QuoteMeta(separators)
	return `(?:^|[` + class + `])(?:` + body + `)(?:[` + class + `]|$)`
}

func maxFileSizeArg(n int64) string {
	return itoa(n) + "B"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

// NormalizeExcludeGlob applies §4.5's path normalization: backslashes become
// forward slashes (preserving a leading UNC "\\\\" prefix as "//"), and a
// Windows drive-letter root like "C:/" collapses to "/" so the glob reads as
// rooted at the search folder rather than at a specific drive.
func NormalizeExcludeGlob(glob string) string {
	hasUNC := strings.HasPrefix(glob, `\\`)
	normalized := strings.ReplaceAll(glob, `\`, "/")
	if hasUNC {
		normalized = "/" + strings.TrimPrefix(normalized, "/")
	}
	if len(normalized) >= 3 && normalized[1] == ':' && normalized[2] == '/' {
		normalized = normalized[2:]
	}
	return normalized
}

// HoistSharedExcludes splits excludeGlobs-per-folder into globs that are
// identical across every folder (candidates for a single shared -g pair)
// and the remainder, restricted to patterns starting with "**" (the only
// shape that is folder-independent).
func HoistSharedExcludes(perFolder [][]string) (shared []string, remainder [][]string) {
	if len(perFolder) == 0 {
		return nil, perFolder
	}

	counts := make(map[string]int)
	for _, folder := range perFolder {
		seen := make(map[string]bool)
		for _, g := range folder {
			if !strings.HasPrefix(g, "**") || seen[g] {
				continue
			}
			seen[g] = true
			counts[g]++
		}
	}

	isShared := make(map[string]bool)
	for g, c := range counts {
		if c == len(perFolder) {
			isShared[g] = true
			shared = append(shared, g)
		}
	}

	remainder = make([][]string, len(perFolder))
	for i, folder := range perFolder {
		for _, g := range folder {
			if !isShared[g] {
				remainder[i] = append(remainder[i], g)
			}
		}
	}
	return shared, remainder
}
