package search

import (
	"strings"

	"github.com/rgsearch/rgsearch/internal/config"
	"github.com/rgsearch/rgsearch/internal/globmatch"
	"github.com/rgsearch/rgsearch/internal/grepdrv"
	"github.com/rgsearch/rgsearch/internal/rank"
	"github.com/rgsearch/rgsearch/internal/walker"
)

// mergeExcludes combines a folder's own exclude map with the query-global
// one; folder entries win on a pattern collision.
func mergeExcludes(global, folder map[string]ExcludeValue) map[string]ExcludeValue {
	if len(global) == 0 {
		return folder
	}
	if len(folder) == 0 {
		return global
	}
	merged := make(map[string]ExcludeValue, len(global)+len(folder))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range folder {
		merged[k] = v
	}
	return merged
}

func toWalkerOptions(q Query, defaults config.Defaults, cache *rank.Cache) walker.Options {
	roots := make([]walker.Root, 0, len(q.Folders))
	for _, fq := range q.Folders {
		merged := mergeExcludes(q.ExcludePattern, fq.ExcludePattern)
		excl := make(map[string]ExcludeValue, len(merged)+len(defaults.DefaultExcludes))
		for k, v := range merged {
			excl[k] = v
		}
		for _, pattern := range defaults.DefaultExcludes {
			if _, exists := excl[pattern]; !exists {
				excl[pattern] = ExcludeValue{Enabled: true}
			}
		}
		incl := mergeExcludes(q.IncludePattern, fq.IncludePattern)

		var exclPred, inclPred *globmatch.Predicate
		if len(excl) > 0 {
			exclPred = globmatch.Compile(toExpression(excl))
		}
		if len(incl) > 0 {
			inclPred = globmatch.Compile(toExpression(incl))
		}

		roots = append(roots, walker.Root{
			Path:                 fq.Folder,
			Exclude:              exclPred,
			Include:              inclPred,
			DisregardIgnoreFiles: fq.DisregardIgnoreFiles || defaults.DisregardIgnoreFiles,
		})
	}

	maxFileSize := q.MaxFileSize
	if maxFileSize == 0 {
		maxFileSize = defaults.MaxFileSize
	}

	return walker.Options{
		Roots:          roots,
		ExtraFiles:     q.ExtraFiles,
		FilePattern:    q.FilePattern,
		MaxResults:     q.MaxResults,
		ExistsOnly:     q.ExistsOnly,
		MaxFileSize:    maxFileSize,
		FollowSymlinks: q.FollowSymlinks || defaults.FollowSymlinks,
		GitTrackedOnly: q.GitTrackedOnly,
		SortByScore:    q.SortByScore,
		GrepPath:       defaults.GrepPath,
		Cache:          cache,
	}
}

// toArgvOptions builds one grepdrv.ArgvOptions per folder root, since a
// content search is driven one external grep invocation per root (a single
// invocation cannot carry per-folder ignore-file overrides).
func toArgvOptions(q Query, root FolderQuery, defaults config.Defaults) grepdrv.ArgvOptions {
	cq := q.ContentPattern

	excl := mergeExcludes(q.ExcludePattern, root.ExcludePattern)
	perFolder := make([]string, 0, len(excl))
	for pattern, v := range excl {
		if v.Enabled && v.When == "" {
			perFolder = append(perFolder, grepdrv.NormalizeExcludeGlob(pattern))
		}
	}
	shared, remainder := grepdrv.HoistSharedExcludes([][]string{perFolder})

	incl := mergeExcludes(q.IncludePattern, root.IncludePattern)
	var includeGlobs []string
	for pattern, v := range incl {
		if v.Enabled && v.When == "" {
			includeGlobs = append(includeGlobs, grepdrv.NormalizeExcludeGlob(pattern))
		}
	}

	maxFileSize := q.MaxFileSize
	if maxFileSize == 0 {
		maxFileSize = defaults.MaxFileSize
	}

	return grepdrv.ArgvOptions{
		Query: grepdrv.ContentQuery{
			Pattern:         cq.Pattern,
			IsRegExp:        cq.IsRegExp,
			IsCaseSensitive: cq.IsCaseSensitive,
			IsWordMatch:     cq.IsWordMatch,
			WordSeparators:  cq.WordSeparators,
		},
		FolderExcludes: []grepdrv.FolderExcludes{{Globs: remainder[0]}},
		SharedExcludes: shared,
		IncludeGlobs:   includeGlobs,
		MaxFileSize:    maxFileSize,
		IgnoreFiles:    !(root.DisregardIgnoreFiles || defaults.DisregardIgnoreFiles),
		FollowSymlinks: q.FollowSymlinks || defaults.FollowSymlinks,
		Encoding:       normalizeEncoding(root.FileEncoding),
		Roots:          []string{root.Folder},
		ExtraFiles:     filterExtraFilesUnderRoot(q.ExtraFiles, root.Folder),
	}
}

func normalizeEncoding(enc string) string {
	if enc == "" {
		return ""
	}
	return strings.ToLower(enc)
}

func filterExtraFilesUnderRoot(extraFiles []string, root string) []string {
	var out []string
	for _, f := range extraFiles {
		if strings.HasPrefix(f, root) {
			out = append(out, f)
		}
	}
	return out
}
