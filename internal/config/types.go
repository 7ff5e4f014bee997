// Package config resolves rgsearch's runtime defaults from a layered set of
// sources (built-in defaults, global config, repo config, environment
// variables, CLI flags) and sets up the process-wide slog logger. It is a
// foundational cross-cutting concern used by internal/search and cmd/rgsearch.
package config

import "time"

// File is the top-level shape of a .rgsearch.toml or
// ~/.config/rgsearch/config.toml document. Every field is optional; an
// omitted field falls through to the next, lower-precedence layer.
type File struct {
	GrepPath             string   `toml:"grep_path"`
	DefaultExcludes      []string `toml:"default_excludes"`
	MaxFileSize          int64    `toml:"max_file_size"`
	DisregardIgnoreFiles bool     `toml:"disregard_ignore_files"`
	FollowSymlinks       bool     `toml:"follow_symlinks"`
	BatchWarmupCount     int      `toml:"batch_warmup_count"`
	BatchSize            int      `toml:"batch_size"`
	FlushIntervalMS      int      `toml:"flush_interval_ms"`
}

// Defaults is the resolved configuration internal/search and cmd/rgsearch
// actually consume. It is always fully populated: ExtendQuery fills any
// Query field left zero from these values rather than the raw, possibly
// partial File.
type Defaults struct {
	// GrepPath is the external grep binary invoked by internal/grepdrv and
	// used as the grep-list traversal backend in internal/walker.
	GrepPath string

	// DefaultExcludes seeds every query's global exclude set (on top of
	// internal/walker's own built-in DefaultIgnorePatterns).
	DefaultExcludes []string

	// MaxFileSize is the default per-file size gate in bytes; 0 disables it.
	MaxFileSize int64

	// DisregardIgnoreFiles is the default for FolderQuery.DisregardIgnoreFiles
	// when a query does not set it explicitly.
	DisregardIgnoreFiles bool

	// FollowSymlinks is the default for Query.FollowSymlinks.
	FollowSymlinks bool

	BatchWarmupCount int
	BatchSize        int
	FlushInterval    time.Duration
}
