package config

import (
	"os/exec"
	"time"

	"github.com/rgsearch/rgsearch/internal/batch"
)

// DefaultIgnorePatterns mirrors internal/walker's own built-in exclude set;
// it is duplicated here (rather than imported) so internal/config has no
// dependency on internal/walker, and is merged into a resolved Defaults'
// DefaultExcludes so a query built from Defaults alone already carries it.
var DefaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	"dist/",
	"build/",
	"coverage/",
	"__pycache__/",
	".next/",
	"target/",
	"vendor/",
}

// Default returns the built-in Defaults used when no config file, env var,
// or CLI flag overrides a field. GrepPath resolves "rg" via exec.LookPath;
// if ripgrep isn't on PATH the field is left as "rg" anyway, letting
// internal/walker's own availability probe fall back to the find/native
// backends at search time.
func Default() Defaults {
	grepPath := "rg"
	if resolved, err := exec.LookPath("rg"); err == nil {
		grepPath = resolved
	}

	return Defaults{
		GrepPath:             grepPath,
		DefaultExcludes:      append([]string(nil), DefaultIgnorePatterns...),
		MaxFileSize:          0,
		DisregardIgnoreFiles: false,
		FollowSymlinks:       false,
		BatchWarmupCount:     batch.WarmupCount,
		BatchSize:            batch.DefaultBatchSize,
		FlushInterval:        batch.DefaultFlushInterval,
	}
}

func fileToDefaults(f File, base Defaults) Defaults {
	d := base
	if f.GrepPath != "" {
		d.GrepPath = f.GrepPath
	}
	if len(f.DefaultExcludes) > 0 {
		d.DefaultExcludes = f.DefaultExcludes
	}
	if f.MaxFileSize > 0 {
		d.MaxFileSize = f.MaxFileSize
	}
	if f.DisregardIgnoreFiles {
		d.DisregardIgnoreFiles = true
	}
	if f.FollowSymlinks {
		d.FollowSymlinks = true
	}
	if f.BatchWarmupCount > 0 {
		d.BatchWarmupCount = f.BatchWarmupCount
	}
	if f.BatchSize > 0 {
		d.BatchSize = f.BatchSize
	}
	if f.FlushIntervalMS > 0 {
		d.FlushInterval = time.Duration(f.FlushIntervalMS) * time.Millisecond
	}
	return d
}
