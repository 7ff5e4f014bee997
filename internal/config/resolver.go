package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	koanf "github.com/knadh/koanf/v2"
	"github.com/knadh/koanf/providers/confmap"
)

// ResolveOptions configures the multi-source Defaults resolution.
type ResolveOptions struct {
	// TargetDir is the directory to search for .rgsearch.toml. Defaults to
	// "." if empty.
	TargetDir string

	// GlobalConfigPath overrides the default
	// ~/.config/rgsearch/config.toml. Useful for testing.
	GlobalConfigPath string

	// CLIFlags holds explicit CLI flag overrides (highest precedence). Keys
	// are flat File field names: "grep_path", "max_file_size", etc.
	CLIFlags map[string]any
}

// Resolve runs the 5-layer resolution pipeline:
//  1. Built-in defaults (Default())
//  2. Global config (~/.config/rgsearch/config.toml)
//  3. Repo config (.rgsearch.toml in TargetDir)
//  4. Environment variables (RGSEARCH_* prefix)
//  5. CLI flags (highest precedence)
//
// Missing config files are silently ignored. Invalid TOML files return an
// error. Sources reports, for every field a layer actually touched, which
// layer won — keys are the same flat File field names as CLIFlags.
func Resolve(opts ResolveOptions) (Defaults, SourceMap, error) {
	sources := make(SourceMap)
	d := Default()
	sources["*"] = SourceDefault

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			globalPath = filepath.Join(home, ".config", "rgsearch", "config.toml")
		}
	}
	if globalPath != "" {
		if f, found, err := loadFileLayer(globalPath); err != nil {
			return Defaults{}, nil, err
		} else if found {
			d = fileToDefaults(*f, d)
			markTouched(sources, *f, SourceGlobal)
		}
	}

	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = "."
	}
	repoPath := filepath.Join(targetDir, ".rgsearch.toml")
	if f, found, err := loadFileLayer(repoPath); err != nil {
		return Defaults{}, nil, err
	} else if found {
		d = fileToDefaults(*f, d)
		markTouched(sources, *f, SourceRepo)
	}

	envTouched := anyEnvSet()
	d = buildEnvLayer(d)
	if envTouched {
		sources["*env*"] = SourceEnv
	}

	if len(opts.CLIFlags) > 0 {
		k := koanf.New(".")
		if err := k.Load(confmap.Provider(opts.CLIFlags, "."), nil); err != nil {
			return Defaults{}, nil, fmt.Errorf("loading CLI flags: %w", err)
		}
		d = applyFlags(d, k)
		for key := range opts.CLIFlags {
			sources[key] = SourceFlag
		}
	}

	slog.Debug("config resolved", "grepPath", d.GrepPath, "maxFileSize", d.MaxFileSize)

	return d, sources, nil
}

func loadFileLayer(path string) (*File, bool, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, false, nil
	}
	f, err := LoadFromFile(path)
	if err != nil {
		return nil, false, &LoadError{Path: path, Err: err}
	}
	slog.Debug("loaded config layer", "path", path)
	return f, true, nil
}

func markTouched(sources SourceMap, f File, src Source) {
	if f.GrepPath != "" {
		sources["grep_path"] = src
	}
	if len(f.DefaultExcludes) > 0 {
		sources["default_excludes"] = src
	}
	if f.MaxFileSize > 0 {
		sources["max_file_size"] = src
	}
}

func applyFlags(base Defaults, k *koanf.Koanf) Defaults {
	d := base
	if v := k.String("grep_path"); v != "" {
		d.GrepPath = v
	}
	if v := k.Strings("default_excludes"); len(v) > 0 {
		d.DefaultExcludes = v
	}
	if k.Exists("max_file_size") {
		d.MaxFileSize = k.Int64("max_file_size")
	}
	if k.Exists("disregard_ignore_files") {
		d.DisregardIgnoreFiles = k.Bool("disregard_ignore_files")
	}
	if k.Exists("follow_symlinks") {
		d.FollowSymlinks = k.Bool("follow_symlinks")
	}
	return d
}
