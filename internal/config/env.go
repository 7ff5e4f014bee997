package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names, all RGSEARCH_ prefixed.
const (
	EnvGrepPath             = "RGSEARCH_GREP_PATH"
	EnvDefaultExcludes      = "RGSEARCH_DEFAULT_EXCLUDES" // comma-separated
	EnvMaxFileSize          = "RGSEARCH_MAX_FILE_SIZE"
	EnvDisregardIgnoreFiles = "RGSEARCH_DISREGARD_IGNORE_FILES"
	EnvFollowSymlinks       = "RGSEARCH_FOLLOW_SYMLINKS"
	EnvLogFormat            = "RGSEARCH_LOG_FORMAT"
	EnvDebug                = "RGSEARCH_DEBUG"
)

// buildEnvLayer reads RGSEARCH_* environment variables and applies any set
// ones on top of base. Invalid numeric/boolean values are silently skipped
// so a malformed env var does not block the rest of resolution.
func buildEnvLayer(base Defaults) Defaults {
	d := base
	if v := os.Getenv(EnvGrepPath); v != "" {
		d.GrepPath = v
	}
	if v := os.Getenv(EnvDefaultExcludes); v != "" {
		d.DefaultExcludes = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvMaxFileSize); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.MaxFileSize = n
		}
	}
	if v := os.Getenv(EnvDisregardIgnoreFiles); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			d.DisregardIgnoreFiles = b
		}
	}
	if v := os.Getenv(EnvFollowSymlinks); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			d.FollowSymlinks = b
		}
	}
	return d
}

// anyEnvSet reports whether any RGSEARCH_* defaults env var is set, for
// source attribution.
func anyEnvSet() bool {
	for _, name := range []string{EnvGrepPath, EnvDefaultExcludes, EnvMaxFileSize, EnvDisregardIgnoreFiles, EnvFollowSymlinks} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}
