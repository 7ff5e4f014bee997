// Package cli implements the Cobra command hierarchy for the rgsearch CLI
// tool. The root command defined here is the entry point for all
// subcommands and handles cross-cutting concerns like logging
// initialization and error handling.
package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rgsearch/rgsearch/internal/config"
	"github.com/rgsearch/rgsearch/internal/rgerr"
)

// globalFlags holds the persistent flag values shared by every subcommand.
type globalFlags struct {
	verbose bool
	quiet   bool
	dir     string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "rgsearch",
	Short: "Search a workspace by file pattern or file content.",
	Long: `rgsearch answers two kinds of queries over one or more local
filesystem roots: fuzzy file-pattern search and literal/regex text-content
search, streaming results as they are found rather than waiting for a full
scan to complete.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := config.ResolveLogLevel(flags.verbose, flags.quiet)
		format := config.ResolveLogFormat()
		config.SetupLogging(level, format)

		slog.Debug("logging initialized", "level", level, "format", format)
		return nil
	},
	// When no subcommand is given, run a one-shot search.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().StringVar(&flags.dir, "dir", ".", "directory to resolve .rgsearch.toml from")

	registerSearchFlags(rootCmd)
}

// Execute runs the root command and returns an appropriate process exit
// code. If the error is an *rgerr.Error, its Kind determines the code via
// rgerr.CodeForError; any other error returns ExitError (1). Nil returns
// ExitSuccess (0).
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		return extractExitCode(err)
	}
	return int(rgerr.ExitSuccess)
}

// extractExitCode determines the process exit code from an error.
func extractExitCode(err error) int {
	if err == nil {
		return int(rgerr.ExitSuccess)
	}
	var rerr *rgerr.Error
	if errors.As(err, &rerr) {
		return int(rgerr.CodeForError(rerr))
	}
	return int(rgerr.ExitError)
}

// RootCmd returns the root cobra.Command for use in testing and subcommand
// registration.
func RootCmd() *cobra.Command {
	return rootCmd
}
