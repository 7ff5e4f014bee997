package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rgsearch/rgsearch/internal/config"
	"github.com/rgsearch/rgsearch/internal/grepdrv"
	"github.com/rgsearch/rgsearch/internal/rgerr"
	"github.com/rgsearch/rgsearch/internal/search"
)

// searchFlags holds the query-shaping flags shared by the root command and
// the explicit "search" subcommand.
type searchFlags struct {
	pattern        string
	content        string
	regexp         bool
	caseSensitive  bool
	include        []string
	exclude        []string
	maxResults     int
	exists         bool
	sortByScore    bool
	cacheKey       string
	followSymlinks bool
	gitTrackedOnly bool
	noIgnore       bool
	jsonOutput     bool
}

var sFlags searchFlags

func registerSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sFlags.pattern, "pattern", "", "fuzzy file-name pattern")
	cmd.Flags().StringVarP(&sFlags.content, "content", "e", "", "text or regex pattern; switches to a content search")
	cmd.Flags().BoolVar(&sFlags.regexp, "regexp", false, "treat --content as a regular expression")
	cmd.Flags().BoolVar(&sFlags.caseSensitive, "case-sensitive", false, "case-sensitive content match")
	cmd.Flags().StringSliceVar(&sFlags.include, "include", nil, "glob a file must match (repeatable)")
	cmd.Flags().StringSliceVar(&sFlags.exclude, "exclude", nil, "glob to exclude (repeatable)")
	cmd.Flags().IntVar(&sFlags.maxResults, "max-results", 0, "stop after this many results (0 for unlimited)")
	cmd.Flags().BoolVar(&sFlags.exists, "exists", false, "stop at the first match")
	cmd.Flags().BoolVar(&sFlags.sortByScore, "sort-by-score", false, "rank file results by fuzzy-match quality")
	cmd.Flags().StringVar(&sFlags.cacheKey, "cache-key", "", "reuse a cached scan across narrowing queries sharing this key")
	cmd.Flags().BoolVar(&sFlags.followSymlinks, "follow-symlinks", false, "follow symlinked directories")
	cmd.Flags().BoolVar(&sFlags.gitTrackedOnly, "git-tracked-only", false, "only search files tracked by git")
	cmd.Flags().BoolVar(&sFlags.noIgnore, "no-ignore", false, "do not honor .gitignore/.rgsearchignore files")
	cmd.Flags().BoolVar(&sFlags.jsonOutput, "json", false, "output results as JSON")
}

var searchCmd = &cobra.Command{
	Use:   "search [folders...]",
	Short: "Run a single file or content search and print the results",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSearch,
}

func init() {
	registerSearchFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}

func globMap(patterns []string) map[string]search.ExcludeValue {
	if len(patterns) == 0 {
		return nil
	}
	m := make(map[string]search.ExcludeValue, len(patterns))
	for _, p := range patterns {
		m[p] = search.ExcludeValue{Enabled: true}
	}
	return m
}

func folders(args []string) []search.FolderQuery {
	if len(args) == 0 {
		args = []string{"."}
	}
	out := make([]search.FolderQuery, len(args))
	for i, dir := range args {
		out[i] = search.FolderQuery{Folder: dir, DisregardIgnoreFiles: sFlags.noIgnore}
	}
	return out
}

func buildQuery(args []string) search.Query {
	q := search.Query{
		Folders:        folders(args),
		FilePattern:    sFlags.pattern,
		IncludePattern: globMap(sFlags.include),
		ExcludePattern: globMap(sFlags.exclude),
		MaxResults:     sFlags.maxResults,
		ExistsOnly:     sFlags.exists,
		SortByScore:    sFlags.sortByScore,
		CacheKey:       sFlags.cacheKey,
		FollowSymlinks: sFlags.followSymlinks,
		GitTrackedOnly: sFlags.gitTrackedOnly,
	}
	if sFlags.content != "" {
		q.ContentPattern = &search.ContentQuery{
			Pattern:         sFlags.content,
			IsRegExp:        sFlags.regexp,
			IsCaseSensitive: sFlags.caseSensitive,
		}
	}
	return q
}

// newService resolves config for the target directory (--dir) and
// constructs a search.Service from it.
func newService() (*search.Service, error) {
	cfg, _, err := config.Resolve(config.ResolveOptions{TargetDir: flags.dir})
	if err != nil {
		return nil, rgerr.New(rgerr.KindUserFatal, "loading configuration", err)
	}
	return search.New(cfg, nil), nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer grepdrv.KillAll()

	ch, err := svc.Search(ctx, buildQuery(args))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var term search.ProgressEvent
	for ev := range ch {
		if !sFlags.jsonOutput {
			printProgress(out, ev)
		}
		if ev.Done {
			term = ev
		}
	}

	if sFlags.jsonOutput {
		if err := printJSON(out, term); err != nil {
			return err
		}
	}

	if term.Err != nil {
		return term.Err
	}
	return nil
}

func printProgress(out io.Writer, ev search.ProgressEvent) {
	for _, f := range ev.Files {
		fmt.Fprintln(out, f.RelativePath)
	}
	for _, t := range ev.Text {
		fmt.Fprintf(out, "%s (%d match(es))\n", t.AbsolutePath, len(t.Matches))
		for _, m := range t.Matches {
			fmt.Fprintln(out, "  "+strings.TrimRight(m.Preview, "\n"))
		}
	}
}

func printJSON(out io.Writer, ev search.ProgressEvent) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ev)
}
