package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rgsearch/rgsearch/internal/grepdrv"
	"github.com/rgsearch/rgsearch/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [folders...]",
	Short: "Run a search and render its progress live in a terminal UI",
	Args:  cobra.ArbitraryArgs,
	RunE:  runWatch,
}

func init() {
	registerSearchFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	return tui.Run(ch, stop)
}
