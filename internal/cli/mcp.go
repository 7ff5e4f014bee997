package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rgsearch/rgsearch/internal/config"
	"github.com/rgsearch/rgsearch/internal/grepdrv"
	"github.com/rgsearch/rgsearch/internal/mcpserve"
	"github.com/rgsearch/rgsearch/internal/rgerr"
	"github.com/rgsearch/rgsearch/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search_files/search_text as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.Resolve(config.ResolveOptions{TargetDir: flags.dir})
	if err != nil {
		return rgerr.New(rgerr.KindUserFatal, "loading configuration", err)
	}

	svc := search.New(cfg, nil)
	server := mcpserve.New(svc, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer grepdrv.KillAll()

	return server.Run(ctx)
}
