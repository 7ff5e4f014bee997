// Command rgsearch is a workspace file and text search tool: a one-shot CLI
// search, a live-progress terminal UI, and an MCP stdio server all backed by
// the same search engine.
package main

import (
	"os"

	"github.com/rgsearch/rgsearch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
