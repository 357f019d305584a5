// cmd/squirrel is the entry point for the squirrel daemon and its
// companion subcommands. `serve` runs the JSON-RPC 2.0 server over a
// Unix domain socket; `extract`, `status`, and `sync` are standalone
// utilities for exercising and operating a project's memory store.
//
// CRITICAL: all logging MUST go to stderr. serve's socket carries only
// JSON-RPC response frames; any stray stdout write would not corrupt
// that channel directly (unlike the teacher's stdio transport) but
// stderr is kept as the sole log sink for consistency with scripts
// that tee squirrel's output.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// version is overwritten at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("squirrel: ")
	log.SetFlags(log.LstdFlags)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "squirrel",
		Short: "Local-first memory service for AI coding assistants",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newSyncCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the squirrel version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
