// Package main provides the entry point for the tablejohn CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Garmelon/tablejohn/cmd/tablejohn/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tablejohn",
		Short: "tablejohn - continuous benchmarking server and worker",
		Long: `tablejohn tracks a Git repository's commit graph and distributes
benchmark runs over it to a pool of worker processes.

Commands:
  server    Run the tablejohn server
  worker    Run a tablejohn worker`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewServerCommand())
	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
