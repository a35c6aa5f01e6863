package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Garmelon/tablejohn/pkg/version"
)

// NewVersionCommand reports the build version information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tablejohn %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
