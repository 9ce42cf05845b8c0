package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hibiki-bot/hibiki/internal/version"
)

// NewVersionCmd constructs the `hibiki version` subcommand. Version metadata
// is injected at build time via -ldflags and falls back to "dev"/"unknown"
// for local builds.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hibiki version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hibiki %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.BuildDate)
		},
	}
}
