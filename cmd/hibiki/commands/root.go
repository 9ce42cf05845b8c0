// Package commands defines the Cobra CLI commands for the hibiki binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/hibiki-bot/hibiki/internal/audit"
	"github.com/hibiki-bot/hibiki/internal/config"
	"github.com/hibiki-bot/hibiki/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hibiki",
		Short: "hibiki - a Discord chat companion with bounded conversational memory",
		Long: `Hibiki watches a single Discord channel and replies to every message
through an LLM backend (Gemini by default). Recent exchanges are kept in a
bounded per-channel memory window, trimmed by age, count, and token budget,
and merged with freshly fetched channel history on every turn.

Configuration comes from environment variables or a YAML file
(~/.hibiki/config.yaml); env vars always win. See 'hibiki --help'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Layer the YAML config under env vars (env always overrides).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Structured audit entry for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), path)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.hibiki/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
