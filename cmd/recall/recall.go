// Package recallcmder
package recallcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/ashenvale/recall/cmd/recall/config"
	servecmder "github.com/ashenvale/recall/cmd/recall/serve"
	versioncmder "github.com/ashenvale/recall/cmd/version"
)

const recallLongDesc string = `Recall is the memory and context engine for the Ash agent.

Run services using:
  recall serve         Run the chat gateway and consolidation loop

Manage configuration using:
  recall config set    Set a configuration value
  recall config get    Get a configuration value
  recall config list   List all configuration values`

const recallShortDesc string = "Recall - Agent Memory Engine"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: recallShortDesc,
		Long:  recallLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("config-dir", "c", "", "Override the .recall/ directory location")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
