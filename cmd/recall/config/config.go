// Package configcmder provides the config command for managing persistent
// recall configuration stored in the .recall/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent recall configuration.

Configuration is stored as config.toml in the .recall/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  store.provider, store.target, store.pool_size,
  vector.provider, vector.target, vector.db_path, vector.dimensions, vector.alpha,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  generation.target, generation.model, generation.api_key_env,
  promotion.window_days, promotion.repeat_threshold, promotion.similarity_cutoff,
  gateway.listen, gateway.agent_name, gateway.agent_user_id,
  events.provider, events.brokers, events.topic,
  consolidation.enabled, consolidation.schedule

Use subcommands to get, set, or list configuration values:
  recall config set <key> <value>   Set a configuration value
  recall config get <key>           Get a configuration value
  recall config list                List all configuration values

Examples:
  recall config set store.provider weaviate
  recall config set embedding.model nomic-embed-text
  recall config get gateway.listen
  recall config list`

const configShortDesc string = "Manage persistent recall configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
