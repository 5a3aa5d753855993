package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashenvale/recall/pkg/cliui"
	"github.com/ashenvale/recall/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .recall/ directory. Keys use dotted notation matching
the TOML section structure.

Valid keys:
  store.provider, store.target, store.pool_size,
  vector.provider, vector.target, vector.db_path, vector.dimensions, vector.alpha,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  generation.target, generation.model, generation.api_key_env,
  promotion.window_days, promotion.repeat_threshold, promotion.similarity_cutoff,
  gateway.listen, gateway.agent_name, gateway.agent_user_id,
  events.provider, events.brokers, events.topic,
  consolidation.enabled, consolidation.schedule

Examples:
  recall config set store.provider weaviate
  recall config set vector.alpha 0.7
  recall config set embedding.dimensions 768`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runSet(key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := cfger.GetTarget()
	if target != "" {
		fmt.Printf("\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	err = cfger.SetConfigValue(key, value)
	if err != nil {
		return err
	}

	fmt.Printf("  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
