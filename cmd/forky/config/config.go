// Package configcmder provides the config command for managing persistent
// forky configuration stored in the .forky/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent forky configuration.

Configuration is stored as config.toml in the .forky/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen, client.api_target,
  model.provider, model.model, model.api_key, model.base_url,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  forky config set <key> <value>    Set a configuration value
  forky config get <key>            Get a configuration value
  forky config list                 List all configuration values
  forky config preset <name>        Apply a provider preset

Examples:
  forky config set model.provider anthropic
  forky config set storage.driver postgres
  forky config get model.model
  forky config preset openai
  forky config list`

const configShortDesc string = "Manage persistent forky configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newPresetCmd())

	return cmd
}
