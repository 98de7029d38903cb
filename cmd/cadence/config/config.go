// Package configcmder provides the config command for managing persistent
// cadence configuration stored in the .cadence/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cadence/pkg/config"
)

const configLongDesc string = `Manage persistent cadence configuration.

Configuration is stored as config.toml in the .cadence/ directory and provides
default values for command flags. CLI flags and CADENCE_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  scheduler.base_interval, scheduler.min_ease, scheduler.easy_factor, ...
  sync.flush_interval, sync.flush_threshold, sync.flush_workers, ...
  lease.provider, lease.ttl, lease.redis_addr, ...
  ai.provider, ai.target, ai.model, ...
  eventstream.brokers, eventstream.topic,
  api.listen

Use subcommands to get, set, or list configuration values:
  cadence config set <key> <value>    Set a configuration value
  cadence config get <key>            Get a configuration value
  cadence config list                 List all configuration values

Examples:
  cadence config set storage.driver postgres
  cadence config set scheduler.base_interval 36h
  cadence config get lease.provider
  cadence config list`

const configShortDesc string = "Manage persistent cadence configuration"

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

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
