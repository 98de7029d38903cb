package storeopen

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/cadence/pkg/config"
)

// Flags holds the store selection flags shared by commands that read or
// seed the progress store directly.
type Flags struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

var flagKeys = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
}

// AddFlags registers the store selection flags on cmd.
func AddFlags(cmd *cobra.Command, f *Flags) {
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &f.Driver)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &f.SQLitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &f.PostgresDSN)
}

// LoadConfig resolves the configuration for cmd with its store flags bound
// above environment and config file values.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ServeFlags, flagKeys)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, "", err
	}
	return cfg, configDir, nil
}
