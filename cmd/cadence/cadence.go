// Package cadencecmder
package cadencecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/cadence/cmd/cadence/config"
	duecmder "github.com/papercomputeco/cadence/cmd/cadence/due"
	importcmder "github.com/papercomputeco/cadence/cmd/cadence/importcmd"
	servecmder "github.com/papercomputeco/cadence/cmd/cadence/serve"
	versioncmder "github.com/papercomputeco/cadence/cmd/version"
)

const cadenceLongDesc string = `Cadence schedules spaced-repetition reviews for language learners.

Run the service using:
  cadence serve                Run the session service, tutor bridge and MCP tools

Work with the progress store directly:
  cadence due <user>           Print a learner's review queue
  cadence import <file>        Seed the store from a snapshot

Manage configuration:
  cadence config               Get, set and list config.toml values`

const cadenceShortDesc string = "Cadence - Adaptive Review Scheduling"

func NewCadenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cadence",
		Short:        cadenceShortDesc,
		Long:         cadenceLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.cadence or ~/.cadence)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(duecmder.NewDueCmd())
	cmd.AddCommand(importcmder.NewImportCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
