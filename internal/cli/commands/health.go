package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satriahrh/audiolens/internal/cli/ui"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "check that a relay is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		client, err := newClient(logger)
		if err != nil {
			return err
		}

		health, err := client.HealthCheck(cmd.Context())
		if err != nil {
			ui.PrintError("%v", err)
			return fmt.Errorf("health check failed")
		}
		ui.PrintSuccess("%s is %s", health.Service, health.Status)
		return nil
	},
}
