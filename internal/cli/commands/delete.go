package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satriahrh/audiolens/internal/cli/ui"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "delete a registered analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		client, err := newClient(logger)
		if err != nil {
			return err
		}

		msg, err := client.DeleteSession(cmd.Context(), args[0])
		if err != nil {
			ui.PrintError("%v", err)
			return fmt.Errorf("delete failed")
		}
		ui.PrintSuccess("%s", msg)
		return nil
	},
}
