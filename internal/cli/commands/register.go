package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/satriahrh/audiolens/internal/cli/ui"
)

var registerCmd = &cobra.Command{
	Use:   "register <results.json>",
	Short: "register an analysis and print its session ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

func init() {
	registerCmd.Flags().String("filename", "", "name of the analyzed audio file (defaults to the results file name)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(args[0])
	if err != nil {
		return err
	}

	filename, _ := cmd.Flags().GetString("filename")
	if filename == "" {
		filename = filepath.Base(args[0])
	}

	logger := newLogger()
	defer logger.Sync()

	client, err := newClient(logger)
	if err != nil {
		return err
	}

	info, err := client.RegisterAnalysis(cmd.Context(), filename, payload)
	if err != nil {
		ui.PrintError("%v", err)
		return fmt.Errorf("register failed")
	}

	if info.Cached {
		ui.PrintInfo("analysis was already registered")
	} else {
		ui.PrintSuccess("analysis registered")
	}
	ui.PrintField("session_id", info.SessionID)
	ui.PrintField("filename", info.Filename)
	ui.PrintField("expires_at", info.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
