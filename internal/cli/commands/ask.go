package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satriahrh/audiolens/internal/cli/ui"
)

// askCmd asks one question
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "ask a question about an analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	addSessionFlags(askCmd)
	askCmd.Flags().Bool("no-stream", false, "wait for the whole answer instead of streaming")
}

func runAsk(cmd *cobra.Command, args []string) error {
	session, err := resolveSession(cmd)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	client, err := newClient(logger)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	noStream, _ := cmd.Flags().GetBool("no-stream")

	if noStream {
		exchange := client.SendNonStreaming(cmd.Context(), session, question)
		if exchange.Error != nil {
			ui.PrintError("%s", *exchange.Error)
			return fmt.Errorf("chat request failed")
		}
		ui.PrintChunk(exchange.Answer)
		ui.EndAnswer()
		return nil
	}

	var printed strings.Builder
	exchange := client.SendStreaming(cmd.Context(), session, question, func(chunk string) {
		printed.WriteString(chunk)
		ui.PrintChunk(chunk)
	})
	if printed.Len() > 0 {
		ui.EndAnswer()
	}

	if exchange.Error != nil {
		ui.PrintError("%s", *exchange.Error)
		return fmt.Errorf("chat request failed")
	}
	if exchange.FellBack {
		ui.PrintWarning("streaming failed, answer came from a plain request")
		// A fallback answer is printed as a single chunk unless a partial
		// stream got there first.
		if printed.Len() > 0 && printed.String() != exchange.Answer {
			ui.PrintBold("Full answer:")
			ui.PrintChunk(exchange.Answer)
			ui.EndAnswer()
		}
	}
	if exchange.ModelUsed != nil {
		ui.PrintInfo("model: %s", *exchange.ModelUsed)
	}
	return nil
}
