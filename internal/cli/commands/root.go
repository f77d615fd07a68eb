package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/internal/chatclient"
)

const version = "0.1.0"

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "askctl",
	Short:   "Ask questions about analyzed audio",
	Version: version,
	Long: `A command-line client for the audiolens chat relay. Streams answers about an
audio analysis, falling back to a plain request when streaming fails.`,
	Example: `  # Ask about an analysis file, streaming the answer
  $ askctl ask "who spoke first?" --results results.json

  # Register an analysis once and refer to it by session ID
  $ askctl register results.json
  $ askctl ask "what was the loud noise?" --session <id>

  # Try a second relay when the first is down
  $ askctl ask "summarize" --session <id> -s http://relay-a:8080 -s http://relay-b:8080`,
	SilenceUsage: true,
}

// Execute executes the root command. Cancelling ctx aborts in-flight
// requests.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringSliceP("server", "s", []string{"http://localhost:8080"}, "relay base URL, repeat to add fallbacks")
	flags.Duration("timeout", 100*time.Second, "timeout for non-streaming requests")
	flags.BoolP("verbose", "v", false, "log requests and failures")

	viper.SetEnvPrefix("ASKCTL")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("servers", flags.Lookup("server"))
	_ = viper.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(wsCmd)
}

func newLogger() *zap.Logger {
	if !viper.GetBool("verbose") {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newClient(logger *zap.Logger) (*chatclient.Client, error) {
	return chatclient.New(viper.GetStringSlice("servers"),
		chatclient.WithLogger(logger),
		chatclient.WithRequestTimeout(viper.GetDuration("timeout")),
	)
}

// resolveSession builds the session from --session or --results
func resolveSession(cmd *cobra.Command) (chatclient.Session, error) {
	sessionID, _ := cmd.Flags().GetString("session")
	resultsPath, _ := cmd.Flags().GetString("results")

	switch {
	case sessionID != "" && resultsPath != "":
		return chatclient.Session{}, fmt.Errorf("use either --session or --results, not both")
	case sessionID != "":
		return chatclient.Session{ID: sessionID}, nil
	case resultsPath != "":
		payload, err := readPayload(resultsPath)
		if err != nil {
			return chatclient.Session{}, err
		}
		return chatclient.Session{Payload: payload}, nil
	default:
		return chatclient.Session{}, fmt.Errorf("one of --session or --results is required")
	}
}

func readPayload(path string) (entities.AnalysisPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.AnalysisPayload{}, fmt.Errorf("failed to read results: %w", err)
	}
	payload := entities.NewAnalysisPayload(data)
	if payload.IsEmpty() {
		return entities.AnalysisPayload{}, fmt.Errorf("%s holds no analysis", path)
	}
	return payload, nil
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("session", "", "registered session ID")
	cmd.Flags().String("results", "", "path to an analysis results JSON file")
}
