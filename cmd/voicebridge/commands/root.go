// Package commands implements the voicebridge CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "voicebridge",
	Short: "Realtime speech-to-speech relay",
	Long: `voicebridge - A relay between realtime voice clients and model backends.

The relay accepts WebSocket connections from clients speaking the Nova Sonic
bidirectional event protocol, drives one model session per connection, runs
tool calls on the model's behalf, and journals every exchanged payload for
later replay.

Supported backends:
  novasonic  Amazon Nova Sonic bidirectional streaming
  openairt   OpenAI Realtime API

Examples:
  # Run the relay with a config file
  voicebridge serve -c voicebridge.yaml

  # List journaled sessions and replay one
  voicebridge sessions -c voicebridge.yaml
  voicebridge replay -c voicebridge.yaml sess_4f9d2a81c03b

  # Extract just the assistant text from a transcript
  voicebridge replay sess_4f9d2a81c03b --jq '.payload'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "voicebridge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return flagVerbose
}
