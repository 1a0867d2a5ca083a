// Package main is the entry point for the voicebridge CLI.
//
// Usage:
//
//	voicebridge [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the relay server (WebSocket clients <-> model backend)
//	sessions   - List journaled sessions
//	replay     - Print a session transcript from the journal
//	export     - Export a journaled session to the archive store
//	tools      - List the built-in tools advertised to the model
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voicebridge/cmd/voicebridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
