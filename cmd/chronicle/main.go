// Package main is the entry point for the chronicle CLI.
//
// Usage:
//
//	chronicle [flags] <command> [subcommand] [args]
//
// Commands:
//
//	config     - Configuration management (contexts, services)
//	generate   - One-shot continuation candidates for a text
//	write      - Interactive co-authoring session in the terminal
//	serve      - Host sessions over WebSocket
//	image      - Find an illustration for a text
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/chronicle/cmd/chronicle/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
