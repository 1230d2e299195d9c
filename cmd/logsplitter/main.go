// ============================================================================
// Logsplitter - Main Entry Point
// ============================================================================
//
// File: cmd/logsplitter/main.go
// Purpose: Application entry point and CLI initialization
//
// Version Injection:
//   Variables injected at build time via -ldflags:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./logsplitter --help                          # Show help
//   ./logsplitter --version                       # Show version
//   ./logsplitter gen -o input.json.gz -n 100000  # Generate a corpus
//   ./logsplitter run -i input.json.gz -o out/    # Split it
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/Bobxcat/logsplitter2/internal/cli"
)

// Build-time version injection via ldflags
var (
	version = "1.0.0"   // Semantic version
	commit  = "dev"     // Git commit hash
	date    = "unknown" // Build timestamp
)

// main initializes the CLI, handles panics, and executes commands
func main() {
	// Global panic recovery so an uncaught bug still exits cleanly
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
