// Package main is the entry point for the devdeck binary.
//
// devdeck switches ssh port-forward tunnels on and off and shows the health
// of the services behind them. It combines a TUI dashboard (built with
// Bubble Tea) and a CLI (built with Cobra).
//
// When invoked without arguments, it launches the interactive dashboard,
// which owns its own tunnel supervisor. `devdeck serve` runs the same
// supervisor headless behind a local HTTP API that the `tunnel` subcommands
// talk to.
//
// Usage:
//
//	devdeck                          # launch the TUI dashboard
//	devdeck serve                    # run tunnels headless with the HTTP API
//	devdeck tunnel toggle Staging on # connect a tunnel through the API
//	devdeck doctor                   # check ssh, config and local ports
package main

import (
	"fmt"
	"os"

	"github.com/treykane/devdeck/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()

	// Errors from RunE handlers are printed here; the root command silences
	// cobra's own error output so nothing is printed twice.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
