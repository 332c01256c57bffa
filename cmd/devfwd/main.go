// Package main is the entry point for the devfwd binary.
//
// devfwd manages reverse TCP port forwards from adb-attached devices back
// to the host. It combines a TUI dashboard (built with Bubble Tea) and a
// CLI (built with Cobra).
//
// When invoked without arguments, it launches the interactive dashboard.
// With subcommands (e.g. "devices", "forward up", "screenshot"), it runs
// the corresponding CLI operation and exits.
//
// Usage:
//
//	devfwd                              # launch the dashboard
//	devfwd devices                      # list attached devices
//	devfwd forward up -p 0:8080         # start a reverse forward
//
// The CLI is constructed in internal/cli and the TUI in internal/ui. This
// file simply wires them together and handles top-level error reporting.
package main

import (
	"fmt"
	"os"

	"devfwd/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
