// Package main is the entry point for the rulebook console.
package main

import (
	"os"

	"github.com/dshills/rulebook/cmd/rulebook/cmd"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
