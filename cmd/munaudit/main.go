// Package main is the munaudit command-line entry point.
package main

import (
	"os"

	"github.com/civitas-labs/munaudit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
