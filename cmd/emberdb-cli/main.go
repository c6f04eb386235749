// Package main provides the entry point for emberdb-cli.
package main

import (
	"fmt"
	"os"

	"github.com/solask/emberdb/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
