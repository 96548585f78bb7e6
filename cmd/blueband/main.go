// Package main provides the entry point for the blueband CLI.
package main

import (
	"os"

	"github.com/blueband-db/blueband/cmd/blueband/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
