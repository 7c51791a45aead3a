// Package main is the entry point for the planfab CLI.
package main

import (
	"os"

	"github.com/planfab/planfab/internal/adapters/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
