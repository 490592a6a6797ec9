// Package main is the entry point for the recibo CLI.
package main

import (
	"os"

	"github.com/nexconsult/recibo-api/cmd/recibo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
