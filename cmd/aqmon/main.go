package main

import (
	"os"

	"github.com/evairo/aqmon/backend/cmd/aqmon/commands"
)

// main is the entry point for the aqmon CLI.
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
