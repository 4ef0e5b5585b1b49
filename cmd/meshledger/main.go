package main

import (
	"os"

	"github.com/meshledger/meshledger/cmd/meshledger/commands"
)

func main() {
	rootCmd := commands.RootCmd

	// Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
