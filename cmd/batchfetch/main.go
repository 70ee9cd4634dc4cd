package main

import (
	"os"

	"github.com/Sternrassler/batch-fetcher/cmd/batchfetch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
