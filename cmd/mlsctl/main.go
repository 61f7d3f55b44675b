package main

import (
	"os"

	"mlsgroup/cmd/mlsctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
