package main

import (
	"os"

	"github.com/svlang/slang-harness/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
