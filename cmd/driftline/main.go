package main

import (
	"os"

	"github.com/driftline-systems/driftline/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
