package main

import (
	"os"

	"github.com/NINAnor/tabmon-species-api/cmd"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
)

func main() {
	logging.Init()

	if err := cmd.RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
