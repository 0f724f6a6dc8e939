package cmd

import (
	"github.com/spf13/cobra"

	"github.com/NINAnor/tabmon-species-api/cmd/serve"
	"github.com/NINAnor/tabmon-species-api/cmd/validate"
)

// RootCommand creates and returns the root command.
func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabmon-species-api",
		Short: "TABMON species validation API",
		Long:  "Backend for the TABMON listening lab: validate automated bird-species detections against audio clips.",
	}

	rootCmd.AddCommand(
		serve.Command(),
		validate.Command(),
	)
	return rootCmd
}
