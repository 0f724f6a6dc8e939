// Package validate implements the validate-config command.
package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
)

// Command creates the validate-config command: load and validate the
// configuration, then exit.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load()
			if err != nil {
				return err
			}
			fmt.Printf("configuration OK: bucket %s via %s\n",
				settings.S3.Bucket, settings.S3.Endpoint)
			return nil
		},
	}
}
