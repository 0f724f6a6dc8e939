// Package serve implements the serve command: load configuration and run the
// HTTP API until terminated.
package serve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
	"github.com/NINAnor/tabmon-species-api/internal/server"
)

// Command creates the serve command.
func Command() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the validation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				settings.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Server.Port = port
			}
			logging.SetLevel(logging.ParseLevel(settings.Log.Level))
			return server.Run(context.Background(), settings)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen address")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port")
	return cmd
}
