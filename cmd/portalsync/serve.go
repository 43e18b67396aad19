package main

import (
	"github.com/smallbiznis/portalsync/internal/migration"
	"github.com/smallbiznis/portalsync/internal/scheduler"
	"github.com/smallbiznis/portalsync/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the portal API, the live notification stream and the deadline scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				migration.Module,
				server.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
