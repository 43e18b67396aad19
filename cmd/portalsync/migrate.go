package main

import (
	"context"
	"errors"

	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema migrations, or revert the last one with --down",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
					if !down {
						return migration.Apply(conn, cfg, log)
					}
					if conn.Dialector.Name() != "postgres" {
						return errors.New("rollback is only supported on postgres")
					}
					sqlDB, err := conn.DB()
					if err != nil {
						return err
					}
					return migration.RollbackLast(sqlDB)
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			return app.Stop(context.Background())
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "revert the most recent migration")
	return cmd
}
