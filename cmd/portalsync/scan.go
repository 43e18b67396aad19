package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/portalsync/internal/invoice"
	"github.com/smallbiznis/portalsync/internal/notification"
	"github.com/smallbiznis/portalsync/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func scanCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the invoice deadline scan once for every tenant with unpaid invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			app := fx.New(
				infrastructure(),
				invoice.Module,
				notification.Module,
				scheduler.Components,
				fx.Populate(&sched),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				_ = app.Stop(context.Background())
			}()

			if err := sched.RunOnce(ctx); err != nil {
				return fmt.Errorf("deadline scan: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the scan")
	return cmd
}
