package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/fieldsync/internal/common"
)

// SyncCmd triggers a manual sync pass.
func SyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push all pending sessions to the remote service now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.SyncNow(ctx)
			if err != nil {
				if errors.Is(err, common.ErrOffline) {
					return fmt.Errorf("cannot sync: the remote service is unreachable")
				}
				return err
			}

			if report.Failed > 0 {
				color.Yellow("Synced %d session(s); %d failed and will be retried.",
					report.Synced, report.Failed)
			} else {
				color.Green("Synced %d session(s).", report.Synced)
			}
			return nil
		},
	}
}

// SweepCmd removes synced sessions older than the retention window.
func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove synced sessions past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			removed, err := e.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired session(s).\n", removed)
			return nil
		},
	}
}
