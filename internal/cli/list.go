package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/fieldsync/internal/models"
)

var (
	syncedBadge  = color.New(color.FgGreen).SprintFunc()
	pendingBadge = color.New(color.FgYellow).SprintFunc()
	failedBadge  = color.New(color.FgRed).SprintFunc()
)

func stateBadge(s models.SyncState) string {
	switch s {
	case models.SyncStateSynced:
		return syncedBadge("synced")
	case models.SyncStateFailed:
		return failedBadge("failed")
	default:
		return pendingBadge("pending")
	}
}

// ListCmd prints local sessions and their sync states.
func ListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locally stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			var records []*models.Record
			if all {
				records, err = e.ListAll(ctx)
			} else {
				records, err = e.ListPending(ctx)
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No sessions.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCHOOL\tTYPE\tDATE\tPARTICIPANTS\tSTATE\tREMOTE")
			for _, r := range records {
				remoteID := r.RemoteID
				if remoteID == "" {
					remoteID = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
					r.LocalID, r.Body.SchoolName, r.Body.SessionType, r.Body.SessionDate,
					r.Body.TotalParticipants(), stateBadge(r.SyncState), remoteID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include synced sessions")
	return cmd
}

// StatusCmd prints connectivity and store summary.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.Online() {
				color.Green("Online")
			} else {
				color.Yellow("Offline")
			}

			st, err := e.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sessions: %d total, %d synced, %d pending\n", st.Total, st.Synced, st.Pending)
			fmt.Printf("Participants reached in the last 7 days: %d\n", st.RecentParticipants)

			for _, warn := range e.Warnings() {
				color.Yellow("warning: %s", warn)
			}
			return nil
		},
	}
}
