package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/fieldsync/internal/cli"
	"github.com/example/fieldsync/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "fieldsync",
		Short:   "fieldsync - offline-first session recording with automatic sync",
		Version: version.String(),
		Long: `fieldsync records coaching sessions and photos into a durable local
store and pushes them to the remote portal whenever connectivity allows.
Working offline is the expected case, not an error.`,
	}

	cli.RegisterRootFlags(rootCmd)

	rootCmd.AddCommand(cli.RecordCmd())
	rootCmd.AddCommand(cli.SyncCmd())
	rootCmd.AddCommand(cli.ListCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.SweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
