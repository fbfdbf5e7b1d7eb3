// Package cli implements the fieldsync command-line interface. Commands are
// collaborators of the engine facade: they ingest, trigger syncs and render
// status, but never touch the store or the protocol client directly.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/fieldsync/internal/config"
	"github.com/example/fieldsync/internal/engine"
	"github.com/example/fieldsync/internal/logging"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	preset     string
	endpoint   string
	dbPath     string
	verbose    bool
}

var flags rootFlags

// RegisterRootFlags attaches the shared flags to the root command.
func RegisterRootFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a JSON config file")
	pf.StringVarP(&flags.preset, "preset", "p", "desktop", "configuration preset (desktop|mobile)")
	pf.StringVar(&flags.endpoint, "endpoint", "", "remote service base URL (overrides config)")
	pf.StringVar(&flags.dbPath, "db", "", "local database path (overrides config)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.preset, flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.endpoint != "" {
		cfg.Endpoint = flags.endpoint
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	return cfg, nil
}

func newLogger() logging.Logger {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.NewSlogLogger(slog.New(h))
}

// newEngine builds and initializes an engine from the effective config.
// The caller must Close it.
func newEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e := engine.New(cfg, newLogger())
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
