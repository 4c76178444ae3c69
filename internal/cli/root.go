// Package cli implements the autotab command line: local training, problem
// detection, manifest verification and operational checks.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autotab/api/internal/config"
	"github.com/autotab/api/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string

	// v carries defaults and env vars; persistent flags are bound onto it.
	v = config.New()

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "autotab",
	Short: "AutoTab CLI: train and inspect tabular models locally",
	Long: `AutoTab trains the best model for a CSV whose last column is the target,
writes predictions on a held-out split plus feature importance, and records
the run in the model registry shared with the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute is the entry point called by main.main(). Interrupts cancel a
// running command between model fits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// The CLI prints its own results; keep logs to warnings unless asked.
	v.SetDefault("log_level", "warn")

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ./autotab.yaml)")
	f.String("output-dir", "", "directory for predictions, reports and models")
	f.String("database-url", "", "Postgres URL; empty uses the SQLite store")
	f.String("sqlite-path", "", "SQLite database file")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.Int64("seed", 0, "random seed for the split and the search")

	for flag, key := range map[string]string{
		"output-dir":   "output_dir",
		"database-url": "database_url",
		"sqlite-path":  "sqlite_path",
		"log-level":    "log_level",
		"seed":         "seed",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
}

func loadConfig() error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	c, err := config.FromViper(v)
	if err != nil {
		return err
	}
	cfg = c

	l, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Development: true})
	if err != nil {
		return err
	}
	logger = l
	return nil
}
