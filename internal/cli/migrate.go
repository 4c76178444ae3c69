package cli

import (
	"fmt"

	"github.com/autotab/api/internal/app"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations to the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, logger, app.Options{Offline: true})
		if err != nil {
			return err
		}
		defer a.Close()

		store := "sqlite (" + cfg.SQLitePath + ")"
		if cfg.UsesPostgres() {
			store = "postgres"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied to %s\n", store)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
