package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/autotab/api/internal/app"
	"github.com/spf13/cobra"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to the database, Redis and NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		a, err := app.New(cmd.Context(), cfg, logger, app.Options{})
		if err != nil {
			fmt.Fprintf(out, "database     FAIL  %v\n", err)
			return err
		}
		defer a.Close()

		deps := a.HealthDeps()
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := false
		for _, name := range names {
			p := deps[name]
			if p == nil {
				fmt.Fprintf(out, "%-12s skip  not configured\n", name)
				continue
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			start := time.Now()
			err := p.Ping(ctx)
			cancel()
			if err != nil {
				failed = true
				fmt.Fprintf(out, "%-12s FAIL  %v\n", name, err)
				continue
			}
			fmt.Fprintf(out, "%-12s ok    %s\n", name, time.Since(start).Round(time.Millisecond))
		}

		probe := filepath.Join(a.Files.Root(), ".doctor")
		if err := os.WriteFile(probe, nil, 0o644); err != nil {
			failed = true
			fmt.Fprintf(out, "%-12s FAIL  %v\n", "outputs", err)
		} else {
			os.Remove(probe)
			fmt.Fprintf(out, "%-12s ok    %s\n", "outputs", a.Files.Root())
		}

		if failed {
			return errors.New("one or more checks failed")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 5*time.Second, "timeout per check")
	rootCmd.AddCommand(doctorCmd)
}
