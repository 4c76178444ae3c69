package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/dataset"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect <file.csv>",
	Short: "Show the inferred column kinds and the problem type of a CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := dataset.ReadCSVFile(args[0], dataset.Options{})
		if err != nil {
			return err
		}
		if err := ds.Validate(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tKIND\tDISTINCT\tROLE")
		target := ds.Target()
		for _, c := range ds.Columns {
			role := "feature"
			if c == target {
				role = "target"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Name, c.Kind, c.Distinct(), role)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(out, "\nrows: %d\nproblem type: %s\n", ds.NumRows(), automl.DetectProblemType(ds))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
