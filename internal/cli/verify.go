package cli

import (
	"errors"
	"fmt"

	"github.com/autotab/api/internal/artifact"
	"github.com/spf13/cobra"
)

var verifySecret string

var verifyCmd = &cobra.Command{
	Use:   "verify <manifest.json>",
	Short: "Check a model manifest against the files next to it",
	Long: `Recomputes the SHA-256 digest of the model and its reports and checks the
HMAC signatures recorded in the manifest. Fails when any file was changed or
the manifest was signed with a different secret.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := cfg.ManifestSecret
		if verifySecret != "" {
			secret = verifySecret
		}
		m, err := artifact.NewSigner(secret).VerifyFile(args[0])
		if m == nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Model:      %s\n", m.ModelID)
		fmt.Fprintf(out, "Algorithm:  %s (%s)\n", m.Algorithm, m.ProblemType)
		fmt.Fprintf(out, "Score:      %s %.4f\n", m.Metric, m.Score)
		fmt.Fprintf(out, "Signed at:  %s\n", m.Timestamp.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(out, "Files:      %d\n", len(m.Files)+1)

		if err != nil {
			if errors.Is(err, artifact.ErrTampered) {
				fmt.Fprintln(out, "\n❌ VERIFICATION FAILED")
			}
			return err
		}
		fmt.Fprintln(out, "\n✅ VERIFICATION PASSED")
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySecret, "secret", "", "manifest signing secret (default MANIFEST_SECRET, then JWT_SECRET)")
	rootCmd.AddCommand(verifyCmd)
}
