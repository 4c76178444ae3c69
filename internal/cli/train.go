package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/autotab/api/internal/app"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/dataset"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/registry"
	"github.com/autotab/api/internal/training"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	trainUser        string
	trainProblemType string
	trainInclude     []string
	trainFolds       int
	trainTune        int
	trainPublish     bool
)

var trainCmd = &cobra.Command{
	Use:   "train <file.csv>",
	Short: "Train on a CSV and write predictions, feature importance and the model",
	Long: `Splits the CSV (last column is the target), compares candidate models with
cross-validation, tunes the best one and scores the held-out rows. Outputs are
written under the output directory and recorded in the registry for --user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := dataset.ReadCSVFile(args[0], dataset.Options{})
		if err != nil {
			return err
		}

		var pt automl.ProblemType
		if trainProblemType != "" {
			if pt, err = automl.ParseProblemType(trainProblemType); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("folds") {
			cfg.Folds = trainFolds
		}
		if cmd.Flags().Changed("tune-iterations") {
			cfg.TuneIterations = trainTune
		}

		a, err := app.New(cmd.Context(), cfg, logger, app.Options{Offline: !trainPublish})
		if err != nil {
			return err
		}
		defer a.Close()

		owner, err := localUser(cmd.Context(), a.Store, trainUser)
		if err != nil {
			return err
		}

		orch := a.Orchestrator
		if len(trainInclude) > 0 {
			opt := training.OptionsFromConfig(cfg)
			opt.Search.Include = trainInclude
			orch = training.NewOrchestrator(a.TrainingDeps(), opt, logger.Named("training"))
		}

		out, err := orch.Train(cmd.Context(), training.Request{
			Owner:   owner.ID,
			Name:    ds.Name,
			Dataset: ds,
			Problem: pt,
		})
		if err != nil {
			return err
		}
		return printOutcome(cmd, out)
	},
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainUser, "user", "cli", "registry user that owns the trained model")
	f.StringVar(&trainProblemType, "problem-type", "", "classification or regression (default: detect from the target)")
	f.StringSliceVar(&trainInclude, "include", nil, "candidate model ids to compare (default: all)")
	f.IntVar(&trainFolds, "folds", 10, "cross-validation folds")
	f.IntVar(&trainTune, "tune-iterations", 10, "random search iterations for the best model")
	f.BoolVar(&trainPublish, "publish", false, "update Redis and publish to NATS when configured")
	rootCmd.AddCommand(trainCmd)
}

// localUser returns the named user, creating it with an unusable password
// on first use.
func localUser(ctx context.Context, store registry.Store, username string) (*models.User, error) {
	u, err := store.UserByUsername(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u = &models.User{ID: uuid.New(), Username: username, PasswordHash: string(hash), Role: models.RoleUser}
	if err := store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, registry.ErrUsernameTaken) {
			return store.UserByUsername(ctx, username)
		}
		return nil, err
	}
	return u, nil
}

func printOutcome(cmd *cobra.Command, out *training.Outcome) error {
	w := cmd.OutOrStdout()
	rec := out.Record

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "MODEL\tNAME\t%s\n", strings.ToUpper(rec.Metric))
	for _, e := range out.Leaderboard {
		if e.Err != "" {
			fmt.Fprintf(tw, "%s\t%s\tfailed: %s\n", e.ID, e.Name, e.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\n", e.ID, e.Name, e.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n✓ Trained %s (%s) on %d rows, scored %d held-out rows\n",
		rec.Algorithm, rec.ProblemType, rec.TrainRows, rec.TestRows)
	fmt.Fprintf(w, "  model id:    %s\n", rec.ID)
	fmt.Fprintf(w, "  predictions: %s\n", rec.PredictionsPath)
	if rec.HasImportance {
		fmt.Fprintf(w, "  importance:  %s\n", rec.ImportancePath)
	} else {
		fmt.Fprintln(w, "  importance:  not available for this model")
	}
	fmt.Fprintf(w, "  model:       %s\n", rec.ArtifactPath)
	fmt.Fprintf(w, "  manifest:    %s\n", rec.ManifestPath)
	return nil
}
