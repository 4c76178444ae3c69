package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/config"
	"github.com/autotab/api/internal/dataset"
	"github.com/autotab/api/internal/eventbus"
	"github.com/autotab/api/internal/metrics"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/registry"
	"github.com/autotab/api/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInvalidInput marks failures caused by the uploaded data rather than by
// the service.
var ErrInvalidInput = errors.New("invalid training data")

// Options controls the split and the model search.
type Options struct {
	TestRatio float64
	Seed      int64
	Search    automl.Options
}

// OptionsFromConfig applies the configured seed, ratio and search sizes to
// the default search options.
func OptionsFromConfig(cfg *config.Config) Options {
	search := automl.DefaultOptions()
	search.Seed = cfg.Seed
	if cfg.Folds > 0 {
		search.Folds = cfg.Folds
	}
	if cfg.TuneIterations >= 0 {
		search.TuneIterations = cfg.TuneIterations
	}
	return Options{TestRatio: cfg.TestRatio, Seed: cfg.Seed, Search: search}
}

// Deps are the collaborators of an Orchestrator. Latest, Cache, Bus and
// Metrics are optional.
type Deps struct {
	Searcher automl.Searcher
	Files    *artifact.Store
	Signer   *artifact.Signer
	Registry registry.Store
	Latest   artifact.LatestIndex
	Cache    *artifact.ModelCache
	Bus      eventbus.Publisher
	Metrics  *metrics.Metrics
}

// Orchestrator runs one training request end to end: split, search, score
// the held-out rows and persist every output.
type Orchestrator struct {
	deps   Deps
	opt    Options
	logger *zap.Logger
}

func NewOrchestrator(deps Deps, opt Options, logger *zap.Logger) *Orchestrator {
	if deps.Latest == nil {
		deps.Latest = artifact.NewMemoryLatest()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	if opt.TestRatio <= 0 || opt.TestRatio >= 1 {
		opt.TestRatio = 0.25
	}
	return &Orchestrator{deps: deps, opt: opt, logger: logger}
}

// Request is one uploaded dataset to train on.
type Request struct {
	Owner   uuid.UUID
	Name    string
	Dataset *dataset.Dataset
	// Problem overrides detection when set.
	Problem automl.ProblemType
}

// Outcome describes a finished run.
type Outcome struct {
	Record      *models.ModelRecord
	Pipeline    *automl.Pipeline
	Leaderboard []automl.LeaderboardEntry
	Importances []automl.FeatureImportance
	Manifest    *models.Manifest
}

// Latest returns the newest run of owner, or artifact.ErrNotFound.
func (o *Orchestrator) Latest(ctx context.Context, owner uuid.UUID) (artifact.Latest, error) {
	return o.deps.Latest.Get(ctx, owner)
}

// Train blocks until the run is persisted or ctx is cancelled.
func (o *Orchestrator) Train(ctx context.Context, req Request) (out *Outcome, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer("training").Start(ctx, "training.Train")
	defer span.End()

	pt := req.Problem
	defer func() {
		telemetry.RecordError(span, err)
		o.observe(pt, out, err, time.Since(start))
	}()

	if req.Dataset == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, dataset.ErrEmptyDataset)
	}
	if err := req.Dataset.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if pt == "" {
		pt = automl.DetectProblemType(req.Dataset)
	}
	span.SetAttributes(
		attribute.String("problem_type", string(pt)),
		attribute.Int("rows", req.Dataset.NumRows()),
	)
	log := o.logger.With(
		zap.String("owner_id", req.Owner.String()),
		zap.String("dataset", req.Name),
		zap.String("problem_type", string(pt)),
	)
	log.Info("Training started", zap.Int("rows", req.Dataset.NumRows()), zap.Int("columns", len(req.Dataset.Columns)))

	split, err := dataset.TrainTestSplit(req.Dataset, o.opt.TestRatio, o.opt.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	search := o.opt.Search
	search.FixImbalance = search.FixImbalance && pt == automl.Classification
	res, err := o.deps.Searcher.Search(ctx, split.Train, pt, search)
	if err != nil {
		if errors.Is(err, automl.ErrNoFeatures) || errors.Is(err, automl.ErrTooFewFolds) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("model search: %w", err)
	}
	log.Info("Model selected",
		zap.String("algorithm", res.Pipeline.Algorithm),
		zap.String("metric", res.Metric),
		zap.Float64("score", res.Score),
		zap.Bool("tuned", res.Tuned),
	)

	report, err := res.Pipeline.Report(split.Test)
	if err != nil {
		return nil, fmt.Errorf("score held-out rows: %w", err)
	}

	imp, hasImp := res.Pipeline.Importances()
	if !hasImp {
		log.Info("Selected model does not report feature importance", zap.String("algorithm", res.Pipeline.Algorithm))
	}

	modelID := uuid.New()
	trainedAt := time.Now().UTC()
	rec := &models.ModelRecord{
		ID:          modelID,
		OwnerID:     req.Owner,
		Name:        req.Name,
		ProblemType: string(pt),
		Algorithm:   res.Pipeline.Algorithm,
		Metric:      res.Metric,
		Score:       res.Score,
		Tuned:       res.Tuned,
		TrainRows:   split.Train.NumRows(),
		TestRows:    split.Test.NumRows(),
		TrainedAt:   trainedAt,
	}

	manifest, latest, err := o.persist(ctx, rec, res.Pipeline, report, imp, hasImp)
	if err != nil {
		return nil, err
	}

	if err := o.deps.Registry.InsertModel(ctx, rec); err != nil {
		return nil, fmt.Errorf("register model: %w", err)
	}
	rec.HasImportance = hasImp

	latest.UpdatedAt = trainedAt
	if err := o.deps.Latest.Set(ctx, req.Owner, latest); err != nil {
		return nil, fmt.Errorf("update latest reports: %w", err)
	}
	if o.deps.Cache != nil {
		o.deps.Cache.Put(rec.ArtifactPath, res.Pipeline)
	}

	event := models.TrainedEvent{
		ModelID:     modelID,
		OwnerID:     req.Owner,
		Name:        req.Name,
		ProblemType: rec.ProblemType,
		Algorithm:   rec.Algorithm,
		Metric:      rec.Metric,
		Score:       rec.Score,
		TrainedAt:   trainedAt,
	}
	if err := o.deps.Bus.Publish(ctx, eventbus.SubjectModelTrained, event); err != nil {
		log.Warn("Failed to publish training event", zap.Error(err))
	}

	log.Info("Training finished",
		zap.String("model_id", modelID.String()),
		zap.Int("test_rows", rec.TestRows),
		zap.Duration("took", time.Since(start)),
	)
	return &Outcome{
		Record:      rec,
		Pipeline:    res.Pipeline,
		Leaderboard: res.Leaderboard,
		Importances: imp,
		Manifest:    manifest,
	}, nil
}

// persist writes the reports, the model and its manifest and fills the
// path fields of rec. The returned Latest points at the reports to serve as
// the owner's newest: the run's own files, or the fixed-name copies.
func (o *Orchestrator) persist(ctx context.Context, rec *models.ModelRecord, p *automl.Pipeline, report *dataset.Dataset, imp []automl.FeatureImportance, hasImp bool) (*models.Manifest, artifact.Latest, error) {
	_, span := telemetry.Tracer("training").Start(ctx, "training.persist")
	defer span.End()

	var latest artifact.Latest

	files := o.deps.Files
	unlock := files.Lock(rec.OwnerID)
	defer unlock()

	layout, err := files.Layout(rec.OwnerID, rec.ID, rec.TrainedAt)
	if err != nil {
		return nil, latest, err
	}

	if err := files.Write(layout.Predictions, report.WriteCSV); err != nil {
		return nil, latest, fmt.Errorf("write predictions: %w", err)
	}
	rec.PredictionsPath = layout.Predictions
	reports := []string{layout.Predictions}

	if hasImp {
		err := files.Write(layout.Importance, func(w io.Writer) error {
			return artifact.WriteImportance(w, imp)
		})
		if err != nil {
			return nil, latest, fmt.Errorf("write feature importance: %w", err)
		}
		rec.ImportancePath = layout.Importance
		reports = append(reports, layout.Importance)
	}

	if err := files.Write(layout.Model, func(w io.Writer) error {
		return automl.WritePipeline(w, p)
	}); err != nil {
		return nil, latest, fmt.Errorf("write model: %w", err)
	}
	rec.ArtifactPath = layout.Model

	manifest, err := o.deps.Signer.Sign(artifact.ManifestInput{
		ModelID:     rec.ID,
		OwnerID:     rec.OwnerID,
		Algorithm:   rec.Algorithm,
		ProblemType: rec.ProblemType,
		Metric:      rec.Metric,
		Score:       rec.Score,
		ModelPath:   layout.Model,
		Reports:     reports,
	})
	if err != nil {
		return nil, latest, fmt.Errorf("sign model: %w", err)
	}
	if err := files.Write(layout.Manifest, func(w io.Writer) error {
		return artifact.WriteManifest(w, manifest)
	}); err != nil {
		return nil, latest, fmt.Errorf("write manifest: %w", err)
	}
	rec.ManifestPath = layout.Manifest

	latest = artifact.Latest{ModelID: rec.ID, Predictions: rec.PredictionsPath, Importance: rec.ImportancePath}
	if layout.LatestPredictions != "" {
		if err := files.Write(layout.LatestPredictions, report.WriteCSV); err != nil {
			return nil, latest, fmt.Errorf("publish predictions: %w", err)
		}
		latest.Predictions = layout.LatestPredictions
		latest.Importance = ""
		if !hasImp {
			if err := files.Remove(layout.LatestImportance); err != nil {
				return nil, latest, fmt.Errorf("drop stale feature importance: %w", err)
			}
		} else {
			err := files.Write(layout.LatestImportance, func(w io.Writer) error {
				return artifact.WriteImportance(w, imp)
			})
			if err != nil {
				return nil, latest, fmt.Errorf("publish feature importance: %w", err)
			}
			latest.Importance = layout.LatestImportance
		}
	}

	span.SetAttributes(attribute.String("dir", filepath.Base(layout.Dir)))
	return manifest, latest, nil
}

func (o *Orchestrator) observe(pt automl.ProblemType, out *Outcome, err error, took time.Duration) {
	m := o.deps.Metrics
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(err, ErrInvalidInput):
		outcome = "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	m.TrainingRuns.WithLabelValues(string(pt), outcome).Inc()
	if err == nil && out != nil {
		m.TrainingDuration.WithLabelValues(string(pt)).Observe(took.Seconds())
		m.ModelScore.WithLabelValues(string(pt), out.Record.Algorithm).Set(out.Record.Score)
	}
}
