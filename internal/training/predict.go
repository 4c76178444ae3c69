package training

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/dataset"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Score applies a registered model to new rows and returns them with the
// prediction columns appended.
func (o *Orchestrator) Score(ctx context.Context, rec *models.ModelRecord, ds *dataset.Dataset) (*dataset.Dataset, error) {
	_, span := telemetry.Tracer("training").Start(ctx, "training.Score")
	defer span.End()
	span.SetAttributes(attribute.String("model_id", rec.ID.String()))

	if ds == nil || ds.NumRows() == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, dataset.ErrEmptyDataset)
	}
	p, err := o.pipeline(rec.ArtifactPath)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	out, err := p.Report(ds)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, automl.ErrMissingColumn) {
			return nil, fmt.Errorf("%w: %w (model expects %s)", ErrInvalidInput, err, strings.Join(p.FeatureNames(), ", "))
		}
		return nil, fmt.Errorf("score rows: %w", err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.Predictions.WithLabelValues(rec.Algorithm).Add(float64(ds.NumRows()))
	}
	o.logger.Info("Scored rows",
		zap.String("model_id", rec.ID.String()),
		zap.Int("rows", ds.NumRows()),
	)
	return out, nil
}

func (o *Orchestrator) pipeline(path string) (*automl.Pipeline, error) {
	if !o.deps.Files.Exists(path) {
		return nil, artifact.ErrNotFound
	}
	if o.deps.Cache != nil {
		return o.deps.Cache.Get(path)
	}
	return automl.LoadPipeline(path)
}
