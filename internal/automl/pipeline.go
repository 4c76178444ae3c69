package automl

import (
	"errors"
	"strconv"

	"github.com/autotab/api/internal/dataset"
)

// Report column names appended to scored rows.
const (
	LabelColumn = "prediction_label"
	ScoreColumn = "prediction_score"
)

// Pipeline is a fitted model: preprocessing, selected features and the
// winning estimator.
type Pipeline struct {
	Problem       ProblemType    `json:"problem_type"`
	TargetName    string         `json:"target"`
	Algorithm     string         `json:"algorithm"`
	AlgorithmName string         `json:"algorithm_name"`
	Params        Params         `json:"params,omitempty"`
	Metric        string         `json:"metric"`
	CVScore       float64        `json:"cv_score"`
	Pre           *Preprocessor  `json:"preprocessor"`
	Target        *targetEncoder `json:"target_encoder"`
	Selected      []int          `json:"selected"`
	Estimator     Estimator      `json:"-"`
}

// Prediction holds one label per scored row and, for classification, the
// probability of that label.
type Prediction struct {
	Labels []string
	Scores []float64
}

// FeatureImportance is the importance of one source column.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// FeatureNames lists the source columns the pipeline expects.
func (p *Pipeline) FeatureNames() []string {
	out := make([]string, len(p.Pre.Encoders))
	for i, enc := range p.Pre.Encoders {
		out[i] = enc.Column
	}
	return out
}

// Classes lists the class labels in index order; nil for regression.
func (p *Pipeline) Classes() []string {
	return append([]string(nil), p.Target.Classes...)
}

// Predict scores every row of ds. The target column, if present, is ignored.
func (p *Pipeline) Predict(ds *dataset.Dataset) (*Prediction, error) {
	if p.Estimator == nil {
		return nil, ErrNotFitted
	}
	X, err := p.Pre.Transform(ds)
	if err != nil {
		return nil, err
	}
	Xs := project(X, p.Selected)
	out := &Prediction{Labels: make([]string, len(Xs))}

	if p.Problem == Classification {
		pc, ok := p.Estimator.(ProbabilisticClassifier)
		if !ok {
			return nil, errors.New("classifier does not expose probabilities")
		}
		out.Scores = make([]float64, len(Xs))
		for i, pr := range pc.PredictProba(Xs) {
			c := argmax(pr)
			out.Labels[i] = p.Target.decode(float64(c))
			out.Scores[i] = round4(pr[c])
		}
		return out, nil
	}
	for i, v := range p.Estimator.Predict(Xs) {
		out.Labels[i] = p.Target.decode(v)
	}
	return out, nil
}

// Report returns ds with the prediction columns appended. Names already
// used by ds get a numeric suffix.
func (p *Pipeline) Report(ds *dataset.Dataset) (*dataset.Dataset, error) {
	pred, err := p.Predict(ds)
	if err != nil {
		return nil, err
	}
	kind := dataset.KindFloat
	if p.Problem == Classification {
		kind = p.Target.Kind
	}
	out := ds.WithColumn(freeName(ds, LabelColumn), kind, pred.Labels)
	if pred.Scores != nil {
		scores := make([]string, len(pred.Scores))
		for i, s := range pred.Scores {
			scores[i] = formatScore(s)
		}
		out = out.WithColumn(freeName(out, ScoreColumn), dataset.KindFloat, scores)
	}
	return out, nil
}

// freeName returns name, or name_1, name_2, ... if ds already has it.
func freeName(ds *dataset.Dataset, name string) string {
	candidate := name
	for i := 1; ; i++ {
		if _, taken := ds.Column(candidate); !taken {
			return candidate
		}
		candidate = name + "_" + strconv.Itoa(i)
	}
}

// Importances aggregates the estimator's feature importances back onto the
// source columns. Columns removed by selection score 0. The second result is
// false when the estimator does not report importances.
func (p *Pipeline) Importances() ([]FeatureImportance, bool) {
	ir, ok := p.Estimator.(ImportanceReporter)
	if !ok {
		return nil, false
	}
	imp := ir.FeatureImportances()
	agg := make([]float64, len(p.Pre.Encoders))
	for i, j := range p.Selected {
		if i < len(imp) {
			agg[p.Pre.Sources[j]] += imp[i]
		}
	}
	out := make([]FeatureImportance, len(agg))
	for i, enc := range p.Pre.Encoders {
		out[i] = FeatureImportance{Feature: enc.Column, Importance: agg[i]}
	}
	return out, true
}
