package automl

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrNotFitted        = errors.New("estimator is not fitted")
	ErrEmptyTraining    = errors.New("no training rows")
	ErrShapeMismatch    = errors.New("features and targets differ in length")
	ErrNoCandidates     = errors.New("no candidate model could be fitted")
	ErrUnknownEstimator = errors.New("unknown estimator kind")
	ErrMissingColumn    = errors.New("missing feature column")
)

// Params holds numeric hyperparameters by name.
type Params map[string]float64

// Get returns p[name] or def when unset.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Clone copies p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Estimator is a supervised model over dense float features. For
// classification the targets are class indexes 0..k-1.
type Estimator interface {
	Kind() string
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) []float64
}

// ProbabilisticClassifier exposes per-class probabilities, one row per
// sample and one column per class index.
type ProbabilisticClassifier interface {
	Estimator
	PredictProba(X [][]float64) [][]float64
}

// ImportanceReporter is implemented by estimators that can score the
// contribution of every input feature. Only these produce an importance
// report.
type ImportanceReporter interface {
	FeatureImportances() []float64
}

// Grid is the hyperparameter space explored while tuning.
type Grid map[string][]float64

// keys returns the grid's parameter names in a stable order.
func (g Grid) keys() []string {
	out := make([]string, 0, len(g))
	for k := range g {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Candidate describes one algorithm the search compares.
type Candidate struct {
	ID       string
	Name     string
	Defaults Params
	Grid     Grid
	New      func(p Params, nClasses int, seed int64) Estimator
}

func checkXY(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmptyTraining
	}
	if len(X) != len(y) {
		return ErrShapeMismatch
	}
	return nil
}

// scaler standardizes features to zero mean and unit variance.
type scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func fitScaler(X [][]float64) scaler {
	p := len(X[0])
	s := scaler{Mean: make([]float64, p), Scale: make([]float64, p)}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		m, v := meanVariance(col)
		s.Mean[j] = m
		sd := math.Sqrt(v)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Scale[j] = sd
	}
	return s
}

func (s scaler) transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func probaToLabels(proba [][]float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		out[i] = float64(argmax(p))
	}
	return out
}
