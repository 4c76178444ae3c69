package automl

import (
	"math"
	"math/rand"
	"sync"
)

// RandomForest bags CART trees grown on bootstrap samples with per-split
// feature subsampling. Importances are the mean of the trees'.
type RandomForest struct {
	NClasses       int             `json:"n_classes"`
	NEstimators    int             `json:"n_estimators"`
	MaxDepth       int             `json:"max_depth"`
	MinSamplesLeaf int             `json:"min_samples_leaf"`
	MaxFeatures    float64         `json:"max_features"`
	Seed           int64           `json:"seed"`
	Trees          []*DecisionTree `json:"trees"`
	Importances    []float64       `json:"importances"`
}

func NewRandomForest(p Params, nClasses int, seed int64) *RandomForest {
	defFeatures := 1.0
	if nClasses > 0 {
		// 0 asks Fit to use sqrt(p)/p
		defFeatures = 0
	}
	return &RandomForest{
		NClasses:       nClasses,
		NEstimators:    int(p.Get("n_estimators", 50)),
		MaxDepth:       int(p.Get("max_depth", 0)),
		MinSamplesLeaf: int(p.Get("min_samples_leaf", 1)),
		MaxFeatures:    p.Get("max_features", defFeatures),
		Seed:           seed,
	}
}

func (f *RandomForest) Kind() string { return "random_forest" }

func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if f.NEstimators <= 0 {
		f.NEstimators = 50
	}
	n, p := len(X), len(X[0])
	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = math.Sqrt(float64(p)) / float64(p)
	}

	rng := rand.New(rand.NewSource(f.Seed))
	samples := make([][]int, f.NEstimators)
	seeds := make([]int64, f.NEstimators)
	for t := range samples {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = rng.Intn(n)
		}
		samples[t] = rows
		seeds[t] = rng.Int63()
	}

	f.Trees = make([]*DecisionTree, f.NEstimators)
	var wg sync.WaitGroup
	for t := range f.Trees {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			tree := &DecisionTree{
				NClasses:        f.NClasses,
				MaxDepth:        f.MaxDepth,
				MinSamplesSplit: 2,
				MinSamplesLeaf:  f.MinSamplesLeaf,
				MaxFeatures:     maxFeatures,
				Seed:            seeds[t],
			}
			tree.fitRows(X, y, samples[t])
			f.Trees[t] = tree
		}(t)
	}
	wg.Wait()

	f.Importances = make([]float64, p)
	for _, tree := range f.Trees {
		for j, v := range tree.Importances {
			f.Importances[j] += v
		}
	}
	total := 0.0
	for _, v := range f.Importances {
		total += v
	}
	if total > 0 {
		for j := range f.Importances {
			f.Importances[j] /= total
		}
	}
	return nil
}

func (f *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

func (f *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range out {
		out[i] = make([]float64, f.NClasses)
	}
	for _, tree := range f.Trees {
		for i, row := range X {
			for c, v := range tree.leaf(row) {
				out[i][c] += v
			}
		}
	}
	for i := range out {
		for c := range out[i] {
			out[i][c] /= float64(len(f.Trees))
		}
	}
	return out
}

func (f *RandomForest) Predict(X [][]float64) []float64 {
	if f.NClasses > 0 {
		return probaToLabels(f.PredictProba(X))
	}
	out := make([]float64, len(X))
	for _, tree := range f.Trees {
		for i, row := range X {
			out[i] += tree.leaf(row)[0]
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}
