package automl

import (
	"math"
)

// GaussianNB is Gaussian naive Bayes. VarSmoothing is added to every
// variance as a fraction of the largest feature variance.
type GaussianNB struct {
	VarSmoothing float64     `json:"var_smoothing"`
	NClasses     int         `json:"n_classes"`
	Prior        []float64   `json:"prior"`
	Mean         [][]float64 `json:"mean"`
	Var          [][]float64 `json:"var"`
}

func NewGaussianNB(varSmoothing float64, nClasses int) *GaussianNB {
	if varSmoothing <= 0 {
		varSmoothing = 1e-9
	}
	return &GaussianNB{VarSmoothing: varSmoothing, NClasses: nClasses}
}

func (m *GaussianNB) Kind() string { return "naive_bayes" }

func (m *GaussianNB) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if m.NClasses < 1 {
		m.NClasses = 1
	}
	n, p, k := len(X), len(X[0]), m.NClasses

	col := make([]float64, n)
	maxVar := 0.0
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		if _, v := meanVariance(col); v > maxVar {
			maxVar = v
		}
	}
	eps := m.VarSmoothing * maxVar
	if eps == 0 {
		eps = m.VarSmoothing
	}

	m.Prior = make([]float64, k)
	m.Mean = make([][]float64, k)
	m.Var = make([][]float64, k)
	byClass := make([][]int, k)
	for i, lab := range y {
		byClass[int(lab)] = append(byClass[int(lab)], i)
	}
	for c := 0; c < k; c++ {
		m.Mean[c] = make([]float64, p)
		m.Var[c] = make([]float64, p)
		rows := byClass[c]
		m.Prior[c] = float64(len(rows)) / float64(n)
		if len(rows) == 0 {
			continue
		}
		vals := make([]float64, len(rows))
		for j := 0; j < p; j++ {
			for r, i := range rows {
				vals[r] = X[i][j]
			}
			mu, v := meanVariance(vals)
			m.Mean[c][j] = mu
			m.Var[c][j] = v + eps
		}
	}
	return nil
}

func (m *GaussianNB) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	logp := make([]float64, m.NClasses)
	for i, row := range X {
		for c := 0; c < m.NClasses; c++ {
			if m.Prior[c] == 0 {
				logp[c] = math.Inf(-1)
				continue
			}
			lp := math.Log(m.Prior[c])
			for j, v := range row {
				d := v - m.Mean[c][j]
				lp -= 0.5*math.Log(2*math.Pi*m.Var[c][j]) + d*d/(2*m.Var[c][j])
			}
			logp[c] = lp
		}
		pr := make([]float64, m.NClasses)
		softmaxInto(pr, logp)
		out[i] = pr
	}
	return out
}

func (m *GaussianNB) Predict(X [][]float64) []float64 {
	return probaToLabels(m.PredictProba(X))
}
