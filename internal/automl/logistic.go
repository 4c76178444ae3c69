package automl

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is multinomial (softmax) logistic regression with an L2
// penalty of strength 1/C, fitted by L-BFGS on standardized features.
type LogisticRegression struct {
	C        float64   `json:"c"`
	MaxIter  int       `json:"max_iter"`
	NClasses int       `json:"n_classes"`
	Scaler   scaler    `json:"scaler"`
	Weights  []float64 `json:"weights"` // NClasses rows of (p weights + bias)
	P        int       `json:"p"`
}

func NewLogisticRegression(c float64, maxIter int, nClasses int) *LogisticRegression {
	if c <= 0 {
		c = 1
	}
	if maxIter <= 0 {
		maxIter = 200
	}
	return &LogisticRegression{C: c, MaxIter: maxIter, NClasses: nClasses}
}

func (m *LogisticRegression) Kind() string { return "logistic_regression" }

func (m *LogisticRegression) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if m.NClasses < 2 {
		m.NClasses = 2
	}
	m.Scaler = fitScaler(X)
	Xs := m.Scaler.transform(X)
	n, p, k := len(Xs), len(Xs[0]), m.NClasses
	m.P = p
	stride := p + 1
	lambda := 1 / (m.C * float64(n))

	logits := make([]float64, k)
	probs := make([]float64, k)

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			loss := 0.0
			for i, row := range Xs {
				m.logitsInto(logits, w, row, stride)
				loss -= logits[int(y[i])] - logSumExp(logits)
			}
			loss /= float64(n)
			return loss + 0.5*lambda*penalty(w, k, stride)
		},
		Grad: func(grad, w []float64) {
			for i := range grad {
				grad[i] = 0
			}
			for i, row := range Xs {
				m.logitsInto(logits, w, row, stride)
				softmaxInto(probs, logits)
				for c := 0; c < k; c++ {
					g := probs[c]
					if int(y[i]) == c {
						g -= 1
					}
					base := c * stride
					for j, v := range row {
						grad[base+j] += g * v
					}
					grad[base+p] += g
				}
			}
			floats.Scale(1/float64(n), grad)
			for c := 0; c < k; c++ {
				base := c * stride
				for j := 0; j < p; j++ {
					grad[base+j] += lambda * w[base+j]
				}
			}
		},
	}

	w0 := make([]float64, k*stride)
	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: 1e-6,
	}
	res, err := optimize.Minimize(problem, w0, settings, &optimize.LBFGS{})
	if res == nil {
		return err
	}
	m.Weights = append([]float64(nil), res.X...)
	return nil
}

func (m *LogisticRegression) logitsInto(dst, w, row []float64, stride int) {
	p := len(row)
	for c := range dst {
		base := c * stride
		dst[c] = floats.Dot(w[base:base+p], row) + w[base+p]
	}
}

func (m *LogisticRegression) PredictProba(X [][]float64) [][]float64 {
	Xs := m.Scaler.transform(X)
	stride := m.P + 1
	out := make([][]float64, len(Xs))
	logits := make([]float64, m.NClasses)
	for i, row := range Xs {
		m.logitsInto(logits, m.Weights, row, stride)
		pr := make([]float64, m.NClasses)
		softmaxInto(pr, logits)
		out[i] = pr
	}
	return out
}

func (m *LogisticRegression) Predict(X [][]float64) []float64 {
	return probaToLabels(m.PredictProba(X))
}

func penalty(w []float64, k, stride int) float64 {
	s := 0.0
	for c := 0; c < k; c++ {
		base := c * stride
		for j := 0; j < stride-1; j++ {
			s += w[base+j] * w[base+j]
		}
	}
	return s
}

func logSumExp(v []float64) float64 {
	mx := floats.Max(v)
	s := 0.0
	for _, x := range v {
		s += math.Exp(x - mx)
	}
	return mx + math.Log(s)
}

func softmaxInto(dst, logits []float64) {
	lse := logSumExp(logits)
	for i, x := range logits {
		dst[i] = math.Exp(x - lse)
	}
}
