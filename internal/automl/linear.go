package automl

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearRegression is ordinary least squares, or ridge regression when
// Penalized is set. The intercept is never penalized.
type LinearRegression struct {
	Penalized bool      `json:"penalized"`
	Alpha     float64   `json:"alpha"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewLinearRegression returns an unpenalized least-squares model.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// NewRidge returns an L2-penalized least-squares model.
func NewRidge(alpha float64) *LinearRegression {
	return &LinearRegression{Penalized: true, Alpha: alpha}
}

func (m *LinearRegression) Kind() string {
	if m.Penalized {
		return "ridge"
	}
	return "linear_regression"
}

// Fit solves the normal equations on centered data with a Cholesky
// factorization. A tiny diagonal jitter keeps rank-deficient designs solvable.
func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	n, p := len(X), len(X[0])

	xMean := make([]float64, p)
	for _, row := range X {
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := floats.Sum(y) / float64(n)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, xc.T())
	var xty mat.VecDense
	xty.MulVec(xc.T(), yc)

	maxDiag := 0.0
	for j := 0; j < p; j++ {
		if d := gram.At(j, j); d > maxDiag {
			maxDiag = d
		}
	}
	alpha := 0.0
	if m.Penalized {
		alpha = m.Alpha
	}

	var beta mat.VecDense
	solved := false
	for _, jitter := range []float64{1e-10, 1e-8, 1e-6, 1e-4, 1e-2} {
		a := mat.NewSymDense(p, nil)
		a.CopySym(gram)
		for j := 0; j < p; j++ {
			a.SetSym(j, j, a.At(j, j)+alpha+jitter*(1+maxDiag))
		}
		var chol mat.Cholesky
		if !chol.Factorize(a) {
			continue
		}
		if err := chol.SolveVecTo(&beta, &xty); err != nil {
			continue
		}
		solved = true
		break
	}
	if !solved {
		return fmt.Errorf("linear regression: normal equations are singular")
	}

	m.Coef = make([]float64, p)
	for j := 0; j < p; j++ {
		m.Coef[j] = beta.AtVec(j)
	}
	m.Intercept = yMean - floats.Dot(m.Coef, xMean)
	return nil
}

func (m *LinearRegression) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.Intercept + floats.Dot(m.Coef, row)
	}
	return out
}
