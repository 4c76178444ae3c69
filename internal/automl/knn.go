package automl

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// KNN is k-nearest-neighbours on standardized features. NClasses == 0 means
// regression (neighbour mean); otherwise neighbours vote.
type KNN struct {
	K        int         `json:"k"`
	Weighted bool        `json:"weighted"`
	NClasses int         `json:"n_classes"`
	Scaler   scaler      `json:"scaler"`
	X        [][]float64 `json:"x"`
	Y        []float64   `json:"y"`
}

func NewKNN(k int, weighted bool, nClasses int) *KNN {
	if k <= 0 {
		k = 5
	}
	return &KNN{K: k, Weighted: weighted, NClasses: nClasses}
}

func (m *KNN) Kind() string { return "knn" }

func (m *KNN) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.Scaler = fitScaler(X)
	m.X = m.Scaler.transform(X)
	m.Y = append([]float64(nil), y...)
	return nil
}

type neighbour struct {
	dist float64
	idx  int
}

func (m *KNN) neighbours(q []float64) []neighbour {
	all := make([]neighbour, len(m.X))
	for i, x := range m.X {
		all[i] = neighbour{dist: floats.Distance(q, x, 2), idx: i}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })
	k := m.K
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

func (m *KNN) weight(d float64) float64 {
	if !m.Weighted {
		return 1
	}
	if d == 0 {
		return 1e12
	}
	return 1 / d
}

func (m *KNN) PredictProba(X [][]float64) [][]float64 {
	Xs := m.Scaler.transform(X)
	out := make([][]float64, len(Xs))
	for i, q := range Xs {
		p := make([]float64, m.NClasses)
		total := 0.0
		for _, nb := range m.neighbours(q) {
			w := m.weight(nb.dist)
			p[int(m.Y[nb.idx])] += w
			total += w
		}
		if total > 0 {
			floats.Scale(1/total, p)
		}
		out[i] = p
	}
	return out
}

func (m *KNN) Predict(X [][]float64) []float64 {
	if m.NClasses > 0 {
		return probaToLabels(m.PredictProba(X))
	}
	Xs := m.Scaler.transform(X)
	out := make([]float64, len(Xs))
	for i, q := range Xs {
		sum, total := 0.0, 0.0
		for _, nb := range m.neighbours(q) {
			w := m.weight(nb.dist)
			sum += w * m.Y[nb.idx]
			total += w
		}
		if total > 0 {
			out[i] = sum / total
		}
	}
	return out
}
