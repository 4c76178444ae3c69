package automl

import (
	"math"
	"math/rand"
	"sort"
)

type treeNode struct {
	Feature   int       `json:"f"` // -1 marks a leaf
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v"` // class distribution, or [mean] for regression
	Samples   int       `json:"n"`
}

// DecisionTree is a CART tree: Gini impurity for classification
// (NClasses > 0), squared error for regression.
type DecisionTree struct {
	NClasses        int        `json:"n_classes"`
	MaxDepth        int        `json:"max_depth"` // 0 means unlimited
	MinSamplesSplit int        `json:"min_samples_split"`
	MinSamplesLeaf  int        `json:"min_samples_leaf"`
	MaxFeatures     float64    `json:"max_features"` // fraction of features tried per split; 0 means all
	Seed            int64      `json:"seed"`
	NFeatures       int        `json:"n_features"`
	Nodes           []treeNode `json:"nodes"`
	Importances     []float64  `json:"importances"`

	rng *rand.Rand
	x   [][]float64
	y   []float64
}

func NewDecisionTree(p Params, nClasses int, seed int64) *DecisionTree {
	return &DecisionTree{
		NClasses:        nClasses,
		MaxDepth:        int(p.Get("max_depth", 0)),
		MinSamplesSplit: int(p.Get("min_samples_split", 2)),
		MinSamplesLeaf:  int(p.Get("min_samples_leaf", 1)),
		MaxFeatures:     p.Get("max_features", 0),
		Seed:            seed,
	}
}

func (t *DecisionTree) Kind() string { return "decision_tree" }

func (t *DecisionTree) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.fitRows(X, y, idx)
	return nil
}

// fitRows grows the tree on a subset of rows; rows may repeat (bootstrap).
func (t *DecisionTree) fitRows(X [][]float64, y []float64, rows []int) {
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	t.NFeatures = len(X[0])
	t.Nodes = t.Nodes[:0]
	t.Importances = make([]float64, t.NFeatures)
	t.rng = rand.New(rand.NewSource(t.Seed))
	t.x, t.y = X, y

	t.grow(append([]int(nil), rows...), 0)

	total := 0.0
	for _, v := range t.Importances {
		total += v
	}
	if total > 0 {
		for i := range t.Importances {
			t.Importances[i] /= total
		}
	}
	t.x, t.y, t.rng = nil, nil, nil
}

func (t *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), t.Importances...)
}

func (t *DecisionTree) leafValue(rows []int) []float64 {
	if t.NClasses > 0 {
		v := make([]float64, t.NClasses)
		for _, r := range rows {
			v[int(t.y[r])]++
		}
		for i := range v {
			v[i] /= float64(len(rows))
		}
		return v
	}
	s := 0.0
	for _, r := range rows {
		s += t.y[r]
	}
	return []float64{s / float64(len(rows))}
}

func (t *DecisionTree) impurity(rows []int) float64 {
	if t.NClasses > 0 {
		counts := make([]float64, t.NClasses)
		for _, r := range rows {
			counts[int(t.y[r])]++
		}
		return gini(counts, float64(len(rows)))
	}
	var s, ss float64
	for _, r := range rows {
		s += t.y[r]
		ss += t.y[r] * t.y[r]
	}
	n := float64(len(rows))
	return math.Max(ss/n-(s/n)*(s/n), 0)
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

type split struct {
	feature   int
	threshold float64
	gain      float64 // n*impurity - nl*impurityL - nr*impurityR
}

// grow appends the subtree for rows and returns its node index.
func (t *DecisionTree) grow(rows []int, depth int) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: t.leafValue(rows), Samples: len(rows)})

	imp := t.impurity(rows)
	if imp <= 1e-12 || len(rows) < t.MinSamplesSplit || len(rows) < 2*t.MinSamplesLeaf {
		return id
	}
	if t.MaxDepth > 0 && depth >= t.MaxDepth {
		return id
	}

	best, ok := t.bestSplit(rows, imp)
	if !ok {
		return id
	}

	var left, right []int
	for _, r := range rows {
		if t.x[r][best.feature] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	t.Importances[best.feature] += best.gain

	l := t.grow(left, depth+1)
	r := t.grow(right, depth+1)
	t.Nodes[id].Feature = best.feature
	t.Nodes[id].Threshold = best.threshold
	t.Nodes[id].Left = l
	t.Nodes[id].Right = r
	return id
}

func (t *DecisionTree) candidateFeatures() []int {
	p := t.NFeatures
	k := p
	if t.MaxFeatures > 0 && t.MaxFeatures < 1 {
		k = int(math.Max(1, math.Round(t.MaxFeatures*float64(p))))
	}
	if k >= p {
		out := make([]int, p)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return t.rng.Perm(p)[:k]
}

func (t *DecisionTree) bestSplit(rows []int, parentImp float64) (split, bool) {
	n := float64(len(rows))
	best := split{gain: 1e-12}
	found := false
	sorted := make([]int, len(rows))

	for _, f := range t.candidateFeatures() {
		copy(sorted, rows)
		sort.Slice(sorted, func(a, b int) bool { return t.x[sorted[a]][f] < t.x[sorted[b]][f] })

		if t.NClasses > 0 {
			left := make([]float64, t.NClasses)
			right := make([]float64, t.NClasses)
			for _, r := range sorted {
				right[int(t.y[r])]++
			}
			for i := 0; i < len(sorted)-1; i++ {
				c := int(t.y[sorted[i]])
				left[c]++
				right[c]--
				nl := float64(i + 1)
				nr := n - nl
				if !t.splittable(sorted, i, f) {
					continue
				}
				gain := n*parentImp - nl*gini(left, nl) - nr*gini(right, nr)
				if gain > best.gain {
					best = split{feature: f, threshold: t.midpoint(sorted, i, f), gain: gain}
					found = true
				}
			}
			continue
		}

		var sumR, sqR float64
		for _, r := range sorted {
			sumR += t.y[r]
			sqR += t.y[r] * t.y[r]
		}
		var sumL, sqL float64
		for i := 0; i < len(sorted)-1; i++ {
			v := t.y[sorted[i]]
			sumL += v
			sqL += v * v
			sumR -= v
			sqR -= v * v
			if !t.splittable(sorted, i, f) {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			sseL := sqL - sumL*sumL/nl
			sseR := sqR - sumR*sumR/nr
			gain := n*parentImp - sseL - sseR
			if gain > best.gain {
				best = split{feature: f, threshold: t.midpoint(sorted, i, f), gain: gain}
				found = true
			}
		}
	}
	if found {
		// gain is in units of samples; scale to the whole training set
		best.gain /= float64(len(t.y))
	}
	return best, found
}

// splittable reports whether a split between sorted[i] and sorted[i+1] keeps
// both sides large enough and separates distinct values.
func (t *DecisionTree) splittable(sorted []int, i, f int) bool {
	nl := i + 1
	nr := len(sorted) - nl
	if nl < t.MinSamplesLeaf || nr < t.MinSamplesLeaf {
		return false
	}
	return t.x[sorted[i]][f] < t.x[sorted[i+1]][f]
}

func (t *DecisionTree) midpoint(sorted []int, i, f int) float64 {
	return (t.x[sorted[i]][f] + t.x[sorted[i+1]][f]) / 2
}

func (t *DecisionTree) leaf(row []float64) []float64 {
	id := 0
	for {
		nd := t.Nodes[id]
		if nd.Feature < 0 {
			return nd.Value
		}
		if row[nd.Feature] <= nd.Threshold {
			id = nd.Left
		} else {
			id = nd.Right
		}
	}
}

func (t *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), t.leaf(row)...)
	}
	return out
}

func (t *DecisionTree) Predict(X [][]float64) []float64 {
	if t.NClasses > 0 {
		return probaToLabels(t.PredictProba(X))
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.leaf(row)[0]
	}
	return out
}
