package automl

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultMulticollinearityThreshold is the |r| above which one feature of a
// correlated pair is dropped.
const DefaultMulticollinearityThreshold = 0.9

// DefaultFeatureFraction is the share of encoded features kept by selection.
const DefaultFeatureFraction = 0.2

func column(X [][]float64, j int) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[j]
	}
	return out
}

// correlation is Pearson's r; constant inputs correlate 0 with everything.
func correlation(a, b []float64) float64 {
	if len(a) < 2 {
		return 0
	}
	_, va := meanVariance(a)
	_, vb := meanVariance(b)
	if va == 0 || vb == 0 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// removeCollinear returns the candidate feature indexes that survive
// multicollinearity removal. For each pair above threshold the feature less
// correlated with the target is dropped.
func removeCollinear(X [][]float64, y []float64, candidates []int, threshold float64) []int {
	if threshold <= 0 || threshold >= 1 {
		return candidates
	}
	cols := make(map[int][]float64, len(candidates))
	target := make(map[int]float64, len(candidates))
	for _, j := range candidates {
		cols[j] = column(X, j)
		target[j] = math.Abs(correlation(cols[j], y))
	}
	dropped := map[int]bool{}
	for a := 0; a < len(candidates); a++ {
		ja := candidates[a]
		if dropped[ja] {
			continue
		}
		for b := a + 1; b < len(candidates); b++ {
			jb := candidates[b]
			if dropped[jb] {
				continue
			}
			if math.Abs(correlation(cols[ja], cols[jb])) <= threshold {
				continue
			}
			if target[jb] > target[ja] {
				dropped[ja] = true
				break
			}
			dropped[jb] = true
		}
	}
	out := make([]int, 0, len(candidates))
	for _, j := range candidates {
		if !dropped[j] {
			out = append(out, j)
		}
	}
	return out
}

// selectFeatures keeps the ceil(fraction*len(candidates)) best candidates by
// a univariate score: ANOVA F for classification, |r| for regression. The
// result preserves the candidates' order.
func selectFeatures(X [][]float64, y []float64, candidates []int, pt ProblemType, nClasses int, fraction float64) []int {
	if fraction <= 0 || fraction >= 1 || len(candidates) <= 1 {
		return candidates
	}
	keep := int(math.Ceil(fraction * float64(len(candidates))))
	if keep < 1 {
		keep = 1
	}
	type scored struct {
		idx   int
		score float64
	}
	ss := make([]scored, len(candidates))
	for i, j := range candidates {
		col := column(X, j)
		var s float64
		if pt == Classification {
			s = anovaF(col, y, nClasses)
		} else {
			s = math.Abs(correlation(col, y))
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		ss[i] = scored{idx: i, score: s}
	}
	sort.SliceStable(ss, func(a, b int) bool { return ss[a].score > ss[b].score })
	chosen := make([]int, 0, keep)
	for _, s := range ss[:keep] {
		chosen = append(chosen, s.idx)
	}
	sort.Ints(chosen)
	out := make([]int, len(chosen))
	for i, c := range chosen {
		out[i] = candidates[c]
	}
	return out
}

// anovaF is the one-way ANOVA F statistic of x grouped by class.
func anovaF(x, y []float64, nClasses int) float64 {
	n := len(x)
	if n == 0 || nClasses < 2 {
		return 0
	}
	sum := make([]float64, nClasses)
	cnt := make([]float64, nClasses)
	total := 0.0
	for i, v := range x {
		c := int(y[i])
		sum[c] += v
		cnt[c]++
		total += v
	}
	grand := total / float64(n)
	var between, within float64
	groups := 0
	for c := 0; c < nClasses; c++ {
		if cnt[c] == 0 {
			continue
		}
		groups++
		m := sum[c] / cnt[c]
		between += cnt[c] * (m - grand) * (m - grand)
	}
	for i, v := range x {
		c := int(y[i])
		m := sum[c] / cnt[c]
		within += (v - m) * (v - m)
	}
	dfb := float64(groups - 1)
	dfw := float64(n - groups)
	if dfb <= 0 || dfw <= 0 {
		return 0
	}
	if within == 0 {
		if between == 0 {
			return 0
		}
		return math.MaxFloat64
	}
	return (between / dfb) / (within / dfw)
}
