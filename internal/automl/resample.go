package automl

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const smoteNeighbours = 5

// smote oversamples every minority class up to the majority count by
// interpolating between a sample and one of its nearest same-class
// neighbours. Classes with a single sample are duplicated. The input slices
// are not modified.
func smote(X [][]float64, y []float64, nClasses int, rng *rand.Rand) ([][]float64, []float64) {
	byClass := make([][]int, nClasses)
	for i, c := range y {
		byClass[int(c)] = append(byClass[int(c)], i)
	}
	majority := 0
	for _, rows := range byClass {
		if len(rows) > majority {
			majority = len(rows)
		}
	}

	outX := append([][]float64(nil), X...)
	outY := append([]float64(nil), y...)
	for c, rows := range byClass {
		need := majority - len(rows)
		if need <= 0 || len(rows) == 0 {
			continue
		}
		neigh := classNeighbours(X, rows)
		for k := 0; k < need; k++ {
			a := rows[rng.Intn(len(rows))]
			synth := append([]float64(nil), X[a]...)
			if nb := neigh[a]; len(nb) > 0 {
				b := nb[rng.Intn(len(nb))]
				gap := rng.Float64()
				for j := range synth {
					synth[j] += gap * (X[b][j] - X[a][j])
				}
			}
			outX = append(outX, synth)
			outY = append(outY, float64(c))
		}
	}
	return outX, outY
}

// classNeighbours maps each row to its nearest neighbours within rows.
func classNeighbours(X [][]float64, rows []int) map[int][]int {
	out := make(map[int][]int, len(rows))
	type cand struct {
		row  int
		dist float64
	}
	for _, a := range rows {
		cs := make([]cand, 0, len(rows)-1)
		for _, b := range rows {
			if a == b {
				continue
			}
			cs = append(cs, cand{row: b, dist: floats.Distance(X[a], X[b], 2)})
		}
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].dist < cs[j].dist })
		k := smoteNeighbours
		if k > len(cs) {
			k = len(cs)
		}
		nb := make([]int, k)
		for i := 0; i < k; i++ {
			nb[i] = cs[i].row
		}
		out[a] = nb
	}
	return out
}
