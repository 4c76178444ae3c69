package automl

import "gonum.org/v1/gonum/stat"

// Metric names used to rank candidates.
const (
	MetricF1 = "F1"
	MetricR2 = "R2"
)

// MetricFor returns the ranking metric of a problem type.
func MetricFor(pt ProblemType) string {
	if pt == Classification {
		return MetricF1
	}
	return MetricR2
}

func meanVariance(x []float64) (float64, float64) {
	if len(x) < 2 {
		if len(x) == 1 {
			return x[0], 0
		}
		return 0, 0
	}
	m, v := stat.MeanVariance(x, nil)
	// population variance, matching the usual scaler definition
	return m, v * float64(len(x)-1) / float64(len(x))
}

// R2 is the coefficient of determination. A constant truth scores 0 unless
// the prediction is exact.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	m := stat.Mean(yTrue, nil)
	var ssTot, ssRes float64
	for i := range yTrue {
		d := yTrue[i] - m
		ssTot += d * d
		r := yTrue[i] - yPred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// Accuracy is the share of exact class matches.
func Accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// F1 scores class-index predictions. With two classes it is the F1 of class
// 1; with more it is the support-weighted mean of per-class F1.
func F1(yTrue, yPred []float64, nClasses int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	if nClasses <= 2 {
		return classF1(yTrue, yPred, 1)
	}
	support := make([]int, nClasses)
	for _, y := range yTrue {
		support[int(y)]++
	}
	total := 0.0
	for c := 0; c < nClasses; c++ {
		if support[c] == 0 {
			continue
		}
		total += float64(support[c]) * classF1(yTrue, yPred, float64(c))
	}
	return total / float64(len(yTrue))
}

func classF1(yTrue, yPred []float64, class float64) float64 {
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		switch {
		case yPred[i] == class && yTrue[i] == class:
			tp++
		case yPred[i] == class:
			fp++
		case yTrue[i] == class:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	prec := float64(tp) / float64(tp+fp)
	rec := float64(tp) / float64(tp+fn)
	return 2 * prec * rec / (prec + rec)
}

// score evaluates predictions with the ranking metric of pt.
func score(pt ProblemType, yTrue, yPred []float64, nClasses int) float64 {
	if pt == Classification {
		return F1(yTrue, yPred, nClasses)
	}
	return R2(yTrue, yPred)
}
