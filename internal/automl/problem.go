package automl

import (
	"fmt"

	"github.com/autotab/api/internal/dataset"
)

// ProblemType is the kind of supervised task inferred from the target column.
type ProblemType string

const (
	Classification ProblemType = "classification"
	Regression     ProblemType = "regression"
)

// MaxClassificationCardinality is the largest number of distinct target
// values still treated as a classification target.
const MaxClassificationCardinality = 10

// ParseProblemType accepts "classification" or "regression".
func ParseProblemType(s string) (ProblemType, error) {
	switch ProblemType(s) {
	case Classification, Regression:
		return ProblemType(s), nil
	}
	return "", fmt.Errorf("unknown problem type %q", s)
}

// DetectProblemType inspects the last column of ds. The target is a
// classification target when it has at most ten distinct values and its kind
// is discrete (integer, text or boolean). Everything else, including
// low-cardinality float columns, is regression.
func DetectProblemType(ds *dataset.Dataset) ProblemType {
	target := ds.Target()
	if target == nil {
		return Regression
	}
	discrete := target.Kind == dataset.KindInteger ||
		target.Kind == dataset.KindText ||
		target.Kind == dataset.KindBoolean
	if discrete && target.Distinct() <= MaxClassificationCardinality {
		return Classification
	}
	return Regression
}
