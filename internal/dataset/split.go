package dataset

import (
	"math"
	"math/rand"
)

// Split holds a train/test partition and the source row indices of each side.
type Split struct {
	Train      *Dataset
	Test       *Dataset
	TrainIndex []int
	TestIndex  []int
}

// TrainTestSplit partitions d with a seeded shuffle. The test side receives
// ceil(testRatio*n) rows. Identical input and seed always produce identical
// partitions.
func TrainTestSplit(d *Dataset, testRatio float64, seed int64) (*Split, error) {
	n := d.NumRows()
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.25
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	if n < 2 || nTest < 1 || n-nTest < 1 {
		return nil, ErrTooFewRows
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	testIdx := append([]int(nil), perm[:nTest]...)
	trainIdx := append([]int(nil), perm[nTest:]...)

	return &Split{
		Train:      d.Subset(trainIdx),
		Test:       d.Subset(testIdx),
		TrainIndex: trainIdx,
		TestIndex:  testIdx,
	}, nil
}
