// Package split partitions a feature table into train and test subsets.
package split

import (
	"math"
	"math/rand/v2"
	"strconv"

	"rain-platform/internal/models"
)

// Result holds the two disjoint subsets
type Result struct {
	Train *models.FeatureTable
	Test  *models.FeatureTable
}

// TestCount returns ceil(testSize * n), the number of rows assigned to test
func TestCount(n int, testSize float64) int {
	return int(math.Ceil(testSize * float64(n)))
}

// TrainTestSplit shuffles row indices with a PCG source seeded by seed and gives
// the first TestCount of them to test and the rest to train. The same seed and
// input order always yield the same split. testSize outside (0, 1) fails before
// the table is read.
func TrainTestSplit(table *models.FeatureTable, testSize float64, seed uint64) (*Result, error) {
	if !(testSize > 0 && testSize < 1) {
		return nil, &models.ConfigurationError{
			Parameter: "test_size",
			Value:     strconv.FormatFloat(testSize, 'g', -1, 64),
			Message:   "must be in (0, 1)",
		}
	}
	if table == nil {
		return nil, &models.ConfigurationError{Parameter: "table", Message: "nil feature table"}
	}

	n := table.Len()
	perm := Permutation(n, seed)
	nTest := TestCount(n, testSize)

	return &Result{
		Test:  table.Subset(perm[:nTest]),
		Train: table.Subset(perm[nTest:]),
	}, nil
}

// Permutation returns a seeded Fisher-Yates shuffle of 0..n-1
func Permutation(n int, seed uint64) []int {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	return perm
}
