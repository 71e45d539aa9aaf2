package threshold

import (
	"errors"
	"math"

	"hydrafloods/internal/processing/histogram"
)

var ErrDegenerateHistogram = errors.New("histogram has no valid two class split")

// Otsu returns the bucket mean that splits h with maximal between-class sum
// of squares. Split i puts buckets [0, i) in the lower class and the
// threshold reported is the mean of bucket i-1. Ties resolve to the last
// maximal split. Splits leaving a class empty are undefined and skipped.
func Otsu(h *histogram.Histogram) (float64, error) {
	n := h.Len()
	if n < 2 || len(h.BucketMeans) != n {
		return 0, ErrDegenerateHistogram
	}

	total := h.Total()
	if total <= 0 {
		return 0, ErrDegenerateHistogram
	}
	sum := 0.0
	for i, c := range h.Counts {
		sum += c * h.BucketMeans[i]
	}
	mean := sum / total

	best := -1
	bestBSS := math.Inf(-1)
	countA, sumA := 0.0, 0.0
	for i := 1; i <= n; i++ {
		countA += h.Counts[i-1]
		sumA += h.Counts[i-1] * h.BucketMeans[i-1]
		countB := total - countA

		bss := betweenClass(countA, sumA, countB, sum-sumA, mean)
		if math.IsNaN(bss) {
			continue
		}
		if bss >= bestBSS {
			bestBSS = bss
			best = i
		}
	}

	if best < 0 {
		return 0, ErrDegenerateHistogram
	}
	return h.BucketMeans[best-1], nil
}

func betweenClass(countA, sumA, countB, sumB, mean float64) float64 {
	if countA <= 0 || countB <= 0 {
		return math.NaN()
	}
	meanA := sumA / countA
	meanB := sumB / countB
	return countA*(meanA-mean)*(meanA-mean) + countB*(meanB-mean)*(meanB-mean)
}
