package raster

import (
	"fmt"
	"math"
	"sort"
)

// MeanStd returns the mean and population standard deviation of the valid
// pixels of b.
func (b *Band) MeanStd() (mean, std float64) {
	count := 0
	m2 := 0.0

	for i, v := range b.Data {
		if !b.Mask[i] || math.IsNaN(v) {
			continue
		}

		count++
		delta := v - mean
		mean += delta / float64(count)
		delta2 := v - mean
		m2 += delta * delta2
	}

	if count == 0 {
		return 0, 0
	}

	variance := m2 / float64(count)
	return mean, math.Sqrt(variance)
}

func (b *Band) MinMax() (lo, hi float64, ok bool) {
	for i, v := range b.Data {
		if !b.Mask[i] {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}

// Percentile returns the pth nearest rank percentile of the valid pixels.
// p must be in the range (0, 100).
func (b *Band) Percentile(p float64) (float64, error) {
	if p <= 0 || p >= 100 {
		return 0, fmt.Errorf("invalid percentile %v", p)
	}

	values := make([]float64, 0, len(b.Data))
	for i, v := range b.Data {
		if b.Mask[i] && !math.IsNaN(v) {
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		return 0, ErrNoValidPixels
	}

	sort.Float64s(values)
	return values[nearestRank(len(values), p)], nil
}

func nearestRank(n int, p float64) int {
	idx := int(math.Ceil((p/100.0)*float64(n))) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
