// Package histogram builds fixed width one dimensional histograms of raster
// samples for threshold selection.
package histogram

import (
	"errors"
	"fmt"
	"math"

	"hydrafloods/internal/raster"
)

var ErrNoSamples = errors.New("no samples to histogram")

type Histogram struct {
	// BucketMeans holds the mean of the samples in each bucket. Empty
	// buckets report their midpoint.
	BucketMeans []float64
	Counts      []float64
	BucketMin   float64
	BucketWidth float64
}

func (h *Histogram) Len() int {
	return len(h.Counts)
}

func (h *Histogram) Total() float64 {
	total := 0.0
	for _, c := range h.Counts {
		total += c
	}
	return total
}

func (h *Histogram) Mean() float64 {
	total, sum := 0.0, 0.0
	for i, c := range h.Counts {
		total += c
		sum += c * h.BucketMeans[i]
	}
	if total == 0 {
		return math.NaN()
	}
	return sum / total
}

// Builder picks the smallest bucket width of the form MinBucketWidth*2^k
// that covers the sample range in at most MaxBuckets buckets. Bucket edges
// are aligned to multiples of the width.
type Builder struct {
	MaxBuckets     int
	MinBucketWidth float64
}

func NewBuilder(maxBuckets int, minBucketWidth float64) *Builder {
	return &Builder{
		MaxBuckets:     maxBuckets,
		MinBucketWidth: minBucketWidth,
	}
}

func (b *Builder) Build(values []float64) (*Histogram, error) {
	if b.MaxBuckets < 1 || b.MinBucketWidth <= 0 {
		return nil, fmt.Errorf("invalid histogram shape: %d buckets of width %g", b.MaxBuckets, b.MinBucketWidth)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	n := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		n++
	}
	if n == 0 {
		return nil, ErrNoSamples
	}

	width := b.MinBucketWidth
	var start float64
	var buckets int
	for {
		start = math.Floor(lo/width) * width
		buckets = int(math.Floor((hi-start)/width)) + 1
		if buckets <= b.MaxBuckets {
			break
		}
		width *= 2
	}

	h := &Histogram{
		BucketMeans: make([]float64, buckets),
		Counts:      make([]float64, buckets),
		BucketMin:   start,
		BucketWidth: width,
	}
	sums := make([]float64, buckets)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		i := int(math.Floor((v - start) / width))
		i = max(0, min(i, buckets-1))
		h.Counts[i]++
		sums[i] += v
	}
	for i := range h.BucketMeans {
		if h.Counts[i] > 0 {
			h.BucketMeans[i] = sums[i] / h.Counts[i]
		} else {
			h.BucketMeans[i] = start + (float64(i)+0.5)*width
		}
	}
	return h, nil
}

// Sample collects the valid pixels of band that fall inside keep, visiting
// every stride-th row and column.
func Sample(band *raster.Band, width int, keep []bool, stride int) []float64 {
	stride = max(1, stride)
	height := len(band.Data) / width
	values := make([]float64, 0, len(band.Data)/(stride*stride)+1)
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			i := y*width + x
			if !band.Mask[i] || (keep != nil && !keep[i]) {
				continue
			}
			values = append(values, band.Data[i])
		}
	}
	return values
}
