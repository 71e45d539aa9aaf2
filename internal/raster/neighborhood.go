package raster

import "sort"

type Reducer int

const (
	ReduceMean Reducer = iota
	ReduceVariance
	ReduceSum
	ReduceMax
	ReduceMin
	ReduceMedian
	ReduceCount
)

func (r Reducer) String() string {
	switch r {
	case ReduceMean:
		return "mean"
	case ReduceVariance:
		return "variance"
	case ReduceSum:
		return "sum"
	case ReduceMax:
		return "max"
	case ReduceMin:
		return "min"
	case ReduceMedian:
		return "median"
	case ReduceCount:
		return "count"
	}
	return "unknown"
}

// ReduceNeighborhood reduces the valid neighbors selected by k around every
// valid pixel. Mean, variance and sum are weighted by the kernel; variance is
// the population variance. Pixels whose window holds no valid neighbor are
// masked.
func ReduceNeighborhood(im *Image, k Kernel, r Reducer) *Image {
	bands := make([]*Band, len(im.Bands))
	for bi, b := range im.Bands {
		bands[bi] = reduceBand(b, im.Width, im.Height, k, r)
	}
	return im.withBands(bands)
}

func reduceBand(b *Band, width, height int, k Kernel, r Reducer) *Band {
	out := NewMaskedBand(b.Name, len(b.Data))
	radius := k.Radius()
	var window []float64

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if !b.Mask[idx] {
				continue
			}

			var sumW, sum, sumSq float64
			count := 0
			window = window[:0]
			lo, hi := 0.0, 0.0
			for ky := -radius; ky <= radius; ky++ {
				yy := y + ky
				if yy < 0 || yy >= height {
					continue
				}
				row := k.Weights[ky+radius]
				for kx := -radius; kx <= radius; kx++ {
					w := row[kx+radius]
					xx := x + kx
					if w == 0 || xx < 0 || xx >= width {
						continue
					}
					n := yy*width + xx
					if !b.Mask[n] {
						continue
					}
					v := b.Data[n]
					if count == 0 || v < lo {
						lo = v
					}
					if count == 0 || v > hi {
						hi = v
					}
					count++
					sumW += w
					sum += w * v
					sumSq += w * v * v
					if r == ReduceMedian {
						window = append(window, v)
					}
				}
			}
			if count == 0 {
				continue
			}

			var v float64
			switch r {
			case ReduceMean:
				v = sum / sumW
			case ReduceVariance:
				mean := sum / sumW
				v = sumSq/sumW - mean*mean
				if v < 0 {
					v = 0
				}
			case ReduceSum:
				v = sum
			case ReduceMax:
				v = hi
			case ReduceMin:
				v = lo
			case ReduceMedian:
				v = median(window)
			case ReduceCount:
				v = float64(count)
			}
			out.Data[idx] = v
			out.Mask[idx] = true
		}
	}
	return out
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
