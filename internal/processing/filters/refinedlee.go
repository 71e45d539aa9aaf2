package filters

import (
	"context"
	"fmt"
	"math"
	"sort"

	"hydrafloods/internal/raster"
)

// sampleOffsets are the row and column offsets of the nine 3x3 window means
// compared by the filter, in row-major order.
var sampleOffsets = [9][2]int{
	{-2, -2}, {-2, 0}, {-2, 2},
	{0, -2}, {0, 0}, {0, 2},
	{2, -2}, {2, 0}, {2, 2},
}

// gradientPairs are the opposing samples of the vertical, horizontal and two
// diagonal gradients, in the order they are compared.
var gradientPairs = [4][2]int{{1, 7}, {6, 2}, {3, 5}, {0, 8}}

// directionalKernels returns the eight 7x7 half-window kernels. Kernel d-1
// serves direction d: odd directions use the rectangular half window, even
// directions the triangular one, each rotated clockwise (d-1)/2 times.
func directionalKernels() [8]raster.Kernel {
	rect := make([][]float64, 7)
	diag := make([][]float64, 7)
	for r := 0; r < 7; r++ {
		rect[r] = make([]float64, 7)
		diag[r] = make([]float64, 7)
		for c := 0; c < 7; c++ {
			if r >= 3 {
				rect[r][c] = 1
			}
			if c <= r {
				diag[r][c] = 1
			}
		}
	}
	rk := raster.Kernel{Weights: rect}
	dk := raster.Kernel{Weights: diag}

	var kernels [8]raster.Kernel
	for i := 0; i < 4; i++ {
		kernels[2*i] = rk.Rotate(i)
		kernels[2*i+1] = dk.Rotate(i)
	}
	return kernels
}

// RefinedLee applies the refined Lee speckle filter to the first band of a
// backscatter image in dB and returns the filtered band in dB. Pixels within
// two pixels of the valid footprint edge have incomplete samples and are
// masked, as are pixels whose filtered linear value is not positive.
func RefinedLee(ctx context.Context, im *raster.Image) (*raster.Image, error) {
	if len(im.Bands) == 0 {
		return nil, fmt.Errorf("refined lee: %w", raster.ErrBandNotFound)
	}
	first, err := im.SelectIndex(0)
	if err != nil {
		return nil, err
	}
	name := first.Bands[0].Name
	w, h := im.Width, im.Height

	natural := raster.Apply(first, func(v float64) float64 {
		return math.Pow(10, v/10)
	})
	lin := natural.Bands[0]

	mean3 := raster.ReduceNeighborhood(natural, raster.Square(1), raster.ReduceMean).Bands[0]
	var3 := raster.ReduceNeighborhood(natural, raster.Square(1), raster.ReduceVariance).Bands[0]

	var dirMean, dirVar [8]*raster.Band
	for d, k := range directionalKernels() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		dirMean[d] = raster.ReduceNeighborhood(natural, k, raster.ReduceMean).Bands[0]
		dirVar[d] = raster.ReduceNeighborhood(natural, k, raster.ReduceVariance).Bands[0]
	}

	out := raster.NewMaskedBand(name, w*h)
	var means, vars [9]float64
	ratios := make([]float64, 0, 9)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !lin.Mask[i] {
				continue
			}

			complete := true
			for j, off := range sampleOffsets {
				yy, xx := y+off[0], x+off[1]
				if yy < 0 || yy >= h || xx < 0 || xx >= w || !mean3.Mask[yy*w+xx] {
					complete = false
					break
				}
				means[j] = mean3.Data[yy*w+xx]
				vars[j] = var3.Data[yy*w+xx]
			}
			if !complete {
				continue
			}

			dir := direction(means)

			ratios = ratios[:0]
			for j := range means {
				if r := vars[j] / (means[j] * means[j]); !math.IsNaN(r) && !math.IsInf(r, 0) {
					ratios = append(ratios, r)
				}
			}
			if len(ratios) == 0 {
				continue
			}
			sort.Float64s(ratios)
			sigmaV := 0.0
			keep := min(5, len(ratios))
			for _, r := range ratios[:keep] {
				sigmaV += r
			}
			sigmaV /= float64(keep)

			dm, dv := dirMean[dir-1], dirVar[dir-1]
			if !dm.Mask[i] || !dv.Mask[i] {
				continue
			}
			v := shrink(lin.Data[i], dm.Data[i], dv.Data[i], sigmaV)
			if v <= 0 || math.IsNaN(v) {
				continue
			}
			out.Data[i] = 10 * math.Log10(v)
			out.Mask[i] = true
		}
	}

	return raster.New(w, h, im.Transform, out), nil
}

// direction picks the edge direction 1..8 from the nine window means. The
// strongest gradient wins, the first one on ties.
func direction(means [9]float64) int {
	best, bestGrad := 0, -1.0
	for k, p := range gradientPairs {
		g := math.Abs(means[p[0]] - means[p[1]])
		if g > bestGrad {
			best, bestGrad = k, g
		}
	}
	a, b := gradientPairs[best][0], gradientPairs[best][1]
	if means[a]-means[4] > means[4]-means[b] {
		return best + 1
	}
	return best + 5
}

func shrink(value, dirMean, dirVar, sigmaV float64) float64 {
	if dirVar == 0 {
		return dirMean
	}
	varX := (dirVar - dirMean*dirMean*sigmaV) / (sigmaV + 1)
	b := varX / dirVar
	return dirMean + b*(value-dirMean)
}
