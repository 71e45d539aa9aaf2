package raster

import (
	"fmt"
	"math"
	"sort"
)

func checkStack(images []*Image) error {
	if len(images) == 0 {
		return ErrEmptyRaster
	}
	for _, im := range images[1:] {
		if !im.SameGrid(images[0]) {
			return ErrGridMismatch
		}
	}
	return nil
}

// stackBands lines up the band of every image matching the band names of the
// first image.
func stackBands(images []*Image) ([][]*Band, error) {
	names := images[0].BandNames()
	out := make([][]*Band, len(names))
	for k, name := range names {
		out[k] = make([]*Band, len(images))
		for j, im := range images {
			b, err := im.Band(name)
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", j, err)
			}
			out[k][j] = b
		}
	}
	return out, nil
}

// Mosaic composites the stack so that later images cover earlier ones
// wherever they are valid.
func Mosaic(images []*Image) (*Image, error) {
	if err := checkStack(images); err != nil {
		return nil, err
	}
	stack, err := stackBands(images)
	if err != nil {
		return nil, err
	}
	bands := make([]*Band, len(stack))
	for k, column := range stack {
		out := NewMaskedBand(column[0].Name, images[0].Len())
		for _, b := range column {
			for i, ok := range b.Mask {
				if ok {
					out.Data[i] = b.Data[i]
					out.Mask[i] = true
				}
			}
		}
		bands[k] = out
	}
	return images[len(images)-1].withBands(bands), nil
}

// QualityMosaic takes, per pixel, every band from the image with the highest
// valid value of the quality band. Ties go to the later image.
func QualityMosaic(images []*Image, quality string) (*Image, error) {
	if err := checkStack(images); err != nil {
		return nil, err
	}
	stack, err := stackBands(images)
	if err != nil {
		return nil, err
	}
	best := make([]int, images[0].Len())
	bestQ := make([]float64, images[0].Len())
	for i := range best {
		best[i] = -1
		bestQ[i] = math.Inf(-1)
	}
	for j, im := range images {
		q, err := im.Band(quality)
		if err != nil {
			return nil, err
		}
		for i, ok := range q.Mask {
			if ok && q.Data[i] >= bestQ[i] {
				bestQ[i] = q.Data[i]
				best[i] = j
			}
		}
	}

	bands := make([]*Band, len(stack))
	for k, column := range stack {
		out := NewMaskedBand(column[0].Name, images[0].Len())
		for i, j := range best {
			if j < 0 || !column[j].Mask[i] {
				continue
			}
			out.Data[i] = column[j].Data[i]
			out.Mask[i] = true
		}
		bands[k] = out
	}
	return images[len(images)-1].withBands(bands), nil
}

// PercentileComposite reduces every band of the stack to its nearest rank
// percentile over valid observations. p must be in (0, 100).
func PercentileComposite(images []*Image, p float64) (*Image, error) {
	if p <= 0 || p >= 100 {
		return nil, fmt.Errorf("invalid percentile %v", p)
	}
	if err := checkStack(images); err != nil {
		return nil, err
	}
	stack, err := stackBands(images)
	if err != nil {
		return nil, err
	}
	bands := make([]*Band, len(stack))
	values := make([]float64, 0, len(images))
	for k, column := range stack {
		out := NewMaskedBand(column[0].Name, images[0].Len())
		for i := range out.Data {
			values = values[:0]
			for _, b := range column {
				if b.Mask[i] {
					values = append(values, b.Data[i])
				}
			}
			if len(values) == 0 {
				continue
			}
			sort.Float64s(values)
			out.Data[i] = values[nearestRank(len(values), p)]
			out.Mask[i] = true
		}
		bands[k] = out
	}
	return images[len(images)-1].withBands(bands), nil
}

// Sum adds valid observations band by band. A pixel is valid when any image
// observed it.
func Sum(images []*Image) (*Image, error) {
	if err := checkStack(images); err != nil {
		return nil, err
	}
	stack, err := stackBands(images)
	if err != nil {
		return nil, err
	}
	bands := make([]*Band, len(stack))
	for k, column := range stack {
		out := NewMaskedBand(column[0].Name, images[0].Len())
		for _, b := range column {
			for i, ok := range b.Mask {
				if ok {
					out.Data[i] += b.Data[i]
					out.Mask[i] = true
				}
			}
		}
		bands[k] = out
	}
	return images[len(images)-1].withBands(bands), nil
}
