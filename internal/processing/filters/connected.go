package filters

import (
	"context"
	"fmt"
	"sort"

	"gocv.io/x/gocv"

	"hydrafloods/internal/opencv/conversion"
	"hydrafloods/internal/opencv/safe"
	"hydrafloods/internal/raster"
)

// areaStat is the column of the connected component stats holding the area.
const areaStat = 4

// ConnectedPixelCount labels every valid pixel of the first band with the
// size of the connected region of equal value it belongs to, capped at
// MaxSize.
type ConnectedPixelCount struct {
	MaxSize        int
	EightConnected bool
}

func (c *ConnectedPixelCount) Count(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	b := input.Bands[0]
	w, h := input.Width, input.Height

	values := make(map[float64]struct{})
	for i, ok := range b.Mask {
		if ok {
			values[b.Data[i]] = struct{}{}
		}
	}
	distinct := make([]float64, 0, len(values))
	for v := range values {
		distinct = append(distinct, v)
	}
	sort.Float64s(distinct)

	connectivity := 4
	if c.EightConnected {
		connectivity = 8
	}

	out := raster.NewMaskedBand("count", w*h)
	for _, v := range distinct {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		mask := make([]bool, w*h)
		for i, ok := range b.Mask {
			mask[i] = ok && b.Data[i] == v
		}
		if err := c.countRegion(mask, w, h, connectivity, out); err != nil {
			return nil, fmt.Errorf("connected components of value %g: %w", v, err)
		}
	}
	return raster.New(w, h, input.Transform, out), nil
}

func (c *ConnectedPixelCount) countRegion(mask []bool, w, h, connectivity int, out *raster.Band) error {
	src, err := conversion.MaskToMat(mask, w, h)
	if err != nil {
		return err
	}
	defer src.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	srcMat := src.GetMat()
	gocv.ConnectedComponentsWithStatsWithParams(srcMat, &labels, &stats, &centroids, connectivity, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)

	safeLabels, err := safe.Wrap(labels.Clone(), "labels")
	if err != nil {
		return err
	}
	defer safeLabels.Close()

	for i, ok := range mask {
		if !ok {
			continue
		}
		label, err := safeLabels.GetIntAt(i/w, i%w)
		if err != nil {
			return err
		}
		area := int(stats.GetIntAt(int(label), areaStat))
		out.Data[i] = float64(min(area, c.MaxSize))
		out.Mask[i] = true
	}
	return nil
}

// EdgeLengthFilter keeps edges that belong to long connected structures. It
// compares edge magnitude against Below, groups the result into connected
// regions and keeps pixels of regions with at least MinLength pixels.
type EdgeLengthFilter struct {
	Below     float64
	MaxSize   int
	MinLength int
}

func (e *EdgeLengthFilter) Name() string {
	return "edge_length"
}

func (e *EdgeLengthFilter) Apply(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	edges := raster.SelfMask(input)
	below := raster.Apply(edges, func(v float64) float64 {
		if v < e.Below {
			return 1
		}
		return 0
	})

	counter := &ConnectedPixelCount{MaxSize: e.MaxSize, EightConnected: true}
	counts, err := counter.Count(ctx, below)
	if err != nil {
		return nil, err
	}

	long := raster.Apply(counts, func(v float64) float64 {
		if v >= float64(e.MinLength) {
			return 1
		}
		return 0
	})
	return long.Rename("long_edges")
}
