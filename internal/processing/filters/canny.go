package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"hydrafloods/internal/opencv/conversion"
	"hydrafloods/internal/opencv/safe"
	"hydrafloods/internal/raster"
)

// sobelGain is the response of a 3x3 Sobel aperture to a unit per-pixel
// slope.
const sobelGain = 8

// CannyDetector marks edges of the first band. The output band holds the
// gradient magnitude, in band units per pixel, on edge pixels and zero
// elsewhere. Smoothing is left to a GaussianFilter ahead of it.
type CannyDetector struct {
	Threshold float64
}

func NewCannyDetector(threshold float64) *CannyDetector {
	return &CannyDetector{Threshold: threshold}
}

func (c *CannyDetector) Name() string {
	return "canny_edges"
}

func (c *CannyDetector) Apply(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	if len(input.Bands) == 0 {
		return nil, fmt.Errorf("canny: %w", raster.ErrBandNotFound)
	}
	b := input.Bands[0]
	if b.ValidCount() == 0 {
		return nil, fmt.Errorf("canny: %w", raster.ErrNoValidPixels)
	}
	w, h := input.Width, input.Height

	mean, _ := b.MeanStd()
	src, err := conversion.BandToFloatMat(b, w, h, mean)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	magnitude, err := gradientMagnitude(src)
	if err != nil {
		return nil, err
	}
	defer magnitude.Close()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := raster.NewMaskedBand("canny", w*h)
	for i, ok := range b.Mask {
		out.Mask[i] = ok
	}

	scaled, lo, hi, err := conversion.BandToScaledMat(b, w, h)
	if err != nil {
		return nil, err
	}
	defer scaled.Close()
	if hi == lo {
		return raster.New(w, h, input.Transform, out), nil
	}

	edges, err := safe.NewTaggedMat(h, w, gocv.MatTypeCV8U, "canny")
	if err != nil {
		return nil, fmt.Errorf("failed to create edges Mat: %w", err)
	}
	defer edges.Close()

	high := float32(c.Threshold * sobelGain * 255 / (hi - lo))
	scaledMat := scaled.GetMat()
	edgesMat := edges.GetMat()
	gocv.Canny(scaledMat, &edgesMat, high/2, high)

	edgeMask, err := conversion.MatToMask(edges)
	if err != nil {
		return nil, err
	}
	for i, isEdge := range edgeMask {
		if !isEdge || !b.Mask[i] {
			continue
		}
		m, err := magnitude.GetFloatAt(i/w, i%w)
		if err != nil {
			return nil, err
		}
		out.Data[i] = float64(m) / sobelGain
	}
	return raster.New(w, h, input.Transform, out), nil
}

func gradientMagnitude(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateSingleChannel(src, "gradient magnitude", gocv.MatTypeCV32F); err != nil {
		return nil, err
	}
	rows, cols := src.Rows(), src.Cols()

	dx, err := safe.NewMat(rows, cols, gocv.MatTypeCV32F)
	if err != nil {
		return nil, err
	}
	defer dx.Close()
	dy, err := safe.NewMat(rows, cols, gocv.MatTypeCV32F)
	if err != nil {
		return nil, err
	}
	defer dy.Close()
	magnitude, err := safe.NewTaggedMat(rows, cols, gocv.MatTypeCV32F, "gradient")
	if err != nil {
		return nil, err
	}

	srcMat := src.GetMat()
	dxMat := dx.GetMat()
	dyMat := dy.GetMat()
	magMat := magnitude.GetMat()
	gocv.Sobel(srcMat, &dxMat, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderReflect101)
	gocv.Sobel(srcMat, &dyMat, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderReflect101)
	gocv.Magnitude(dxMat, dyMat, &magMat)

	return magnitude, nil
}
