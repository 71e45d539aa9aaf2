package filters

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"hydrafloods/internal/opencv/conversion"
	"hydrafloods/internal/opencv/safe"
	"hydrafloods/internal/raster"
)

// DilateMask grows mask by a square window of the given radius in pixels.
func DilateMask(mask []bool, width, height, radius int) ([]bool, error) {
	if radius <= 0 {
		return append([]bool(nil), mask...), nil
	}
	return morph(mask, width, height, radius, gocv.MorphRect, false)
}

// ErodeMask shrinks mask by a disk of the given radius in pixels. Pixels
// beyond the grid count as outside the mask, so the grid border erodes too.
func ErodeMask(mask []bool, width, height, radius int) ([]bool, error) {
	if radius <= 0 {
		return append([]bool(nil), mask...), nil
	}
	return morph(mask, width, height, radius, gocv.MorphEllipse, true)
}

func morph(mask []bool, width, height, radius int, shape gocv.MorphShape, erode bool) ([]bool, error) {
	src, err := conversion.MaskToMat(mask, width, height)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	padded, err := safe.NewTaggedMat(height+2*radius, width+2*radius, gocv.MatTypeCV8U, "morph_padded")
	if err != nil {
		return nil, fmt.Errorf("failed to create padded Mat: %w", err)
	}
	defer padded.Close()
	srcMat := src.GetMat()
	paddedMat := padded.GetMat()
	gocv.CopyMakeBorder(srcMat, &paddedMat, radius, radius, radius, radius, gocv.BorderConstant, color.RGBA{})

	size := 2*radius + 1
	kernel := gocv.GetStructuringElement(shape, image.Point{X: size, Y: size})
	defer kernel.Close()

	result, err := safe.NewTaggedMat(height+2*radius, width+2*radius, gocv.MatTypeCV8U, "morph_result")
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}
	defer result.Close()
	resultMat := result.GetMat()
	if erode {
		gocv.Erode(paddedMat, &resultMat, kernel)
	} else {
		gocv.Dilate(paddedMat, &resultMat, kernel)
	}

	region := resultMat.Region(image.Rect(radius, radius, radius+width, radius+height))
	cropped, err := safe.Wrap(region.Clone(), "morph_cropped")
	region.Close()
	if err != nil {
		return nil, err
	}
	defer cropped.Close()

	return conversion.MatToMask(cropped)
}

// DilateStep turns the valid non-zero pixels of the first band into a
// dilated corridor. The output band holds 1 inside the corridor and is masked
// elsewhere.
type DilateStep struct {
	Radius int
}

func (d *DilateStep) Name() string {
	return "dilate"
}

func (d *DilateStep) Apply(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	b := input.Bands[0]
	mask := make([]bool, len(b.Data))
	for i, v := range b.Data {
		mask[i] = b.Mask[i] && v != 0
	}
	grown, err := DilateMask(mask, input.Width, input.Height, d.Radius)
	if err != nil {
		return nil, err
	}

	out := raster.NewMaskedBand("corridor", len(grown))
	for i, ok := range grown {
		if ok {
			out.Data[i] = 1
			out.Mask[i] = true
		}
	}
	return raster.New(input.Width, input.Height, input.Transform, out), nil
}
