package conversion

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"hydrafloods/internal/opencv/safe"
	"hydrafloods/internal/raster"
)

// BandToFloatMat copies a band into a CV32F Mat. Masked pixels take fill.
func BandToFloatMat(b *raster.Band, width, height int, fill float64) (*safe.Mat, error) {
	if len(b.Data) != width*height {
		return nil, fmt.Errorf("band %s has %d values for a %dx%d grid", b.Name, len(b.Data), width, height)
	}
	dst, err := safe.NewTaggedMat(height, width, gocv.MatTypeCV32F, b.Name)
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			v := fill
			if b.Mask[i] {
				v = b.Data[i]
			}
			if err := dst.SetFloatAt(y, x, float32(v)); err != nil {
				dst.Close()
				return nil, fmt.Errorf("pixel write failed at (%d,%d): %w", x, y, err)
			}
		}
	}
	return dst, nil
}

// FloatMatToBand copies a CV32F Mat into a fully valid band.
func FloatMatToBand(src *safe.Mat, name string) (*raster.Band, error) {
	if err := safe.ValidateSingleChannel(src, "Mat to band conversion", gocv.MatTypeCV32F); err != nil {
		return nil, err
	}
	rows, cols := src.Rows(), src.Cols()
	b := raster.NewBand(name, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v, err := src.GetFloatAt(y, x)
			if err != nil {
				return nil, fmt.Errorf("pixel access failed at (%d,%d): %w", x, y, err)
			}
			b.Data[y*cols+x] = float64(v)
		}
	}
	return b, nil
}

// MaskToMat renders a boolean mask as a CV8U Mat holding 255 and 0.
func MaskToMat(mask []bool, width, height int) (*safe.Mat, error) {
	if len(mask) != width*height {
		return nil, fmt.Errorf("mask has %d values for a %dx%d grid", len(mask), width, height)
	}
	dst, err := safe.NewTaggedMat(height, width, gocv.MatTypeCV8U, "mask")
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v uint8
			if mask[y*width+x] {
				v = 255
			}
			if err := dst.SetUCharAt(y, x, v); err != nil {
				dst.Close()
				return nil, err
			}
		}
	}
	return dst, nil
}

// MatToMask reads a CV8U Mat back into a mask, true wherever it is non-zero.
func MatToMask(src *safe.Mat) ([]bool, error) {
	if err := safe.ValidateSingleChannel(src, "Mat to mask conversion", gocv.MatTypeCV8U); err != nil {
		return nil, err
	}
	rows, cols := src.Rows(), src.Cols()
	mask := make([]bool, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v, err := src.GetUCharAt(y, x)
			if err != nil {
				return nil, err
			}
			mask[y*cols+x] = v != 0
		}
	}
	return mask, nil
}

// BandToScaledMat stretches the valid range of a band onto 0..255 in a CV8U
// Mat. It returns the value range used so callers can map thresholds onto the
// same scale. Masked pixels are written as 0.
func BandToScaledMat(b *raster.Band, width, height int) (*safe.Mat, float64, float64, error) {
	lo, hi, ok := b.MinMax()
	if !ok {
		return nil, 0, 0, raster.ErrNoValidPixels
	}
	span := hi - lo
	dst, err := safe.NewTaggedMat(height, width, gocv.MatTypeCV8U, b.Name+"_8u")
	if err != nil {
		return nil, 0, 0, fmt.Errorf("destination Mat creation failed: %w", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			var v uint8
			if b.Mask[i] && span > 0 {
				v = uint8(math.Round((b.Data[i] - lo) / span * 255))
			}
			if err := dst.SetUCharAt(y, x, v); err != nil {
				dst.Close()
				return nil, 0, 0, err
			}
		}
	}
	return dst, lo, hi, nil
}
