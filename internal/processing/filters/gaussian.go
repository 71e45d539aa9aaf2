package filters

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"hydrafloods/internal/opencv/conversion"
	"hydrafloods/internal/opencv/safe"
	"hydrafloods/internal/raster"
)

type GaussianFilter struct {
	Sigma float64
}

func NewGaussianFilter(sigma float64) *GaussianFilter {
	return &GaussianFilter{Sigma: sigma}
}

func (g *GaussianFilter) Name() string {
	return "gaussian_filter"
}

// Apply blurs every band. Masked pixels are filled with the band mean before
// blurring and stay masked in the output. A non-positive sigma passes the
// input through.
func (g *GaussianFilter) Apply(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	if g.Sigma <= 0 {
		return input, nil
	}
	bands := make([]*raster.Band, len(input.Bands))
	for i, b := range input.Bands {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		blurred, err := blurBand(b, input.Width, input.Height, g.Sigma)
		if err != nil {
			return nil, fmt.Errorf("blur band %s: %w", b.Name, err)
		}
		out, err := conversion.FloatMatToBand(blurred, b.Name)
		blurred.Close()
		if err != nil {
			return nil, err
		}
		copy(out.Mask, b.Mask)
		bands[i] = out
	}
	return raster.New(input.Width, input.Height, input.Transform, bands...), nil
}

// blurBand returns a CV32F Mat of the band blurred with the given sigma.
func blurBand(b *raster.Band, width, height int, sigma float64) (*safe.Mat, error) {
	mean, _ := b.MeanStd()
	src, err := conversion.BandToFloatMat(b, width, height, mean)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := safe.NewTaggedMat(height, width, gocv.MatTypeCV32F, b.Name+"_blur")
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	kernelSize := gaussianKernelSize(sigma)
	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	gocv.GaussianBlur(srcMat, &dstMat, image.Point{X: kernelSize, Y: kernelSize}, sigma, sigma, gocv.BorderReflect101)

	return dst, nil
}

func gaussianKernelSize(sigma float64) int {
	kernelSize := int(sigma*6) + 1
	if kernelSize%2 == 0 {
		kernelSize++
	}
	return max(3, min(kernelSize, 15))
}
