package features

import (
	"github.com/fogleman/gg"

	"hydrafloods/internal/raster"
)

// Outline paints the ring boundaries of every feature onto the grid with the
// given line width in pixels. The result holds 1 on painted pixels and is
// masked elsewhere.
func (fc *FeatureCollection) Outline(gt raster.GeoTransform, width, height int, lineWidth float64) *raster.Image {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(lineWidth)

	for _, f := range fc.Features {
		for _, poly := range f.Polygons {
			for _, ring := range poly {
				for i, p := range ring.Points() {
					x, y := gt.LonLatToPixel(p.X(), p.Y())
					if i == 0 {
						dc.MoveTo(x, y)
					} else {
						dc.LineTo(x, y)
					}
				}
				dc.ClosePath()
			}
		}
	}
	dc.Stroke()

	img := dc.Image()
	band := raster.NewMaskedBand("outline", width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			_, _, _, a := img.At(col, row).RGBA()
			if a > 0x7fff {
				band.Data[row*width+col] = 1
				band.Mask[row*width+col] = true
			}
		}
	}
	return raster.New(width, height, gt, band)
}
