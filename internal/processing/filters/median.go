package filters

import "hydrafloods/internal/raster"

// FocalMedian smooths every band with the median over a disk of the given
// radius in pixels.
func FocalMedian(im *raster.Image, radius int) *raster.Image {
	return raster.ReduceNeighborhood(im, raster.Circle(radius), raster.ReduceMedian)
}
