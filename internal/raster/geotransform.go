package raster

import (
	"fmt"
	"io"
	"math"
)

// MetersPerDegree is the length of one degree of longitude at the equator on
// the WGS84 sphere used by web mercator.
const MetersPerDegree = 2 * math.Pi * 6378137 / 360

// GeoTransform follows the GDAL affine convention:
// lon = gt[0] + px*gt[1] + py*gt[2], lat = gt[3] + px*gt[4] + py*gt[5].
type GeoTransform [6]float64

func NewGeoTransform(west, north, pixelWidth, pixelHeight float64) GeoTransform {
	return GeoTransform{west, pixelWidth, 0, north, 0, -math.Abs(pixelHeight)}
}

func (gt GeoTransform) PixelToLonLat(px, py float64) (lon, lat float64) {
	lon = gt[0] + px*gt[1] + py*gt[2]
	lat = gt[3] + px*gt[4] + py*gt[5]
	return lon, lat
}

// PixelCenter returns the coordinates of the center of pixel (col, row).
func (gt GeoTransform) PixelCenter(col, row int) (lon, lat float64) {
	return gt.PixelToLonLat(float64(col)+0.5, float64(row)+0.5)
}

// LonLatToPixel inverts the transform. Fractional pixel coordinates are
// returned; floor them to index the grid.
func (gt GeoTransform) LonLatToPixel(lon, lat float64) (px, py float64) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return math.NaN(), math.NaN()
	}
	dx := lon - gt[0]
	dy := lat - gt[3]
	px = (dx*gt[5] - dy*gt[2]) / det
	py = (dy*gt[1] - dx*gt[4]) / det
	return px, py
}

func (gt GeoTransform) PixelSizeMeters(lat float64) float64 {
	x := math.Abs(gt[1]) * MetersPerDegree * math.Cos(lat*math.Pi/180)
	y := math.Abs(gt[5]) * MetersPerDegree
	return math.Sqrt(x * y)
}

// WriteWorldFile writes the six line ESRI world file for the transform. World
// files reference the center of the upper left pixel.
func (gt GeoTransform) WriteWorldFile(w io.Writer) error {
	cx, cy := gt.PixelToLonLat(0.5, 0.5)
	_, err := fmt.Fprintf(w, "%.12f\n%.12f\n%.12f\n%.12f\n%.12f\n%.12f\n",
		gt[1], gt[4], gt[2], gt[5], cx, cy)
	return err
}
