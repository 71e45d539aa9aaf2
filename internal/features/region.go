package features

import (
	"math"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/raster"
)

// PointBuffers is the union of disks of Radius meters around Points.
type PointBuffers struct {
	Points []*geo.Point
	Radius float64
}

func (pb *PointBuffers) degrees(lat float64) (dLon, dLat float64) {
	dLat = pb.Radius / raster.MetersPerDegree
	dLon = dLat / math.Max(math.Cos(lat*math.Pi/180), 1e-6)
	return dLon, dLat
}

func (pb *PointBuffers) Bound() *geo.Bound {
	var b *geo.Bound
	for _, p := range pb.Points {
		dLon, dLat := pb.degrees(p.Lat())
		pbnd := geo.NewBound(p.Lng()-dLon, p.Lng()+dLon, p.Lat()-dLat, p.Lat()+dLat)
		if b == nil {
			b = pbnd
			continue
		}
		b.Union(pbnd)
	}
	return b
}

func (pb *PointBuffers) Rasterize(gt raster.GeoTransform, width, height int) []bool {
	mask := make([]bool, width*height)
	for _, p := range pb.Points {
		dLon, dLat := pb.degrees(p.Lat())
		x0, y0 := gt.LonLatToPixel(p.Lng()-dLon, p.Lat()+dLat)
		x1, y1 := gt.LonLatToPixel(p.Lng()+dLon, p.Lat()-dLat)
		minCol := max(0, int(math.Floor(math.Min(x0, x1))))
		maxCol := min(width-1, int(math.Ceil(math.Max(x0, x1))))
		minRow := max(0, int(math.Floor(math.Min(y0, y1))))
		maxRow := min(height-1, int(math.Ceil(math.Max(y0, y1))))
		for row := minRow; row <= maxRow; row++ {
			for col := minCol; col <= maxCol; col++ {
				lon, lat := gt.PixelCenter(col, row)
				dx := (lon - p.Lng()) / dLon
				dy := (lat - p.Lat()) / dLat
				if dx*dx+dy*dy <= 1 {
					mask[row*width+col] = true
				}
			}
		}
	}
	return mask
}

// NewBox returns a single rectangular feature covering b.
func NewBox(id string, b *geo.Bound) *Feature {
	ring := geo.NewPath()
	ring.Push(geo.NewPoint(b.Left(), b.Top()))
	ring.Push(geo.NewPoint(b.Right(), b.Top()))
	ring.Push(geo.NewPoint(b.Right(), b.Bottom()))
	ring.Push(geo.NewPoint(b.Left(), b.Bottom()))
	ring.Push(geo.NewPoint(b.Left(), b.Top()))
	return &Feature{ID: id, Polygons: []Polygon{{ring}}}
}
