// Package features holds vector features used to filter, clip and outline
// rasters: reference polygons, land masks and administrative boundaries.
package features

import (
	"sort"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/raster"
)

// Polygon is an exterior ring followed by its holes.
type Polygon []*geo.Path

type Feature struct {
	ID         string
	Properties map[string]string
	Polygons   []Polygon
}

func (f *Feature) Bound() *geo.Bound {
	var b *geo.Bound
	for _, poly := range f.Polygons {
		if len(poly) == 0 || poly[0].Length() == 0 {
			continue
		}
		rb := poly[0].Bound()
		if b == nil {
			b = rb
			continue
		}
		b.Union(rb)
	}
	return b
}

// Contains reports whether p lies inside the feature, holes excluded.
func (f *Feature) Contains(p *geo.Point) bool {
	for _, poly := range f.Polygons {
		if len(poly) == 0 || !poly[0].Bound().Contains(p) {
			continue
		}
		inside := false
		for _, ring := range poly {
			if ringContains(ring, p) {
				inside = !inside
			}
		}
		if inside {
			return true
		}
	}
	return false
}

// ringContains is the even-odd ray casting test.
func ringContains(ring *geo.Path, p *geo.Point) bool {
	points := ring.Points()
	inside := false
	for i, j := 0, len(points)-1; i < len(points); j, i = i, i+1 {
		a, b := points[i], points[j]
		if (a.Y() > p.Y()) != (b.Y() > p.Y()) {
			x := (b.X()-a.X())*(p.Y()-a.Y())/(b.Y()-a.Y()) + a.X()
			if p.X() < x {
				inside = !inside
			}
		}
	}
	return inside
}

type FeatureCollection struct {
	Name     string
	Features []*Feature
}

func NewFeatureCollection(name string, features ...*Feature) *FeatureCollection {
	return &FeatureCollection{Name: name, Features: features}
}

func (fc *FeatureCollection) Size() int {
	return len(fc.Features)
}

func (fc *FeatureCollection) filter(keep func(*Feature) bool) *FeatureCollection {
	out := &FeatureCollection{Name: fc.Name}
	for _, f := range fc.Features {
		if keep(f) {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// FilterBounds keeps features whose bounding box intersects b.
func (fc *FeatureCollection) FilterBounds(b *geo.Bound) *FeatureCollection {
	return fc.filter(func(f *Feature) bool {
		fb := f.Bound()
		return fb != nil && b != nil && fb.Intersects(b)
	})
}

// ContainedBy keeps features whose bounding box lies inside b.
func (fc *FeatureCollection) ContainedBy(b *geo.Bound) *FeatureCollection {
	return fc.filter(func(f *Feature) bool {
		fb := f.Bound()
		return fb != nil && b != nil && b.Contains(fb.SouthWest()) && b.Contains(fb.NorthEast())
	})
}

func (fc *FeatureCollection) FilterIDs(ids ...string) *FeatureCollection {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return fc.filter(func(f *Feature) bool { return wanted[f.ID] })
}

// IDs returns the distinct feature ids in sorted order.
func (fc *FeatureCollection) IDs() []string {
	seen := make(map[string]bool, len(fc.Features))
	ids := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		if !seen[f.ID] {
			seen[f.ID] = true
			ids = append(ids, f.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (fc *FeatureCollection) Bound() *geo.Bound {
	var b *geo.Bound
	for _, f := range fc.Features {
		fb := f.Bound()
		if fb == nil {
			continue
		}
		if b == nil {
			b = fb.Clone()
			continue
		}
		b.Union(fb)
	}
	return b
}

func (fc *FeatureCollection) Contains(p *geo.Point) bool {
	for _, f := range fc.Features {
		if f.Contains(p) {
			return true
		}
	}
	return false
}

// Rasterize marks the pixels whose centers fall inside any feature.
func (fc *FeatureCollection) Rasterize(gt raster.GeoTransform, width, height int) []bool {
	mask := make([]bool, width*height)
	bounds := make([]*geo.Bound, len(fc.Features))
	for i, f := range fc.Features {
		bounds[i] = f.Bound()
	}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			lon, lat := gt.PixelCenter(col, row)
			p := geo.NewPoint(lon, lat)
			for i, f := range fc.Features {
				if bounds[i] != nil && bounds[i].Contains(p) && f.Contains(p) {
					mask[row*width+col] = true
					break
				}
			}
		}
	}
	return mask
}
