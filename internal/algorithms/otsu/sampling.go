package otsu

import (
	"math/rand/v2"
	"sort"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/processing/filters"
	"hydrafloods/internal/raster"
)

// stratifiedSample draws up to perClass pixel centers for every distinct
// value of the first band, visiting the grid every stride pixels.
func stratifiedSample(r *raster.Image, perClass, stride int, rng *rand.Rand) []*geo.Point {
	b := r.Bands[0]
	classes := make(map[float64][]int)
	for y := 0; y < r.Height; y += stride {
		for x := 0; x < r.Width; x += stride {
			i := y*r.Width + x
			if b.Mask[i] {
				classes[b.Data[i]] = append(classes[b.Data[i]], i)
			}
		}
	}

	values := make([]float64, 0, len(classes))
	for v := range classes {
		values = append(values, v)
	}
	sort.Float64s(values)

	var points []*geo.Point
	for _, v := range values {
		pixels := classes[v]
		rng.Shuffle(len(pixels), func(i, j int) {
			pixels[i], pixels[j] = pixels[j], pixels[i]
		})
		for _, i := range pixels[:min(perClass, len(pixels))] {
			lon, lat := r.Transform.PixelCenter(i%r.Width, i/r.Width)
			points = append(points, geo.NewPoint(lon, lat))
		}
	}
	return points
}

// erodeFootprint shrinks the valid area of r by radius pixels.
func erodeFootprint(r *raster.Image, radius int) (*raster.Image, error) {
	if radius == 0 {
		return r, nil
	}
	footprint := make([]bool, r.Len())
	for _, b := range r.Bands {
		for i, ok := range b.Mask {
			footprint[i] = footprint[i] || ok
		}
	}
	eroded, err := filters.ErodeMask(footprint, r.Width, r.Height, radius)
	if err != nil {
		return nil, err
	}
	return raster.Clip(r, eroded)
}

// maskImage turns keep into a single band image valid only where keep is set.
func maskImage(r *raster.Image, name string, keep []bool) *raster.Image {
	b := raster.NewMaskedBand(name, len(keep))
	for i, ok := range keep {
		if ok {
			b.Data[i] = 1
			b.Mask[i] = true
		}
	}
	return raster.New(r.Width, r.Height, r.Transform, b)
}
