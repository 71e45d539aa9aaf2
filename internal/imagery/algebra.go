// Package imagery holds image algebra helpers shared by the water products:
// bit flags, rescaling, unit conversions and spectral indices.
package imagery

import (
	"fmt"
	"math"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/raster"
)

// ExtractBits reads bits [start, end) of the first band as an integer flag
// band named name.
func ExtractBits(im expr.Image, start, end int, name string) expr.Image {
	var pattern int64
	for i := start; i < end; i++ {
		pattern |= 1 << i
	}
	return im.Map("extract_bits", func(r *raster.Image) (*raster.Image, error) {
		first, err := r.SelectIndex(0)
		if err != nil {
			return nil, err
		}
		first, err = first.Rename(name)
		if err != nil {
			return nil, err
		}
		return raster.Apply(first, func(v float64) float64 {
			return float64((int64(v) & pattern) >> start)
		}), nil
	})
}

// RescaleBands maps every band to [0, 1] using the min and max of its valid
// pixels. A constant band is fully masked.
func RescaleBands(im expr.Image) expr.Image {
	return im.Map("rescale", func(r *raster.Image) (*raster.Image, error) {
		out := r.Clone()
		for _, b := range out.Bands {
			lo, hi, ok := b.MinMax()
			for i := range b.Data {
				if !b.Mask[i] {
					continue
				}
				if !ok || hi == lo {
					b.Mask[i] = false
					continue
				}
				b.Data[i] = (b.Data[i] - lo) / (hi - lo)
			}
		}
		return out, nil
	})
}

func LogitTransform(im expr.Image) expr.Image {
	return im.Apply("logit", func(v float64) float64 {
		return math.Log(v / (1 - v))
	})
}

// ToNatural converts the first band from decibels to linear power.
func ToNatural(im expr.Image) expr.Image {
	return im.Map("to_natural", func(r *raster.Image) (*raster.Image, error) {
		first, err := r.SelectIndex(0)
		if err != nil {
			return nil, err
		}
		return raster.Apply(first, func(v float64) float64 {
			return math.Pow(10, v/10)
		}), nil
	})
}

func ToDB(im expr.Image) expr.Image {
	return im.Apply("to_db", func(v float64) float64 {
		return 10 * math.Log10(v)
	})
}

// NormalizedDifference computes (a - b) / (a + b) into a band named nd.
func NormalizedDifference(im expr.Image, a, b string) expr.Image {
	return im.Map(fmt.Sprintf("nd(%s,%s)", a, b), func(r *raster.Image) (*raster.Image, error) {
		return raster.NormalizedDifference(r, a, b)
	})
}

// bandExpression evaluates fn on the named bands pixel by pixel. A pixel is
// valid when every input band is valid there and fn returns a finite value.
func bandExpression(r *raster.Image, name string, inputs []string, fn func(v []float64) float64) (*raster.Band, error) {
	bands := make([]*raster.Band, len(inputs))
	for i, in := range inputs {
		b, err := r.Band(in)
		if err != nil {
			return nil, err
		}
		bands[i] = b
	}

	out := raster.NewMaskedBand(name, r.Len())
	values := make([]float64, len(bands))
	for i := range out.Data {
		valid := true
		for k, b := range bands {
			if !b.Mask[i] {
				valid = false
				break
			}
			values[k] = b.Data[i]
		}
		if !valid {
			continue
		}
		v := fn(values)
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out.Data[i] = v
			out.Mask[i] = true
		}
	}
	return out, nil
}

type index struct {
	name   string
	inputs []string
	fn     func(v []float64) float64
}

var spectralIndices = []index{
	{"ndvi", []string{"nir", "red"}, func(v []float64) float64 {
		return (v[0] - v[1]) / (v[0] + v[1])
	}},
	{"mndwi", []string{"green", "swir1"}, func(v []float64) float64 {
		return (v[0] - v[1]) / (v[0] + v[1])
	}},
	{"nwi", []string{"blue", "nir", "swir1", "swir2"}, func(v []float64) float64 {
		rest := v[1] + v[2] + v[3]
		return (v[0] - rest) / (v[0] + rest) * 100
	}},
	{"aewinsh", []string{"green", "swir1", "nir", "swir2"}, func(v []float64) float64 {
		return 4*(v[0]-v[1]) - (0.25*v[2] + 2.75*v[3])
	}},
	{"aewish", []string{"blue", "green", "nir", "swir1", "swir2"}, func(v []float64) float64 {
		return v[0] + 2.5*v[1] - 1.5*(v[2]+v[3]) - 0.25*v[4]
	}},
	// Tasseled cap wetness.
	{"tcwet", []string{"blue", "green", "red", "nir", "swir1", "swir2"}, func(v []float64) float64 {
		return 0.1509*v[0] + 0.1973*v[1] + 0.3279*v[2] + 0.3406*v[3] - 0.7112*v[4] - 0.4572*v[5]
	}},
}

// AddIndices appends the water and vegetation indices computed from the
// standard optical bands.
func AddIndices(im expr.Image) expr.Image {
	return im.Map("add_indices", func(r *raster.Image) (*raster.Image, error) {
		bands := make([]*raster.Band, 0, len(spectralIndices))
		for _, idx := range spectralIndices {
			b, err := bandExpression(r, idx.name, idx.inputs, idx.fn)
			if err != nil {
				return nil, fmt.Errorf("index %s: %w", idx.name, err)
			}
			bands = append(bands, b)
		}
		return r.AddBands(raster.New(r.Width, r.Height, r.Transform, bands...))
	})
}
