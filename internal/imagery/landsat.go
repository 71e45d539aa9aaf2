package imagery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/processing/filters"
	"hydrafloods/internal/raster"
)

var ErrMonthRequired = errors.New("month is required to compute a climatology")

// StandardBands are the names every Landsat sensor is mapped onto.
var StandardBands = []string{"blue2", "blue", "green", "red", "nir", "swir1", "swir2"}

var (
	tmBands  = []string{"B1", "B1", "B2", "B3", "B4", "B5", "B7"}
	oliBands = []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"}
)

// fringeCountThreshold is the number of valid neighbors a pixel needs under
// the fringe kernel to be kept.
const fringeCountThreshold = 279

// fringeStarts holds, per row of the 41x41 fringe kernel, the first column of
// its run of nine ones; -1 marks an empty row.
var fringeStarts = [41]int{
	21, 21, 21, -1, 20, 20, 20, -1, 19, 19, 19, -1, 18, 18, 18, -1,
	17, 17, 17, -1, 16, -1, 15, 15, 15, -1, 14, 14, 14, -1, 13, 13, 13, -1,
	12, 12, 12, -1, 11, 11, 11,
}

func fringeKernel() raster.Kernel {
	w := make([][]float64, len(fringeStarts))
	for r, start := range fringeStarts {
		w[r] = make([]float64, len(fringeStarts))
		if start < 0 {
			continue
		}
		for c := start; c < start+9; c++ {
			w[r][c] = 1
		}
	}
	return raster.Kernel{Weights: w}
}

// validEverywhere is 1 where every band is valid and 0 elsewhere, with no
// masked pixels.
func validEverywhere(r *raster.Image) *raster.Image {
	b := raster.NewBand("mask", r.Len())
	for i := range b.Data {
		b.Data[i] = 1
		for _, band := range r.Bands {
			if !band.Mask[i] {
				b.Data[i] = 0
				break
			}
		}
	}
	return raster.New(r.Width, r.Height, r.Transform, b)
}

// Defringe masks scan line fringe pixels of Landsat 5 and 7 scenes: pixels
// with too few valid observations under the fringe kernel are dropped.
func Defringe(im expr.Image) expr.Image {
	k := fringeKernel()
	return im.Map("defringe", func(r *raster.Image) (*raster.Image, error) {
		counts := raster.ReduceNeighborhood(validEverywhere(r), k, raster.ReduceSum)
		keep := make([]bool, r.Len())
		for i, v := range counts.Bands[0].Data {
			keep[i] = counts.Bands[0].Mask[i] && v >= fringeCountThreshold
		}
		return raster.Clip(r, keep)
	})
}

func rescaleClamp(v, lo, hi float64) float64 {
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}

// CloudScore is a cloud likelihood in [0, 100] computed from the brightness
// and snow index of the standard optical bands. Without a thermal band the
// temperature test is skipped.
func CloudScore(im expr.Image) expr.Image {
	return im.Map("cloud_score", func(r *raster.Image) (*raster.Image, error) {
		b, err := bandExpression(r, "cloud", []string{"blue", "green", "red", "nir", "swir1", "swir2"}, func(v []float64) float64 {
			blue, green, red, nir, swir1, swir2 := v[0], v[1], v[2], v[3], v[4], v[5]
			score := 1.0
			score = math.Min(score, rescaleClamp(blue, 0.1, 0.3))
			score = math.Min(score, rescaleClamp(red+green+blue, 0.2, 0.8))
			score = math.Min(score, rescaleClamp(nir+swir1+swir2, 0.3, 0.8))
			ndsi := (green - swir1) / (green + swir1)
			score = math.Min(score, rescaleClamp(ndsi, 0.8, 0.6))
			return score * 100
		})
		if err != nil {
			return nil, err
		}
		return raster.New(r.Width, r.Height, r.Transform, b), nil
	})
}

// BustClouds masks every band where the cloud score reaches threshold.
func BustClouds(im expr.Image, threshold float64) expr.Image {
	clearSky := CloudScore(im).Lt(threshold)
	return im.UpdateMask(clearSky)
}

// Despeckle applies the refined Lee filter to a dB image.
func Despeckle(im expr.Image) expr.Image {
	return im.Transform("despeckle", filters.RefinedLee)
}

type LandsatOptions struct {
	Climatology    bool
	Month          opt.Optional[time.Month]
	Defringe       bool
	CloudThreshold opt.Optional[float64]
}

type sensor struct {
	dataset  string
	bands    []string
	defringe bool
}

var landsatSensors = []sensor{
	{catalog.Landsat4, tmBands, false},
	{catalog.Landsat5, tmBands, true},
	{catalog.Landsat7, tmBands, true},
	{catalog.Landsat8, oliBands, false},
}

// LandsatCollection merges the Landsat 4, 5, 7 and 8 scenes over region
// acquired between start and end, both days included, with bands renamed to
// StandardBands.
func LandsatCollection(ctx context.Context, cat catalog.Catalog, region *geo.Bound, start, end time.Time, opts LandsatOptions) (expr.Collection, error) {
	month, hasMonth := opts.Month.Get()
	if opts.Climatology && !hasMonth {
		return expr.Collection{}, ErrMonthRequired
	}

	var merged expr.Collection
	for i, s := range landsatSensors {
		coll, err := cat.Collection(ctx, s.dataset)
		if err != nil {
			return expr.Collection{}, fmt.Errorf("landsat collection: %w", err)
		}
		coll = coll.FilterBounds(region).FilterDate(start, end.AddDate(0, 0, 1))
		coll = coll.Map(func(im expr.Image) expr.Image {
			out := im.Select(s.bands...).Rename(StandardBands...)
			if threshold, ok := opts.CloudThreshold.Get(); ok {
				out = BustClouds(out, threshold)
			}
			if opts.Defringe && s.defringe {
				out = Defringe(out)
			}
			return out
		})
		if i == 0 {
			merged = coll
		} else {
			merged = merged.Merge(coll)
		}
	}

	if opts.Climatology {
		merged = merged.FilterMonth(month)
	}
	return merged, nil
}
