// Package otsu maps surface water in a single acquisition day by
// thresholding it with Otsu's method, using a histogram sampled along long
// land/water edges.
package otsu

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/processing/filters"
	"hydrafloods/internal/processing/histogram"
	"hydrafloods/internal/processing/threshold"
	"hydrafloods/internal/raster"
)

var ErrNoImagery = errors.New("selected date has no imagery")

const (
	maxBuckets     = 255
	minBucketWidth = 2
	// bootstrapDraws is how many reference polygons are drawn, with
	// replacement, for the bootstrap histogram.
	bootstrapDraws = 3
)

type Processor struct {
	name          string
	params        Params
	histogramCalc *histogram.Builder
	logger        logger.Logger
}

func NewProcessor(params Params, log logger.Logger) (*Processor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("parameter validation failed: %w", err)
	}
	return &Processor{
		name:          "Edge Otsu",
		params:        params,
		histogramCalc: histogram.NewBuilder(maxBuckets, minBucketWidth),
		logger:        log,
	}, nil
}

func (p *Processor) GetName() string {
	return p.name
}

func (p *Processor) Params() Params {
	return p.params
}

// Result holds the lazy water map and the threshold it was cut at.
type Result struct {
	Water     expr.Image
	Threshold expr.Number
	// Fallback is set when no reference polygon intersected the scene and
	// the upper threshold was used as is.
	Fallback bool
}

type GlobalRequest struct {
	Collection expr.Collection
	Date       time.Time
	// Region bounds the stratified sample.
	Region expr.Region
	Land   opt.Optional[expr.Region]
}

type BootstrapRequest struct {
	Collection expr.Collection
	Date       time.Time
	// Polygons are the reference areas known to hold both water and land.
	Polygons *features.FeatureCollection
	Land     opt.Optional[expr.Region]
}

// Global thresholds the target day with a histogram drawn around a seeded
// stratified sample of the initial water/land split. Water is where the
// target exceeds the threshold.
func (p *Processor) Global(req GlobalRequest) (Result, error) {
	if req.Region == nil {
		return Result{}, errors.New("global otsu: sample region is required")
	}
	target, err := p.targetDay(req.Collection, req.Date)
	if err != nil {
		return Result{}, err
	}
	composite := p.composite(target)

	binary := composite.Gt(p.params.InitThreshold).Rename("binary")
	samples := binary.Clip(req.Region).Transform("stratified_sample", func(_ context.Context, r *raster.Image) (*raster.Image, error) {
		rng := rand.New(rand.NewPCG(p.params.Seed, p.params.Seed))
		points := stratifiedSample(r, p.params.NumPoints, p.params.stride(r), rng)
		buffers := &features.PointBuffers{Points: points, Radius: p.params.SampleBuffer}
		return maskImage(r, "sample_region", buffers.Rasterize(r.Transform, r.Width, r.Height)), nil
	})

	thr := p.thresholdOf(p.edgeMasked(composite).UpdateMask(samples), nil)
	water := composite.GtNumber(thr).Rename("water")

	p.logger.Info("OtsuProcessor", "global water map built", map[string]interface{}{
		"collection": req.Collection.Name(),
		"date":       req.Date.Format(time.DateOnly),
		"images":     target.Size(),
	})
	return Result{Water: clipLand(water, req.Land), Threshold: thr}, nil
}

// Bootstrap thresholds the smoothed target day with a histogram drawn from
// reference polygons picked at random with rng. The threshold never exceeds
// the upper threshold, which is used directly when no polygon intersects
// the scene. Water is where the smoothed target is below the threshold. A
// nil rng is seeded from the parameters.
func (p *Processor) Bootstrap(req BootstrapRequest, rng *rand.Rand) (Result, error) {
	target, err := p.targetDay(req.Collection, req.Date)
	if err != nil {
		return Result{}, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(p.params.Seed, p.params.Seed))
	}

	polygons := features.NewFeatureCollection("")
	if req.Polygons != nil {
		polygons = req.Polygons.FilterBounds(target.Geometry())
	}

	shrunk := p.composite(target).Map("neg_buffer", func(r *raster.Image) (*raster.Image, error) {
		return erodeFootprint(r, r.MetersToPixels(p.params.NegBuffer))
	})
	smoothed := shrunk.Map("focal_median", func(r *raster.Image) (*raster.Image, error) {
		radius := r.MetersToPixels(p.params.Smoothing)
		if radius == 0 {
			return r, nil
		}
		return filters.FocalMedian(r, radius), nil
	})

	upper := p.params.UpperThreshold
	var thr expr.Number
	fallback := polygons.Size() == 0
	if fallback {
		thr = expr.ConstNumber(upper)
		p.logger.Warning("OtsuProcessor", "no reference polygon intersects the scene, using upper threshold", map[string]interface{}{
			"date":            req.Date.Format(time.DateOnly),
			"upper_threshold": upper,
		})
	} else {
		ids := polygons.IDs()
		picked := make([]string, bootstrapDraws)
		for i := range picked {
			picked[i] = ids[rng.IntN(len(ids))]
		}
		selected := polygons.FilterIDs(picked...)
		thr = p.thresholdOf(p.edgeMasked(smoothed), selected).Min(upper)

		p.logger.Debug("OtsuProcessor", "reference polygons drawn", map[string]interface{}{
			"candidates": len(ids),
			"picked":     picked,
		})
	}

	water := smoothed.LtNumber(thr).Rename("water")
	p.logger.Info("OtsuProcessor", "bootstrap water map built", map[string]interface{}{
		"collection": req.Collection.Name(),
		"date":       req.Date.Format(time.DateOnly),
		"images":     target.Size(),
		"fallback":   fallback,
	})
	return Result{Water: clipLand(water, req.Land), Threshold: thr, Fallback: fallback}, nil
}

// targetDay keeps the images acquired on the calendar day of date.
func (p *Processor) targetDay(coll expr.Collection, date time.Time) (expr.Collection, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	target := coll.FilterDate(day, day.AddDate(0, 0, 1))
	if target.Size() == 0 {
		return expr.Collection{}, fmt.Errorf("%s on %s: %w", coll.Name(), day.Format(time.DateOnly), ErrNoImagery)
	}
	return target, nil
}

func (p *Processor) composite(target expr.Collection) expr.Image {
	if band, ok := p.params.QualityBand.Get(); ok {
		return target.QualityMosaic(band).Select(band)
	}
	return target.Mosaic().Map("first_band", func(r *raster.Image) (*raster.Image, error) {
		return r.SelectIndex(0)
	})
}

// edgeMasked keeps the pixels of source inside the corridor around its long
// edges.
func (p *Processor) edgeMasked(source expr.Image) expr.Image {
	corridor := source.Transform("edge_corridor", func(ctx context.Context, r *raster.Image) (*raster.Image, error) {
		return filters.NewEdgeCorridor(p.params.edgeSettings(r)).Execute(ctx, r)
	})
	return source.UpdateMask(corridor)
}

// thresholdOf reduces the first band of im, restricted to region when set,
// to its Otsu threshold.
func (p *Processor) thresholdOf(im expr.Image, region expr.Region) expr.Number {
	return expr.NumberFrom("otsu_threshold", im, func(_ context.Context, r *raster.Image) (float64, error) {
		var keep []bool
		if region != nil {
			keep = region.Rasterize(r.Transform, r.Width, r.Height)
		}
		values := histogram.Sample(r.Bands[0], r.Width, keep, p.params.stride(r))
		h, err := p.histogramCalc.Build(values)
		if err != nil {
			return 0, fmt.Errorf("threshold histogram: %w", err)
		}
		t, err := threshold.Otsu(h)
		if err != nil {
			return 0, err
		}

		p.logger.Debug("OtsuProcessor", "threshold computed", map[string]interface{}{
			"samples":      len(values),
			"buckets":      h.Len(),
			"bucket_width": h.BucketWidth,
			"threshold":    t,
		})
		return t, nil
	})
}

func clipLand(water expr.Image, land opt.Optional[expr.Region]) expr.Image {
	if region, ok := land.Get(); ok && region != nil {
		return water.Clip(region)
	}
	return water
}
