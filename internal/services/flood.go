package services

import (
	"context"
	"fmt"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/algorithms"
	"hydrafloods/internal/algorithms/otsu"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/tiles"
)

const defaultPolarization = "VV"

var floodVis = tiles.VisParams{Min: 0, Max: 1, Palette: []string{"#ffffff", "#00008b"}}

type FloodRequest struct {
	Region *geo.Bound
	Date   time.Time
	// Band is the backscatter band to threshold, VV when empty.
	Band string
}

type FloodResult struct {
	URL       string  `json:"url"`
	Threshold float64 `json:"threshold"`
	Fallback  bool    `json:"fallback"`
}

// FloodService maps open water on a Sentinel-1 acquisition day.
type FloodService struct {
	catalog   catalog.Catalog
	params    otsu.Params
	publisher *Publisher
	logger    logger.Logger
}

func NewFloodService(cat catalog.Catalog, params otsu.Params, publisher *Publisher, log logger.Logger) *FloodService {
	return &FloodService{
		catalog:   cat,
		params:    params,
		publisher: publisher,
		logger:    log,
	}
}

func (s *FloodService) prepare(ctx context.Context, req FloodRequest) (*otsu.Processor, expr.Collection, opt.Optional[expr.Region], error) {
	none := opt.None[expr.Region]()
	if req.Region == nil {
		return nil, expr.Collection{}, none, fmt.Errorf("flood map: region is required")
	}
	band := req.Band
	if band == "" {
		band = defaultPolarization
	}

	params := s.params
	params.QualityBand = opt.None[string]()
	processor, err := otsu.NewProcessor(params, s.logger)
	if err != nil {
		return nil, expr.Collection{}, none, err
	}

	s1, err := s.catalog.Collection(ctx, catalog.Sentinel1)
	if err != nil {
		return nil, expr.Collection{}, none, fmt.Errorf("flood map: %w", err)
	}
	scenes := s1.FilterBounds(req.Region).Map(func(im expr.Image) expr.Image {
		return im.Select(band)
	})

	land, err := s.catalog.Features(ctx, catalog.LandBoundaries)
	if err != nil {
		return nil, expr.Collection{}, none, fmt.Errorf("flood map: %w", err)
	}
	return processor, scenes, opt.Some[expr.Region](land.FilterBounds(req.Region)), nil
}

const (
	VariantBootstrap = "bootstrap"
	VariantGlobal    = "global"
)

// Water builds the flood water result of a variant without evaluating it.
func (s *FloodService) Water(ctx context.Context, variant string, req FloodRequest) (otsu.Result, error) {
	switch variant {
	case VariantBootstrap:
		return s.bootstrap(ctx, req)
	case VariantGlobal:
		return s.global(ctx, req)
	}
	return otsu.Result{}, fmt.Errorf("flood variant %q: %w, options are %s or %s",
		variant, algorithms.ErrNotImplemented, VariantBootstrap, VariantGlobal)
}

// Map builds, evaluates and publishes the water map of a variant.
func (s *FloodService) Map(ctx context.Context, variant string, req FloodRequest) (FloodResult, error) {
	result, err := s.Water(ctx, variant, req)
	if err != nil {
		return FloodResult{}, err
	}
	return s.publish(ctx, result)
}

// Bootstrap thresholds with histograms drawn from the reference polygons.
func (s *FloodService) Bootstrap(ctx context.Context, req FloodRequest) (FloodResult, error) {
	return s.Map(ctx, VariantBootstrap, req)
}

// Global thresholds with a histogram sampled around the initial split.
func (s *FloodService) Global(ctx context.Context, req FloodRequest) (FloodResult, error) {
	return s.Map(ctx, VariantGlobal, req)
}

func (s *FloodService) bootstrap(ctx context.Context, req FloodRequest) (otsu.Result, error) {
	processor, scenes, land, err := s.prepare(ctx, req)
	if err != nil {
		return otsu.Result{}, err
	}
	polygons, err := s.catalog.Features(ctx, catalog.S1Polygons)
	if err != nil {
		return otsu.Result{}, fmt.Errorf("flood map: %w", err)
	}
	return processor.Bootstrap(otsu.BootstrapRequest{
		Collection: scenes,
		Date:       req.Date,
		Polygons:   polygons,
		Land:       land,
	}, nil)
}

func (s *FloodService) global(ctx context.Context, req FloodRequest) (otsu.Result, error) {
	processor, scenes, land, err := s.prepare(ctx, req)
	if err != nil {
		return otsu.Result{}, err
	}
	return processor.Global(otsu.GlobalRequest{
		Collection: scenes,
		Date:       req.Date,
		Region:     features.NewFeatureCollection("aoi", features.NewBox("aoi", req.Region)),
		Land:       land,
	})
}

func (s *FloodService) publish(ctx context.Context, result otsu.Result) (FloodResult, error) {
	threshold, err := s.publisher.Evaluator().Number(ctx, result.Threshold)
	if err != nil {
		return FloodResult{}, fmt.Errorf("flood threshold: %w", err)
	}
	url, err := s.publisher.Publish(ctx, result.Water.SelfMask(), floodVis)
	if err != nil {
		return FloodResult{}, err
	}
	return FloodResult{URL: url, Threshold: threshold, Fallback: result.Fallback}, nil
}
