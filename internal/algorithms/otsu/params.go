package otsu

import (
	"errors"
	"fmt"

	"hydrafloods/internal/config"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/processing/filters"
	"hydrafloods/internal/raster"
)

// Params configures the edge-guided threshold pipelines. Distances are in
// meters and converted to pixels at evaluation time.
type Params struct {
	// QualityBand selects a quality mosaic on that band instead of a plain
	// mosaic. The band is also the one thresholded.
	QualityBand opt.Optional[string]

	CannyThreshold  float64
	CannySigma      float64
	CannyLT         float64
	ConnectedPixels int
	EdgeLength      int
	SmoothEdges     float64
	ReductionScale  float64

	InitThreshold float64
	NumPoints     int
	SampleBuffer  float64
	Seed          uint64

	UpperThreshold float64
	NegBuffer      float64
	Smoothing      float64
}

func ParamsFromConfig(c config.OtsuConfig, seed uint64) Params {
	return Params{
		QualityBand:     opt.None[string](),
		CannyThreshold:  c.CannyThreshold,
		CannySigma:      c.CannySigma,
		CannyLT:         c.CannyLT,
		ConnectedPixels: c.ConnectedPixels,
		EdgeLength:      c.EdgeLength,
		SmoothEdges:     c.SmoothEdges,
		ReductionScale:  c.ReductionScale,
		InitThreshold:   c.InitThreshold,
		NumPoints:       c.NumPoints,
		SampleBuffer:    c.SampleBuffer,
		Seed:            seed,
		UpperThreshold:  c.UpperThreshold,
		NegBuffer:       c.NegBuffer,
		Smoothing:       c.Smoothing,
	}
}

func DefaultParams() Params {
	cfg := config.Default()
	return ParamsFromConfig(cfg.Otsu, cfg.Seed)
}

func (p Params) Validate() error {
	var errs []error

	if p.CannyThreshold <= 0 {
		errs = append(errs, fmt.Errorf("canny_threshold must be positive, got: %f", p.CannyThreshold))
	}
	if p.CannySigma < 0 || p.CannySigma > 10 {
		errs = append(errs, fmt.Errorf("canny_sigma must be between 0 and 10, got: %f", p.CannySigma))
	}
	if p.ConnectedPixels < 1 || p.ConnectedPixels > 1024 {
		errs = append(errs, fmt.Errorf("connected_pixels must be between 1 and 1024, got: %d", p.ConnectedPixels))
	}
	if p.EdgeLength < 1 || p.EdgeLength > p.ConnectedPixels {
		errs = append(errs, fmt.Errorf("edge_length must be between 1 and connected_pixels, got: %d", p.EdgeLength))
	}
	if p.SmoothEdges < 0 || p.Smoothing < 0 {
		errs = append(errs, fmt.Errorf("smoothing distances must not be negative, got: %f and %f", p.SmoothEdges, p.Smoothing))
	}
	if p.ReductionScale <= 0 {
		errs = append(errs, fmt.Errorf("reduction_scale must be positive, got: %f", p.ReductionScale))
	}
	if p.NumPoints < 1 {
		errs = append(errs, fmt.Errorf("num_points must be positive, got: %d", p.NumPoints))
	}
	if p.NegBuffer > 0 {
		errs = append(errs, fmt.Errorf("neg_buffer must not be positive, got: %f", p.NegBuffer))
	}
	if band, ok := p.QualityBand.Get(); ok && band == "" {
		errs = append(errs, errors.New("quality band must not be empty when set"))
	}

	return errors.Join(errs...)
}

// edgeSettings converts the edge parameters to pixel units for an image.
func (p Params) edgeSettings(r *raster.Image) filters.EdgeSettings {
	return filters.EdgeSettings{
		Threshold:       p.CannyThreshold,
		Sigma:           p.CannySigma,
		Below:           p.CannyLT,
		ConnectedPixels: p.ConnectedPixels,
		MinLength:       p.EdgeLength,
		DilateRadius:    r.MetersToPixels(p.SmoothEdges),
	}
}

// stride is the sampling step, in pixels, matching the reduction scale.
func (p Params) stride(r *raster.Image) int {
	return max(1, r.MetersToPixels(p.ReductionScale))
}
