// Package swt implements the surface water tool classification of optical
// percentile composites into permanent and temporary water.
package swt

import (
	"context"
	"fmt"

	"hydrafloods/internal/config"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/raster"
)

// Output classes.
const (
	Dry       = 0
	Temporary = 1
	Permanent = 2
)

type Params struct {
	PercentilePerm float64
	PercentileTemp float64
	WaterThreshold float64
	NDVIThreshold  float64
	HANDThreshold  float64
}

func ParamsFromConfig(c config.HistoricalConfig) Params {
	return Params{
		PercentilePerm: c.PercentilePerm,
		PercentileTemp: c.PercentileTemp,
		WaterThreshold: c.WaterThreshold,
		NDVIThreshold:  c.NDVIThreshold,
		HANDThreshold:  c.HANDThreshold,
	}
}

// Classify builds the water class image of a stack of optical images with
// the standard band names. hand is the height above nearest drainage; it is
// resampled onto the composite grid when needed.
func Classify(images expr.Collection, hand expr.Image, p Params) (expr.Image, error) {
	if images.Size() == 0 {
		return expr.Image{}, fmt.Errorf("swt of %s: %w", images.Name(), expr.ErrEmptyCollection)
	}
	perm := images.Percentile(p.PercentilePerm)
	temp := images.Percentile(p.PercentileTemp)

	return expr.CombineN("swt", perm.Meta(), []expr.Image{perm, temp, hand}, func(_ context.Context, rs []*raster.Image) (*raster.Image, error) {
		permR, tempR, handR := rs[0], rs[1], rs[2]
		if !handR.SameGrid(permR) {
			handR = raster.Resample(handR, permR.Transform, permR.Width, permR.Height)
		}
		handBand := handR.Bands[0]

		permOK, permWater, err := p.pass(permR, handBand)
		if err != nil {
			return nil, fmt.Errorf("permanent pass: %w", err)
		}
		tempOK, tempWater, err := p.pass(tempR, handBand)
		if err != nil {
			return nil, fmt.Errorf("temporary pass: %w", err)
		}

		out := raster.NewMaskedBand("water", permR.Len())
		for i := range out.Data {
			class, ok := merge(permOK[i], permWater[i], tempOK[i], tempWater[i])
			out.Data[i] = class
			out.Mask[i] = ok
		}
		return raster.New(permR.Width, permR.Height, permR.Transform, out), nil
	}), nil
}

// pass classifies one composite. ok is false where the pixel is excluded by
// the vegetation or terrain mask or lacks data; water marks MNDWI above the
// water threshold.
func (p Params) pass(r *raster.Image, hand *raster.Band) (ok, water []bool, err error) {
	mndwi, err := raster.NormalizedDifference(r, "green", "swir1")
	if err != nil {
		return nil, nil, err
	}
	ndvi, err := raster.NormalizedDifference(r, "nir", "red")
	if err != nil {
		return nil, nil, err
	}
	m, v := mndwi.Bands[0], ndvi.Bands[0]

	ok = make([]bool, r.Len())
	water = make([]bool, r.Len())
	for i := range ok {
		if !m.Mask[i] || !v.Mask[i] || !hand.Mask[i] {
			continue
		}
		vegetated := v.Data[i] > p.NDVIThreshold
		high := hand.Data[i] > p.HANDThreshold
		ok[i] = !vegetated && !high
		water[i] = m.Data[i] > p.WaterThreshold
	}
	return ok, water, nil
}

// merge gives permanent water priority. Elsewhere the temporary pass decides
// under its own mask; a pixel only the permanent pass can see is dry.
func merge(permOK, permWater, tempOK, tempWater bool) (float64, bool) {
	switch {
	case permOK && permWater:
		return Permanent, true
	case tempOK && tempWater:
		return Temporary, true
	case tempOK || permOK:
		return Dry, true
	}
	return 0, false
}
