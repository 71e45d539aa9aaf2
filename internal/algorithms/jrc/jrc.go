// Package jrc derives historical water from the monthly water history, where
// each pixel is 0 for no data, 1 for land and 2 for water.
package jrc

import (
	"context"
	"fmt"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
)

const (
	noData     = 0
	waterValue = 2
	// RecurrenceThreshold is the percentage of observations that must see
	// water for a pixel to count as historical water.
	RecurrenceThreshold = 75
)

// Filter restricts the history to [start, end) over region, optionally to a
// single calendar month.
func Filter(history expr.Collection, region *geo.Bound, start, end time.Time, month opt.Optional[time.Month]) expr.Collection {
	filtered := history.FilterBounds(region).FilterDate(start, end)
	if m, ok := month.Get(); ok {
		filtered = filtered.FilterMonth(m)
	}
	return filtered
}

// Recurrence builds the historical water image: band water is 1 where more
// than RecurrenceThreshold percent of the valid observations saw water and
// masked elsewhere, including pixels never observed.
func Recurrence(history expr.Collection) (expr.Image, error) {
	if history.Size() == 0 {
		return expr.Image{}, fmt.Errorf("jrc recurrence of %s: %w", history.Name(), expr.ErrEmptyCollection)
	}
	images := history.Images()
	meta := expr.Meta{Time: images[0].Meta().Time, Footprint: history.Geometry()}

	return expr.CombineN("jrc_recurrence", meta, images, func(ctx context.Context, rs []*raster.Image) (*raster.Image, error) {
		base := rs[0]
		observations := make([]float64, base.Len())
		water := make([]float64, base.Len())
		for k, r := range rs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !r.SameGrid(base) {
				return nil, fmt.Errorf("month %d: %w", k, raster.ErrGridMismatch)
			}
			b, err := r.Band("water")
			if err != nil {
				return nil, fmt.Errorf("month %d: %w", k, err)
			}
			for i, v := range b.Data {
				if !b.Mask[i] || v == noData {
					continue
				}
				observations[i]++
				if v == waterValue {
					water[i]++
				}
			}
		}

		out := raster.NewMaskedBand("water", base.Len())
		for i, obs := range observations {
			if obs == 0 {
				continue
			}
			if 100*water[i]/obs > RecurrenceThreshold {
				out.Data[i] = 1
				out.Mask[i] = true
			}
		}
		return raster.New(base.Width, base.Height, base.Transform, out), nil
	}), nil
}
