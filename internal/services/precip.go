package services

import (
	"context"
	"fmt"
	"time"

	"hydrafloods/internal/algorithms"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/tiles"
)

const precipBand = "hourlyPrecipRateGC"

// precipRanges maps supported accumulation windows, in days, to their
// visualization range in millimeters.
var precipRanges = map[int][2]float64{
	1: {1, 100},
	3: {1, 250},
	7: {1, 500},
}

var precipPalette = []string{
	"#000080", "#0045ff", "#00fbb2", "#67d300", "#d8ff22",
	"#ffbe0c", "#ff0039", "#c95df5", "#fef8fe",
}

// PrecipService maps accumulated satellite precipitation ending yesterday.
type PrecipService struct {
	catalog   catalog.Catalog
	publisher *Publisher
	now       func() time.Time
}

// NewPrecipService uses now as the clock; nil means time.Now.
func NewPrecipService(cat catalog.Catalog, publisher *Publisher, now func() time.Time) *PrecipService {
	if now == nil {
		now = time.Now
	}
	return &PrecipService{
		catalog:   cat,
		publisher: publisher,
		now:       now,
	}
}

// Window returns the accumulation period [start, end) ending yesterday.
func (s *PrecipService) Window(days int) (start, end time.Time) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end = today.AddDate(0, 0, -1)
	return end.AddDate(0, 0, -days), end
}

func (s *PrecipService) GetPrecipMap(ctx context.Context, accumulation int) (string, error) {
	bounds, ok := precipRanges[accumulation]
	if !ok {
		return "", fmt.Errorf("%d day accumulation: %w, options are 1, 3 or 7", accumulation, algorithms.ErrNotImplemented)
	}

	coll, err := s.catalog.Collection(ctx, catalog.GSMaP)
	if err != nil {
		return "", fmt.Errorf("precipitation map: %w", err)
	}
	start, end := s.Window(accumulation)
	hours := coll.FilterDate(start, end).Map(func(im expr.Image) expr.Image {
		return im.Select(precipBand)
	})
	if hours.Size() == 0 {
		return "", fmt.Errorf("precipitation between %s and %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), expr.ErrEmptyCollection)
	}

	total := hours.Sum()
	total = total.UpdateMask(total.Gt(1))

	return s.publisher.Publish(ctx, total, tiles.VisParams{
		Min:     bounds[0],
		Max:     bounds[1],
		Palette: precipPalette,
	})
}
