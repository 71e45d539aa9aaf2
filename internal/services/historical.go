package services

import (
	"context"
	"fmt"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/algorithms"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/imagery"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/tiles"
)

type HistoricalRequest struct {
	Region         *geo.Bound
	Start          time.Time
	End            time.Time
	Climatology    bool
	Month          opt.Optional[time.Month]
	Algorithm      string
	Defringe       bool
	CloudThreshold opt.Optional[float64]
}

var historicalVis = map[string]tiles.VisParams{
	"SWT": {Min: 0, Max: 2, Palette: []string{"#ffffff", "#9999ff", "#00008b"}},
	"JRC": {Min: 0, Max: 1, Palette: []string{"#ffffff", "#00008b"}},
}

// HistoricalService maps surface water over a time range with one of the
// registered historical algorithms.
type HistoricalService struct {
	catalog    catalog.Catalog
	algorithms *algorithms.Manager
	publisher  *Publisher
}

func NewHistoricalService(cat catalog.Catalog, manager *algorithms.Manager, publisher *Publisher) *HistoricalService {
	return &HistoricalService{
		catalog:    cat,
		algorithms: manager,
		publisher:  publisher,
	}
}

func (s *HistoricalService) GetHistoricalMap(ctx context.Context, req HistoricalRequest) (string, error) {
	if req.Climatology && !req.Month.IsSet() {
		return "", imagery.ErrMonthRequired
	}
	if req.Region == nil {
		return "", fmt.Errorf("historical map: region is required")
	}
	algorithm, err := s.algorithms.GetAlgorithm(req.Algorithm)
	if err != nil {
		return "", err
	}

	land, err := s.catalog.Features(ctx, catalog.LandBoundaries)
	if err != nil {
		return "", fmt.Errorf("historical map: %w", err)
	}

	water, err := algorithm.Run(ctx, s.catalog, algorithms.Request{
		Region:         req.Region,
		Land:           opt.Some[expr.Region](land.ContainedBy(req.Region)),
		Start:          req.Start,
		End:            req.End,
		Climatology:    req.Climatology,
		Month:          req.Month,
		Defringe:       req.Defringe,
		CloudThreshold: req.CloudThreshold,
	})
	if err != nil {
		return "", err
	}

	vis := historicalVis[algorithm.GetName()]
	if algorithm.GetName() == "SWT" {
		water = water.UpdateMask(water.Eq(2))
	}
	return s.publisher.Publish(ctx, water, vis)
}
