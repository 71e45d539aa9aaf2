package algorithms

import (
	"context"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/opt"
)

// Algorithm builds a historical surface water image from catalog data.
type Algorithm interface {
	GetName() string
	Run(ctx context.Context, cat catalog.Catalog, req Request) (expr.Image, error)
}

type Request struct {
	Region *geo.Bound
	// Land clips the result when set.
	Land           opt.Optional[expr.Region]
	Start          time.Time
	End            time.Time
	Climatology    bool
	Month          opt.Optional[time.Month]
	Defringe       bool
	CloudThreshold opt.Optional[float64]
}
