// Package catalog resolves dataset names to lazy collections, images and
// vector features.
package catalog

import (
	"context"
	"errors"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
)

var ErrNotFound = errors.New("dataset not found")

// Dataset names used by the map products.
const (
	Landsat4        = "LANDSAT/LT04/C01/T1_TOA"
	Landsat5        = "LANDSAT/LT05/C01/T1_TOA"
	Landsat7        = "LANDSAT/LE07/C01/T1_TOA"
	Landsat8        = "LANDSAT/LC08/C01/T1_TOA"
	JRCMonthly      = "JRC/GSW1_0/MonthlyHistory"
	GSMaP           = "JAXA/GPM_L3/GSMaP/v6/operational"
	HAND            = "users/arjenhaag/SERVIR-Mekong/HAND_MERIT"
	Sentinel1       = "COPERNICUS/S1_GRD"
	LandBoundaries  = "USDOS/LSIB/2013"
	AdminBoundaries = "USDOS/LSIB_SIMPLE/2017"
	S1Polygons      = "projects/servir-mekong/hydrafloods/S1_polygons"
)

type Catalog interface {
	Collection(ctx context.Context, name string) (expr.Collection, error)
	Image(ctx context.Context, name string) (expr.Image, error)
	Features(ctx context.Context, name string) (*features.FeatureCollection, error)
}
