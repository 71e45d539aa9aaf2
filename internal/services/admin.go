package services

import (
	"context"
	"fmt"
	"math"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/raster"
	"hydrafloods/internal/tiles"
)

const (
	adminLineWidth = 2
	// adminRasterSize is the pixel count along the longer side of the
	// region.
	adminRasterSize = 2048
)

type AdminService struct {
	catalog   catalog.Catalog
	publisher *Publisher
}

func NewAdminService(cat catalog.Catalog, publisher *Publisher) *AdminService {
	return &AdminService{catalog: cat, publisher: publisher}
}

// GetAdminMap paints the outlines of the administrative units inside region.
func (s *AdminService) GetAdminMap(ctx context.Context, region *geo.Bound) (string, error) {
	if region == nil || region.Width() <= 0 || region.Height() <= 0 {
		return "", fmt.Errorf("admin map: region must have a positive area")
	}
	admin, err := s.catalog.Features(ctx, catalog.AdminBoundaries)
	if err != nil {
		return "", fmt.Errorf("admin map: %w", err)
	}
	units := admin.ContainedBy(region)

	pixel := math.Max(region.Width(), region.Height()) / adminRasterSize
	width := int(math.Ceil(region.Width() / pixel))
	height := int(math.Ceil(region.Height() / pixel))
	gt := raster.NewGeoTransform(region.Left(), region.Top(), pixel, pixel)

	outline := expr.Load("admin_outline", expr.Meta{Footprint: region}, func(context.Context) (*raster.Image, error) {
		return units.Outline(gt, width, height, adminLineWidth), nil
	})
	return s.publisher.Publish(ctx, outline, tiles.VisParams{Min: 0, Max: 1, Palette: []string{"#000000"}})
}
