package main

import (
	"context"
	"fmt"

	geo "github.com/paulmach/go.geo"
	"github.com/schollz/progressbar/v3"

	"hydrafloods/internal/export"
	"hydrafloods/internal/expr"
)

// exportWithProgress submits an export and renders its band progress until
// it finishes.
func exportWithProgress(ctx context.Context, exports *export.Manager, img expr.Image, region *geo.Bound, asset string, opts export.Options) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("exporting "+asset),
		progressbar.OptionShowCount(),
	)
	exports.OnProgress(func(s export.Status) {
		if s.Bands > 0 {
			bar.ChangeMax(s.Bands)
		}
		_ = bar.Set(s.BandsWritten)
	})

	id, err := exports.ExportImage(ctx, img, region, asset, opts)
	if err != nil {
		return err
	}
	status, err := exports.Wait(ctx, id)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("export %s: %w", status.Description, err)
	}
	fmt.Printf("\nexported %s (%s) with %d bands\n", status.AssetID, status.Description, status.BandsWritten)
	return nil
}
