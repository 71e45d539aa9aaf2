package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydrafloods/internal/app"
	"hydrafloods/internal/export"
	"hydrafloods/internal/services"
)

var floodCmd = &cobra.Command{
	Use:   "flood",
	Short: "Compute the Sentinel-1 water threshold of a day and optionally export the water map",
	Long: `Compute an edge-guided Otsu water threshold for the Sentinel-1 scenes of
one day over a region.

	--variant:  bootstrap draws histograms from reference polygons, global
	            samples around an initial water/land split
	--asset:    when set, the water map is exported under the asset directory`,
	RunE: runFlood,
}

func init() {
	rootCmd.AddCommand(floodCmd)

	flags := floodCmd.Flags()
	flags.StringP("variant", "v", services.VariantBootstrap, "bootstrap or global")
	flags.StringP("region", "r", "", "west,south,east,north")
	flags.StringP("date", "d", "", "acquisition day, YYYY-MM-DD")
	flags.StringP("band", "b", "VV", "backscatter band")
	flags.String("asset", "", "export the water map to this asset id")
	flags.Float64("scale", 0, "export scale in meters, default from config")
	flags.String("crs", export.CRSGeographic, "export CRS")
	flags.Int("workers", 0, "export workers, default from config")
	must(viper.BindPFlag("export.workers", flags.Lookup("workers")))
	must(floodCmd.MarkFlagRequired("region"))
	must(floodCmd.MarkFlagRequired("date"))
}

func runFlood(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	variant, _ := flags.GetString("variant")
	rawRegion, _ := flags.GetString("region")
	rawDate, _ := flags.GetString("date")
	band, _ := flags.GetString("band")
	asset, _ := flags.GetString("asset")
	scale, _ := flags.GetFloat64("scale")
	crs, _ := flags.GetString("crs")

	region, err := parseRegion(rawRegion)
	if err != nil {
		return err
	}
	date, err := parseDate(rawDate)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	req := services.FloodRequest{Region: region, Date: date, Band: band}

	if asset == "" {
		res, err := application.Floods().Map(ctx, variant, req)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	result, err := application.Floods().Water(ctx, variant, req)
	if err != nil {
		return err
	}
	return exportWithProgress(ctx, application.Exports(), result.Water.SelfMask(), region, asset, export.Options{
		Scale: scale,
		CRS:   crs,
	})
}
