package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	geo "github.com/paulmach/go.geo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydrafloods/internal/config"
	"hydrafloods/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "hydrafloods",
	Short: "Surface water and flood mapping from satellite imagery",
	Long: `hydrafloods maps surface water from a local catalog of Landsat,
Sentinel-1, water history and precipitation rasters.

Settings come from a YAML file (--config), overridden by HYDRAFLOODS_*
environment variables, overridden by flags.`,
	SilenceUsage: true,
}

// bindings maps persistent flags onto config keys.
var bindings = map[string]string{
	"data-dir":  "data_dir",
	"log-level": "log_level",
	"seed":      "seed",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("data-dir", "", "catalog directory holding manifest.yaml")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.Uint64("seed", 0, "seed for sampling and export descriptions")

	must(viper.BindPFlag("config", flags.Lookup("config")))
	for flag, key := range bindings {
		must(viper.BindPFlag(key, flags.Lookup(flag)))
	}

	viper.SetEnvPrefix("hydrafloods")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// loadConfig reads the config file and applies environment and flag
// overrides. Only keys that were set override the file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	if viper.IsSet("data_dir") && viper.GetString("data_dir") != "" {
		cfg.DataDir = viper.GetString("data_dir")
	}
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		cfg.LogLevel = viper.GetString("log_level")
	}
	if viper.IsSet("seed") && viper.GetUint64("seed") != 0 {
		cfg.Seed = viper.GetUint64("seed")
	}
	if v := viper.GetString("server.addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("server.base_url"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := viper.GetString("export.asset_dir"); v != "" {
		cfg.Export.AssetDir = v
	}
	if v := viper.GetInt("export.workers"); v > 0 {
		cfg.Export.Workers = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.NewConsoleLogger(level), nil
}

// parseRegion reads "west,south,east,north".
func parseRegion(raw string) (*geo.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("region must be west,south,east,north, got %q", raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("region value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return nil, fmt.Errorf("region %q is empty", raw)
	}
	return geo.NewBound(v[0], v[2], v[1], v[3]), nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}
