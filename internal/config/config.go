package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	Seed       uint64           `yaml:"seed"`
	Server     ServerConfig     `yaml:"server"`
	Export     ExportConfig     `yaml:"export"`
	Cache      CacheConfig      `yaml:"cache"`
	Otsu       OtsuConfig       `yaml:"otsu"`
	Historical HistoricalConfig `yaml:"historical"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"`

	// MaxLayers bounds the published map layers kept in memory. A layer
	// no tile is read from for LayerTTL is dropped.
	MaxLayers int           `yaml:"max_layers"`
	LayerTTL  time.Duration `yaml:"layer_ttl"`
}

type ExportConfig struct {
	AssetDir  string  `yaml:"asset_dir"`
	Workers   int     `yaml:"workers"`
	Scale     float64 `yaml:"scale"`
	MaxPixels float64 `yaml:"max_pixels"`

	// Finished task statuses are kept for TaskTTL, at most MaxTasks of them.
	MaxTasks int           `yaml:"max_tasks"`
	TaskTTL  time.Duration `yaml:"task_ttl"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// OtsuConfig carries the defaults for the edge-guided water pipelines.
type OtsuConfig struct {
	InitThreshold   float64 `yaml:"init_threshold"`
	UpperThreshold  float64 `yaml:"upper_threshold"`
	ReductionScale  float64 `yaml:"reduction_scale"`
	CannyThreshold  float64 `yaml:"canny_threshold"`
	CannySigma      float64 `yaml:"canny_sigma"`
	CannyLT         float64 `yaml:"canny_lt"`
	ConnectedPixels int     `yaml:"connected_pixels"`
	EdgeLength      int     `yaml:"edge_length"`
	SmoothEdges     float64 `yaml:"smooth_edges"`
	Smoothing       float64 `yaml:"smoothing"`
	NegBuffer       float64 `yaml:"neg_buffer"`
	NumPoints       int     `yaml:"num_points"`
	SampleBuffer    float64 `yaml:"sample_buffer"`
}

type HistoricalConfig struct {
	Algorithm      string  `yaml:"algorithm"`
	Climatology    bool    `yaml:"climatology"`
	PercentilePerm float64 `yaml:"pcnt_perm"`
	PercentileTemp float64 `yaml:"pcnt_temp"`
	WaterThreshold float64 `yaml:"water_thresh"`
	NDVIThreshold  float64 `yaml:"ndvi_thresh"`
	HANDThreshold  float64 `yaml:"hand_thresh"`
	CloudThreshold float64 `yaml:"cloud_thresh"`
}

func Default() *Config {
	return &Config{
		DataDir:  "data",
		LogLevel: "info",
		Seed:     7,
		Server: ServerConfig{
			Addr:      ":8080",
			BaseURL:   "http://localhost:8080",
			MaxLayers: 256,
			LayerTTL:  time.Hour,
		},
		Export: ExportConfig{
			AssetDir:  "assets",
			Workers:   2,
			Scale:     90,
			MaxPixels: 1e13,
			MaxTasks:  1024,
			TaskTTL:   24 * time.Hour,
		},
		Cache: CacheConfig{MaxEntries: 256},
		Otsu: OtsuConfig{
			InitThreshold:   -16,
			UpperThreshold:  -14,
			ReductionScale:  90,
			CannyThreshold:  7,
			CannySigma:      1,
			CannyLT:         7,
			ConnectedPixels: 200,
			EdgeLength:      50,
			SmoothEdges:     100,
			Smoothing:       100,
			NegBuffer:       -1500,
			NumPoints:       20,
			SampleBuffer:    2500,
		},
		Historical: HistoricalConfig{
			Algorithm:      "SWT",
			Climatology:    true,
			PercentilePerm: 40,
			PercentileTemp: 8,
			WaterThreshold: 0.35,
			NDVIThreshold:  0.5,
			HANDThreshold:  30,
			CloudThreshold: 10,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Export.Workers < 1 {
		errs = append(errs, fmt.Errorf("export.workers must be positive, got %d", c.Export.Workers))
	}
	if c.Export.Scale <= 0 {
		errs = append(errs, fmt.Errorf("export.scale must be positive, got %g", c.Export.Scale))
	}
	if c.Export.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("export.max_pixels must be positive, got %g", c.Export.MaxPixels))
	}
	if c.Export.MaxTasks < 1 || c.Export.TaskTTL <= 0 {
		errs = append(errs, fmt.Errorf("export.max_tasks and export.task_ttl must be positive, got %d and %s", c.Export.MaxTasks, c.Export.TaskTTL))
	}
	if c.Server.MaxLayers < 1 || c.Server.LayerTTL <= 0 {
		errs = append(errs, fmt.Errorf("server.max_layers and server.layer_ttl must be positive, got %d and %s", c.Server.MaxLayers, c.Server.LayerTTL))
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Otsu.ReductionScale <= 0 {
		errs = append(errs, fmt.Errorf("otsu.reduction_scale must be positive, got %g", c.Otsu.ReductionScale))
	}
	if c.Otsu.ConnectedPixels < 1 || c.Otsu.ConnectedPixels > 1024 {
		errs = append(errs, fmt.Errorf("otsu.connected_pixels must be in [1, 1024], got %d", c.Otsu.ConnectedPixels))
	}
	if c.Otsu.NegBuffer > 0 {
		errs = append(errs, fmt.Errorf("otsu.neg_buffer must not be positive, got %g", c.Otsu.NegBuffer))
	}
	if c.Otsu.NumPoints < 1 {
		errs = append(errs, fmt.Errorf("otsu.num_points must be positive, got %d", c.Otsu.NumPoints))
	}
	for name, p := range map[string]float64{
		"historical.pcnt_perm": c.Historical.PercentilePerm,
		"historical.pcnt_temp": c.Historical.PercentileTemp,
	} {
		if p <= 0 || p >= 100 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 100), got %g", name, p))
		}
	}

	return errors.Join(errs...)
}
