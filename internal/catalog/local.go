package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
)

const ManifestName = "manifest.yaml"

// Manifest lists the datasets stored under a data directory. Paths are
// relative to the directory holding the manifest.
type Manifest struct {
	Collections map[string][]ImageEntry `yaml:"collections"`
	Images      map[string]ImageEntry   `yaml:"images"`
	Features    map[string]string       `yaml:"features"`
}

type ImageEntry struct {
	Time      time.Time   `yaml:"time"`
	Width     int         `yaml:"width"`
	Height    int         `yaml:"height"`
	Transform []float64   `yaml:"transform"`
	Bands     []BandEntry `yaml:"bands"`
}

type BandEntry struct {
	Name   string   `yaml:"name"`
	Path   string   `yaml:"path"`
	Scale  float64  `yaml:"scale"`
	Offset float64  `yaml:"offset"`
	NoData *float64 `yaml:"nodata"`
}

func (b BandEntry) encoding() raster.Encoding {
	enc := raster.Encoding{Scale: b.Scale, Offset: b.Offset, NoData: opt.None[float64]()}
	if b.NoData != nil {
		enc.NoData = opt.Some(*b.NoData)
	}
	return enc
}

func (e ImageEntry) validate() error {
	if e.Width <= 0 || e.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", e.Width, e.Height)
	}
	if len(e.Transform) != 6 {
		return fmt.Errorf("transform needs 6 coefficients, got %d", len(e.Transform))
	}
	if e.Transform[1] == 0 || e.Transform[5] == 0 {
		return fmt.Errorf("degenerate transform %v", e.Transform)
	}
	if len(e.Bands) == 0 {
		return fmt.Errorf("no bands")
	}
	return nil
}

// Local reads datasets described by a manifest file. Rasters are only read
// from disk when a graph node referencing them is evaluated.
type Local struct {
	root     string
	manifest Manifest
	logger   logger.Logger

	features map[string]*features.FeatureCollection
	mu       sync.Mutex
}

func OpenLocal(dir string, log logger.Logger) (*Local, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse catalog manifest %s: %w", path, err)
	}
	for name, entries := range manifest.Collections {
		for i, e := range entries {
			if err := e.validate(); err != nil {
				return nil, fmt.Errorf("collection %s image %d: %w", name, i, err)
			}
		}
	}
	for name, e := range manifest.Images {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("image %s: %w", name, err)
		}
	}

	log.Info("Catalog", "manifest loaded", map[string]interface{}{
		"dir":         dir,
		"collections": len(manifest.Collections),
		"images":      len(manifest.Images),
		"features":    len(manifest.Features),
	})

	return &Local{
		root:     dir,
		manifest: manifest,
		logger:   log,
		features: make(map[string]*features.FeatureCollection),
	}, nil
}

func (l *Local) Collection(_ context.Context, name string) (expr.Collection, error) {
	entries, ok := l.manifest.Collections[name]
	if !ok {
		return expr.Collection{}, fmt.Errorf("collection %s: %w", name, ErrNotFound)
	}
	images := make([]expr.Image, len(entries))
	for i, e := range entries {
		images[i] = l.lazyImage(fmt.Sprintf("%s[%d]", name, i), e)
	}
	return expr.NewCollection(name, images...), nil
}

func (l *Local) Image(_ context.Context, name string) (expr.Image, error) {
	e, ok := l.manifest.Images[name]
	if !ok {
		return expr.Image{}, fmt.Errorf("image %s: %w", name, ErrNotFound)
	}
	return l.lazyImage(name, e), nil
}

func (l *Local) Features(_ context.Context, name string) (*features.FeatureCollection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fc, ok := l.features[name]; ok {
		return fc, nil
	}
	rel, ok := l.manifest.Features[name]
	if !ok {
		return nil, fmt.Errorf("features %s: %w", name, ErrNotFound)
	}
	fc, err := features.ReadFile(name, filepath.Join(l.root, rel))
	if err != nil {
		return nil, err
	}
	l.features[name] = fc
	return fc, nil
}

func (l *Local) lazyImage(label string, e ImageEntry) expr.Image {
	var gt raster.GeoTransform
	copy(gt[:], e.Transform)
	footprint := raster.New(e.Width, e.Height, gt).Bounds()
	meta := expr.Meta{Time: e.Time, Footprint: footprint}

	return expr.Load(label, meta, func(ctx context.Context) (*raster.Image, error) {
		bands := make([]*raster.Band, 0, len(e.Bands))
		for _, be := range e.Bands {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			b, err := l.readBand(be, e.Width, e.Height)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			bands = append(bands, b)
		}
		img := raster.New(e.Width, e.Height, gt, bands...)
		img.Time = e.Time

		l.logger.Debug("Catalog", "image read", map[string]interface{}{
			"image": label,
			"bands": len(bands),
		})
		return img, nil
	})
}

func (l *Local) readBand(be BandEntry, width, height int) (*raster.Band, error) {
	f, err := os.Open(filepath.Join(l.root, be.Path))
	if err != nil {
		return nil, fmt.Errorf("open band %s: %w", be.Name, err)
	}
	defer f.Close()

	b, w, h, err := raster.ReadBand(f, be.Name, be.encoding())
	if err != nil {
		return nil, err
	}
	if w != width || h != height {
		return nil, fmt.Errorf("band %s is %dx%d, manifest says %dx%d: %w", be.Name, w, h, width, height, raster.ErrGridMismatch)
	}
	return b, nil
}
