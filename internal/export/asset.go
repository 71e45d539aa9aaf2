package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
)

const (
	metadataFile = "asset.json"
	// noData is the stored value of masked pixels; valid values use the
	// range below it.
	noData   = math.MaxUint16
	maxValue = math.MaxUint16 - 1
)

type bandMetadata struct {
	Name   string  `json:"name"`
	File   string  `json:"file"`
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	NoData float64 `json:"nodata"`
}

type assetMetadata struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	AssetID     string              `json:"asset_id"`
	CRS         string              `json:"crs"`
	Scale       float64             `json:"scale"`
	Transform   raster.GeoTransform `json:"transform"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	Time        time.Time           `json:"time"`
	Created     time.Time           `json:"created"`
	Bands       []bandMetadata      `json:"bands"`
}

type assetWriter struct {
	dir   string
	bands []bandMetadata
}

func newAssetWriter(root, assetID string) *assetWriter {
	return &assetWriter{dir: filepath.Join(root, filepath.FromSlash(assetID))}
}

func (w *assetWriter) prepare() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	return nil
}

// encodingFor maps the valid range of b linearly onto [0, maxValue].
func encodingFor(b *raster.Band) raster.Encoding {
	enc := raster.Encoding{Scale: 1, NoData: opt.Some[float64](noData)}
	lo, hi, ok := b.MinMax()
	if !ok {
		return enc
	}
	enc.Offset = lo
	if hi > lo {
		enc.Scale = (hi - lo) / maxValue
	}
	return enc
}

func (w *assetWriter) writeBand(b *raster.Band, width, height int, gt raster.GeoTransform) error {
	name := "band_" + b.Name
	enc := encodingFor(b)

	if err := writeFile(filepath.Join(w.dir, name+".tif"), func(f *os.File) error {
		return raster.WriteBand(f, b, width, height, enc)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(w.dir, name+".tfw"), func(f *os.File) error {
		return gt.WriteWorldFile(f)
	}); err != nil {
		return err
	}

	w.bands = append(w.bands, bandMetadata{
		Name:   b.Name,
		File:   name + ".tif",
		Scale:  enc.Scale,
		Offset: enc.Offset,
		NoData: noData,
	})
	return nil
}

func (w *assetWriter) writeMetadata(meta assetMetadata) error {
	meta.Bands = w.bands
	return writeFile(filepath.Join(w.dir, metadataFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
