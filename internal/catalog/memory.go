package catalog

import (
	"context"
	"fmt"
	"sync"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
	"hydrafloods/internal/raster"
)

// Memory is a catalog backed by rasters and features held in memory.
type Memory struct {
	collections map[string][]expr.Image
	images      map[string]expr.Image
	features    map[string]*features.FeatureCollection
	mu          sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]expr.Image),
		images:      make(map[string]expr.Image),
		features:    make(map[string]*features.FeatureCollection),
	}
}

// AddRasters appends rasters to a collection, creating it when missing.
func (m *Memory) AddRasters(name string, rasters ...*raster.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; !ok {
		m.collections[name] = []expr.Image{}
	}
	for _, r := range rasters {
		label := fmt.Sprintf("%s[%d]", name, len(m.collections[name]))
		m.collections[name] = append(m.collections[name], expr.FromRaster(label, r))
	}
}

func (m *Memory) AddImage(name string, r *raster.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[name] = expr.FromRaster(name, r)
}

func (m *Memory) AddFeatures(name string, fc *features.FeatureCollection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fc.Name = name
	m.features[name] = fc
}

func (m *Memory) Collection(_ context.Context, name string) (expr.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	images, ok := m.collections[name]
	if !ok {
		return expr.Collection{}, fmt.Errorf("collection %s: %w", name, ErrNotFound)
	}
	return expr.NewCollection(name, images...), nil
}

func (m *Memory) Image(_ context.Context, name string) (expr.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	im, ok := m.images[name]
	if !ok {
		return expr.Image{}, fmt.Errorf("image %s: %w", name, ErrNotFound)
	}
	return im, nil
}

func (m *Memory) Features(_ context.Context, name string) (*features.FeatureCollection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fc, ok := m.features[name]
	if !ok {
		return nil, fmt.Errorf("features %s: %w", name, ErrNotFound)
	}
	return fc, nil
}
