package algorithms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"hydrafloods/internal/algorithms/jrc"
	"hydrafloods/internal/algorithms/swt"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/config"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/imagery"
	"hydrafloods/internal/opt"
)

var ErrNotImplemented = errors.New("not implemented")

type Manager struct {
	algorithms map[string]Algorithm
	mu         sync.RWMutex
}

func NewManager(cfg config.HistoricalConfig) *Manager {
	manager := &Manager{
		algorithms: make(map[string]Algorithm),
	}

	manager.Register(&swtAlgorithm{params: swt.ParamsFromConfig(cfg)})
	manager.Register(&jrcAlgorithm{})

	return manager
}

// Register adds or replaces an algorithm under its name.
func (m *Manager) Register(algorithm Algorithm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.algorithms[algorithm.GetName()] = algorithm
}

func (m *Manager) GetAlgorithm(name string) (Algorithm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if algorithm, exists := m.algorithms[name]; exists {
		return algorithm, nil
	}

	options := make([]string, 0, len(m.algorithms))
	for n := range m.algorithms {
		options = append(options, fmt.Sprintf("%q", n))
	}
	sort.Strings(options)
	return nil, fmt.Errorf("algorithm %q: %w, options are %s", name, ErrNotImplemented, strings.Join(options, " or "))
}

func (m *Manager) GetAvailableAlgorithms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	algorithms := make([]string, 0, len(m.algorithms))
	for name := range m.algorithms {
		algorithms = append(algorithms, name)
	}
	sort.Strings(algorithms)

	return algorithms
}

func clipLand(im expr.Image, req Request) expr.Image {
	if land, ok := req.Land.Get(); ok {
		return im.Clip(land)
	}
	return im
}

type swtAlgorithm struct {
	params swt.Params
}

func (a *swtAlgorithm) GetName() string { return "SWT" }

func (a *swtAlgorithm) Run(ctx context.Context, cat catalog.Catalog, req Request) (expr.Image, error) {
	images, err := imagery.LandsatCollection(ctx, cat, req.Region, req.Start, req.End, imagery.LandsatOptions{
		Climatology:    req.Climatology,
		Month:          req.Month,
		Defringe:       req.Defringe,
		CloudThreshold: req.CloudThreshold,
	})
	if err != nil {
		return expr.Image{}, err
	}
	hand, err := cat.Image(ctx, catalog.HAND)
	if err != nil {
		return expr.Image{}, fmt.Errorf("swt: %w", err)
	}

	water, err := swt.Classify(images, hand, a.params)
	if err != nil {
		return expr.Image{}, err
	}
	return clipLand(water, req), nil
}

type jrcAlgorithm struct{}

func (a *jrcAlgorithm) GetName() string { return "JRC" }

func (a *jrcAlgorithm) Run(ctx context.Context, cat catalog.Catalog, req Request) (expr.Image, error) {
	if req.Climatology && !req.Month.IsSet() {
		return expr.Image{}, imagery.ErrMonthRequired
	}
	history, err := cat.Collection(ctx, catalog.JRCMonthly)
	if err != nil {
		return expr.Image{}, fmt.Errorf("jrc: %w", err)
	}

	month := req.Month
	if !req.Climatology {
		month = opt.None[time.Month]()
	}
	water, err := jrc.Recurrence(jrc.Filter(history, req.Region, req.Start, req.End, month))
	if err != nil {
		return expr.Image{}, err
	}
	return clipLand(water, req), nil
}
