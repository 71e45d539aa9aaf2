// Package export writes evaluated images to disk as georeferenced assets on a
// bounded pool of workers.
package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/config"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/raster"
)

const (
	CRSGeographic     = "EPSG:4326"
	descriptionLength = 8
)

var (
	ErrUnsupportedCRS = errors.New("unsupported crs")
	ErrTooManyPixels  = errors.New("export exceeds max pixels")
	ErrUnknownTask    = errors.New("unknown export task")
	ErrShutdown       = errors.New("export manager is shut down")
)

// Options zero values fall back to the manager defaults.
type Options struct {
	Description string
	Scale       float64
	CRS         string
	MaxPixels   float64
}

type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

type Status struct {
	ID           string
	Description  string
	AssetID      string
	State        State
	Bands        int
	BandsWritten int
	Err          error
}

type task struct {
	status Status
	image  expr.Image
	grid   grid
	opts   Options
	done   chan struct{}
}

type grid struct {
	transform raster.GeoTransform
	width     int
	height    int
}

type Manager struct {
	evaluator  *expr.Evaluator
	defaults   config.ExportConfig
	logger     logger.Logger
	workerPool chan struct{}
	tasks      map[string]*task
	finished   *otter.Cache[string, Status]
	onProgress func(Status)
	rng        *rand.Rand
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

func NewManager(cfg config.ExportConfig, evaluator *expr.Evaluator, seed uint64, log logger.Logger) (*Manager, error) {
	return newManager(cfg, evaluator, seed, log, nil)
}

func newManager(cfg config.ExportConfig, evaluator *expr.Evaluator, seed uint64, log logger.Logger, clock otter.Clock) (*Manager, error) {
	if cfg.MaxTasks < 1 || cfg.TaskTTL <= 0 {
		return nil, fmt.Errorf("export manager needs a positive task limit and ttl, got %d and %s", cfg.MaxTasks, cfg.TaskTTL)
	}
	finished, err := otter.New(&otter.Options[string, Status]{
		MaximumSize:      cfg.MaxTasks,
		ExpiryCalculator: otter.ExpiryWriting[string, Status](cfg.TaskTTL),
		Clock:            clock,
	})
	if err != nil {
		return nil, fmt.Errorf("create task cache: %w", err)
	}

	workers := make(chan struct{}, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		workers <- struct{}{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		evaluator:  evaluator,
		defaults:   cfg,
		logger:     log,
		workerPool: workers,
		tasks:      make(map[string]*task),
		finished:   finished,
		rng:        rand.New(rand.NewPCG(seed, seed+1)),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// OnProgress registers a callback invoked after every state change and every
// band written. It runs on worker goroutines.
func (m *Manager) OnProgress(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = fn
}

// ExportImage validates the request and queues it. The returned id is used
// with Status and Wait.
func (m *Manager) ExportImage(ctx context.Context, img expr.Image, region *geo.Bound, assetID string, opts Options) (string, error) {
	opts = m.withDefaults(opts)
	if !strings.EqualFold(opts.CRS, CRSGeographic) {
		return "", fmt.Errorf("%w: %s, only %s is supported", ErrUnsupportedCRS, opts.CRS, CRSGeographic)
	}
	if region == nil || region.Width() <= 0 || region.Height() <= 0 {
		return "", fmt.Errorf("export region must have a positive area")
	}
	if assetID == "" {
		return "", fmt.Errorf("export asset id is required")
	}
	g := gridFor(region, opts.Scale)
	if pixels := float64(g.width) * float64(g.height); pixels > opts.MaxPixels {
		return "", fmt.Errorf("%w: %dx%d pixels at %gm, max %g", ErrTooManyPixels, g.width, g.height, opts.Scale, opts.MaxPixels)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrShutdown
	}
	t := &task{
		status: Status{
			ID:          uuid.NewString(),
			Description: opts.Description,
			AssetID:     assetID,
			State:       StatePending,
		},
		image: img,
		grid:  g,
		opts:  opts,
		done:  make(chan struct{}),
	}
	m.tasks[t.status.ID] = t
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("ExportManager", "export queued", map[string]interface{}{
		"task":        t.status.ID,
		"description": opts.Description,
		"asset":       assetID,
		"width":       g.width,
		"height":      g.height,
	})

	go m.run(t)
	return t.status.ID, nil
}

func (m *Manager) withDefaults(opts Options) Options {
	if opts.Description == "" {
		opts.Description = m.randomDescription()
	}
	if opts.Scale <= 0 {
		opts.Scale = m.defaults.Scale
	}
	if opts.CRS == "" {
		opts.CRS = CRSGeographic
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = m.defaults.MaxPixels
	}
	return opts
}

func (m *Manager) randomDescription() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := make([]byte, descriptionLength)
	for i := range b {
		b[i] = byte('a' + m.rng.IntN(26))
	}
	return string(b)
}

// gridFor covers region at scale meters per pixel, with degrees measured at
// the equator.
func gridFor(region *geo.Bound, scale float64) grid {
	pixel := scale / raster.MetersPerDegree
	return grid{
		transform: raster.NewGeoTransform(region.Left(), region.Top(), pixel, pixel),
		width:     int(math.Ceil(region.Width()/pixel - 1e-9)),
		height:    int(math.Ceil(region.Height()/pixel - 1e-9)),
	}
}

func (m *Manager) run(t *task) {
	defer m.wg.Done()
	defer close(t.done)

	select {
	case <-m.workerPool:
		defer func() { m.workerPool <- struct{}{} }()
	case <-m.ctx.Done():
		m.finish(t, m.ctx.Err())
		return
	}

	m.update(t, func(s *Status) { s.State = StateRunning })
	start := time.Now()

	err := m.process(m.ctx, t)
	m.finish(t, err)
	if err == nil {
		m.logger.Info("ExportManager", "export completed", map[string]interface{}{
			"task":     t.status.ID,
			"asset":    t.status.AssetID,
			"duration": time.Since(start),
		})
	}
}

func (m *Manager) finish(t *task, err error) {
	if err != nil {
		m.logger.Error("ExportManager", err, map[string]interface{}{"task": t.status.ID})
	}
	m.update(t, func(s *Status) {
		if err != nil {
			s.State = StateFailed
			s.Err = err
			return
		}
		s.State = StateCompleted
	})

	// finished tasks leave the active set and expire from the task cache
	m.mu.Lock()
	delete(m.tasks, t.status.ID)
	m.finished.Set(t.status.ID, t.status)
	m.mu.Unlock()
}

func (m *Manager) update(t *task, fn func(*Status)) {
	m.mu.Lock()
	fn(&t.status)
	status := t.status
	callback := m.onProgress
	m.mu.Unlock()

	if callback != nil {
		callback(status)
	}
}

func (m *Manager) process(ctx context.Context, t *task) error {
	r, err := m.evaluator.Image(ctx, t.image)
	if err != nil {
		return fmt.Errorf("evaluate export %s: %w", t.status.Description, err)
	}
	out := raster.Resample(r, t.grid.transform, t.grid.width, t.grid.height)
	m.update(t, func(s *Status) { s.Bands = len(out.Bands) })

	w := newAssetWriter(m.defaults.AssetDir, t.status.AssetID)
	if err := w.prepare(); err != nil {
		return err
	}
	for _, b := range out.Bands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.writeBand(b, out.Width, out.Height, out.Transform); err != nil {
			return err
		}
		m.update(t, func(s *Status) { s.BandsWritten++ })
	}

	return w.writeMetadata(assetMetadata{
		ID:          t.status.ID,
		Description: t.status.Description,
		AssetID:     t.status.AssetID,
		CRS:         t.opts.CRS,
		Scale:       t.opts.Scale,
		Transform:   out.Transform,
		Width:       out.Width,
		Height:      out.Height,
		Time:        r.Time,
		Created:     time.Now().UTC(),
	})
}

// Status reports an active task, or a finished one until it expires.
func (m *Manager) Status(id string) (Status, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	var status Status
	if ok {
		status = t.status
	}
	m.mu.RUnlock()
	if ok {
		return status, nil
	}

	if status, ok := m.finished.GetIfPresent(id); ok {
		return status, nil
	}
	return Status{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
}

// Wait blocks until the task finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Status, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		status, err := m.Status(id)
		if err != nil {
			return Status{}, err
		}
		return status, status.Err
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	m.mu.RLock()
	status := t.status
	m.mu.RUnlock()
	return status, status.Err
}

// Shutdown cancels running and queued tasks and waits for the workers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("ExportManager", "export manager stopped", nil)
}
