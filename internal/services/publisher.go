// Package services builds the map products served to clients: historical
// surface water, precipitation accumulation, administrative outlines and
// near real time flood maps.
package services

import (
	"context"
	"fmt"
	"time"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/tiles"
)

// Publisher evaluates a lazy image, colors it and registers the layer for
// tile serving.
type Publisher struct {
	evaluator *expr.Evaluator
	registry  *tiles.Registry
	logger    logger.Logger
}

func NewPublisher(evaluator *expr.Evaluator, registry *tiles.Registry, log logger.Logger) *Publisher {
	return &Publisher{
		evaluator: evaluator,
		registry:  registry,
		logger:    log,
	}
}

// Publish returns the tile URL template of the rendered image.
func (p *Publisher) Publish(ctx context.Context, im expr.Image, vis tiles.VisParams) (string, error) {
	start := time.Now()

	r, err := p.evaluator.Image(ctx, im)
	if err != nil {
		return "", fmt.Errorf("evaluate %s: %w", im.Label(), err)
	}
	layer, err := tiles.Visualize(r, vis)
	if err != nil {
		return "", fmt.Errorf("visualize %s: %w", im.Label(), err)
	}
	id := p.registry.Register(layer)

	p.logger.Info("Publisher", "layer registered", map[string]interface{}{
		"mapid":    id.ID,
		"image":    im.Label(),
		"width":    r.Width,
		"height":   r.Height,
		"duration": time.Since(start),
	})
	return p.registry.TileURL(id), nil
}

// Evaluator exposes the shared evaluator for scalar results.
func (p *Publisher) Evaluator() *expr.Evaluator {
	return p.evaluator
}
