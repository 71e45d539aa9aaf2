package expr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/maypok86/otter/v2"

	"hydrafloods/internal/logger"
	"hydrafloods/internal/raster"
)

// EvalError reports the node at which evaluation failed.
type EvalError struct {
	Node string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Node, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Evaluator materializes graph nodes. Results are cached by node id, so a
// node shared by several consumers is computed once while it stays cached.
// Cached rasters are shared and must not be modified by callers.
type Evaluator struct {
	images    *otter.Cache[uint64, *raster.Image]
	numbers   *otter.Cache[uint64, float64]
	logger    logger.Logger
	evaluated atomic.Int64
}

func NewEvaluator(maxEntries int, log logger.Logger) (*Evaluator, error) {
	images, err := otter.New(&otter.Options[uint64, *raster.Image]{
		MaximumSize: maxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	numbers, err := otter.New(&otter.Options[uint64, float64]{
		MaximumSize: maxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create number cache: %w", err)
	}
	return &Evaluator{
		images:  images,
		numbers: numbers,
		logger:  log,
	}, nil
}

func (e *Evaluator) Image(ctx context.Context, im Image) (*raster.Image, error) {
	if im.n == nil {
		return nil, ErrNilExpression
	}
	if r, ok := e.images.GetIfPresent(im.n.id); ok {
		return r, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r, err := im.n.eval(ctx, e)
	if err != nil {
		return nil, wrapEval(im.String(), err)
	}
	if err := r.Validate(); err != nil {
		return nil, wrapEval(im.String(), err)
	}

	e.images.Set(im.n.id, r)
	e.evaluated.Add(1)
	e.logger.Debug("Evaluator", "image evaluated", map[string]interface{}{
		"node":   im.String(),
		"bands":  r.BandNames(),
		"width":  r.Width,
		"height": r.Height,
	})
	return r, nil
}

func (e *Evaluator) Number(ctx context.Context, n Number) (float64, error) {
	if n.n == nil {
		return 0, ErrNilExpression
	}
	if v, ok := e.numbers.GetIfPresent(n.n.id); ok {
		return v, nil
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	v, err := n.n.eval(ctx, e)
	if err != nil {
		return 0, wrapEval(fmt.Sprintf("%s#%d", n.n.label, n.n.id), err)
	}

	e.numbers.Set(n.n.id, v)
	e.evaluated.Add(1)
	e.logger.Debug("Evaluator", "number evaluated", map[string]interface{}{
		"node":  n.Label(),
		"value": v,
	})
	return v, nil
}

// Evaluations counts the nodes computed so far, cache hits excluded.
func (e *Evaluator) Evaluations() int64 {
	return e.evaluated.Load()
}

func wrapEval(node string, err error) error {
	var evalErr *EvalError
	if errors.As(err, &evalErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &EvalError{Node: node, Err: err}
}
