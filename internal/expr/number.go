package expr

import (
	"context"
	"fmt"
	"math"

	"hydrafloods/internal/raster"
)

type numberNode struct {
	id    uint64
	label string
	eval  func(ctx context.Context, e *Evaluator) (float64, error)
}

// Number is a lazily evaluated scalar, such as a threshold reduced from an
// image.
type Number struct {
	n *numberNode
}

func newNumber(label string, eval func(ctx context.Context, e *Evaluator) (float64, error)) Number {
	return Number{n: &numberNode{id: newID(), label: label, eval: eval}}
}

func ConstNumber(v float64) Number {
	return newNumber(fmt.Sprintf("const(%g)", v), func(context.Context, *Evaluator) (float64, error) {
		return v, nil
	})
}

// NumberFrom reduces an image to a scalar.
func NumberFrom(label string, im Image, fn func(ctx context.Context, r *raster.Image) (float64, error)) Number {
	return newNumber(label, func(ctx context.Context, e *Evaluator) (float64, error) {
		r, err := e.Image(ctx, im)
		if err != nil {
			return 0, err
		}
		return fn(ctx, r)
	})
}

func (n Number) ID() uint64 {
	if n.n == nil {
		return 0
	}
	return n.n.id
}

func (n Number) Label() string {
	if n.n == nil {
		return "<nil>"
	}
	return n.n.label
}

func (n Number) Map(label string, fn func(float64) float64) Number {
	return newNumber(label, func(ctx context.Context, e *Evaluator) (float64, error) {
		v, err := e.Number(ctx, n)
		if err != nil {
			return 0, err
		}
		return fn(v), nil
	})
}

func (n Number) Min(v float64) Number {
	return n.Map("min", func(x float64) float64 { return math.Min(x, v) })
}
