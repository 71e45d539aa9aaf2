// Package expr describes raster computations as an immutable graph. Building
// a graph does no pixel work; an Evaluator materializes nodes on demand and
// memoizes the results by node identity.
package expr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/raster"
)

var (
	ErrEmptyCollection = errors.New("collection is empty")
	ErrNilExpression   = errors.New("expression is not initialized")
)

var nextNodeID uint64

func newID() uint64 {
	return atomic.AddUint64(&nextNodeID, 1)
}

// Meta is what is known about an image without evaluating it.
type Meta struct {
	Time      time.Time
	Footprint *geo.Bound
	Props     map[string]string
}

func (m Meta) with(t time.Time, footprint *geo.Bound) Meta {
	return Meta{Time: t, Footprint: footprint, Props: m.Props}
}

// Region is anything that can be burned onto a raster grid.
type Region interface {
	Bound() *geo.Bound
	Rasterize(gt raster.GeoTransform, width, height int) []bool
}

type imageNode struct {
	id    uint64
	label string
	eval  func(ctx context.Context, e *Evaluator) (*raster.Image, error)
}

type Image struct {
	n    *imageNode
	meta Meta
}

func newImage(label string, meta Meta, eval func(ctx context.Context, e *Evaluator) (*raster.Image, error)) Image {
	return Image{
		n:    &imageNode{id: newID(), label: label, eval: eval},
		meta: meta,
	}
}

// FromRaster wraps an in-memory raster as a leaf.
func FromRaster(label string, r *raster.Image) Image {
	meta := Meta{Time: r.Time, Footprint: r.Bounds()}
	return newImage(label, meta, func(context.Context, *Evaluator) (*raster.Image, error) {
		return r, nil
	})
}

// Load defers reading a raster until the node is evaluated.
func Load(label string, meta Meta, load func(ctx context.Context) (*raster.Image, error)) Image {
	return newImage(label, meta, func(ctx context.Context, _ *Evaluator) (*raster.Image, error) {
		return load(ctx)
	})
}

func (im Image) ID() uint64 {
	if im.n == nil {
		return 0
	}
	return im.n.id
}

func (im Image) Label() string {
	if im.n == nil {
		return "<nil>"
	}
	return im.n.label
}

func (im Image) Meta() Meta {
	return im.meta
}

func (im Image) Valid() bool {
	return im.n != nil
}

func (im Image) String() string {
	return fmt.Sprintf("%s#%d", im.Label(), im.ID())
}

// Transform derives a new image from im.
func (im Image) Transform(label string, fn func(ctx context.Context, r *raster.Image) (*raster.Image, error)) Image {
	return newImage(label, im.meta, func(ctx context.Context, e *Evaluator) (*raster.Image, error) {
		r, err := e.Image(ctx, im)
		if err != nil {
			return nil, err
		}
		return fn(ctx, r)
	})
}

func (im Image) Map(label string, fn func(r *raster.Image) (*raster.Image, error)) Image {
	return im.Transform(label, func(_ context.Context, r *raster.Image) (*raster.Image, error) {
		return fn(r)
	})
}

// Combine derives an image from two inputs. The result keeps the metadata of a.
func Combine(label string, a, b Image, fn func(x, y *raster.Image) (*raster.Image, error)) Image {
	return newImage(label, a.meta, func(ctx context.Context, e *Evaluator) (*raster.Image, error) {
		x, err := e.Image(ctx, a)
		if err != nil {
			return nil, err
		}
		y, err := e.Image(ctx, b)
		if err != nil {
			return nil, err
		}
		return fn(x, y)
	})
}

// CombineN derives an image from any number of inputs.
func CombineN(label string, meta Meta, inputs []Image, fn func(ctx context.Context, rs []*raster.Image) (*raster.Image, error)) Image {
	deps := append([]Image(nil), inputs...)
	return newImage(label, meta, func(ctx context.Context, e *Evaluator) (*raster.Image, error) {
		rs := make([]*raster.Image, len(deps))
		for i, d := range deps {
			r, err := e.Image(ctx, d)
			if err != nil {
				return nil, err
			}
			rs[i] = r
		}
		return fn(ctx, rs)
	})
}

// WithNumber derives an image from im and a scalar.
func (im Image) WithNumber(label string, n Number, fn func(r *raster.Image, v float64) (*raster.Image, error)) Image {
	return newImage(label, im.meta, func(ctx context.Context, e *Evaluator) (*raster.Image, error) {
		v, err := e.Number(ctx, n)
		if err != nil {
			return nil, err
		}
		r, err := e.Image(ctx, im)
		if err != nil {
			return nil, err
		}
		return fn(r, v)
	})
}

func (im Image) WithMeta(meta Meta) Image {
	return Image{n: im.n, meta: meta}
}

func (im Image) Select(names ...string) Image {
	return im.Map("select", func(r *raster.Image) (*raster.Image, error) {
		return r.Select(names...)
	})
}

func (im Image) Rename(names ...string) Image {
	return im.Map("rename", func(r *raster.Image) (*raster.Image, error) {
		return r.Rename(names...)
	})
}

// Apply maps fn over every valid pixel.
func (im Image) Apply(label string, fn func(float64) float64) Image {
	return im.Map(label, func(r *raster.Image) (*raster.Image, error) {
		return raster.Apply(r, fn), nil
	})
}

func (im Image) Gt(v float64) Image {
	return im.Apply("gt", func(x float64) float64 { return boolValue(x > v) })
}

func (im Image) Lt(v float64) Image {
	return im.Apply("lt", func(x float64) float64 { return boolValue(x < v) })
}

func (im Image) Gte(v float64) Image {
	return im.Apply("gte", func(x float64) float64 { return boolValue(x >= v) })
}

func (im Image) Eq(v float64) Image {
	return im.Apply("eq", func(x float64) float64 { return boolValue(x == v) })
}

func (im Image) GtNumber(n Number) Image {
	return im.WithNumber("gt", n, func(r *raster.Image, v float64) (*raster.Image, error) {
		return raster.Apply(r, func(x float64) float64 { return boolValue(x > v) }), nil
	})
}

func (im Image) LtNumber(n Number) Image {
	return im.WithNumber("lt", n, func(r *raster.Image, v float64) (*raster.Image, error) {
		return raster.Apply(r, func(x float64) float64 { return boolValue(x < v) }), nil
	})
}

func (im Image) UpdateMask(mask Image) Image {
	return Combine("update_mask", im, mask, raster.UpdateMask)
}

func (im Image) SelfMask() Image {
	return im.Map("self_mask", func(r *raster.Image) (*raster.Image, error) {
		return raster.SelfMask(r), nil
	})
}

func (im Image) Unmask(value float64) Image {
	return im.Map("unmask", func(r *raster.Image) (*raster.Image, error) {
		return raster.Unmask(r, value), nil
	})
}

func (im Image) AddBands(other Image) Image {
	return Combine("add_bands", im, other, func(x, y *raster.Image) (*raster.Image, error) {
		return x.AddBands(y)
	})
}

// Clip masks everything outside region.
func (im Image) Clip(region Region) Image {
	clipped := im.Map("clip", func(r *raster.Image) (*raster.Image, error) {
		return raster.Clip(r, region.Rasterize(r.Transform, r.Width, r.Height))
	})
	footprint := region.Bound()
	if im.meta.Footprint != nil && footprint != nil && im.meta.Footprint.Intersects(footprint) {
		footprint = intersect(im.meta.Footprint, footprint)
	}
	return clipped.WithMeta(im.meta.with(im.meta.Time, footprint))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func intersect(a, b *geo.Bound) *geo.Bound {
	return geo.NewBound(
		max(a.Left(), b.Left()),
		min(a.Right(), b.Right()),
		max(a.Bottom(), b.Bottom()),
		min(a.Top(), b.Top()),
	)
}
