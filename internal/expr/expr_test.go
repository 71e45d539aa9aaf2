package expr

import (
	"context"
	"errors"
	"testing"
	"time"

	geo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/logger"
	"hydrafloods/internal/raster"
)

var grid = raster.NewGeoTransform(10, 1, 0.01, 0.01)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(64, logger.NewNoOp())
	require.NoError(t, err)
	return e
}

func constant(v float64, when time.Time) *raster.Image {
	r := raster.Constant(4, 4, grid, "VV", v)
	r.Time = when
	return r
}

func TestGraphIsLazy(t *testing.T) {
	loads := 0
	src := Load("scene", Meta{}, func(context.Context) (*raster.Image, error) {
		loads++
		return constant(-10, time.Time{}), nil
	})

	water := src.Lt(-14).SelfMask()
	assert.Zero(t, loads)

	e := newEvaluator(t)
	r, err := e.Image(context.Background(), water)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
	assert.Zero(t, r.Bands[0].ValidCount())
}

func TestSharedNodeEvaluatedOnce(t *testing.T) {
	loads := 0
	src := Load("scene", Meta{}, func(context.Context) (*raster.Image, error) {
		loads++
		return constant(2, time.Time{}), nil
	})
	doubled := src.Apply("double", func(v float64) float64 { return v * 2 })
	sum := Combine("sum", doubled, src, func(x, y *raster.Image) (*raster.Image, error) {
		return raster.Combine(x, y, func(a, b float64) float64 { return a + b })
	})

	e := newEvaluator(t)
	r, err := e.Image(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, 6.0, r.Bands[0].Data[0])
	assert.Equal(t, 1, loads)
	assert.Equal(t, int64(3), e.Evaluations())

	_, err = e.Image(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Evaluations())
}

func TestNumbers(t *testing.T) {
	src := FromRaster("scene", constant(-9, time.Time{}))
	mean := NumberFrom("mean", src, func(_ context.Context, r *raster.Image) (float64, error) {
		m, _ := r.Bands[0].MeanStd()
		return m, nil
	})

	e := newEvaluator(t)
	v, err := e.Number(context.Background(), mean.Min(-14))
	require.NoError(t, err)
	assert.Equal(t, -14.0, v)

	water, err := e.Image(context.Background(), src.LtNumber(ConstNumber(-5)))
	require.NoError(t, err)
	assert.Equal(t, 1.0, water.Bands[0].Data[0])
}

func TestEvalErrorNamesFailingNode(t *testing.T) {
	boom := errors.New("missing tile")
	src := Load("scene", Meta{}, func(context.Context) (*raster.Image, error) {
		return nil, boom
	})

	_, err := newEvaluator(t).Image(context.Background(), src.Gt(0).SelfMask())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Node, "scene")

	_, err = newEvaluator(t).Image(context.Background(), Image{})
	assert.ErrorIs(t, err, ErrNilExpression)
}

func TestCollectionFiltersByMetadata(t *testing.T) {
	day := time.Date(2019, 8, 14, 0, 0, 0, 0, time.UTC)
	a := FromRaster("a", constant(1, day.Add(-24*time.Hour)))
	b := FromRaster("b", constant(2, day.Add(3*time.Hour)))
	c := FromRaster("c", constant(3, day.Add(20*time.Hour)))
	col := NewCollection("s1", a, b, c)

	today := col.FilterDate(day, day.Add(24*time.Hour))
	assert.Equal(t, 2, today.Size())
	assert.Equal(t, 1, col.FilterMonth(time.August).FilterDate(day.Add(-48*time.Hour), day).Size())

	far := geo.NewBound(50, 51, 50, 51)
	assert.Zero(t, col.FilterBounds(far).Size())
	assert.Equal(t, 3, col.FilterBounds(a.Meta().Footprint).Size())

	e := newEvaluator(t)
	m, err := e.Image(context.Background(), today.Mosaic())
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Bands[0].Data[0])
	assert.Equal(t, b.Meta().Time, today.Mosaic().Meta().Time)

	_, err = e.Image(context.Background(), col.FilterBounds(far).Mosaic())
	assert.ErrorIs(t, err, ErrEmptyCollection)
}

func TestCollectionGeometryUnion(t *testing.T) {
	left := raster.Constant(2, 2, raster.NewGeoTransform(0, 1, 1, 1), "v", 0)
	right := raster.Constant(2, 2, raster.NewGeoTransform(5, 1, 1, 1), "v", 0)
	col := NewCollection("x", FromRaster("l", left), FromRaster("r", right))

	g := col.Geometry()
	require.NotNil(t, g)
	assert.Equal(t, 0.0, g.Left())
	assert.Equal(t, 7.0, g.Right())
	assert.Nil(t, NewCollection("empty").Geometry())
}
