package jrc

import (
	"context"
	"testing"
	"time"

	geo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/expr"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
)

var grid = raster.NewGeoTransform(105, 12, 0.01, 0.01)

func month(t time.Time, values ...float64) expr.Image {
	mask := make([]bool, len(values))
	for i := range mask {
		mask[i] = true
	}
	r := raster.New(len(values), 1, grid, &raster.Band{Name: "water", Data: values, Mask: mask})
	r.Time = t
	return expr.FromRaster("month", r)
}

func date(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestRecurrence(t *testing.T) {
	history := expr.NewCollection("history",
		month(date(2001, 1), 2, 2, 0, 2),
		month(date(2001, 2), 2, 1, 0, 2),
		month(date(2001, 3), 2, 1, 0, 2),
		month(date(2001, 4), 1, 1, 0, 0),
	)
	water, err := Recurrence(history)
	require.NoError(t, err)

	ev, err := expr.NewEvaluator(16, logger.NewNoOp())
	require.NoError(t, err)
	r, err := ev.Image(context.Background(), water)
	require.NoError(t, err)

	b := r.Bands[0]
	// 75% is not above the recurrence threshold, no-data months do not count
	assert.Equal(t, []bool{false, false, false, true}, b.Mask)
	assert.Equal(t, 1.0, b.Data[3])
}

func TestRecurrenceEmpty(t *testing.T) {
	_, err := Recurrence(expr.NewCollection("history"))
	assert.ErrorIs(t, err, expr.ErrEmptyCollection)
}

func TestFilter(t *testing.T) {
	history := expr.NewCollection("history",
		month(date(2000, 6), 2),
		month(date(2001, 1), 2),
		month(date(2001, 6), 2),
		month(date(2003, 6), 2),
	)
	region := geo.NewBound(104, 106, 11, 13)
	start, end := date(2000, 1), date(2003, 1)

	assert.Equal(t, 3, Filter(history, region, start, end, opt.None[time.Month]()).Size())
	assert.Equal(t, 2, Filter(history, region, start, end, opt.Some(time.June)).Size())
	assert.Zero(t, Filter(history, geo.NewBound(0, 1, 0, 1), start, end, opt.None[time.Month]()).Size())
}
