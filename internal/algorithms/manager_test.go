package algorithms

import (
	"context"
	"testing"
	"time"

	geo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/catalog"
	"hydrafloods/internal/config"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
	"hydrafloods/internal/imagery"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
)

var grid = raster.NewGeoTransform(105, 12, 0.01, 0.01)

func scene(when time.Time) *raster.Image {
	values := map[string]float64{"B3": 0.3, "B4": 0.1, "B5": 0.01, "B6": 0.05}
	names := []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"}
	bands := make([]*raster.Band, len(names))
	for i, name := range names {
		b := raster.NewBand(name, 4)
		for j := range b.Data {
			b.Data[j] = values[name]
		}
		bands[i] = b
	}
	r := raster.New(2, 2, grid, bands...)
	r.Time = when
	return r
}

func testCatalog() *catalog.Memory {
	cat := catalog.NewMemory()
	when := time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC)
	cat.AddRasters(catalog.Landsat4)
	cat.AddRasters(catalog.Landsat5)
	cat.AddRasters(catalog.Landsat7)
	cat.AddRasters(catalog.Landsat8, scene(when))
	cat.AddImage(catalog.HAND, raster.Constant(2, 2, grid, "b1", 1))

	jrc := raster.Constant(2, 2, grid, "water", 2)
	jrc.Time = time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	cat.AddRasters(catalog.JRCMonthly, jrc)
	return cat
}

func evaluate(t *testing.T, im expr.Image) *raster.Image {
	t.Helper()
	ev, err := expr.NewEvaluator(32, logger.NewNoOp())
	require.NoError(t, err)
	r, err := ev.Image(context.Background(), im)
	require.NoError(t, err)
	return r
}

func TestGetAlgorithm(t *testing.T) {
	m := NewManager(config.Default().Historical)
	assert.Equal(t, []string{"JRC", "SWT"}, m.GetAvailableAlgorithms())

	alg, err := m.GetAlgorithm("SWT")
	require.NoError(t, err)
	assert.Equal(t, "SWT", alg.GetName())

	_, err = m.GetAlgorithm("XYZ")
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Contains(t, err.Error(), `"JRC" or "SWT"`)
}

func TestRunAlgorithms(t *testing.T) {
	m := NewManager(config.Default().Historical)
	cat := testCatalog()
	// the land polygon covers the western column only
	land := features.NewFeatureCollection("land", &features.Feature{
		ID: "land",
		Polygons: []features.Polygon{{geo.NewPathFromXYSlice([][]float64{
			{105, 12}, {105.01, 12}, {105.01, 11.98}, {105, 11.98}, {105, 12},
		})}},
	})
	req := Request{
		Region: geo.NewBound(104, 106, 11, 13),
		Land:   opt.Some[expr.Region](land),
		Start:  time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	for _, name := range []string{"SWT", "JRC"} {
		t.Run(name, func(t *testing.T) {
			alg, err := m.GetAlgorithm(name)
			require.NoError(t, err)
			water, err := alg.Run(context.Background(), cat, req)
			require.NoError(t, err)

			r := evaluate(t, water)
			b := r.Bands[0]
			assert.True(t, b.Mask[0])
			assert.False(t, b.Mask[1], "outside land")
			assert.Greater(t, b.Data[0], 0.0)
		})
	}
}

func TestRunRequiresMonthForClimatology(t *testing.T) {
	m := NewManager(config.Default().Historical)
	req := Request{Region: geo.NewBound(104, 106, 11, 13), Climatology: true}
	for _, name := range m.GetAvailableAlgorithms() {
		alg, err := m.GetAlgorithm(name)
		require.NoError(t, err)
		_, err = alg.Run(context.Background(), testCatalog(), req)
		assert.ErrorIs(t, err, imagery.ErrMonthRequired, name)
	}
}
