package imagery

import (
	"context"
	"math"
	"testing"
	"time"

	geo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
)

var testGrid = raster.NewGeoTransform(105, 12, 0.001, 0.001)

func evaluate(t *testing.T, im expr.Image) *raster.Image {
	t.Helper()
	ev, err := expr.NewEvaluator(64, logger.NewNoOp())
	require.NoError(t, err)
	r, err := ev.Image(context.Background(), im)
	require.NoError(t, err)
	return r
}

func bandsImage(w, h int, values map[string]float64, order ...string) *raster.Image {
	bands := make([]*raster.Band, len(order))
	for i, name := range order {
		b := raster.NewBand(name, w*h)
		for j := range b.Data {
			b.Data[j] = values[name]
		}
		bands[i] = b
	}
	return raster.New(w, h, testGrid, bands...)
}

func TestExtractBits(t *testing.T) {
	qa := raster.New(3, 1, testGrid, &raster.Band{
		Name: "BQA",
		Data: []float64{0b1011000, 0b0010000, 0b1110111},
		Mask: []bool{true, true, true},
	})
	out := evaluate(t, ExtractBits(expr.FromRaster("qa", qa), 4, 6, "cloud"))
	assert.Equal(t, []string{"cloud"}, out.BandNames())
	assert.Equal(t, []float64{1, 1, 3}, out.Bands[0].Data)
}

func TestRescaleBands(t *testing.T) {
	r := raster.New(3, 1, testGrid,
		&raster.Band{Name: "a", Data: []float64{2, 4, 6}, Mask: []bool{true, true, true}},
		&raster.Band{Name: "flat", Data: []float64{5, 5, 5}, Mask: []bool{true, true, true}},
	)
	out := evaluate(t, RescaleBands(expr.FromRaster("r", r)))
	assert.Equal(t, []float64{0, 0.5, 1}, out.Bands[0].Data)
	assert.Zero(t, out.Bands[1].ValidCount())
	// the input is left untouched
	assert.Equal(t, 2.0, r.Bands[0].Data[0])
}

func TestUnitConversions(t *testing.T) {
	db := raster.New(2, 1, testGrid, &raster.Band{Name: "VV", Data: []float64{-10, 0}, Mask: []bool{true, true}})
	natural := evaluate(t, ToNatural(expr.FromRaster("db", db)))
	assert.InDelta(t, 0.1, natural.Bands[0].Data[0], 1e-12)
	assert.InDelta(t, 1, natural.Bands[0].Data[1], 1e-12)

	back := evaluate(t, ToDB(ToNatural(expr.FromRaster("db", db))))
	assert.InDelta(t, -10, back.Bands[0].Data[0], 1e-9)

	p := raster.New(2, 1, testGrid, &raster.Band{Name: "p", Data: []float64{0.5, 1}, Mask: []bool{true, true}})
	logit := evaluate(t, LogitTransform(expr.FromRaster("p", p)))
	assert.InDelta(t, 0, logit.Bands[0].Data[0], 1e-12)
	assert.False(t, logit.Bands[0].Mask[1], "log of a division by zero is masked")
}

func TestAddIndices(t *testing.T) {
	values := map[string]float64{"blue2": 0.1, "blue": 0.1, "green": 0.3, "red": 0.1, "nir": 0.5, "swir1": 0.1, "swir2": 0.05}
	out := evaluate(t, AddIndices(expr.FromRaster("l8", bandsImage(2, 2, values, StandardBands...))))

	names := out.BandNames()
	assert.Equal(t, append(append([]string{}, StandardBands...), "ndvi", "mndwi", "nwi", "aewinsh", "aewish", "tcwet"), names)

	ndvi, err := out.Band("ndvi")
	require.NoError(t, err)
	assert.InDelta(t, (0.5-0.1)/(0.5+0.1), ndvi.Data[0], 1e-12)
	mndwi, err := out.Band("mndwi")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mndwi.Data[3], 1e-12)
	aewinsh, err := out.Band("aewinsh")
	require.NoError(t, err)
	assert.InDelta(t, 4*(0.3-0.1)-(0.25*0.5+2.75*0.05), aewinsh.Data[0], 1e-12)
}

func TestNormalizedDifference(t *testing.T) {
	values := map[string]float64{"green": 0.4, "swir1": 0.1}
	out := evaluate(t, NormalizedDifference(expr.FromRaster("x", bandsImage(1, 1, values, "green", "swir1")), "green", "swir1"))
	assert.Equal(t, "nd", out.Bands[0].Name)
	assert.InDelta(t, 0.6, out.Bands[0].Data[0], 1e-12)
}

func TestBustClouds(t *testing.T) {
	bright := map[string]float64{"blue": 0.5, "green": 0.5, "red": 0.5, "nir": 0.6, "swir1": 0.5, "swir2": 0.4}
	dark := map[string]float64{"blue": 0.05, "green": 0.06, "red": 0.04, "nir": 0.2, "swir1": 0.1, "swir2": 0.05}
	order := []string{"blue", "green", "red", "nir", "swir1", "swir2"}

	score := evaluate(t, CloudScore(expr.FromRaster("bright", bandsImage(1, 1, bright, order...))))
	assert.InDelta(t, 100, score.Bands[0].Data[0], 1e-9)

	cloudy := evaluate(t, BustClouds(expr.FromRaster("bright", bandsImage(1, 1, bright, order...)), 10))
	assert.False(t, cloudy.Bands[0].Mask[0])
	kept := evaluate(t, BustClouds(expr.FromRaster("dark", bandsImage(1, 1, dark, order...)), 10))
	assert.True(t, kept.Bands[0].Mask[0])
}

func TestFringeKernel(t *testing.T) {
	k := fringeKernel()
	assert.Equal(t, 41, k.Size())
	assert.Equal(t, fringeCountThreshold, k.Count())
	assert.Equal(t, 1.0, k.Weights[0][21])
	assert.Equal(t, 0.0, k.Weights[0][20])
	assert.Equal(t, 1.0, k.Weights[40][19])
	assert.Equal(t, 0.0, k.Weights[40][20])
}

func TestDefringe(t *testing.T) {
	r := raster.Constant(60, 60, testGrid, "B1", 0.2)
	// a dropped column near the scene edge
	for row := 0; row < 60; row++ {
		r.Bands[0].Mask[row*60+3] = false
	}
	out := evaluate(t, Defringe(expr.FromRaster("l7", r)))
	b := out.Bands[0]
	// the kernel only reaches its full count far from every edge
	assert.True(t, b.Mask[30*60+30])
	assert.False(t, b.Mask[0])
	assert.False(t, b.Mask[30*60+10])
}

func TestDespeckleKeepsConstantInterior(t *testing.T) {
	r := raster.Constant(12, 12, testGrid, "VV", -12)
	out := evaluate(t, Despeckle(expr.FromRaster("s1", r)))
	assert.InDelta(t, -12, out.Bands[0].Data[6*12+6], 1e-9)
}

func landsatScene(t time.Time, west float64, bands []string) *raster.Image {
	out := make([]*raster.Band, 0, len(bands))
	for i, name := range bands {
		if i > 0 && name == bands[i-1] {
			continue
		}
		b := raster.NewBand(name, 4)
		for j := range b.Data {
			b.Data[j] = 0.1
		}
		out = append(out, b)
	}
	r := raster.New(2, 2, raster.NewGeoTransform(west, 12, 0.001, 0.001), out...)
	r.Time = t
	return r
}

func TestLandsatCollection(t *testing.T) {
	cat := catalog.NewMemory()
	jan := time.Date(2018, 1, 10, 3, 0, 0, 0, time.UTC)
	feb := time.Date(2018, 2, 10, 3, 0, 0, 0, time.UTC)
	cat.AddRasters(catalog.Landsat4)
	cat.AddRasters(catalog.Landsat5, landsatScene(jan, 105, tmBands))
	cat.AddRasters(catalog.Landsat7, landsatScene(feb, 105, tmBands), landsatScene(jan, 150, tmBands))
	cat.AddRasters(catalog.Landsat8, landsatScene(jan, 105, oliBands), landsatScene(jan.AddDate(1, 0, 0), 105, oliBands))

	ctx := context.Background()
	region := geo.NewBound(104, 106, 11, 13)
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2018, 12, 31, 0, 0, 0, 0, time.UTC)

	all, err := LandsatCollection(ctx, cat, region, start, end, LandsatOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Size())

	january, err := LandsatCollection(ctx, cat, region, start, end, LandsatOptions{
		Climatology: true,
		Month:       opt.Some(time.January),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, january.Size())

	r := evaluate(t, january.Images()[1])
	assert.Equal(t, StandardBands, r.BandNames())

	_, err = LandsatCollection(ctx, cat, region, start, end, LandsatOptions{Climatology: true})
	assert.ErrorIs(t, err, ErrMonthRequired)

	_, err = LandsatCollection(ctx, catalog.NewMemory(), region, start, end, LandsatOptions{})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCloudScoreMasksInvalidInputs(t *testing.T) {
	order := []string{"blue", "green", "red", "nir", "swir1", "swir2"}
	r := bandsImage(2, 1, map[string]float64{"blue": 0.1}, order...)
	r.Bands[2].Mask[1] = false
	score := evaluate(t, CloudScore(expr.FromRaster("x", r)))
	assert.False(t, score.Bands[0].Mask[1])
	assert.False(t, math.IsNaN(score.Bands[0].Data[1]))
}
