package services

import (
	"context"
	"image/color"
	"strings"
	"testing"
	"time"

	geo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/algorithms"
	"hydrafloods/internal/algorithms/otsu"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/config"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/features"
	"hydrafloods/internal/imagery"
	"hydrafloods/internal/logger"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/raster"
	"hydrafloods/internal/tiles"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Collection(ctx context.Context, name string) (expr.Collection, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(expr.Collection), args.Error(1)
}

func (m *mockCatalog) Image(ctx context.Context, name string) (expr.Image, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(expr.Image), args.Error(1)
}

func (m *mockCatalog) Features(ctx context.Context, name string) (*features.FeatureCollection, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(*features.FeatureCollection), args.Error(1)
}

const (
	size = 120
	west = 100.0
	// north of the scene
	north = 0.5
)

var (
	pixelDeg = 30 / raster.MetersPerDegree
	grid     = raster.NewGeoTransform(west, north, pixelDeg, pixelDeg)
	sceneBox = geo.NewBound(west, west+size*pixelDeg, north-size*pixelDeg, north)
)

func newPublisher(t *testing.T) (*Publisher, *tiles.Registry) {
	t.Helper()
	ev, err := expr.NewEvaluator(64, logger.NewNoOp())
	require.NoError(t, err)
	reg, err := tiles.NewRegistry("http://localhost:8080", 64, time.Hour)
	require.NoError(t, err)
	return NewPublisher(ev, reg, logger.NewNoOp()), reg
}

// layerOf resolves a tile URL template back to its layer.
func layerOf(t *testing.T, reg *tiles.Registry, url string) *tiles.Layer {
	t.Helper()
	path, query, ok := strings.Cut(strings.TrimPrefix(url, "http://localhost:8080/map/"), "?token=")
	require.True(t, ok, url)
	id, _, _ := strings.Cut(path, "/")
	layer, err := reg.Lookup(id, query)
	require.NoError(t, err)
	return layer
}

func landCollection() *features.FeatureCollection {
	return features.NewFeatureCollection(catalog.LandBoundaries, features.NewBox("land", sceneBox))
}

func TestHistoricalRejectsBeforeCatalogAccess(t *testing.T) {
	cat := new(mockCatalog)
	publisher, _ := newPublisher(t)
	svc := NewHistoricalService(cat, algorithms.NewManager(config.Default().Historical), publisher)

	_, err := svc.GetHistoricalMap(context.Background(), HistoricalRequest{Region: sceneBox, Algorithm: "XYZ"})
	assert.ErrorIs(t, err, algorithms.ErrNotImplemented)

	_, err = svc.GetHistoricalMap(context.Background(), HistoricalRequest{Region: sceneBox, Algorithm: "JRC", Climatology: true})
	assert.ErrorIs(t, err, imagery.ErrMonthRequired)

	cat.AssertNotCalled(t, "Features", mock.Anything, mock.Anything)
	cat.AssertNotCalled(t, "Collection", mock.Anything, mock.Anything)
	cat.AssertNotCalled(t, "Image", mock.Anything, mock.Anything)
}

func TestHistoricalMap(t *testing.T) {
	cat := catalog.NewMemory()
	cat.AddFeatures(catalog.LandBoundaries, landCollection())
	month := raster.Constant(size, size, grid, "water", 2)
	month.Time = time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)
	cat.AddRasters(catalog.JRCMonthly, month)

	publisher, reg := newPublisher(t)
	svc := NewHistoricalService(cat, algorithms.NewManager(config.Default().Historical), publisher)

	url, err := svc.GetHistoricalMap(context.Background(), HistoricalRequest{
		Region:      geo.NewBound(99, 101, -1, 1),
		Start:       time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC),
		Climatology: true,
		Month:       opt.Some(time.June),
		Algorithm:   "JRC",
	})
	require.NoError(t, err)
	assert.Contains(t, url, "/{z}/{x}/{y}?token=")

	layer := layerOf(t, reg, url)
	assert.Equal(t, uint8(0x8b), layer.Image.RGBAAt(5, 5).B)
	assert.Equal(t, uint8(255), layer.Image.RGBAAt(5, 5).A)
}

// landsatScene is a three pixel Landsat 8 row with the given swir1 values.
func landsatScene(at time.Time, swir1 ...float64) *raster.Image {
	values := map[string]float64{"B3": 0.3, "B4": 0.1, "B5": 0.01}
	names := []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"}
	bands := make([]*raster.Band, len(names))
	for i, name := range names {
		b := raster.NewBand(name, 3)
		for j := range b.Data {
			b.Data[j] = values[name]
			if name == "B6" {
				b.Data[j] = swir1[j]
			}
		}
		bands[i] = b
	}
	r := raster.New(3, 1, grid, bands...)
	r.Time = at
	return r
}

func TestHistoricalSWTShowsPermanentWater(t *testing.T) {
	cat := catalog.NewMemory()
	row := geo.NewBound(west, west+3*pixelDeg, north-pixelDeg, north)
	cat.AddFeatures(catalog.LandBoundaries, features.NewFeatureCollection(catalog.LandBoundaries, features.NewBox("land", row)))
	cat.AddRasters(catalog.Landsat4)
	cat.AddRasters(catalog.Landsat5)
	cat.AddRasters(catalog.Landsat7)
	// always water, water in two of ten scenes, never water
	var scenes []*raster.Image
	for i := 0; i < 10; i++ {
		flooded := 0.3
		if i < 2 {
			flooded = 0.05
		}
		scenes = append(scenes, landsatScene(time.Date(2019, 3, 1+i, 0, 0, 0, 0, time.UTC), 0.05, flooded, 0.3))
	}
	cat.AddRasters(catalog.Landsat8, scenes...)
	cat.AddImage(catalog.HAND, raster.Constant(3, 1, grid, "b1", 1))

	publisher, reg := newPublisher(t)
	svc := NewHistoricalService(cat, algorithms.NewManager(config.Default().Historical), publisher)

	url, err := svc.GetHistoricalMap(context.Background(), HistoricalRequest{
		Region:    geo.NewBound(99, 101, -1, 1),
		Start:     time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC),
		Algorithm: "SWT",
	})
	require.NoError(t, err)

	layer := layerOf(t, reg, url)
	assert.Equal(t, color.RGBA{0, 0, 0x8b, 255}, layer.Image.RGBAAt(0, 0))
	assert.Equal(t, uint8(0), layer.Image.RGBAAt(1, 0).A, "temporary water is not shown")
	assert.Equal(t, uint8(0), layer.Image.RGBAAt(2, 0).A)
}

func TestPrecipWindow(t *testing.T) {
	now := func() time.Time { return time.Date(2020, 5, 10, 15, 30, 0, 0, time.UTC) }
	svc := NewPrecipService(nil, nil, now)

	start, end := svc.Window(3)
	assert.Equal(t, time.Date(2020, 5, 6, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 5, 9, 0, 0, 0, 0, time.UTC), end)
}

func TestPrecipMap(t *testing.T) {
	hour := func(at time.Time, a, b float64) expr.Image {
		r := raster.New(2, 1, grid, &raster.Band{Name: precipBand, Data: []float64{a, b}, Mask: []bool{true, true}})
		r.Time = at
		return expr.FromRaster("gsmap", r)
	}
	day := time.Date(2020, 5, 8, 0, 0, 0, 0, time.UTC)
	coll := expr.NewCollection(catalog.GSMaP,
		hour(day.Add(time.Hour), 0.8, 0.2),
		hour(day.Add(2*time.Hour), 0.7, 0.3),
		hour(day.AddDate(0, 0, 1), 50, 50),
	)

	cat := new(mockCatalog)
	cat.On("Collection", mock.Anything, catalog.GSMaP).Return(coll, nil).Once()

	publisher, reg := newPublisher(t)
	now := func() time.Time { return time.Date(2020, 5, 10, 6, 0, 0, 0, time.UTC) }
	svc := NewPrecipService(cat, publisher, now)

	_, err := svc.GetPrecipMap(context.Background(), 2)
	assert.ErrorIs(t, err, algorithms.ErrNotImplemented)

	url, err := svc.GetPrecipMap(context.Background(), 1)
	require.NoError(t, err)
	cat.AssertExpectations(t)

	layer := layerOf(t, reg, url)
	light := layer.Image.RGBAAt(0, 0)
	assert.Equal(t, uint8(255), light.A)
	// 1.5 mm sits at the navy end of the palette
	assert.Equal(t, uint8(0), light.R)
	assert.InDelta(t, 0x80, int(light.B), 16)
	assert.Equal(t, uint8(0), layer.Image.RGBAAt(1, 0).A, "sums up to 1 mm are masked")
}

func TestAdminMap(t *testing.T) {
	cat := catalog.NewMemory()
	unit := features.NewBox("province", geo.NewBound(100.2, 100.6, 0.2, 0.6))
	outside := features.NewBox("abroad", geo.NewBound(120, 121, 0, 1))
	cat.AddFeatures(catalog.AdminBoundaries, features.NewFeatureCollection("", unit, outside))

	publisher, reg := newPublisher(t)
	svc := NewAdminService(cat, publisher)

	url, err := svc.GetAdminMap(context.Background(), geo.NewBound(100, 101, 0, 1))
	require.NoError(t, err)

	layer := layerOf(t, reg, url)
	painted := 0
	for i := 3; i < len(layer.Image.Pix); i += 4 {
		if layer.Image.Pix[i] > 0 {
			painted++
		}
	}
	assert.NotZero(t, painted)
	assert.Equal(t, uint8(0), layer.Image.RGBAAt(1024, 1024).A, "interior is not painted")

	_, err = svc.GetAdminMap(context.Background(), nil)
	assert.Error(t, err)
}

func stepScene(at time.Time) *raster.Image {
	b := raster.NewBand("VV", size*size)
	for i := range b.Data {
		if i%size < size/2 {
			b.Data[i] = -25
		} else {
			b.Data[i] = -5
		}
	}
	r := raster.New(size, size, grid, b)
	r.Time = at
	return r
}

func newFloodService(t *testing.T, polygons *features.FeatureCollection) (*FloodService, *tiles.Registry, time.Time) {
	t.Helper()
	acquired := time.Date(2019, 8, 1, 11, 20, 0, 0, time.UTC)
	cat := catalog.NewMemory()
	cat.AddRasters(catalog.Sentinel1, stepScene(acquired))
	cat.AddFeatures(catalog.LandBoundaries, landCollection())
	cat.AddFeatures(catalog.S1Polygons, polygons)

	params := otsu.DefaultParams()
	params.CannyThreshold = 2
	params.NegBuffer = 0
	params.Smoothing = 0
	params.ReductionScale = 30

	publisher, reg := newPublisher(t)
	return NewFloodService(cat, params, publisher, logger.NewNoOp()), reg, acquired
}

func TestFloodBootstrapFallback(t *testing.T) {
	svc, reg, acquired := newFloodService(t, features.NewFeatureCollection(""))

	res, err := svc.Bootstrap(context.Background(), FloodRequest{Region: sceneBox, Date: acquired})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, config.Default().Otsu.UpperThreshold, res.Threshold)

	layer := layerOf(t, reg, res.URL)
	assert.Equal(t, uint8(255), layer.Image.RGBAAt(10, 10).A)
	assert.Equal(t, uint8(0), layer.Image.RGBAAt(100, 10).A)

	_, err = svc.Bootstrap(context.Background(), FloodRequest{Region: sceneBox, Date: acquired.AddDate(0, 0, 3)})
	assert.ErrorIs(t, err, otsu.ErrNoImagery)
}

func TestFloodGlobal(t *testing.T) {
	svc, _, acquired := newFloodService(t, features.NewFeatureCollection(""))

	res, err := svc.Global(context.Background(), FloodRequest{Region: sceneBox, Date: acquired, Band: "VV"})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Greater(t, res.Threshold, -25.0)
	assert.Less(t, res.Threshold, -5.0)

	_, err = svc.Global(context.Background(), FloodRequest{Date: acquired})
	assert.Error(t, err)
}

func TestFloodUnknownVariant(t *testing.T) {
	svc, _, acquired := newFloodService(t, features.NewFeatureCollection(""))
	_, err := svc.Map(context.Background(), "local", FloodRequest{Region: sceneBox, Date: acquired})
	assert.ErrorIs(t, err, algorithms.ErrNotImplemented)
}
