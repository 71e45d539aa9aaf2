package features

import (
	"testing"

	geo "github.com/paulmach/go.geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/raster"
)

const sample = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "lake",
     "properties": {"name": "Tonle Sap"},
     "geometry": {"type": "Polygon", "coordinates": [
       [[0,0],[10,0],[10,10],[0,10],[0,0]],
       [[4,4],[6,4],[6,6],[4,6],[4,4]]
     ]}},
    {"type": "Feature",
     "properties": {"id": "delta"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[20,0],[22,0],[22,2],[20,2],[20,0]]],
       [[[30,0],[32,0],[32,2],[30,2],[30,0]]]
     ]}},
    {"type": "Feature", "properties": {},
     "geometry": {"type": "Point", "coordinates": [1, 1]}}
  ]
}`

func TestParse(t *testing.T) {
	fc, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, 2, fc.Size())
	assert.Equal(t, []string{"delta", "lake"}, fc.IDs())
	assert.Equal(t, "Tonle Sap", fc.Features[0].Properties["name"])
	assert.Len(t, fc.Features[1].Polygons, 2)

	b := fc.Bound()
	assert.Equal(t, 0.0, b.Left())
	assert.Equal(t, 32.0, b.Right())
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte(`{"type": "Feature"}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"type":"FeatureCollection","features":[{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,1]]]}}]}`))
	assert.ErrorContains(t, err, "feature 0")
}

func TestContainsHonorsHoles(t *testing.T) {
	fc, err := Parse([]byte(sample))
	require.NoError(t, err)
	lake := fc.FilterIDs("lake").Features[0]

	assert.True(t, lake.Contains(geo.NewPoint(2, 2)))
	assert.False(t, lake.Contains(geo.NewPoint(5, 5)))
	assert.False(t, lake.Contains(geo.NewPoint(11, 5)))
	assert.True(t, fc.Contains(geo.NewPoint(31, 1)))
}

func TestSpatialFilters(t *testing.T) {
	fc, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"lake"}, fc.FilterBounds(geo.NewBound(9, 12, 9, 12)).IDs())
	assert.Equal(t, []string{"lake"}, fc.ContainedBy(geo.NewBound(-1, 25, -1, 11)).IDs())
	assert.Empty(t, fc.ContainedBy(geo.NewBound(1, 25, -1, 11)).IDs())
}

func TestRasterize(t *testing.T) {
	fc, err := Parse([]byte(sample))
	require.NoError(t, err)

	gt := raster.NewGeoTransform(0, 10, 1, 1)
	mask := fc.FilterIDs("lake").Rasterize(gt, 12, 10)
	assert.True(t, mask[8*12+1])
	assert.False(t, mask[5*12+5])
	assert.False(t, mask[5*12+11])
}

func TestPointBuffers(t *testing.T) {
	gt := raster.NewGeoTransform(0, 0.01, 0.001, 0.001)
	pb := &PointBuffers{Points: []*geo.Point{geo.NewPoint(0.005, 0.005)}, Radius: 200}

	mask := pb.Rasterize(gt, 10, 10)
	assert.True(t, mask[5*10+5])
	assert.False(t, mask[0])
	assert.InDelta(t, 0.005-200/raster.MetersPerDegree, pb.Bound().Left(), 1e-9)
}

func TestOutline(t *testing.T) {
	fc, err := Parse([]byte(sample))
	require.NoError(t, err)

	gt := raster.NewGeoTransform(-1, 11, 0.1, 0.1)
	out := fc.FilterIDs("lake").Outline(gt, 120, 120, 2)
	b := out.Bands[0]
	assert.NotZero(t, b.ValidCount())
	// the outer ring passes through lon 0, lat 5
	assert.True(t, b.Mask[60*120+10])
	assert.False(t, b.Mask[60*120+30])
}

func TestNewBox(t *testing.T) {
	box := NewBox("aoi", geo.NewBound(1, 3, 2, 4))
	assert.True(t, box.Contains(geo.NewPoint(2, 3)))
	assert.False(t, box.Contains(geo.NewPoint(0, 3)))
	assert.Equal(t, 1.0, box.Bound().Left())
	assert.Equal(t, 4.0, box.Bound().Top())
}
