package raster

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/opt"
)

var testGrid = NewGeoTransform(100, 10, 0.01, 0.01)

func bandOf(name string, values ...float64) *Band {
	b := NewBand(name, len(values))
	copy(b.Data, values)
	return b
}

func TestGeoTransformRoundTrip(t *testing.T) {
	lon, lat := testGrid.PixelCenter(3, 7)
	assert.InDelta(t, 100.035, lon, 1e-12)
	assert.InDelta(t, 9.925, lat, 1e-12)

	px, py := testGrid.LonLatToPixel(lon, lat)
	assert.InDelta(t, 3.5, px, 1e-9)
	assert.InDelta(t, 7.5, py, 1e-9)
}

func TestBoundsAndPixelSize(t *testing.T) {
	gt := NewGeoTransform(0, 0, 30/MetersPerDegree, 30/MetersPerDegree)
	im := Constant(100, 50, gt, "vv", 1)

	b := im.Bounds()
	assert.InDelta(t, 0, b.Left(), 1e-12)
	assert.InDelta(t, 0, b.Top(), 1e-12)
	assert.Less(t, b.Bottom(), 0.0)

	assert.InDelta(t, 30, im.PixelSize(), 0.01)
	assert.Equal(t, 3, im.MetersToPixels(100))
	assert.Equal(t, 50, im.MetersToPixels(-1500))
}

func TestCombineBroadcastAndMask(t *testing.T) {
	a := New(2, 2, testGrid, bandOf("a", 1, 2, 3, 4), bandOf("b", 10, 20, 30, 40))
	a.Bands[0].Mask[1] = false
	s := New(2, 2, testGrid, bandOf("s", 1, 1, 0, 1))

	out, err := Combine(a, s, func(x, y float64) float64 { return x / y })
	require.NoError(t, err)
	require.Len(t, out.Bands, 2)
	assert.Equal(t, []string{"a", "b"}, out.BandNames())

	assert.Equal(t, []bool{true, false, false, true}, out.Bands[0].Mask)
	assert.Equal(t, []bool{true, true, false, true}, out.Bands[1].Mask)
	assert.Equal(t, 40.0, out.Bands[1].Data[3])
}

func TestCombineGridMismatch(t *testing.T) {
	a := Constant(2, 2, testGrid, "a", 1)
	b := Constant(3, 2, testGrid, "b", 1)
	_, err := Combine(a, b, func(x, y float64) float64 { return x + y })
	assert.ErrorIs(t, err, ErrGridMismatch)
}

func TestUpdateMaskAndUnmask(t *testing.T) {
	im := New(2, 2, testGrid, bandOf("v", 5, 6, 7, 8))
	mask := New(2, 2, testGrid, bandOf("m", 1, 0, 1, 1))
	mask.Bands[0].Mask[2] = false

	masked, err := UpdateMask(im, mask)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, masked.Bands[0].Mask)
	assert.Equal(t, []bool{true, true, true, true}, im.Bands[0].Mask)

	filled := Unmask(masked, -1)
	assert.Equal(t, []float64{5, -1, -1, 8}, filled.Bands[0].Data)
	assert.Equal(t, 4, filled.Bands[0].ValidCount())
}

func TestKernelRotate(t *testing.T) {
	k, err := Fixed([][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	require.NoError(t, err)

	r := k.Rotate(1)
	assert.Equal(t, [][]float64{
		{7, 4, 1},
		{8, 5, 2},
		{9, 6, 3},
	}, r.Weights)
	assert.Equal(t, k.Weights, k.Rotate(4).Weights)

	_, err = Fixed([][]float64{{1, 1}, {1, 1}})
	assert.Error(t, err)
}

func TestCircleKernel(t *testing.T) {
	k := Circle(2)
	assert.Equal(t, 5, k.Size())
	assert.Equal(t, 0.0, k.Weights[0][0])
	assert.Equal(t, 1.0, k.Weights[0][2])
	assert.Equal(t, 13, k.Count())
}

func TestReduceNeighborhood(t *testing.T) {
	im := New(3, 3, testGrid, bandOf("v",
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	))
	im.Bands[0].Mask[8] = false

	mean := ReduceNeighborhood(im, Square(1), ReduceMean)
	assert.InDelta(t, 36.0/8, mean.Bands[0].Data[4], 1e-12)
	assert.InDelta(t, 3.0, mean.Bands[0].Data[0], 1e-12)
	assert.False(t, mean.Bands[0].Mask[8])

	maxed := ReduceNeighborhood(im, Square(1), ReduceMax)
	assert.Equal(t, 8.0, maxed.Bands[0].Data[4])

	med := ReduceNeighborhood(im, Square(1), ReduceMedian)
	assert.Equal(t, 4.5, med.Bands[0].Data[4])

	variance := ReduceNeighborhood(Constant(4, 4, testGrid, "c", 3), Square(1), ReduceVariance)
	assert.InDelta(t, 0, variance.Bands[0].Data[5], 1e-12)
}

func TestMosaicAndQualityMosaic(t *testing.T) {
	first := New(2, 1, testGrid, bandOf("v", 1, 2), bandOf("q", 5, 5))
	second := New(2, 1, testGrid, bandOf("v", 10, 20), bandOf("q", 1, 9))
	second.Bands[0].Mask[0] = false

	m, err := Mosaic([]*Image{first, second})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 20}, m.Bands[0].Data)

	q, err := QualityMosaic([]*Image{first, second}, "q")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 20}, q.Bands[0].Data)
	assert.Equal(t, []float64{5, 9}, q.Bands[1].Data)

	_, err = Mosaic(nil)
	assert.ErrorIs(t, err, ErrEmptyRaster)
}

func TestPercentileCompositeNearestRank(t *testing.T) {
	var stack []*Image
	for _, v := range []float64{5, 1, 4, 2, 3} {
		stack = append(stack, Constant(1, 1, testGrid, "v", v))
	}
	p40, err := PercentileComposite(stack, 40)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p40.Bands[0].Data[0])

	p8, err := PercentileComposite(stack, 8)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p8.Bands[0].Data[0])
}

func TestBandStats(t *testing.T) {
	b := bandOf("v", 1, 2, 3, 99, math.NaN())
	b.Mask[3] = false

	mean, std := b.MeanStd()
	assert.InDelta(t, 2, mean, 1e-9)
	assert.InDelta(t, math.Sqrt(2.0/3.0), std, 1e-9)

	lo, hi, ok := bandOf("v", 3, -1, 7).MinMax()
	require.True(t, ok)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 7.0, hi)

	_, err := NewMaskedBand("empty", 3).Percentile(50)
	assert.ErrorIs(t, err, ErrNoValidPixels)
}

func TestTIFFRoundTrip(t *testing.T) {
	b := bandOf("vv", -25.5, -14, 0, 3.25, -7, 12)
	b.Mask[2] = false
	enc := Encoding{Scale: 0.01, Offset: -50, NoData: opt.Some(65535.0)}

	var buf bytes.Buffer
	require.NoError(t, WriteBand(&buf, b, 3, 2, enc))

	got, w, h, err := ReadBand(&buf, "vv", enc)
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, b.Mask, got.Mask)
	for i, v := range b.Data {
		if b.Mask[i] {
			assert.InDelta(t, v, got.Data[i], 0.006)
		}
	}
}

func TestResampleNearest(t *testing.T) {
	src := New(2, 2, testGrid, bandOf("v", 1, 2, 3, 4))
	fine := NewGeoTransform(100, 10, 0.005, 0.005)

	out := Resample(src, fine, 5, 4)
	require.Len(t, out.Bands[0].Data, 20)
	assert.Equal(t, 1.0, out.Bands[0].Data[0])
	assert.Equal(t, 2.0, out.Bands[0].Data[3])
	assert.Equal(t, 4.0, out.Bands[0].Data[3*5+3])
	assert.False(t, out.Bands[0].Mask[4])
}
