package raster

import (
	"fmt"
	"math"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Apply maps fn over every valid pixel of every band. Results that are not
// finite are masked.
func Apply(im *Image, fn func(float64) float64) *Image {
	bands := make([]*Band, len(im.Bands))
	for bi, b := range im.Bands {
		out := NewMaskedBand(b.Name, len(b.Data))
		for i, v := range b.Data {
			if !b.Mask[i] {
				continue
			}
			r := fn(v)
			if finite(r) {
				out.Data[i] = r
				out.Mask[i] = true
			}
		}
		bands[bi] = out
	}
	return im.withBands(bands)
}

// Combine applies fn pairwise to the bands of a and b. Band counts must match
// or one side must have a single band, which is then paired with every band
// of the other side. The output mask is the intersection of both masks.
func Combine(a, b *Image, fn func(x, y float64) float64) (*Image, error) {
	if !a.SameGrid(b) {
		return nil, ErrGridMismatch
	}
	na, nb := len(a.Bands), len(b.Bands)
	n := na
	names := a
	switch {
	case na == nb:
	case nb == 1:
	case na == 1:
		n = nb
		names = b
	default:
		return nil, fmt.Errorf("%w: %d and %d", ErrBandCount, na, nb)
	}

	bands := make([]*Band, n)
	for k := 0; k < n; k++ {
		x := a.Bands[min(k, na-1)]
		y := b.Bands[min(k, nb-1)]
		out := NewMaskedBand(names.Bands[k].Name, a.Len())
		for i := range out.Data {
			if !x.Mask[i] || !y.Mask[i] {
				continue
			}
			r := fn(x.Data[i], y.Data[i])
			if finite(r) {
				out.Data[i] = r
				out.Mask[i] = true
			}
		}
		bands[k] = out
	}
	return a.withBands(bands), nil
}

// UpdateMask further masks im wherever mask is invalid or zero. A single band
// mask applies to every band, otherwise masks pair up band by band.
func UpdateMask(im, mask *Image) (*Image, error) {
	if !im.SameGrid(mask) {
		return nil, ErrGridMismatch
	}
	if len(mask.Bands) != 1 && len(mask.Bands) != len(im.Bands) {
		return nil, fmt.Errorf("%w: mask has %d bands for %d", ErrBandCount, len(mask.Bands), len(im.Bands))
	}
	bands := make([]*Band, len(im.Bands))
	for k, b := range im.Bands {
		m := mask.Bands[min(k, len(mask.Bands)-1)]
		out := &Band{Name: b.Name, Data: b.Data, Mask: make([]bool, len(b.Mask))}
		for i := range out.Mask {
			out.Mask[i] = b.Mask[i] && m.Mask[i] && m.Data[i] != 0
		}
		bands[k] = out
	}
	return im.withBands(bands), nil
}

// SelfMask masks pixels equal to zero.
func SelfMask(im *Image) *Image {
	out, _ := UpdateMask(im, im)
	return out
}

// Unmask fills invalid pixels with value and marks them valid.
func Unmask(im *Image, value float64) *Image {
	bands := make([]*Band, len(im.Bands))
	for k, b := range im.Bands {
		out := NewBand(b.Name, len(b.Data))
		for i, v := range b.Data {
			if b.Mask[i] {
				out.Data[i] = v
			} else {
				out.Data[i] = value
			}
		}
		bands[k] = out
	}
	return im.withBands(bands)
}

// MaskOf returns a fully valid image holding 1 where im is valid and 0
// elsewhere.
func MaskOf(im *Image) *Image {
	bands := make([]*Band, len(im.Bands))
	for k, b := range im.Bands {
		out := NewBand(b.Name, len(b.Data))
		for i, ok := range b.Mask {
			if ok {
				out.Data[i] = 1
			}
		}
		bands[k] = out
	}
	return im.withBands(bands)
}

// Clip masks every pixel outside keep.
func Clip(im *Image, keep []bool) (*Image, error) {
	if len(keep) != im.Len() {
		return nil, ErrGridMismatch
	}
	bands := make([]*Band, len(im.Bands))
	for k, b := range im.Bands {
		out := &Band{Name: b.Name, Data: b.Data, Mask: make([]bool, len(b.Mask))}
		for i := range out.Mask {
			out.Mask[i] = b.Mask[i] && keep[i]
		}
		bands[k] = out
	}
	return im.withBands(bands), nil
}

// NormalizedDifference computes (a - b) / (a + b) into a band named nd.
func NormalizedDifference(im *Image, a, b string) (*Image, error) {
	ba, err := im.Select(a)
	if err != nil {
		return nil, err
	}
	bb, err := im.Select(b)
	if err != nil {
		return nil, err
	}
	out, err := Combine(ba, bb, func(x, y float64) float64 {
		return (x - y) / (x + y)
	})
	if err != nil {
		return nil, err
	}
	return out.Rename("nd")
}

// Where overwrites pixels of im with the pixels of replacement wherever cond
// is valid and non-zero. Replaced pixels take the validity of replacement.
func Where(im, cond, replacement *Image) (*Image, error) {
	if !im.SameGrid(cond) || !im.SameGrid(replacement) {
		return nil, ErrGridMismatch
	}
	c := cond.Bands[0]
	bands := make([]*Band, len(im.Bands))
	for k, b := range im.Bands {
		r := replacement.Bands[min(k, len(replacement.Bands)-1)]
		out := b.Clone()
		for i := range out.Data {
			if c.Mask[i] && c.Data[i] != 0 {
				out.Data[i] = r.Data[i]
				out.Mask[i] = r.Mask[i]
			}
		}
		bands[k] = out
	}
	return im.withBands(bands), nil
}

// Resample maps im onto a new grid by nearest neighbor lookup. Target pixels
// falling outside im are masked.
func Resample(im *Image, gt GeoTransform, width, height int) *Image {
	index := make([]int, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			lon, lat := gt.PixelCenter(col, row)
			px, py := im.Transform.LonLatToPixel(lon, lat)
			sx, sy := int(math.Floor(px)), int(math.Floor(py))
			if sx < 0 || sy < 0 || sx >= im.Width || sy >= im.Height {
				index[row*width+col] = -1
				continue
			}
			index[row*width+col] = sy*im.Width + sx
		}
	}

	bands := make([]*Band, len(im.Bands))
	for k, b := range im.Bands {
		out := NewMaskedBand(b.Name, width*height)
		for i, src := range index {
			if src < 0 || !b.Mask[src] {
				continue
			}
			out.Data[i] = b.Data[src]
			out.Mask[i] = true
		}
		bands[k] = out
	}
	return &Image{Width: width, Height: height, Transform: gt, Time: im.Time, Bands: bands}
}
