package raster

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"

	"hydrafloods/internal/opt"
)

// Encoding describes how stored integers map to physical values:
// value = raw*Scale + Offset. Raw values equal to NoData are masked.
type Encoding struct {
	Scale  float64
	Offset float64
	NoData opt.Optional[float64]
}

func (e Encoding) scale() float64 {
	if e.Scale == 0 {
		return 1
	}
	return e.Scale
}

// ReadBand decodes a single channel TIFF into a band.
func ReadBand(r io.Reader, name string, enc Encoding) (*Band, int, int, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode tiff band %s: %w", name, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	band := NewBand(name, width*height)
	nodata, hasNoData := enc.NoData.Get()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var raw float64
			switch src := img.(type) {
			case *image.Gray16:
				raw = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			case *image.Gray:
				raw = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			default:
				raw = float64(color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16).Y)
			}
			i := y*width + x
			if hasNoData && raw == nodata {
				band.Mask[i] = false
				continue
			}
			band.Data[i] = raw*enc.scale() + enc.Offset
		}
	}
	return band, width, height, nil
}

// WriteBand encodes a band as a deflate compressed 16 bit TIFF. Masked pixels
// are written as the NoData value, which defaults to 65535.
func WriteBand(w io.Writer, b *Band, width, height int, enc Encoding) error {
	if len(b.Data) != width*height {
		return fmt.Errorf("band %s has %d values for a %dx%d grid", b.Name, len(b.Data), width, height)
	}
	nodata := uint16(enc.NoData.OrElse(math.MaxUint16))

	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			raw := nodata
			if b.Mask[i] {
				v := math.Round((b.Data[i] - enc.Offset) / enc.scale())
				v = math.Max(0, math.Min(v, math.MaxUint16))
				raw = uint16(v)
			}
			img.SetGray16(x, y, color.Gray16{Y: raw})
		}
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
