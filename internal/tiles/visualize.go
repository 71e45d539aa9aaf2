// Package tiles turns evaluated rasters into colored layers and serves them
// as web mercator map tiles.
package tiles

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"hydrafloods/internal/raster"
)

type VisParams struct {
	// Bands selects one band for palette rendering or three for RGB. Empty
	// means the first band.
	Bands   []string
	Min     float64
	Max     float64
	Palette []string
}

// Layer is a rendered raster still anchored to its grid.
type Layer struct {
	Image     *image.RGBA
	Transform raster.GeoTransform
}

// Visualize stretches the selected bands between Min and Max. A single band
// is colored by linear interpolation along the palette, gray when no palette
// is given. Masked pixels are transparent.
func Visualize(r *raster.Image, vis VisParams) (*Layer, error) {
	if vis.Max <= vis.Min {
		return nil, fmt.Errorf("vis max must be greater than min, got min %g max %g", vis.Min, vis.Max)
	}

	names := vis.Bands
	if len(names) == 0 {
		if len(r.Bands) == 0 {
			return nil, fmt.Errorf("nothing to visualize")
		}
		names = []string{r.Bands[0].Name}
	}
	sel, err := r.Select(names...)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	switch len(sel.Bands) {
	case 1:
		palette, err := ParsePalette(vis.Palette)
		if err != nil {
			return nil, err
		}
		b := sel.Bands[0]
		for i, v := range b.Data {
			if !b.Mask[i] {
				continue
			}
			img.SetRGBA(i%r.Width, i/r.Width, palette.at(vis.stretch(v)))
		}
	case 3:
		if len(vis.Palette) > 0 {
			return nil, fmt.Errorf("palette is only supported for one band")
		}
		red, green, blue := sel.Bands[0], sel.Bands[1], sel.Bands[2]
		for i := range red.Data {
			if !red.Mask[i] || !green.Mask[i] || !blue.Mask[i] {
				continue
			}
			img.SetRGBA(i%r.Width, i/r.Width, color.RGBA{
				R: channel(vis.stretch(red.Data[i])),
				G: channel(vis.stretch(green.Data[i])),
				B: channel(vis.stretch(blue.Data[i])),
				A: 255,
			})
		}
	default:
		return nil, fmt.Errorf("visualize needs 1 or 3 bands, got %d", len(sel.Bands))
	}

	return &Layer{Image: img, Transform: r.Transform}, nil
}

func (vis VisParams) stretch(v float64) float64 {
	return math.Max(0, math.Min(1, (v-vis.Min)/(vis.Max-vis.Min)))
}

func channel(t float64) uint8 {
	return uint8(math.Round(t * 255))
}

type Palette []color.RGBA

// ParsePalette reads hex colors with or without a leading '#'.
func ParsePalette(colors []string) (Palette, error) {
	if len(colors) == 0 {
		return Palette{{0, 0, 0, 255}, {255, 255, 255, 255}}, nil
	}
	p := make(Palette, len(colors))
	for i, c := range colors {
		raw, err := hex.DecodeString(strings.TrimPrefix(c, "#"))
		if err != nil || len(raw) != 3 {
			return nil, fmt.Errorf("invalid palette color %q", c)
		}
		p[i] = color.RGBA{R: raw[0], G: raw[1], B: raw[2], A: 255}
	}
	return p, nil
}

func (p Palette) at(t float64) color.RGBA {
	if len(p) == 1 {
		return p[0]
	}
	pos := t * float64(len(p)-1)
	i := int(math.Floor(pos))
	if i >= len(p)-1 {
		return p[len(p)-1]
	}
	f := pos - float64(i)
	a, b := p[i], p[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// At returns the layer color under a longitude/latitude, transparent outside
// the grid.
func (l *Layer) At(lng, lat float64) color.RGBA {
	px, py := l.Transform.LonLatToPixel(lng, lat)
	if math.IsNaN(px) || math.IsNaN(py) {
		return color.RGBA{}
	}
	col, row := int(math.Floor(px)), int(math.Floor(py))
	bounds := l.Image.Bounds()
	if col < 0 || row < 0 || col >= bounds.Dx() || row >= bounds.Dy() {
		return color.RGBA{}
	}
	return l.Image.RGBAAt(col, row)
}
