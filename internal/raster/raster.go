// Package raster is the eager engine underneath the expression graph. An
// Image is a stack of equally sized float bands on a lon/lat grid, each band
// carrying its own validity mask.
package raster

import (
	"errors"
	"fmt"
	"math"
	"time"

	geo "github.com/paulmach/go.geo"
)

var (
	ErrGridMismatch  = errors.New("images do not share a grid")
	ErrBandNotFound  = errors.New("band not found")
	ErrBandCount     = errors.New("incompatible band counts")
	ErrEmptyRaster   = errors.New("raster has no pixels")
	ErrNoValidPixels = errors.New("no valid pixels")
)

type Band struct {
	Name string
	Data []float64
	// Mask is true where Data holds a valid observation.
	Mask []bool
}

func NewBand(name string, size int) *Band {
	b := &Band{
		Name: name,
		Data: make([]float64, size),
		Mask: make([]bool, size),
	}
	for i := range b.Mask {
		b.Mask[i] = true
	}
	return b
}

// NewMaskedBand returns a band with every pixel invalid.
func NewMaskedBand(name string, size int) *Band {
	return &Band{
		Name: name,
		Data: make([]float64, size),
		Mask: make([]bool, size),
	}
}

func (b *Band) Valid(i int) bool {
	return b.Mask[i]
}

func (b *Band) Clone() *Band {
	c := &Band{
		Name: b.Name,
		Data: make([]float64, len(b.Data)),
		Mask: make([]bool, len(b.Mask)),
	}
	copy(c.Data, b.Data)
	copy(c.Mask, b.Mask)
	return c
}

func (b *Band) ValidCount() int {
	n := 0
	for _, ok := range b.Mask {
		if ok {
			n++
		}
	}
	return n
}

type Image struct {
	Width     int
	Height    int
	Transform GeoTransform
	Time      time.Time
	Bands     []*Band
}

func New(width, height int, gt GeoTransform, bands ...*Band) *Image {
	return &Image{
		Width:     width,
		Height:    height,
		Transform: gt,
		Bands:     bands,
	}
}

// Constant returns a single band image with every pixel set to v.
func Constant(width, height int, gt GeoTransform, name string, v float64) *Image {
	b := NewBand(name, width*height)
	for i := range b.Data {
		b.Data[i] = v
	}
	return New(width, height, gt, b)
}

func (im *Image) Len() int {
	return im.Width * im.Height
}

func (im *Image) Validate() error {
	if im.Width <= 0 || im.Height <= 0 {
		return ErrEmptyRaster
	}
	for _, b := range im.Bands {
		if len(b.Data) != im.Len() || len(b.Mask) != im.Len() {
			return fmt.Errorf("band %s has %d values for a %dx%d grid", b.Name, len(b.Data), im.Width, im.Height)
		}
	}
	return nil
}

func (im *Image) SameGrid(other *Image) bool {
	return im.Width == other.Width && im.Height == other.Height && im.Transform == other.Transform
}

// withBands returns an image on the same grid and time with the given bands.
func (im *Image) withBands(bands []*Band) *Image {
	return &Image{
		Width:     im.Width,
		Height:    im.Height,
		Transform: im.Transform,
		Time:      im.Time,
		Bands:     bands,
	}
}

func (im *Image) Clone() *Image {
	bands := make([]*Band, len(im.Bands))
	for i, b := range im.Bands {
		bands[i] = b.Clone()
	}
	return im.withBands(bands)
}

func (im *Image) BandNames() []string {
	names := make([]string, len(im.Bands))
	for i, b := range im.Bands {
		names[i] = b.Name
	}
	return names
}

func (im *Image) Band(name string) (*Band, error) {
	for _, b := range im.Bands {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBandNotFound, name)
}

// Select returns the named bands in the requested order. Band data is shared.
func (im *Image) Select(names ...string) (*Image, error) {
	bands := make([]*Band, 0, len(names))
	for _, name := range names {
		b, err := im.Band(name)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return im.withBands(bands), nil
}

func (im *Image) SelectIndex(indexes ...int) (*Image, error) {
	bands := make([]*Band, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(im.Bands) {
			return nil, fmt.Errorf("%w: index %d of %d", ErrBandNotFound, i, len(im.Bands))
		}
		bands = append(bands, im.Bands[i])
	}
	return im.withBands(bands), nil
}

func (im *Image) Rename(names ...string) (*Image, error) {
	if len(names) != len(im.Bands) {
		return nil, fmt.Errorf("%w: rename %d bands to %d names", ErrBandCount, len(im.Bands), len(names))
	}
	bands := make([]*Band, len(im.Bands))
	for i, b := range im.Bands {
		bands[i] = &Band{Name: names[i], Data: b.Data, Mask: b.Mask}
	}
	return im.withBands(bands), nil
}

// AddBands appends the bands of other. Bands with a clashing name replace the
// existing ones.
func (im *Image) AddBands(other *Image) (*Image, error) {
	if !im.SameGrid(other) {
		return nil, ErrGridMismatch
	}
	bands := make([]*Band, 0, len(im.Bands)+len(other.Bands))
	replaced := make(map[string]bool, len(other.Bands))
	for _, b := range other.Bands {
		replaced[b.Name] = true
	}
	for _, b := range im.Bands {
		if !replaced[b.Name] {
			bands = append(bands, b)
		}
	}
	bands = append(bands, other.Bands...)
	return im.withBands(bands), nil
}

func (im *Image) Bounds() *geo.Bound {
	west, north := im.Transform.PixelToLonLat(0, 0)
	east, south := im.Transform.PixelToLonLat(float64(im.Width), float64(im.Height))
	return geo.NewBound(west, east, south, north)
}

// PixelSize returns the nominal ground size of one pixel in meters, taken at
// the center latitude of the image.
func (im *Image) PixelSize() float64 {
	center := im.Bounds().Center()
	return im.Transform.PixelSizeMeters(center.Lat())
}

// MetersToPixels converts a ground distance into a whole number of pixels.
func (im *Image) MetersToPixels(meters float64) int {
	size := im.PixelSize()
	if size <= 0 {
		return 0
	}
	return int(math.Round(math.Abs(meters) / size))
}
