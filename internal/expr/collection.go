package expr

import (
	"context"
	"fmt"
	"sort"
	"time"

	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/raster"
)

// Collection is an ordered set of images. Filtering only looks at image
// metadata, so the size of a filtered collection is known without
// evaluation.
type Collection struct {
	name   string
	images []Image
}

func NewCollection(name string, images ...Image) Collection {
	return Collection{name: name, images: append([]Image(nil), images...)}
}

func (c Collection) Name() string {
	return c.name
}

func (c Collection) Size() int {
	return len(c.images)
}

func (c Collection) Images() []Image {
	return append([]Image(nil), c.images...)
}

func (c Collection) filter(suffix string, keep func(Image) bool) Collection {
	out := make([]Image, 0, len(c.images))
	for _, im := range c.images {
		if keep(im) {
			out = append(out, im)
		}
	}
	return Collection{name: c.name + suffix, images: out}
}

// FilterDate keeps images acquired in [start, end).
func (c Collection) FilterDate(start, end time.Time) Collection {
	return c.filter("|date", func(im Image) bool {
		t := im.meta.Time
		return !t.Before(start) && t.Before(end)
	})
}

// FilterBounds keeps images whose footprint intersects b.
func (c Collection) FilterBounds(b *geo.Bound) Collection {
	return c.filter("|bounds", func(im Image) bool {
		return im.meta.Footprint != nil && b != nil && im.meta.Footprint.Intersects(b)
	})
}

func (c Collection) FilterMonth(month time.Month) Collection {
	return c.filter("|month", func(im Image) bool {
		return im.meta.Time.Month() == month
	})
}

func (c Collection) Merge(other Collection) Collection {
	images := make([]Image, 0, len(c.images)+len(other.images))
	images = append(images, c.images...)
	images = append(images, other.images...)
	return Collection{name: c.name + "+" + other.name, images: images}
}

func (c Collection) SortByTime() Collection {
	images := c.Images()
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].meta.Time.Before(images[j].meta.Time)
	})
	return Collection{name: c.name, images: images}
}

func (c Collection) Map(fn func(Image) Image) Collection {
	images := make([]Image, len(c.images))
	for i, im := range c.images {
		images[i] = fn(im)
	}
	return Collection{name: c.name, images: images}
}

// Geometry is the union of the footprints, nil for an empty collection.
func (c Collection) Geometry() *geo.Bound {
	var union *geo.Bound
	for _, im := range c.images {
		if im.meta.Footprint == nil {
			continue
		}
		if union == nil {
			union = im.meta.Footprint.Clone()
			continue
		}
		union.Union(im.meta.Footprint)
	}
	return union
}

func (c Collection) compositeMeta() Meta {
	meta := Meta{Footprint: c.Geometry()}
	for i, im := range c.images {
		if i == 0 || im.meta.Time.Before(meta.Time) {
			meta.Time = im.meta.Time
		}
	}
	return meta
}

func (c Collection) reduce(label string, fn func(rs []*raster.Image) (*raster.Image, error)) Image {
	images := c.images
	return CombineN(label, c.compositeMeta(), images, func(_ context.Context, rs []*raster.Image) (*raster.Image, error) {
		if len(rs) == 0 {
			return nil, fmt.Errorf("%s of %s: %w", label, c.name, ErrEmptyCollection)
		}
		return fn(rs)
	})
}

// Mosaic lays later images over earlier ones.
func (c Collection) Mosaic() Image {
	return c.reduce("mosaic", raster.Mosaic)
}

func (c Collection) QualityMosaic(band string) Image {
	return c.reduce("quality_mosaic", func(rs []*raster.Image) (*raster.Image, error) {
		return raster.QualityMosaic(rs, band)
	})
}

func (c Collection) Percentile(p float64) Image {
	return c.reduce(fmt.Sprintf("percentile(%g)", p), func(rs []*raster.Image) (*raster.Image, error) {
		return raster.PercentileComposite(rs, p)
	})
}

func (c Collection) Sum() Image {
	return c.reduce("sum", raster.Sum)
}
