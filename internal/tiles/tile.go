package tiles

import (
	"fmt"
	"image"

	geo "github.com/paulmach/go.geo"
)

const (
	TileSize = 256
	maxZoom  = 22
	// tileBits is log2(TileSize).
	tileBits = 8
)

// RenderTile draws tile z/x/y by sampling the layer at every pixel center.
func (l *Layer) RenderTile(z, x, y uint64) (*image.RGBA, error) {
	if z > maxZoom {
		return nil, fmt.Errorf("zoom %d above %d", z, maxZoom)
	}
	if x >= 1<<z || y >= 1<<z {
		return nil, fmt.Errorf("tile %d/%d/%d out of range", z, x, y)
	}

	// One level below pixel resolution so odd coordinates land on centers.
	level := z + tileBits + 1
	tile := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	for py := uint64(0); py < TileSize; py++ {
		sy := 2*(y<<tileBits+py) + 1
		for px := uint64(0); px < TileSize; px++ {
			sx := 2*(x<<tileBits+px) + 1
			lng, lat := geo.ScalarMercator.Inverse(sx, sy, level)
			tile.SetRGBA(int(px), int(py), l.At(lng, lat))
		}
	}
	return tile, nil
}
