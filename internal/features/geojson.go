package features

import (
	"fmt"
	"os"

	geo "github.com/paulmach/go.geo"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ReadFile parses a GeoJSON FeatureCollection from disk.
func ReadFile(name, path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read features %s", name)
	}
	fc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse features %s", path)
	}
	fc.Name = name
	return fc, nil
}

// Parse reads Polygon and MultiPolygon features from a GeoJSON
// FeatureCollection. Other geometry types are skipped. Feature ids come from
// the top level id member, falling back to the id property and then to the
// feature index.
func Parse(data []byte) (*FeatureCollection, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid json")
	}
	root := gjson.ParseBytes(data)
	if t := root.Get("type").String(); t != "FeatureCollection" {
		return nil, errors.Errorf("expected a FeatureCollection, got %q", t)
	}

	fc := &FeatureCollection{}
	for i, f := range root.Get("features").Array() {
		feature, err := parseFeature(f, i)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %d", i)
		}
		if feature != nil {
			fc.Features = append(fc.Features, feature)
		}
	}
	return fc, nil
}

func parseFeature(f gjson.Result, index int) (*Feature, error) {
	feature := &Feature{Properties: map[string]string{}}
	f.Get("properties").ForEach(func(k, v gjson.Result) bool {
		feature.Properties[k.String()] = v.String()
		return true
	})

	switch {
	case f.Get("id").Exists():
		feature.ID = f.Get("id").String()
	case feature.Properties["id"] != "":
		feature.ID = feature.Properties["id"]
	default:
		feature.ID = fmt.Sprint(index)
	}

	coords := f.Get("geometry.coordinates")
	switch t := f.Get("geometry.type").String(); t {
	case "Polygon":
		poly, err := parsePolygon(coords)
		if err != nil {
			return nil, err
		}
		feature.Polygons = []Polygon{poly}
	case "MultiPolygon":
		for _, c := range coords.Array() {
			poly, err := parsePolygon(c)
			if err != nil {
				return nil, err
			}
			feature.Polygons = append(feature.Polygons, poly)
		}
	default:
		return nil, nil
	}
	return feature, nil
}

func parsePolygon(coords gjson.Result) (Polygon, error) {
	var poly Polygon
	for _, ring := range coords.Array() {
		path := geo.NewPath()
		for _, pt := range ring.Array() {
			xy := pt.Array()
			if len(xy) < 2 {
				return nil, errors.Errorf("position %s has %d values", pt.Raw, len(xy))
			}
			path.Push(geo.NewPoint(xy[0].Float(), xy[1].Float()))
		}
		if path.Length() < 4 {
			return nil, errors.Errorf("ring has %d positions, need at least 4", path.Length())
		}
		poly = append(poly, path)
	}
	if len(poly) == 0 {
		return nil, errors.New("polygon has no rings")
	}
	return poly, nil
}
