// Package boundary loads country boundary polygons and answers which
// country a point lies in.
package boundary

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/photocopy/geocoder/internal/geo"
)

// DefaultFileName is looked up next to the index files when no boundary
// file is configured
const DefaultFileName = "countries.geojson"

var (
	codeProperties = []string{"ISO_A2", "ISO_A2_EH", "iso_a2", "code"}
	nameProperties = []string{"NAME", "name", "ADMIN"}
)

// LoadGeoJSON reads a FeatureCollection of Polygon and MultiPolygon country
// features. Features without a usable two-letter code are skipped.
func LoadGeoJSON(path string) ([]*geo.CountryBoundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary file: %w", err)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON parses boundary features from raw GeoJSON. Features sharing a
// code are merged into one boundary.
func ParseGeoJSON(data []byte) ([]*geo.CountryBoundary, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boundary GeoJSON: %w", err)
	}

	type pending struct {
		name     string
		polygons []geo.Polygon
	}
	byCode := make(map[string]*pending)
	var order []string

	for _, f := range fc.Features {
		code := strings.ToUpper(propertyString(f.Properties, codeProperties))
		if !isCountryCode(code) {
			continue
		}

		var polygons []geo.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polygons = append(polygons, toPolygon(g))
		case orb.MultiPolygon:
			for _, p := range g {
				polygons = append(polygons, toPolygon(p))
			}
		default:
			continue
		}

		p, ok := byCode[code]
		if !ok {
			p = &pending{name: CountryName(code, propertyString(f.Properties, nameProperties))}
			byCode[code] = p
			order = append(order, code)
		}
		p.polygons = append(p.polygons, polygons...)
	}

	boundaries := make([]*geo.CountryBoundary, 0, len(order))
	for _, code := range order {
		b := geo.NewCountryBoundary(code, byCode[code].name, byCode[code].polygons)
		if len(b.Polygons) == 0 {
			continue
		}
		boundaries = append(boundaries, b)
	}
	return boundaries, nil
}

func toPolygon(p orb.Polygon) geo.Polygon {
	if len(p) == 0 {
		return geo.Polygon{Exterior: geo.NewPolygonRing(nil, false)}
	}
	holes := make([]geo.PolygonRing, 0, len(p)-1)
	for _, r := range p[1:] {
		holes = append(holes, toRing(r, true))
	}
	return geo.NewPolygon(toRing(p[0], false), holes...)
}

func toRing(r orb.Ring, isHole bool) geo.PolygonRing {
	points := make([]geo.GeoPoint, len(r))
	for i, pt := range r {
		points[i] = geo.GeoPoint{Lat: pt[1], Lon: pt[0]}
	}
	return geo.NewPolygonRing(points, isHole)
}

func propertyString(props geojson.Properties, keys []string) string {
	for _, k := range keys {
		if v, ok := props[k].(string); ok && v != "" && v != "-99" {
			return v
		}
	}
	return ""
}

func isCountryCode(code string) bool {
	return len(code) == 2 && code[0] >= 'A' && code[0] <= 'Z' && code[1] >= 'A' && code[1] <= 'Z'
}
