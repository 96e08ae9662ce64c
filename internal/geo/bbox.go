package geo

import "math"

// GeoPoint is a latitude/longitude pair in degrees
type GeoPoint struct {
	Lat float64
	Lon float64
}

// BoundingBox is an axis-aligned lat/lon rectangle, edges inclusive
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// EmptyBoundingBox returns a box that contains nothing and grows with Extend.
func EmptyBoundingBox() BoundingBox {
	return BoundingBox{
		MinLat: math.Inf(1),
		MinLon: math.Inf(1),
		MaxLat: math.Inf(-1),
		MaxLon: math.Inf(-1),
	}
}

// IsEmpty reports whether the box covers no point
func (b BoundingBox) IsEmpty() bool {
	return b.MinLat > b.MaxLat || b.MinLon > b.MaxLon
}

// Contains reports whether the point lies inside or on the edge of b
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Intersects reports whether b and o share at least one point
func (b BoundingBox) Intersects(o BoundingBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// Extend returns b grown to include the point
func (b BoundingBox) Extend(lat, lon float64) BoundingBox {
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLat = math.Max(b.MaxLat, lat)
	b.MinLon = math.Min(b.MinLon, lon)
	b.MaxLon = math.Max(b.MaxLon, lon)
	return b
}

// Union returns the smallest box covering both
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return b.Extend(o.MinLat, o.MinLon).Extend(o.MaxLat, o.MaxLon)
}

// Center returns the midpoint of b
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Area returns the box area in square degrees
func (b BoundingBox) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	return (b.MaxLat - b.MinLat) * (b.MaxLon - b.MinLon)
}
