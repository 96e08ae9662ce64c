package geo

// PolygonRing is a closed loop of points with its precomputed bounds.
// The closing point is not repeated.
type PolygonRing struct {
	Points []GeoPoint
	Bounds BoundingBox
	IsHole bool
}

// NewPolygonRing builds a ring from points. A trailing point equal to the
// first one is dropped. Rings with fewer than three points are degenerate:
// they keep no points and contain nothing.
func NewPolygonRing(points []GeoPoint, isHole bool) PolygonRing {
	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	if len(points) < 3 {
		return PolygonRing{Bounds: EmptyBoundingBox(), IsHole: isHole}
	}

	pts := make([]GeoPoint, len(points))
	copy(pts, points)
	bounds := EmptyBoundingBox()
	for _, p := range pts {
		bounds = bounds.Extend(p.Lat, p.Lon)
	}
	return PolygonRing{Points: pts, Bounds: bounds, IsHole: isHole}
}

// IsDegenerate reports whether the ring has no area to test against
func (r PolygonRing) IsDegenerate() bool {
	return len(r.Points) < 3
}

// Polygon is one exterior ring with optional holes
type Polygon struct {
	Exterior PolygonRing
	Holes    []PolygonRing
}

// NewPolygon marks the rings as exterior and holes respectively.
func NewPolygon(exterior PolygonRing, holes ...PolygonRing) Polygon {
	exterior.IsHole = false
	kept := make([]PolygonRing, 0, len(holes))
	for _, h := range holes {
		if h.IsDegenerate() {
			continue
		}
		h.IsHole = true
		kept = append(kept, h)
	}
	return Polygon{Exterior: exterior, Holes: kept}
}

// Bounds returns the bounds of the exterior ring
func (p Polygon) Bounds() BoundingBox {
	return p.Exterior.Bounds
}

// CountryBoundary is the territory of one country, possibly non-contiguous
type CountryBoundary struct {
	Code     string
	Name     string
	Polygons []Polygon
	Bounds   BoundingBox
}

// NewCountryBoundary computes the combined bounds of polygons.
func NewCountryBoundary(code, name string, polygons []Polygon) *CountryBoundary {
	bounds := EmptyBoundingBox()
	kept := make([]Polygon, 0, len(polygons))
	for _, p := range polygons {
		if p.Exterior.IsDegenerate() {
			continue
		}
		bounds = bounds.Union(p.Bounds())
		kept = append(kept, p)
	}
	return &CountryBoundary{Code: code, Name: name, Polygons: kept, Bounds: bounds}
}

// Contains reports whether the point lies on this country's territory
func (c *CountryBoundary) Contains(lat, lon float64) bool {
	return IsPointInCountry(lat, lon, c)
}

// DistanceToBorderKm returns the distance from the point to the nearest
// edge of any ring of the country.
func (c *CountryBoundary) DistanceToBorderKm(lat, lon float64) float64 {
	p := GeoPoint{Lat: lat, Lon: lon}
	best := -1.0
	visit := func(r PolygonRing) {
		n := len(r.Points)
		for i := 0; i < n; i++ {
			d := DistanceToSegmentKm(p, r.Points[i], r.Points[(i+1)%n])
			if best < 0 || d < best {
				best = d
			}
		}
	}
	for _, poly := range c.Polygons {
		visit(poly.Exterior)
		for _, h := range poly.Holes {
			visit(h)
		}
	}
	return best
}
