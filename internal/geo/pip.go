package geo

// IsPointInRingCore ray-casts a horizontal ray from the point and counts
// edge crossings. An odd count means inside. No bounds check is done.
func IsPointInRingCore(lat, lon float64, points []GeoPoint) bool {
	n := len(points)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := points[i], points[j]
		if (pi.Lat > lat) != (pj.Lat > lat) {
			crossLon := (pj.Lon-pi.Lon)*(lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lon
			if lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// IsPointInRing rejects on the ring bounds before ray-casting.
func IsPointInRing(lat, lon float64, ring PolygonRing) bool {
	if !ring.Bounds.Contains(lat, lon) {
		return false
	}
	return IsPointInRingCore(lat, lon, ring.Points)
}

// IsPointInPolygon reports whether the point is inside the exterior ring
// and outside every hole.
func IsPointInPolygon(lat, lon float64, poly Polygon) bool {
	if !IsPointInRing(lat, lon, poly.Exterior) {
		return false
	}
	for _, hole := range poly.Holes {
		if IsPointInRing(lat, lon, hole) {
			return false
		}
	}
	return true
}

// IsPointInCountry tests the combined bounds first, then each polygon.
func IsPointInCountry(lat, lon float64, country *CountryBoundary) bool {
	if country == nil || !country.Bounds.Contains(lat, lon) {
		return false
	}
	for _, poly := range country.Polygons {
		if IsPointInPolygon(lat, lon, poly) {
			return true
		}
	}
	return false
}
