package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for all distances
const EarthRadiusKm = 6371.0

// HaversineDistance returns the great-circle distance in kilometres.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// DistanceToSegmentKm returns the distance from p to the segment a-b.
// The projection is done on a local equirectangular plane, which is accurate
// for the short edges of boundary rings. A zero-length segment degrades to
// the point distance.
func DistanceToSegmentKm(p, a, b GeoPoint) float64 {
	if a.Lat == b.Lat && a.Lon == b.Lon {
		return HaversineDistance(p.Lat, p.Lon, a.Lat, a.Lon)
	}
	cosLat := math.Cos(toRadians(p.Lat))
	ax, ay := (a.Lon-p.Lon)*cosLat, a.Lat-p.Lat
	bx, by := (b.Lon-p.Lon)*cosLat, b.Lat-p.Lat
	dx, dy := bx-ax, by-ay

	t := -(ax*dx + ay*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := GeoPoint{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return HaversineDistance(p.Lat, p.Lon, closest.Lat, closest.Lon)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
