package geo

import (
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		delta                  float64
	}{
		{"same point", 48.8566, 2.3522, 48.8566, 2.3522, 0, 1e-9},
		{"paris to montmartre", 48.8566, 2.3522, 48.8867, 2.3431, 3.41, 0.05},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343.5, 1},
		{"across antimeridian", 0, 179.5, 0, -179.5, 111.19, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.wantKm, got, tt.delta)

			ref := s2.LatLngFromDegrees(tt.lat1, tt.lon1).Distance(s2.LatLngFromDegrees(tt.lat2, tt.lon2))
			assert.InDelta(t, ref.Radians()*EarthRadiusKm, got, 1e-6)
		})
	}
}

func TestDistanceToSegmentKm(t *testing.T) {
	a := GeoPoint{Lat: 0, Lon: 0}
	b := GeoPoint{Lat: 0, Lon: 1}

	t.Run("perpendicular foot inside segment", func(t *testing.T) {
		d := DistanceToSegmentKm(GeoPoint{Lat: 0.1, Lon: 0.5}, a, b)
		assert.InDelta(t, HaversineDistance(0.1, 0.5, 0, 0.5), d, 0.01)
	})

	t.Run("beyond an endpoint", func(t *testing.T) {
		d := DistanceToSegmentKm(GeoPoint{Lat: 0, Lon: 2}, a, b)
		assert.InDelta(t, HaversineDistance(0, 2, 0, 1), d, 1e-9)
	})

	t.Run("zero length segment", func(t *testing.T) {
		p := GeoPoint{Lat: 1, Lon: 1}
		assert.InDelta(t, HaversineDistance(1, 1, 0, 0), DistanceToSegmentKm(p, a, a), 1e-9)
	})
}
