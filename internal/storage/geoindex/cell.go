package geoindex

import (
	"strings"

	"github.com/photocopy/geocoder/internal/geo"
	"github.com/photocopy/geocoder/internal/model"
)

// LocationEntry is a decoded place. It belongs to exactly one GeoCell and is
// never mutated after decoding.
type LocationEntry struct {
	Latitude    float64
	Longitude   float64
	Name        string
	State       string
	Country     string
	CountryCode string
	PlaceType   model.PlaceType
}

// GeoCell holds every place of one geohash cell. Entries[:CityStartIndex]
// are district-level places, the rest are town-level or larger.
type GeoCell struct {
	Geohash              string
	Bounds               geo.BoundingBox
	Entries              []LocationEntry
	CityStartIndex       int
	EstimatedMemoryBytes int64
}

// Match is a candidate place with its distance from the query point
type Match struct {
	Entry      *LocationEntry
	DistanceKm float64
}

// Districts returns the district-level slice of the cell
func (c *GeoCell) Districts() []LocationEntry {
	return c.Entries[:c.CityStartIndex]
}

// Cities returns the town-level-or-larger slice of the cell
func (c *GeoCell) Cities() []LocationEntry {
	return c.Entries[c.CityStartIndex:]
}

// FindNearest returns the closest entry within maxDistanceKm. With
// citiesOnly only the city slice is scanned. A non-empty countryCode limits
// the scan to that country. Equal distances keep the earlier entry.
func (c *GeoCell) FindNearest(lat, lon, maxDistanceKm float64, citiesOnly bool, countryCode string) (Match, bool) {
	entries := c.Entries
	if citiesOnly {
		entries = c.Cities()
	}

	best := Match{}
	found := false
	for i := range entries {
		e := &entries[i]
		if countryCode != "" && !strings.EqualFold(e.CountryCode, countryCode) {
			continue
		}
		d := geo.HaversineDistance(lat, lon, e.Latitude, e.Longitude)
		if d > maxDistanceKm {
			continue
		}
		if !found || d < best.DistanceKm {
			best = Match{Entry: e, DistanceKm: d}
			found = true
		}
	}
	return best, found
}

const (
	cellOverheadBytes  = 128
	entryOverheadBytes = 96
)

// estimateMemory approximates the heap held by a decoded cell. Country
// names are shared with the country table and not counted.
func estimateMemory(hash string, entries []LocationEntry) int64 {
	total := int64(cellOverheadBytes + len(hash))
	for i := range entries {
		total += int64(entryOverheadBytes + len(entries[i].Name) + len(entries[i].State))
	}
	return total
}
