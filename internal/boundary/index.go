package boundary

import (
	"strings"

	"github.com/photocopy/geocoder/internal/geo"
)

// Index answers point-in-country queries over a fixed set of boundaries.
// It is immutable and safe for concurrent use.
type Index struct {
	boundaries []*geo.CountryBoundary
	byCode     map[string]*geo.CountryBoundary
}

// NewIndex creates an index over boundaries
func NewIndex(boundaries []*geo.CountryBoundary) *Index {
	byCode := make(map[string]*geo.CountryBoundary, len(boundaries))
	for _, b := range boundaries {
		byCode[strings.ToUpper(b.Code)] = b
	}
	return &Index{boundaries: boundaries, byCode: byCode}
}

// FindCountry returns the boundary containing the point, or nil (open sea,
// or no data). When boundaries overlap, the one with the smallest bounds
// wins so that enclaves beat their surrounding country.
func (i *Index) FindCountry(lat, lon float64) *geo.CountryBoundary {
	if i == nil {
		return nil
	}
	var best *geo.CountryBoundary
	for _, b := range i.boundaries {
		if !b.Bounds.Contains(lat, lon) {
			continue
		}
		if best != nil && b.Bounds.Area() >= best.Bounds.Area() {
			continue
		}
		if geo.IsPointInCountry(lat, lon, b) {
			best = b
		}
	}
	return best
}

// Get returns the boundary for an ISO code
func (i *Index) Get(code string) (*geo.CountryBoundary, bool) {
	if i == nil {
		return nil, false
	}
	b, ok := i.byCode[strings.ToUpper(code)]
	return b, ok
}

// Len returns the number of loaded boundaries
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.boundaries)
}
