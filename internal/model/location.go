package model

import (
	"fmt"
	"strings"
)

// PlaceType classifies a populated place by administrative significance.
// Values are ordered: a larger value is a more significant place.
type PlaceType uint8

const (
	PlaceTypeDistrict PlaceType = iota
	PlaceTypeVillage
	PlaceTypeTown
	PlaceTypeCity
	PlaceTypeAdminSeat
	PlaceTypeCapital
)

// MaxPlaceType is the largest valid PlaceType value
const MaxPlaceType = PlaceTypeCapital

var placeTypeNames = [...]string{
	PlaceTypeDistrict:  "district",
	PlaceTypeVillage:   "village",
	PlaceTypeTown:      "town",
	PlaceTypeCity:      "city",
	PlaceTypeAdminSeat: "admin_seat",
	PlaceTypeCapital:   "capital",
}

func (p PlaceType) String() string {
	if p > MaxPlaceType {
		return "unknown"
	}
	return placeTypeNames[p]
}

// IsValid reports whether p is a known place type
func (p PlaceType) IsValid() bool {
	return p <= MaxPlaceType
}

// IsCityLevel reports whether p is a Town or anything larger
func (p PlaceType) IsCityLevel() bool {
	return p >= PlaceTypeTown && p <= MaxPlaceType
}

// ParsePlaceType parses the lower-case names produced by String.
func ParsePlaceType(s string) (PlaceType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range placeTypeNames {
		if name == s {
			return PlaceType(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the place type by name
func (p PlaceType) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid place type %d", p)
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a place type name
func (p *PlaceType) UnmarshalText(text []byte) error {
	pt, ok := ParsePlaceType(string(text))
	if !ok {
		return fmt.Errorf("unknown place type %q", text)
	}
	*p = pt
	return nil
}

// LocationData is the result of a reverse geocoding lookup
type LocationData struct {
	Place       string    `json:"place"`
	District    string    `json:"district,omitempty"`
	State       string    `json:"state,omitempty"`
	Country     string    `json:"country"`
	CountryCode string    `json:"country_code,omitempty"`
	Population  *int64    `json:"population,omitempty"`
	PlaceType   PlaceType `json:"place_type"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	DistanceKm  float64   `json:"distance_km"`
}

// DisplayName joins the non-empty name parts, most specific first.
func (l *LocationData) DisplayName() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{l.District, l.Place, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
