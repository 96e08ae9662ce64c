package validation

import (
	"math"
	"strconv"
	"strings"

	"github.com/photocopy/geocoder/internal/errors"
)

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// ValidateCoordinate checks that the point is finite and inside the
// WGS84 coordinate ranges
func ValidateCoordinate(lat, lon float64) error {
	switch {
	case math.IsNaN(lat) || math.IsInf(lat, 0):
		return errors.InvalidCoordinate(lat, lon, "latitude is not a finite number")
	case math.IsNaN(lon) || math.IsInf(lon, 0):
		return errors.InvalidCoordinate(lat, lon, "longitude is not a finite number")
	case lat < MinLatitude || lat > MaxLatitude:
		return errors.InvalidCoordinate(lat, lon, "latitude must be between -90 and 90")
	case lon < MinLongitude || lon > MaxLongitude:
		return errors.InvalidCoordinate(lat, lon, "longitude must be between -180 and 180")
	}
	return nil
}

// ParseCoordinate parses and validates decimal degree strings
func ParseCoordinate(latStr, lonStr string) (float64, float64, error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return 0, 0, errors.InvalidArgument("lat and lon are required", nil)
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, errors.InvalidArgument("lat is not a number", err).WithDetail("lat", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, errors.InvalidArgument("lon is not a number", err).WithDetail("lon", lonStr)
	}
	if err := ValidateCoordinate(lat, lon); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// ValidateBatch checks a batch size against the configured limit
func ValidateBatch(n, maxSize int) error {
	if n == 0 {
		return errors.InvalidArgument("batch must contain at least one coordinate", nil)
	}
	if maxSize > 0 && n > maxSize {
		return errors.BatchTooLarge(n, maxSize)
	}
	return nil
}
