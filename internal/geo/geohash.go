// Package geo holds the stateless geometry used by the geocoder: geohash
// cells, great-circle distance and country boundary polygons.
package geo

import (
	"fmt"
	"math"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

const (
	// MaxPrecision is the longest geohash Encode produces
	MaxPrecision = 12
	// MaxPackedPrecision is the longest geohash that fits a packed uint32 code
	MaxPackedPrecision = 6
)

var base32Index [256]int8

func init() {
	for i := range base32Index {
		base32Index[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		base32Index[base32Alphabet[i]] = int8(i)
	}
}

// Encode returns the geohash of (lat, lon) at the given precision.
// Out-of-range coordinates are clamped (latitude) or wrapped (longitude).
func Encode(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	hash := geohash.Encode(clampLat(lat), wrapLon(lon))
	if len(hash) > precision {
		hash = hash[:precision]
	}
	return hash
}

// EncodeToUInt32 returns the packed code of the geohash of (lat, lon).
// Precision is limited to MaxPackedPrecision.
func EncodeToUInt32(lat, lon float64, precision int) uint32 {
	if precision > MaxPackedPrecision {
		precision = MaxPackedPrecision
	}
	code, _ := PackHash(Encode(lat, lon, precision))
	return code
}

// PackHash packs a geohash of up to MaxPackedPrecision characters into
// precision*5 bits. Codes of equal precision sort like their strings.
func PackHash(hash string) (uint32, error) {
	if len(hash) == 0 || len(hash) > MaxPackedPrecision {
		return 0, fmt.Errorf("geohash %q: length must be 1..%d", hash, MaxPackedPrecision)
	}
	var code uint32
	for i := 0; i < len(hash); i++ {
		v := base32Index[hash[i]]
		if v < 0 {
			return 0, fmt.Errorf("geohash %q: invalid character %q", hash, hash[i])
		}
		code = code<<5 | uint32(v)
	}
	return code, nil
}

// UnpackHash is the inverse of PackHash.
func UnpackHash(code uint32, precision int) string {
	if precision < 1 || precision > MaxPackedPrecision {
		return ""
	}
	buf := make([]byte, precision)
	for i := precision - 1; i >= 0; i-- {
		buf[i] = base32Alphabet[code&0x1f]
		code >>= 5
	}
	return string(buf)
}

// IsValidHash reports whether hash consists only of geohash characters.
func IsValidHash(hash string) bool {
	if hash == "" {
		return false
	}
	for i := 0; i < len(hash); i++ {
		if base32Index[hash[i]] < 0 {
			return false
		}
	}
	return true
}

// DecodeBounds returns the rectangle covered by hash.
func DecodeBounds(hash string) (BoundingBox, error) {
	if !IsValidHash(hash) {
		return BoundingBox{}, fmt.Errorf("invalid geohash %q", hash)
	}
	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	evenBit := true
	for i := 0; i < len(hash); i++ {
		v := base32Index[hash[i]]
		for bit := 4; bit >= 0; bit-- {
			set := v>>uint(bit)&1 == 1
			if evenBit {
				mid := (minLon + maxLon) / 2
				if set {
					minLon = mid
				} else {
					maxLon = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if set {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			evenBit = !evenBit
		}
	}
	return BoundingBox{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}

// neighbourOffsets lists the cell itself followed by N, NE, E, SE, S, SW, W, NW.
var neighbourOffsets = [9][2]float64{
	{0, 0},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// GetCellAndNeighbors returns hash followed by its compass neighbours.
// Longitude wraps across the antimeridian. Cells touching a pole have no
// neighbours beyond it, so fewer than 9 distinct hashes come back there.
func GetCellAndNeighbors(hash string) ([]string, error) {
	bounds, err := DecodeBounds(hash)
	if err != nil {
		return nil, err
	}
	height := bounds.MaxLat - bounds.MinLat
	width := bounds.MaxLon - bounds.MinLon
	center := bounds.Center()

	cells := make([]string, 0, len(neighbourOffsets))
	seen := make(map[string]struct{}, len(neighbourOffsets))
	for _, off := range neighbourOffsets {
		lat := center.Lat + off[0]*height
		if lat > 90 || lat < -90 {
			continue
		}
		n := Encode(lat, center.Lon+off[1]*width, len(hash))
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		cells = append(cells, n)
	}
	return cells, nil
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
