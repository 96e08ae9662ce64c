// Package geoindex reads and writes the two-file reverse geocoding index:
// a small resident .geoindex file mapping geohash cells to byte ranges and a
// large .geodata file of Brotli-compressed cell blocks.
//
// All integers are little-endian.
//
//	.geoindex: Header | CountryEntry[CountryCount] | name pool | CellIndexEntry[CellCount]
//	.geodata:  brotli(CellBlockHeader | LocationEntryDisk[EntryCount] | string pool) ...
package geoindex

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/photocopy/geocoder/internal/geo"
)

const (
	// Magic is "GEOI" read as a little-endian uint32
	Magic   uint32 = 0x494F4547
	Version uint16 = 1

	HeaderSize          = 32
	CountryEntrySize    = 4
	CellIndexEntrySize  = 16
	CellBlockHeaderSize = 6
	LocationEntrySize   = 14

	// MaxCountries is bounded by the one-byte country index
	MaxCountries = 255

	microDegrees = 1e6

	// IndexFileName and DataFileName are the names searched for on disk
	IndexFileName = "geo.geoindex"
	DataFileName  = "geo.geodata"
)

var (
	ErrInvalidMagic       = stderrors.New("invalid magic number")
	ErrUnsupportedVersion = stderrors.New("unsupported format version")
	ErrTruncated          = stderrors.New("truncated data")
)

// Header is the fixed prefix of the index file
type Header struct {
	Magic          uint32
	Version        uint16
	Precision      uint8
	CountryCount   uint8
	CellCount      uint32
	LocationCount  uint32
	BuildTimestamp int64
	DataFileSize   int64
}

// MarshalBinary encodes the header into HeaderSize bytes
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = h.Precision
	buf[7] = h.CountryCount
	binary.LittleEndian.PutUint32(buf[8:12], h.CellCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.LocationCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.BuildTimestamp))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.DataFileSize))
	return buf, nil
}

// DecodeHeader parses and validates a header. Magic and version must match
// exactly.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, have %d: %w", HeaderSize, len(buf), ErrTruncated)
	}
	h := Header{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		Version:        binary.LittleEndian.Uint16(buf[4:6]),
		Precision:      buf[6],
		CountryCount:   buf[7],
		CellCount:      binary.LittleEndian.Uint32(buf[8:12]),
		LocationCount:  binary.LittleEndian.Uint32(buf[12:16]),
		BuildTimestamp: int64(binary.LittleEndian.Uint64(buf[16:24])),
		DataFileSize:   int64(binary.LittleEndian.Uint64(buf[24:32])),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("got 0x%08x: %w", h.Magic, ErrInvalidMagic)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("got version %d, want %d: %w", h.Version, Version, ErrUnsupportedVersion)
	}
	if h.Precision < 1 || int(h.Precision) > geo.MaxPackedPrecision {
		return Header{}, fmt.Errorf("geohash precision %d out of range 1..%d", h.Precision, geo.MaxPackedPrecision)
	}
	if h.DataFileSize < 0 {
		return Header{}, fmt.Errorf("negative data file size %d", h.DataFileSize)
	}
	return h, nil
}

// CountryEntry is one row of the country table
type CountryEntry struct {
	Code string
	Name string
}

// PackCountryCode packs a two-letter ASCII code into 16 bits.
func PackCountryCode(code string) (uint16, error) {
	code = strings.ToUpper(code)
	if len(code) != 2 || !isASCIILetter(code[0]) || !isASCIILetter(code[1]) {
		return 0, fmt.Errorf("country code %q must be two ASCII letters", code)
	}
	return uint16(code[0])<<8 | uint16(code[1]), nil
}

// UnpackCountryCode is the inverse of PackCountryCode
func UnpackCountryCode(v uint16) string {
	return string([]byte{byte(v >> 8), byte(v)})
}

func isASCIILetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

// CellIndexEntry locates one compressed cell block in the data file
type CellIndexEntry struct {
	Geohash        uint32
	Offset         uint64
	CompressedSize uint32
}

func (e CellIndexEntry) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.Geohash)
	binary.LittleEndian.PutUint64(buf[4:12], e.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], e.CompressedSize)
}

func decodeCellIndexEntry(buf []byte) CellIndexEntry {
	return CellIndexEntry{
		Geohash:        binary.LittleEndian.Uint32(buf[0:4]),
		Offset:         binary.LittleEndian.Uint64(buf[4:12]),
		CompressedSize: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// End returns the offset just past the block
func (e CellIndexEntry) End() uint64 {
	return e.Offset + uint64(e.CompressedSize)
}

// CellBlockHeader prefixes every decompressed cell block
type CellBlockHeader struct {
	EntryCount       uint16
	CityStartIndex   uint16
	StringPoolOffset uint16
}

func (h CellBlockHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.EntryCount)
	binary.LittleEndian.PutUint16(buf[2:4], h.CityStartIndex)
	binary.LittleEndian.PutUint16(buf[4:6], h.StringPoolOffset)
}

func decodeCellBlockHeader(buf []byte) CellBlockHeader {
	return CellBlockHeader{
		EntryCount:       binary.LittleEndian.Uint16(buf[0:2]),
		CityStartIndex:   binary.LittleEndian.Uint16(buf[2:4]),
		StringPoolOffset: binary.LittleEndian.Uint16(buf[4:6]),
	}
}

// LocationEntryDisk is the fixed-size on-disk location record.
// Coordinates are in micro-degrees; string offsets are relative to the
// block's string pool.
type LocationEntryDisk struct {
	LatMicro     int32
	LonMicro     int32
	NameOffset   uint16
	StateOffset  uint16
	CountryIndex uint8
	PlaceType    uint8
}

func (e LocationEntryDisk) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.LatMicro))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.LonMicro))
	binary.LittleEndian.PutUint16(buf[8:10], e.NameOffset)
	binary.LittleEndian.PutUint16(buf[10:12], e.StateOffset)
	buf[12] = e.CountryIndex
	buf[13] = e.PlaceType
}

func decodeLocationEntryDisk(buf []byte) LocationEntryDisk {
	return LocationEntryDisk{
		LatMicro:     int32(binary.LittleEndian.Uint32(buf[0:4])),
		LonMicro:     int32(binary.LittleEndian.Uint32(buf[4:8])),
		NameOffset:   binary.LittleEndian.Uint16(buf[8:10]),
		StateOffset:  binary.LittleEndian.Uint16(buf[10:12]),
		CountryIndex: buf[12],
		PlaceType:    buf[13],
	}
}

// readCString returns the null-terminated string starting at off in pool.
func readCString(pool []byte, off int) (string, error) {
	if off < 0 || off >= len(pool) {
		return "", fmt.Errorf("string offset %d outside pool of %d bytes", off, len(pool))
	}
	for i := off; i < len(pool); i++ {
		if pool[i] == 0 {
			return string(pool[off:i]), nil
		}
	}
	return "", fmt.Errorf("string at offset %d is not terminated: %w", off, ErrTruncated)
}

func toMicro(deg float64) int32 {
	if deg >= 0 {
		return int32(deg*microDegrees + 0.5)
	}
	return int32(deg*microDegrees - 0.5)
}

func fromMicro(v int32) float64 {
	return float64(v) / microDegrees
}
