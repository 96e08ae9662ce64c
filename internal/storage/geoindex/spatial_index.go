package geoindex

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/photocopy/geocoder/internal/errors"
	"github.com/photocopy/geocoder/internal/geo"
	"golang.org/x/exp/mmap"
)

// loadCheckInterval is how many cell entries are parsed between
// cancellation checks
const loadCheckInterval = 4096

// SpatialIndex is the resident part of the index: header, country table
// and the geohash to byte range lookup. It is immutable after load.
type SpatialIndex struct {
	path      string
	header    Header
	countries []CountryEntry
	entries   []CellIndexEntry
	lookup    map[uint32]int
}

// LoadSpatialIndex reads the whole index file into memory.
func LoadSpatialIndex(ctx context.Context, path string) (*SpatialIndex, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer r.Close()

	size := r.Len()
	if size < HeaderSize {
		return nil, errors.CorruptedData(
			fmt.Sprintf("index file %s is %d bytes, smaller than its header", path, size), ErrTruncated)
	}

	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	idx, err := parseSpatialIndex(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.CorruptedData(fmt.Sprintf("invalid index file %s", path), err)
	}
	idx.path = path
	return idx, nil
}

func parseSpatialIndex(ctx context.Context, buf []byte) (*SpatialIndex, error) {
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	pos := HeaderSize
	tableEnd := pos + int(header.CountryCount)*CountryEntrySize
	if tableEnd > len(buf) {
		return nil, fmt.Errorf("country table: %w", ErrTruncated)
	}

	// The name pool holds exactly CountryCount terminated strings.
	poolStart := tableEnd
	poolEnd := poolStart
	for i := 0; i < int(header.CountryCount); i++ {
		for {
			if poolEnd >= len(buf) {
				return nil, fmt.Errorf("country name pool: %w", ErrTruncated)
			}
			poolEnd++
			if buf[poolEnd-1] == 0 {
				break
			}
		}
	}
	pool := buf[poolStart:poolEnd]

	countries := make([]CountryEntry, header.CountryCount)
	for i := range countries {
		off := HeaderSize + i*CountryEntrySize
		code := binary.LittleEndian.Uint16(buf[off : off+2])
		nameOff := int(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
		name, err := readCString(pool, nameOff)
		if err != nil {
			return nil, fmt.Errorf("country %d name: %w", i, err)
		}
		countries[i] = CountryEntry{Code: UnpackCountryCode(code), Name: name}
	}

	cellsStart := poolEnd
	need := int64(header.CellCount) * CellIndexEntrySize
	if int64(len(buf)-cellsStart) < need {
		return nil, fmt.Errorf("cell index needs %d bytes, have %d: %w", need, len(buf)-cellsStart, ErrTruncated)
	}

	entries := make([]CellIndexEntry, header.CellCount)
	lookup := make(map[uint32]int, header.CellCount)
	for i := range entries {
		if i%loadCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		off := cellsStart + i*CellIndexEntrySize
		e := decodeCellIndexEntry(buf[off : off+CellIndexEntrySize])
		if i > 0 && e.Geohash <= entries[i-1].Geohash {
			return nil, fmt.Errorf("cell %d: geohash codes not strictly ascending", i)
		}
		if e.End() > uint64(header.DataFileSize) {
			return nil, fmt.Errorf("cell %d: range [%d, %d) beyond data file size %d",
				i, e.Offset, e.End(), header.DataFileSize)
		}
		entries[i] = e
		lookup[e.Geohash] = i
	}

	return &SpatialIndex{
		header:    header,
		countries: countries,
		entries:   entries,
		lookup:    lookup,
	}, nil
}

// TryGetCell looks up the byte range of a geohash cell. Hashes of a
// different precision than the index never match.
func (s *SpatialIndex) TryGetCell(hash string) (CellIndexEntry, bool) {
	if len(hash) != int(s.header.Precision) {
		return CellIndexEntry{}, false
	}
	code, err := geo.PackHash(hash)
	if err != nil {
		return CellIndexEntry{}, false
	}
	return s.TryGetCellCode(code)
}

// TryGetCellCode looks up a packed geohash code
func (s *SpatialIndex) TryGetCellCode(code uint32) (CellIndexEntry, bool) {
	i, ok := s.lookup[code]
	if !ok {
		return CellIndexEntry{}, false
	}
	return s.entries[i], true
}

// Header returns the decoded index header
func (s *SpatialIndex) Header() Header {
	return s.header
}

// Precision returns the geohash precision of every cell in the index
func (s *SpatialIndex) Precision() int {
	return int(s.header.Precision)
}

// Countries returns the country table indexed by country index
func (s *SpatialIndex) Countries() []CountryEntry {
	return s.countries
}

// CellCount returns the number of indexed cells
func (s *SpatialIndex) CellCount() int {
	return len(s.entries)
}

// Path returns the file the index was loaded from
func (s *SpatialIndex) Path() string {
	return s.path
}
