package geoindex

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/photocopy/geocoder/internal/errors"
	"github.com/photocopy/geocoder/internal/geo"
	"github.com/photocopy/geocoder/internal/model"
	"golang.org/x/exp/mmap"
)

// maxDecodedBlockSize bounds a decompressed block: a header plus entries
// addressed by a 16-bit pool offset, plus a pool addressed by 16-bit offsets.
const maxDecodedBlockSize = 1 << 18

// CellLoader decodes cell blocks from the memory-mapped data file.
// LoadCell is safe for concurrent use.
type CellLoader struct {
	path      string
	reader    *mmap.ReaderAt
	size      int64
	countries []CountryEntry
}

// OpenCellLoader maps the data file. The file size must equal the size
// recorded in the index header.
func OpenCellLoader(path string, expectedSize int64, countries []CountryEntry) (*CellLoader, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	size := int64(r.Len())
	if size != expectedSize {
		r.Close()
		return nil, errors.CorruptedData(
			fmt.Sprintf("data file %s is %d bytes, index expects %d", path, size, expectedSize), nil).
			WithDetail("path", path)
	}

	return &CellLoader{
		path:      path,
		reader:    r,
		size:      size,
		countries: countries,
	}, nil
}

// LoadCell reads, decompresses and parses the block described by entry.
func (l *CellLoader) LoadCell(entry CellIndexEntry, hash string) (*GeoCell, error) {
	if entry.End() > uint64(l.size) {
		return nil, errors.CorruptedData(
			fmt.Sprintf("cell %s range [%d, %d) exceeds data file size %d", hash, entry.Offset, entry.End(), l.size), nil).
			WithDetail("geohash", hash)
	}

	compressed := make([]byte, entry.CompressedSize)
	if _, err := l.reader.ReadAt(compressed, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("failed to read cell %s: %w", hash, err)
	}

	br := brotli.NewReader(bytes.NewReader(compressed))
	data, err := io.ReadAll(io.LimitReader(br, maxDecodedBlockSize+1))
	if err != nil {
		return nil, errors.CorruptedData(fmt.Sprintf("failed to decompress cell %s", hash), err).
			WithDetail("geohash", hash)
	}
	if len(data) > maxDecodedBlockSize {
		return nil, errors.CorruptedData(fmt.Sprintf("cell %s decompresses beyond %d bytes", hash, maxDecodedBlockSize), nil).
			WithDetail("geohash", hash)
	}

	cell, err := decodeCell(hash, data, l.countries)
	if err != nil {
		return nil, errors.CorruptedData(fmt.Sprintf("failed to parse cell %s", hash), err).
			WithDetail("geohash", hash)
	}
	return cell, nil
}

// Size returns the data file size in bytes
func (l *CellLoader) Size() int64 {
	return l.size
}

// Close unmaps the data file
func (l *CellLoader) Close() error {
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}

func decodeCell(hash string, data []byte, countries []CountryEntry) (*GeoCell, error) {
	if len(data) < CellBlockHeaderSize {
		return nil, fmt.Errorf("block of %d bytes has no header: %w", len(data), ErrTruncated)
	}
	hdr := decodeCellBlockHeader(data)

	count := int(hdr.EntryCount)
	entriesEnd := CellBlockHeaderSize + count*LocationEntrySize
	poolStart := int(hdr.StringPoolOffset)
	if poolStart < entriesEnd || poolStart > len(data) {
		return nil, fmt.Errorf("string pool offset %d inconsistent with %d entries in %d bytes",
			poolStart, count, len(data))
	}
	if int(hdr.CityStartIndex) > count {
		return nil, fmt.Errorf("city start index %d beyond %d entries", hdr.CityStartIndex, count)
	}
	pool := data[poolStart:]

	bounds, err := geo.DecodeBounds(hash)
	if err != nil {
		return nil, err
	}

	entries := make([]LocationEntry, count)
	for i := range entries {
		off := CellBlockHeaderSize + i*LocationEntrySize
		d := decodeLocationEntryDisk(data[off : off+LocationEntrySize])

		if int(d.CountryIndex) >= len(countries) {
			return nil, fmt.Errorf("entry %d: country index %d outside table of %d", i, d.CountryIndex, len(countries))
		}
		pt := model.PlaceType(d.PlaceType)
		if !pt.IsValid() {
			return nil, fmt.Errorf("entry %d: unknown place type %d", i, d.PlaceType)
		}
		if pt.IsCityLevel() != (i >= int(hdr.CityStartIndex)) {
			return nil, fmt.Errorf("entry %d: %s on the wrong side of city start %d", i, pt, hdr.CityStartIndex)
		}
		name, err := readCString(pool, int(d.NameOffset))
		if err != nil {
			return nil, fmt.Errorf("entry %d name: %w", i, err)
		}
		state, err := readCString(pool, int(d.StateOffset))
		if err != nil {
			return nil, fmt.Errorf("entry %d state: %w", i, err)
		}

		country := countries[d.CountryIndex]
		entries[i] = LocationEntry{
			Latitude:    fromMicro(d.LatMicro),
			Longitude:   fromMicro(d.LonMicro),
			Name:        name,
			State:       state,
			Country:     country.Name,
			CountryCode: country.Code,
			PlaceType:   pt,
		}
	}

	return &GeoCell{
		Geohash:              hash,
		Bounds:               bounds,
		Entries:              entries,
		CityStartIndex:       int(hdr.CityStartIndex),
		EstimatedMemoryBytes: estimateMemory(hash, entries),
	}, nil
}
