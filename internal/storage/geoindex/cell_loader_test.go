package geoindex

import (
	"context"
	"os"
	"testing"

	"github.com/photocopy/geocoder/internal/errors"
	"github.com/photocopy/geocoder/internal/geo"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFixture(t *testing.T) (*SpatialIndex, *CellLoader, string) {
	t.Helper()
	indexPath, dataPath := writeFixture(t, parisPlaces)

	idx, err := LoadSpatialIndex(context.Background(), indexPath)
	require.NoError(t, err)
	loader, err := OpenCellLoader(dataPath, idx.Header().DataFileSize, idx.Countries())
	require.NoError(t, err)
	t.Cleanup(func() { loader.Close() })
	return idx, loader, dataPath
}

func TestCellLoader_LoadCell(t *testing.T) {
	idx, loader, _ := openFixture(t)

	hash := geo.Encode(48.8566, 2.3522, fixturePrecision)
	entry, ok := idx.TryGetCell(hash)
	require.True(t, ok)

	cell, err := loader.LoadCell(entry, hash)
	require.NoError(t, err)

	assert.Equal(t, hash, cell.Geohash)
	require.Len(t, cell.Entries, 3)
	assert.Equal(t, 1, cell.CityStartIndex)
	assert.Greater(t, cell.EstimatedMemoryBytes, int64(3*entryOverheadBytes))

	districts := cell.Districts()
	require.Len(t, districts, 1)
	assert.Equal(t, "Montmartre", districts[0].Name)
	assert.Equal(t, model.PlaceTypeDistrict, districts[0].PlaceType)

	cities := cell.Cities()
	require.Len(t, cities, 2)
	for _, c := range cities {
		assert.True(t, c.PlaceType.IsCityLevel())
		assert.Equal(t, "France", c.Country)
		assert.Equal(t, "FR", c.CountryCode)
		assert.Equal(t, "Île-de-France", c.State)
		assert.True(t, cell.Bounds.Contains(c.Latitude, c.Longitude))
	}
	assert.InDelta(t, 48.8566, cities[1].Latitude, 1e-6)
	assert.Equal(t, "Paris", cities[1].Name)
}

func TestCellLoader_SizeMismatch(t *testing.T) {
	idx, _, dataPath := openFixture(t)

	_, err := OpenCellLoader(dataPath, idx.Header().DataFileSize+1, idx.Countries())
	assert.True(t, errors.IsCorrupted(err), "got %v", err)
}

func TestCellLoader_RangeBeyondFile(t *testing.T) {
	_, loader, _ := openFixture(t)

	_, err := loader.LoadCell(CellIndexEntry{Offset: uint64(loader.Size()) - 2, CompressedSize: 10}, "u09")
	assert.True(t, errors.IsCorrupted(err), "got %v", err)
}

func TestCellLoader_CorruptBlock(t *testing.T) {
	idx, _, dataPath := openFixture(t)

	hash := geo.Encode(48.8566, 2.3522, fixturePrecision)
	entry, ok := idx.TryGetCell(hash)
	require.True(t, ok)

	raw, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	for i := entry.Offset; i < entry.End(); i++ {
		raw[i] = 0xff
	}
	require.NoError(t, os.WriteFile(dataPath, raw, 0644))

	loader, err := OpenCellLoader(dataPath, idx.Header().DataFileSize, idx.Countries())
	require.NoError(t, err)
	defer loader.Close()

	_, err = loader.LoadCell(entry, hash)
	assert.True(t, errors.IsCorrupted(err), "got %v", err)

	other := geo.Encode(50.8503, 4.3517, fixturePrecision)
	otherEntry, ok := idx.TryGetCell(other)
	require.True(t, ok)
	cell, err := loader.LoadCell(otherEntry, other)
	require.NoError(t, err, "one corrupt block does not affect its neighbours")
	assert.Equal(t, "Brussels", cell.Entries[0].Name)
}

func TestDecodeCell_Inconsistent(t *testing.T) {
	countries := []CountryEntry{{Code: "FR", Name: "France"}}

	block := func(h CellBlockHeader, entries []LocationEntryDisk, pool string) []byte {
		buf := make([]byte, CellBlockHeaderSize+len(entries)*LocationEntrySize)
		h.encode(buf)
		for i, e := range entries {
			e.encode(buf[CellBlockHeaderSize+i*LocationEntrySize:])
		}
		return append(buf, pool...)
	}
	city := LocationEntryDisk{NameOffset: 1, PlaceType: uint8(model.PlaceTypeCity)}
	poolOff := uint16(CellBlockHeaderSize + LocationEntrySize)

	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{1, 0}},
		{"pool offset inside entries", block(CellBlockHeader{EntryCount: 1, StringPoolOffset: 10}, []LocationEntryDisk{city}, "\x00A\x00")},
		{"pool offset past end", block(CellBlockHeader{EntryCount: 1, StringPoolOffset: 500}, []LocationEntryDisk{city}, "\x00A\x00")},
		{"city start past count", block(CellBlockHeader{EntryCount: 1, CityStartIndex: 2, StringPoolOffset: poolOff}, []LocationEntryDisk{city}, "\x00A\x00")},
		{"city before city start", block(CellBlockHeader{EntryCount: 1, CityStartIndex: 1, StringPoolOffset: poolOff}, []LocationEntryDisk{city}, "\x00A\x00")},
		{"unknown country", block(CellBlockHeader{EntryCount: 1, StringPoolOffset: poolOff},
			[]LocationEntryDisk{{NameOffset: 1, CountryIndex: 3, PlaceType: uint8(model.PlaceTypeCity)}}, "\x00A\x00")},
		{"unknown place type", block(CellBlockHeader{EntryCount: 1, CityStartIndex: 1, StringPoolOffset: poolOff},
			[]LocationEntryDisk{{NameOffset: 1, PlaceType: 9}}, "\x00A\x00")},
		{"unterminated name", block(CellBlockHeader{EntryCount: 1, StringPoolOffset: poolOff}, []LocationEntryDisk{city}, "\x00A")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCell("u09", tt.data, countries)
			assert.Error(t, err)
		})
	}

	cell, err := decodeCell("u09", block(CellBlockHeader{EntryCount: 1, StringPoolOffset: poolOff}, []LocationEntryDisk{city}, "\x00A\x00"), countries)
	require.NoError(t, err)
	assert.Equal(t, "A", cell.Entries[0].Name)
	assert.Empty(t, cell.Entries[0].State)
}
