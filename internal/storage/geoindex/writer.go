package geoindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/photocopy/geocoder/internal/geo"
	"github.com/photocopy/geocoder/internal/model"
)

const (
	// DefaultPrecision gives cells of roughly 39 x 20 km
	DefaultPrecision = 4
	// DefaultCompressionLevel is the Brotli quality used for cell blocks
	DefaultCompressionLevel = 9

	maxPoolSize = math.MaxUint16 + 1
)

// Place is one input record for the index writer
type Place struct {
	Name        string
	State       string
	CountryCode string
	CountryName string
	Latitude    float64
	Longitude   float64
	PlaceType   model.PlaceType
}

// WriterConfig holds index writer configuration
type WriterConfig struct {
	Precision        int
	CompressionLevel int
	BuildTime        time.Time
}

// Writer accumulates places and writes a consistent .geoindex/.geodata pair
type Writer struct {
	config    WriterConfig
	places    []Place
	countries map[string]string
}

// BuildStats summarises a completed write
type BuildStats struct {
	Cells         int
	Locations     int
	Countries     int
	DataFileSize  int64
	IndexFileSize int64
}

// NewWriter creates a new index writer
func NewWriter(cfg WriterConfig) *Writer {
	if cfg.Precision <= 0 {
		cfg.Precision = DefaultPrecision
	}
	if cfg.CompressionLevel <= 0 {
		cfg.CompressionLevel = DefaultCompressionLevel
	}
	if cfg.BuildTime.IsZero() {
		cfg.BuildTime = time.Now()
	}
	return &Writer{
		config:    cfg,
		countries: make(map[string]string),
	}
}

// Add validates and queues a place
func (w *Writer) Add(p Place) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("place name is empty")
	}
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 ||
		math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("place %q: coordinate (%v, %v) out of range", p.Name, p.Latitude, p.Longitude)
	}
	if !p.PlaceType.IsValid() {
		return fmt.Errorf("place %q: unknown place type %d", p.Name, p.PlaceType)
	}
	if _, err := PackCountryCode(p.CountryCode); err != nil {
		return fmt.Errorf("place %q: %w", p.Name, err)
	}
	if strings.ContainsRune(p.Name, 0) || strings.ContainsRune(p.State, 0) || strings.ContainsRune(p.CountryName, 0) {
		return fmt.Errorf("place %q: names must not contain NUL", p.Name)
	}

	p.CountryCode = strings.ToUpper(p.CountryCode)
	if _, ok := w.countries[p.CountryCode]; !ok {
		if len(w.countries) >= MaxCountries {
			return fmt.Errorf("more than %d countries", MaxCountries)
		}
		name := p.CountryName
		if name == "" {
			name = p.CountryCode
		}
		w.countries[p.CountryCode] = name
	}
	w.places = append(w.places, p)
	return nil
}

// Len returns the number of queued places
func (w *Writer) Len() int {
	return len(w.places)
}

// WriteFiles writes the data file then the index file.
func (w *Writer) WriteFiles(indexPath, dataPath string) (*BuildStats, error) {
	if w.config.Precision > geo.MaxPackedPrecision {
		return nil, fmt.Errorf("precision %d exceeds %d", w.config.Precision, geo.MaxPackedPrecision)
	}

	countries, countryIndex := w.countryTable()
	cells := w.groupByCell()

	codes := make([]uint32, 0, len(cells))
	for code := range cells {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create data file: %w", err)
	}
	defer dataFile.Close()
	dataWriter := bufio.NewWriter(dataFile)

	entries := make([]CellIndexEntry, 0, len(codes))
	var offset uint64
	for _, code := range codes {
		hash := geo.UnpackHash(code, w.config.Precision)
		block, err := encodeCellBlock(cells[code], countryIndex)
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", hash, err)
		}
		compressed, err := w.compress(block)
		if err != nil {
			return nil, fmt.Errorf("failed to compress cell %s: %w", hash, err)
		}
		if _, err := dataWriter.Write(compressed); err != nil {
			return nil, fmt.Errorf("failed to write cell %s: %w", hash, err)
		}
		entries = append(entries, CellIndexEntry{
			Geohash:        code,
			Offset:         offset,
			CompressedSize: uint32(len(compressed)),
		})
		offset += uint64(len(compressed))
	}
	if err := dataWriter.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush data file: %w", err)
	}
	if err := dataFile.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync data file: %w", err)
	}

	header := Header{
		Magic:          Magic,
		Version:        Version,
		Precision:      uint8(w.config.Precision),
		CountryCount:   uint8(len(countries)),
		CellCount:      uint32(len(entries)),
		LocationCount:  uint32(len(w.places)),
		BuildTimestamp: w.config.BuildTime.Unix(),
		DataFileSize:   int64(offset),
	}
	indexBytes, err := encodeIndex(header, countries, entries)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(indexPath, indexBytes, 0644); err != nil {
		return nil, fmt.Errorf("failed to write index file: %w", err)
	}

	return &BuildStats{
		Cells:         len(entries),
		Locations:     len(w.places),
		Countries:     len(countries),
		DataFileSize:  int64(offset),
		IndexFileSize: int64(len(indexBytes)),
	}, nil
}

func (w *Writer) countryTable() ([]CountryEntry, map[string]uint8) {
	codes := make([]string, 0, len(w.countries))
	for code := range w.countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	table := make([]CountryEntry, len(codes))
	index := make(map[string]uint8, len(codes))
	for i, code := range codes {
		table[i] = CountryEntry{Code: code, Name: w.countries[code]}
		index[code] = uint8(i)
	}
	return table, index
}

// groupByCell buckets places by the geohash of their stored coordinates,
// so rounding to micro-degrees cannot move a place out of its cell.
func (w *Writer) groupByCell() map[uint32][]Place {
	cells := make(map[uint32][]Place)
	for _, p := range w.places {
		p.Latitude = fromMicro(toMicro(p.Latitude))
		p.Longitude = fromMicro(toMicro(p.Longitude))
		code := geo.EncodeToUInt32(p.Latitude, p.Longitude, w.config.Precision)
		cells[code] = append(cells[code], p)
	}
	return cells
}

func (w *Writer) compress(block []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriterLevel(&buf, w.config.CompressionLevel)
	if _, err := bw.Write(block); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeCellBlock lays out district-level places first, then city-level
// ones. Pool offset 0 is the empty string.
func encodeCellBlock(places []Place, countryIndex map[string]uint8) ([]byte, error) {
	sorted := make([]Place, len(places))
	copy(sorted, places)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].PlaceType.IsCityLevel(), sorted[j].PlaceType.IsCityLevel()
		if ci != cj {
			return !ci
		}
		return sorted[i].Name < sorted[j].Name
	})

	poolOffset := CellBlockHeaderSize + len(sorted)*LocationEntrySize
	if poolOffset > math.MaxUint16 {
		return nil, fmt.Errorf("%d places do not fit one block", len(sorted))
	}

	pool := []byte{0}
	interned := map[string]uint16{"": 0}
	intern := func(s string) (uint16, error) {
		if off, ok := interned[s]; ok {
			return off, nil
		}
		if len(pool)+len(s)+1 > maxPoolSize {
			return 0, fmt.Errorf("string pool exceeds %d bytes", maxPoolSize)
		}
		off := uint16(len(pool))
		pool = append(pool, s...)
		pool = append(pool, 0)
		interned[s] = off
		return off, nil
	}

	block := make([]byte, poolOffset)
	cityStart := len(sorted)
	for i, p := range sorted {
		if p.PlaceType.IsCityLevel() && i < cityStart {
			cityStart = i
		}
		nameOff, err := intern(p.Name)
		if err != nil {
			return nil, err
		}
		stateOff, err := intern(p.State)
		if err != nil {
			return nil, err
		}
		LocationEntryDisk{
			LatMicro:     toMicro(p.Latitude),
			LonMicro:     toMicro(p.Longitude),
			NameOffset:   nameOff,
			StateOffset:  stateOff,
			CountryIndex: countryIndex[p.CountryCode],
			PlaceType:    uint8(p.PlaceType),
		}.encode(block[CellBlockHeaderSize+i*LocationEntrySize:])
	}

	CellBlockHeader{
		EntryCount:       uint16(len(sorted)),
		CityStartIndex:   uint16(cityStart),
		StringPoolOffset: uint16(poolOffset),
	}.encode(block)

	return append(block, pool...), nil
}

func encodeIndex(header Header, countries []CountryEntry, entries []CellIndexEntry) ([]byte, error) {
	var buf bytes.Buffer
	hb, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf.Write(hb)

	var pool []byte
	table := make([]byte, len(countries)*CountryEntrySize)
	for i, c := range countries {
		code, err := PackCountryCode(c.Code)
		if err != nil {
			return nil, err
		}
		if len(pool) > math.MaxUint16 {
			return nil, fmt.Errorf("country name pool exceeds %d bytes", math.MaxUint16)
		}
		binary.LittleEndian.PutUint16(table[i*CountryEntrySize:], code)
		binary.LittleEndian.PutUint16(table[i*CountryEntrySize+2:], uint16(len(pool)))
		pool = append(pool, c.Name...)
		pool = append(pool, 0)
	}
	buf.Write(table)
	buf.Write(pool)

	entry := make([]byte, CellIndexEntrySize)
	for _, e := range entries {
		e.encode(entry)
		buf.Write(entry)
	}
	return buf.Bytes(), nil
}
