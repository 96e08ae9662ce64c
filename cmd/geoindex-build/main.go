package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"go.uber.org/zap"
)

const usage = `geoindex-build builds geo.geoindex and geo.geodata from a TSV of places.

Columns: name, lat, lon, country_code, country_name, state, place_type
Lines starting with # are ignored.

Usage: geoindex-build [flags] places.tsv
`

func main() {
	var (
		outDir    = flag.String("out", ".", "output directory")
		precision = flag.Int("precision", geoindex.DefaultPrecision, "geohash cell precision (1-6)")
		level     = flag.Int("level", geoindex.DefaultCompressionLevel, "Brotli quality (1-11)")
		strict    = flag.Bool("strict", false, "fail on the first invalid row instead of skipping it")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	input := flag.Arg(0)
	f, err := os.Open(input)
	if err != nil {
		logger.Fatal("Failed to open input", zap.String("path", input), zap.Error(err))
	}
	defer f.Close()

	w := geoindex.NewWriter(geoindex.WriterConfig{Precision: *precision, CompressionLevel: *level})
	skipped, err := readPlaces(f, w, *strict, logger)
	if err != nil {
		logger.Fatal("Failed to read places", zap.String("path", input), zap.Error(err))
	}
	if w.Len() == 0 {
		logger.Fatal("No valid places in input", zap.String("path", input))
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal("Failed to create output directory", zap.String("dir", *outDir), zap.Error(err))
	}
	stats, err := w.WriteFiles(
		filepath.Join(*outDir, geoindex.IndexFileName),
		filepath.Join(*outDir, geoindex.DataFileName))
	if err != nil {
		logger.Fatal("Failed to write index", zap.Error(err))
	}

	logger.Info("Index built",
		zap.String("dir", *outDir),
		zap.Int("precision", *precision),
		zap.Int("cells", stats.Cells),
		zap.Int("locations", stats.Locations),
		zap.Int("countries", stats.Countries),
		zap.Int("skipped", skipped),
		zap.Int64("index_bytes", stats.IndexFileSize),
		zap.Int64("data_bytes", stats.DataFileSize))
}

// readPlaces feeds every valid row to w and returns the number of skipped rows
func readPlaces(r io.Reader, w *geoindex.Writer, strict bool, logger *zap.Logger) (int, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 7
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	skipped := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		var line int
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return skipped, err
			}
			line = parseErr.Line
		} else {
			line, _ = cr.FieldPos(0)
			var place geoindex.Place
			if place, err = parsePlace(record); err == nil {
				err = w.Add(place)
			}
		}
		if err != nil {
			if strict {
				return skipped, fmt.Errorf("line %d: %w", line, err)
			}
			logger.Warn("Skipping row", zap.Int("line", line), zap.Error(err))
			skipped++
		}
	}
}

func parsePlace(record []string) (geoindex.Place, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return geoindex.Place{}, fmt.Errorf("invalid lat %q", record[1])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return geoindex.Place{}, fmt.Errorf("invalid lon %q", record[2])
	}

	code := strings.ToUpper(strings.TrimSpace(record[3]))
	country := countries.ByName(code)
	if country == countries.Unknown {
		return geoindex.Place{}, fmt.Errorf("unknown country code %q", record[3])
	}
	countryName := strings.TrimSpace(record[4])
	if countryName == "" {
		countryName = country.Info().Name
	}

	placeType, ok := model.ParsePlaceType(strings.ToLower(strings.TrimSpace(record[6])))
	if !ok {
		return geoindex.Place{}, fmt.Errorf("unknown place type %q", record[6])
	}

	return geoindex.Place{
		Name:        strings.TrimSpace(record[0]),
		Latitude:    lat,
		Longitude:   lon,
		CountryCode: code,
		CountryName: countryName,
		State:       strings.TrimSpace(record[5]),
		PlaceType:   placeType,
	}, nil
}
