package main

import (
	"strings"
	"testing"

	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParsePlace(t *testing.T) {
	p, err := parsePlace([]string{"Paris", "48.8566", "2.3522", "fr", "", "Île-de-France", "Capital"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", p.Name)
	assert.Equal(t, "FR", p.CountryCode)
	assert.NotEmpty(t, p.CountryName)
	assert.Equal(t, model.PlaceTypeCapital, p.PlaceType)
	assert.InDelta(t, 48.8566, p.Latitude, 1e-9)

	tests := []struct {
		name   string
		record []string
	}{
		{"bad lat", []string{"X", "north", "2", "FR", "France", "", "city"}},
		{"bad lon", []string{"X", "1", "", "FR", "France", "", "city"}},
		{"unknown country", []string{"X", "1", "2", "Q1", "Nowhere", "", "city"}},
		{"unknown place type", []string{"X", "1", "2", "FR", "France", "", "hamlet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePlace(tt.record)
			assert.Error(t, err)
		})
	}
}

func TestReadPlaces(t *testing.T) {
	input := strings.Join([]string{
		"# name\tlat\tlon\tcc\tcountry\tstate\ttype",
		"Paris\t48.8566\t2.3522\tFR\tFrance\tÎle-de-France\tcapital",
		"Brussels\t50.8503\t4.3517\tBE\tBelgium\tBrussels\tcapital",
		"Broken\t95\t2\tFR\tFrance\t\tcity",
		"",
	}, "\n")

	w := geoindex.NewWriter(geoindex.WriterConfig{Precision: 3})
	skipped, err := readPlaces(strings.NewReader(input), w, false, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, w.Len())

	w = geoindex.NewWriter(geoindex.WriterConfig{Precision: 3})
	_, err = readPlaces(strings.NewReader(input), w, true, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4")
}
