package geoindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/photocopy/geocoder/internal/model"
	"github.com/stretchr/testify/require"
)

// fixturePrecision puts Paris, Montmartre and Boulogne in one cell
const fixturePrecision = 3

var parisPlaces = []Place{
	{Name: "Paris", State: "Île-de-France", CountryCode: "FR", CountryName: "France",
		Latitude: 48.8566, Longitude: 2.3522, PlaceType: model.PlaceTypeCapital},
	{Name: "Montmartre", State: "Île-de-France", CountryCode: "FR", CountryName: "France",
		Latitude: 48.8867, Longitude: 2.3431, PlaceType: model.PlaceTypeDistrict},
	{Name: "Boulogne-Billancourt", State: "Île-de-France", CountryCode: "FR", CountryName: "France",
		Latitude: 48.8397, Longitude: 2.2399, PlaceType: model.PlaceTypeCity},
	{Name: "Brussels", State: "Brussels-Capital", CountryCode: "BE", CountryName: "Belgium",
		Latitude: 50.8503, Longitude: 4.3517, PlaceType: model.PlaceTypeCapital},
}

// writeFixture writes places into a fresh index pair and returns its paths.
func writeFixture(t *testing.T, places []Place) (indexPath, dataPath string) {
	t.Helper()

	dir := t.TempDir()
	indexPath = filepath.Join(dir, IndexFileName)
	dataPath = filepath.Join(dir, DataFileName)

	w := NewWriter(WriterConfig{Precision: fixturePrecision, BuildTime: time.Unix(1700000000, 0)})
	for _, p := range places {
		require.NoError(t, w.Add(p))
	}
	_, err := w.WriteFiles(indexPath, dataPath)
	require.NoError(t, err)
	return indexPath, dataPath
}
