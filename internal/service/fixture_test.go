package service_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/service"
	"github.com/photocopy/geocoder/internal/storage/geoindex"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixturePrecision puts Paris, Montmartre and Boulogne in one cell
const fixturePrecision = 3

var (
	paris      = geoindex.Place{Name: "Paris", State: "Île-de-France", CountryCode: "FR", CountryName: "France", Latitude: 48.8566, Longitude: 2.3522, PlaceType: model.PlaceTypeCapital}
	montmartre = geoindex.Place{Name: "Montmartre", State: "Île-de-France", CountryCode: "FR", CountryName: "France", Latitude: 48.8867, Longitude: 2.3431, PlaceType: model.PlaceTypeDistrict}
	boulogne   = geoindex.Place{Name: "Boulogne-Billancourt", State: "Île-de-France", CountryCode: "FR", CountryName: "France", Latitude: 48.8397, Longitude: 2.2399, PlaceType: model.PlaceTypeCity}
	brussels   = geoindex.Place{Name: "Brussels", State: "Brussels-Capital", CountryCode: "BE", CountryName: "Belgium", Latitude: 50.8503, Longitude: 4.3517, PlaceType: model.PlaceTypeCapital}

	// A synthetic border along lon 10 between a DE square (lon 9..10) and an
	// AT square (lon 10..11), both spanning lat 0..1.
	westheim  = geoindex.Place{Name: "Westheim", CountryCode: "DE", CountryName: "Germany", Latitude: 0.5, Longitude: 9.90, PlaceType: model.PlaceTypeTown}
	grenzdorf = geoindex.Place{Name: "Grenzdorf", CountryCode: "AT", CountryName: "Austria", Latitude: 0.5, Longitude: 10.02, PlaceType: model.PlaceTypeTown}
	nordgrenz = geoindex.Place{Name: "Nordgrenz", CountryCode: "AT", CountryName: "Austria", Latitude: 0.95, Longitude: 10.05, PlaceType: model.PlaceTypeVillage}
)

var fixturePlaces = []geoindex.Place{paris, montmartre, boulogne, brussels, westheim, grenzdorf, nordgrenz}

const borderBoundaries = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"ISO_A2": "DE", "NAME": "Germany"},
     "geometry": {"type": "Polygon", "coordinates": [[[9,0],[10,0],[10,1],[9,1],[9,0]]]}},
    {"type": "Feature", "properties": {"ISO_A2": "AT", "NAME": "Austria"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,0],[11,0],[11,1],[10,1],[10,0]]]}},
    {"type": "Feature", "properties": {"ISO_A2": "FR", "NAME": "France"},
     "geometry": {"type": "Polygon", "coordinates": [[[1.5,48],[3.5,48],[3.5,49.5],[1.5,49.5],[1.5,48]]]}}
  ]
}`

// writeIndex writes places into dir and returns dir
func writeIndex(t *testing.T, dir string, places []geoindex.Place) string {
	t.Helper()

	w := geoindex.NewWriter(geoindex.WriterConfig{Precision: fixturePrecision, BuildTime: time.Unix(1700000000, 0)})
	for _, p := range places {
		require.NoError(t, w.Add(p))
	}
	_, err := w.WriteFiles(filepath.Join(dir, geoindex.IndexFileName), filepath.Join(dir, geoindex.DataFileName))
	require.NoError(t, err)
	return dir
}

func writeBoundaries(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "countries.geojson")
	require.NoError(t, os.WriteFile(path, []byte(borderBoundaries), 0o644))
	return path
}

func newTiered(t *testing.T, dir string, mutate func(*service.TieredGeocodingConfig)) *service.TieredGeocodingService {
	t.Helper()
	cfg := &service.TieredGeocodingConfig{DataPath: dir}
	if mutate != nil {
		mutate(cfg)
	}
	svc := service.NewTieredGeocodingService(cfg, nil, zap.NewNop())
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}
