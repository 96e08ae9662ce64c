package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownHashes(t *testing.T) {
	tests := []struct {
		name      string
		lat, lon  float64
		precision int
		want      string
	}{
		{"jutland", 57.64911, 10.40744, 11, "u4pruydqqvj"},
		{"jutland truncated", 57.64911, 10.40744, 4, "u4pr"},
		{"paris", 48.8566, 2.3522, 4, "u09t"},
		{"precision floor", 48.8566, 2.3522, 0, "u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.lat, tt.lon, tt.precision))
		})
	}
}

func TestDecodeBounds_ContainsEncodedPoint(t *testing.T) {
	for lat := -89.5; lat <= 89.5; lat += 7.3 {
		for lon := -179.5; lon <= 179.5; lon += 11.9 {
			for precision := 1; precision <= 8; precision++ {
				hash := Encode(lat, lon, precision)
				bounds, err := DecodeBounds(hash)
				require.NoError(t, err)
				assert.Truef(t, bounds.Contains(lat, lon), "%s does not contain (%v, %v)", hash, lat, lon)
			}
		}
	}
}

func TestDecodeBounds_Invalid(t *testing.T) {
	for _, hash := range []string{"", "u09a", "U09T"} {
		_, err := DecodeBounds(hash)
		assert.Error(t, err, hash)
	}
}

func TestPackHash(t *testing.T) {
	code, err := PackHash("u09t")
	require.NoError(t, err)
	assert.Equal(t, "u09t", UnpackHash(code, 4))
	assert.Equal(t, code, EncodeToUInt32(48.8566, 2.3522, 4))

	a, _ := PackHash("u09t")
	b, _ := PackHash("u09w")
	assert.Less(t, a, b, "packed codes sort like their strings")

	_, err = PackHash("u09tvw0")
	assert.Error(t, err)
	_, err = PackHash("u0!t")
	assert.Error(t, err)
	assert.Empty(t, UnpackHash(code, 7))
}

func TestGetCellAndNeighbors(t *testing.T) {
	t.Run("interior cell", func(t *testing.T) {
		cells, err := GetCellAndNeighbors("u09t")
		require.NoError(t, err)
		require.Len(t, cells, 9)
		assert.Equal(t, "u09t", cells[0])

		center, _ := DecodeBounds("u09t")
		seen := map[string]bool{}
		for _, c := range cells {
			assert.False(t, seen[c], "duplicate %s", c)
			seen[c] = true
			assert.Len(t, c, 4)

			b, err := DecodeBounds(c)
			require.NoError(t, err)
			assert.True(t, b.Intersects(center), "%s does not touch u09t", c)
		}
	})

	t.Run("antimeridian wraps", func(t *testing.T) {
		east := Encode(0.1, 179.99, 4)
		cells, err := GetCellAndNeighbors(east)
		require.NoError(t, err)
		assert.Len(t, cells, 9)
		assert.Contains(t, cells, Encode(0.1, -179.99, 4))
	})

	t.Run("north pole row", func(t *testing.T) {
		top := Encode(89.99, 10, 4)
		cells, err := GetCellAndNeighbors(top)
		require.NoError(t, err)
		assert.Len(t, cells, 6, "no cells north of the pole")
		assert.Equal(t, top, cells[0])
	})

	t.Run("invalid hash", func(t *testing.T) {
		_, err := GetCellAndNeighbors("ai")
		assert.Error(t, err)
	})
}

func BenchmarkEncodeToUInt32(b *testing.B) {
	for i := 0; i < b.N; i++ {
		EncodeToUInt32(48.8566, 2.3522, 4)
	}
}
