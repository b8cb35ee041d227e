package terrainmesh

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestGeoTransform_Invert(t *testing.T) {
	for _, gt := range []GeoTransform{
		{13, 0.0008333, 0, 48, 0, -0.0008333},
		{-156, 0.25, 0.01, -89, 0.02, -0.5},
	} {
		inv, err := gt.Invert()
		assert.NoError(t, err)
		for _, pixel := range [][2]float64{{0, 0}, {10, 20}, {3600.5, 1.25}} {
			x, y := gt.Apply(pixel[0], pixel[1])
			col, row := inv.Apply(x, y)
			assert.True(t, math.Abs(col-pixel[0]) < 1e-6)
			assert.True(t, math.Abs(row-pixel[1]) < 1e-6)
		}
	}

	_, err := GeoTransform{0, 1, 2, 0, 2, 4}.Invert()
	assert.IsError(t, err, ErrNotInvertible)
}

func TestNewPixelWindow(t *testing.T) {
	for _, tc := range []struct {
		name     string
		gt       GeoTransform
		lat      float64
		lon      float64
		areaKM   float64
		expected PixelWindow
	}{
		{
			name:     "thirty_meters",
			gt:       GeoTransform{13, 0.0008333, 0, 48, 0, -0.0008333},
			lat:      47.5,
			lon:      13.5,
			areaKM:   1,
			expected: PixelWindow{OffsetX: 595, OffsetY: 595, Width: 10, Height: 10},
		},
		{
			name:     "rectangular_pixels",
			gt:       GeoTransform{0, 0.01, 0, 10, 0, -0.02},
			lat:      9,
			lon:      1,
			areaKM:   11.1,
			expected: PixelWindow{OffsetX: 96, OffsetY: 48, Width: 8, Height: 4},
		},
		{
			name:     "outside_raster",
			gt:       GeoTransform{13, 0.0008333, 0, 48, 0, -0.0008333},
			lat:      48.001,
			lon:      12.999,
			areaKM:   1,
			expected: PixelWindow{OffsetX: -6, OffsetY: -6, Width: 10, Height: 10},
		},
		{
			name:     "minimum_size",
			gt:       GeoTransform{0, 1, 0, 0, 0, -1},
			lat:      -2.5,
			lon:      2.5,
			areaKM:   1,
			expected: PixelWindow{OffsetX: 2, OffsetY: 2, Width: 1, Height: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := NewPixelWindow(tc.gt, tc.lat, tc.lon, tc.areaKM)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestPixelWindow_Contains(t *testing.T) {
	assert.True(t, PixelWindow{Width: 4, Height: 3}.Contains(4, 3))
	assert.False(t, PixelWindow{OffsetX: 1, Width: 4, Height: 3}.Contains(4, 3))
	assert.False(t, PixelWindow{OffsetY: -1, Width: 1, Height: 1}.Contains(4, 3))
}
