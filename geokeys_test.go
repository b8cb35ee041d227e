package terrainmesh

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseGeoKeys(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 7,
		1024, 0, 1, 2,
		1025, 0, 1, 2,
		1026, 34737, 7, 0,
		2048, 0, 1, 4326,
		2054, 0, 1, 9102,
		2057, 34736, 1, 0,
		2059, 34736, 1, 1,
	}
	doubleParams := []float64{
		6378137,
		298.257223563,
	}
	asciiParams := []byte("WGS 84|")

	actual, err := ParseGeoKeys(directory, doubleParams, asciiParams)
	assert.NoError(t, err)

	assert.Equal(t, &ParsedGeoKeys{
		Params: map[GeoKey]int{
			GeoKeyGTModelType:   2,
			GeoKeyGTRasterType:  RasterPixelIsPoint,
			GeoKeyGeodeticCRS:   4326,
			GeoKeyAngularUnits:  9102,
		},
		DoubleParams: map[GeoKey][]float64{
			GeoKeyEllipsoidSemiMajorAxis: {6378137},
			GeoKeyEllipsoidInvFlattening: {298.257223563},
		},
		ASCIIParams: map[GeoKey]string{
			GeoKeyGTCitation: "WGS 84|",
		},
	}, actual)
	assert.True(t, actual.PixelIsPoint())
}

func TestParseGeoKeys_Errors(t *testing.T) {
	for _, tc := range []struct {
		name         string
		directory    []uint16
		doubleParams []float64
		asciiParams  []byte
		expectedErr  error
	}{
		{
			name:        "short",
			directory:   []uint16{1, 1, 0},
			expectedErr: errParse,
		},
		{
			name:        "version",
			directory:   []uint16{2, 1, 0, 0},
			expectedErr: errParse,
		},
		{
			name:        "count",
			directory:   []uint16{1, 1, 0, 2, 1024, 0, 1, 2},
			expectedErr: errParse,
		},
		{
			name:        "double_out_of_range",
			directory:   []uint16{1, 1, 0, 1, 2057, 34736, 1, 3},
			expectedErr: errParse,
		},
		{
			name:        "ascii_out_of_range",
			directory:   []uint16{1, 1, 0, 1, 1026, 34737, 8, 0},
			asciiParams: []byte("WGS 84|"),
			expectedErr: errParse,
		},
		{
			name:        "unsupported_location",
			directory:   []uint16{1, 1, 0, 1, 1024, 12345, 1, 0},
			expectedErr: errors.ErrUnsupported,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGeoKeys(tc.directory, tc.doubleParams, tc.asciiParams)
			assert.IsError(t, err, tc.expectedErr)
		})
	}
}
