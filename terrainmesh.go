// Package terrainmesh converts digital elevation model rasters into binary
// STL solids.
package terrainmesh

import (
	"context"
	"errors"
)

// KilometersPerDegree is the fixed approximation used to convert between
// ground distances and degrees.
const KilometersPerDegree = 111.0

var (
	// ErrInvalidRequest is returned when a Request fails validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrWindowOutOfBounds is returned when a pixel window extends beyond a
	// raster.
	ErrWindowOutOfBounds = errors.New("window out of bounds")
	// ErrNotInvertible is returned when a GeoTransform cannot be inverted.
	ErrNotInvertible = errors.New("geotransform not invertible")
)

// A Coord is a pixel coordinate.
type Coord struct {
	X int
	Y int
}

// A TileCoord is a tile coordinate.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A Raster is a source of elevation samples.
type Raster interface {
	GeoTransform() GeoTransform
	Size() (int, int)
	NoData() (float64, bool)
	ReadWindow(ctx context.Context, window PixelWindow, stride int) ([][]float64, error)
}
