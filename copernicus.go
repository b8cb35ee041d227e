package terrainmesh

import (
	"fmt"
	"io/fs"
	"math"
	"slices"
)

// CopernicusTileName returns the name of the Copernicus DEM tile containing
// (lat, lon) for the product code resolution, for example
// Copernicus_DSM_COG_10_N47_00_E013_00_DEM. Degrees are truncated towards
// zero and the hemisphere is taken from the sign, so the first degree south
// of the equator is named S00.
func CopernicusTileName(lat, lon float64, resolution int) string {
	latPrefix := 'N'
	if lat < 0 {
		latPrefix = 'S'
	}
	lonPrefix := 'E'
	if lon < 0 {
		lonPrefix = 'W'
	}
	latDeg := int(math.Abs(float64(int(lat))))
	lonDeg := int(math.Abs(float64(int(lon))))
	return fmt.Sprintf("Copernicus_DSM_COG_%d_%c%02d_00_%c%03d_00_DEM", resolution, latPrefix, latDeg, lonPrefix, lonDeg)
}

// copernicusTileFilenames returns the local filenames under which the tile
// key may have been downloaded: the bare tile, the bucket layout, and the
// bucket layout flattened into a single directory.
func copernicusTileFilenames(key string) []string {
	return []string{
		key + ".tif",
		key + "/" + key + ".tif",
		key + "_" + key + ".tif",
	}
}

// NewCopernicusDEM returns a TileSet of Copernicus DEM tiles in fsys.
// resolution is the product code in the tile names: 10 for the 1 arc second
// (30m) product and 30 for the 3 arc second (90m) product.
func NewCopernicusDEM(fsys fs.FS, resolution int, options ...TileSetOption) (*TileSet, error) {
	return NewTileSet(slices.Concat(
		[]TileSetOption{
			WithFS(fsys),
			WithTileKeyFunc(func(lat, lon float64) string {
				return CopernicusTileName(lat, lon, resolution)
			}),
			WithTileFilenamesFunc(copernicusTileFilenames),
		},
		options,
	)...)
}
