package terrainmesh

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	missingTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_missing_tile_cache_hits_total",
		Help: "The total number of hits on the missing tile cache",
	})
	missingTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_missing_tile_cache_misses_total",
		Help: "The total number of misses on the missing tile cache",
	})
	tileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_tile_cache_hits_total",
		Help: "The total number of hits on the tile cache",
	})
	tileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_tile_cache_misses_total",
		Help: "The total number of misses on the tile cache",
	})
	tileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_tile_cache_evictions_total",
		Help: "The total number of evictions from the tile cache",
	})
)

// A TileKeyFunc returns the key of the tile containing a point.
type TileKeyFunc func(lat, lon float64) string

// A TileFilenamesFunc returns the candidate filenames of a tile, in order of
// preference.
type TileFilenamesFunc func(key string) []string

// A TileSet is a directory of GeoTIFF tiles addressed by geographic
// coordinates.
type TileSet struct {
	mutex              sync.Mutex
	fsys               fs.FS
	tileKeyFunc        TileKeyFunc
	tileFilenamesFunc  TileFilenamesFunc
	missingTiles       sync.Map
	geoTIFFTileOptions []GeoTIFFTileOption
	cacheSize          int
	geoTIFFTileCache   *lru.Cache[string, *GeoTIFFTile]
}

// A TileSetOption sets an option on a TileSet.
type TileSetOption func(*TileSet)

// NewTileSet returns a new TileSet with the given options.
func NewTileSet(options ...TileSetOption) (*TileSet, error) {
	s := &TileSet{
		cacheSize: 32,
		tileFilenamesFunc: func(key string) []string {
			return []string{key + ".tif"}
		},
	}
	for _, option := range options {
		option(s)
	}
	if s.fsys == nil || s.tileKeyFunc == nil {
		return nil, errors.New("tile set requires a filesystem and a tile key function")
	}

	var err error
	s.geoTIFFTileCache, err = lru.NewWithEvict(s.cacheSize, func(key string, value *GeoTIFFTile) {
		_ = value.Close()
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func WithCacheSize(cacheSize int) TileSetOption {
	return func(s *TileSet) {
		s.cacheSize = cacheSize
	}
}

func WithFS(fsys fs.FS) TileSetOption {
	return func(s *TileSet) {
		s.fsys = fsys
	}
}

func WithGeoTIFFTileOptions(geoTIFFTileOptions ...GeoTIFFTileOption) TileSetOption {
	return func(s *TileSet) {
		s.geoTIFFTileOptions = geoTIFFTileOptions
	}
}

func WithTileKeyFunc(tileKeyFunc TileKeyFunc) TileSetOption {
	return func(s *TileSet) {
		s.tileKeyFunc = tileKeyFunc
	}
}

func WithTileFilenamesFunc(tileFilenamesFunc TileFilenamesFunc) TileSetOption {
	return func(s *TileSet) {
		s.tileFilenamesFunc = tileFilenamesFunc
	}
}

// Tile returns the tile containing (lat, lon). The tile is owned by s and
// remains open until it is evicted or s is closed. If no tile exists it
// returns an error wrapping fs.ErrNotExist.
func (s *TileSet) Tile(lat, lon float64) (*GeoTIFFTile, error) {
	key := s.tileKeyFunc(lat, lon)
	switch tile, err := s.getTileCached(key); {
	case err != nil:
		return nil, err
	case tile == nil:
		return nil, fmt.Errorf("tile %s: %w", key, fs.ErrNotExist)
	default:
		return tile, nil
	}
}

// Close closes all open tiles.
func (s *TileSet) Close() error {
	s.geoTIFFTileCache.Purge()
	return nil
}

// getTile opens the tile with the given key, trying each candidate filename.
// It returns nil if no candidate exists.
func (s *TileSet) getTile(key string) (*GeoTIFFTile, error) {
	for _, filename := range s.tileFilenamesFunc(key) {
		switch geoTIFFTile, err := NewGeoTIFFTile(s.fsys, filename, s.geoTIFFTileOptions...); {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return nil, fmt.Errorf("%s: %w", filename, err)
		default:
			return geoTIFFTile, nil
		}
	}
	s.missingTiles.Store(key, struct{}{})
	missingTileCacheMisses.Inc()
	return nil, nil
}

// getTileCached returns the tile with the given key, using the cache if
// possible.
func (s *TileSet) getTileCached(key string) (*GeoTIFFTile, error) {
	if _, ok := s.missingTiles.Load(key); ok {
		missingTileCacheHits.Inc()
		return nil, nil
	}

	if tile, ok := s.geoTIFFTileCache.Get(key); ok {
		tileCacheHits.Inc()
		return tile, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.missingTiles.Load(key); ok {
		missingTileCacheHits.Inc()
		return nil, nil
	}

	if tile, ok := s.geoTIFFTileCache.Get(key); ok {
		tileCacheHits.Inc()
		return tile, nil
	}

	tileCacheMisses.Inc()

	tile, err := s.getTile(key)
	if err != nil || tile == nil {
		return nil, err
	}

	if eviction := s.geoTIFFTileCache.Add(key, tile); eviction {
		tileCacheEvictions.Inc()
	}

	return tile, nil
}
