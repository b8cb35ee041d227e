package terrainmesh

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trianglesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_triangles_emitted_total",
		Help: "The total number of triangles emitted",
	})
	noDataQuadsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrainmesh_nodata_quads_skipped_total",
		Help: "The total number of terrain surface quads skipped because of no-data samples",
	})
)

// A Request describes one mesh.
type Request struct {
	Lat float64 `toml:"lat"`
	Lon float64 `toml:"lon"`
	// AreaKM is the side of the square area in kilometers. Zero selects the
	// whole raster.
	AreaKM     float64  `toml:"area_km"`
	Stride     int      `toml:"stride"`
	ClipMin    *float64 `toml:"clip_min"`
	ClipMax    *float64 `toml:"clip_max"`
	BaseHeight float64  `toml:"base_height"`
	// VerticalScale is ignored: vertical scale is always the raster's pixel
	// width in kilometers.
	VerticalScale float64  `toml:"vertical_scale"`
	Mode          MeshMode `toml:"-"`
}

// Validate returns an error wrapping ErrInvalidRequest if r is invalid.
func (r *Request) Validate() error {
	switch {
	case math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidRequest, r.Lat)
	case math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidRequest, r.Lon)
	case math.IsNaN(r.AreaKM) || math.IsInf(r.AreaKM, 0) || r.AreaKM < 0:
		return fmt.Errorf("%w: area %v km", ErrInvalidRequest, r.AreaKM)
	case r.Stride < 0:
		return fmt.Errorf("%w: stride %d", ErrInvalidRequest, r.Stride)
	case r.ClipMin != nil && r.ClipMax != nil && *r.ClipMin > *r.ClipMax:
		return fmt.Errorf("%w: clip range [%v, %v]", ErrInvalidRequest, *r.ClipMin, *r.ClipMax)
	case r.Mode != SolidWithBase && r.Mode != FlatSurfaceOnly:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, r.Mode)
	default:
		return nil
	}
}

// A Generator generates meshes from rasters.
type Generator struct {
	logger  *slog.Logger
	workers int
}

// A GeneratorOption sets an option on a Generator.
type GeneratorOption func(*Generator)

// NewGenerator returns a new Generator with the given options.
func NewGenerator(options ...GeneratorOption) *Generator {
	g := &Generator{
		logger:  slog.New(slog.DiscardHandler),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, option := range options {
		option(g)
	}
	return g
}

func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithWorkers(workers int) GeneratorOption {
	return func(g *Generator) {
		g.workers = max(workers, 1)
	}
}

// Window returns the pixel window of raster selected by req.
func (g *Generator) Window(raster Raster, req *Request) (PixelWindow, error) {
	if req.AreaKM == 0 {
		width, height := raster.Size()
		return PixelWindow{Width: width, Height: height}, nil
	}
	return NewPixelWindow(raster.GeoTransform(), req.Lat, req.Lon, req.AreaKM)
}

// Mesh returns the mesh of raster described by req.
func (g *Generator) Mesh(ctx context.Context, raster Raster, req *Request) (*Mesh, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	window, err := g.Window(raster, req)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("window", "lat", req.Lat, "lon", req.Lon, "areaKM", req.AreaKM, "window", window.String())

	stride := max(req.Stride, 1)
	grid, err := ReadElevationGrid(ctx, raster, window, stride, ClipRange{Min: req.ClipMin, Max: req.ClipMax})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("grid", "rows", grid.Rows, "cols", grid.Cols, "stride", stride, "hasNoData", grid.HasNoData)

	pixelWidth, _ := raster.GeoTransform().PixelSize()
	scaleZ := pixelWidth * KilometersPerDegree
	if req.VerticalScale != 0 && req.VerticalScale != scaleZ {
		g.logger.Warn("vertical scale overridden", "requested", req.VerticalScale, "scale", scaleZ)
	}

	builder := NewMeshBuilder(grid, scaleZ, req.BaseHeight, req.Mode)
	builder.workers = g.workers
	mesh, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	stats := builder.Stats()
	trianglesEmitted.Add(float64(len(mesh.Triangles)))
	noDataQuadsSkipped.Add(float64(stats.SkippedQuads))
	g.logger.Info("mesh",
		"mode", req.Mode.String(),
		"top", stats.Top,
		"walls", stats.Walls,
		"bottom", stats.Bottom,
		"skippedQuads", stats.SkippedQuads,
		"triangles", len(mesh.Triangles),
	)
	return mesh, nil
}

// WriteFile writes the mesh of raster described by req to filename.
func (g *Generator) WriteFile(ctx context.Context, raster Raster, req *Request, filename string) error {
	mesh, err := g.Mesh(ctx, raster, req)
	if err != nil {
		return err
	}
	if err := WriteSTLFile(filename, mesh); err != nil {
		return err
	}
	g.logger.Info("wrote", "filename", filename, "bytes", STLSize(len(mesh.Triangles)))
	return nil
}
