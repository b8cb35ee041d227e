package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/twpayne/go-terrainmesh"
)

// A config is the contents of a -config file.
type config struct {
	DEM        string `toml:"dem"`
	DEMDir     string `toml:"dem_dir"`
	Resolution int    `toml:"resolution"`
	MeshMode   string `toml:"mode"`
	Output     string `toml:"output"`
	terrainmesh.Request
}

func loadConfig(filename string) (*config, error) {
	c := &config{
		Resolution: 10,
		MeshMode:   "solid",
		Output:     "terrain.stl",
		Request: terrainmesh.Request{
			AreaKM: 1,
			Stride: 1,
		},
	}
	if filename == "" {
		return c, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

// optionalFloat is a flag.Value for an optional float64.
type optionalFloat struct {
	value **float64
}

func (f optionalFloat) String() string {
	if f.value == nil || *f.value == nil {
		return ""
	}
	return strconv.FormatFloat(**f.value, 'g', -1, 64)
}

func (f optionalFloat) Set(s string) error {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f.value = &value
	return nil
}

func run() error {
	configFile := flag.String("config", "", "TOML config file")
	dem := flag.String("dem", "", "path to a DEM GeoTIFF")
	demDir := flag.String("dem-dir", os.Getenv("TERRAINMESH_DEM_PATH"), "directory of Copernicus DEM tiles")
	resolution := flag.Int("resolution", 10, "Copernicus DEM product code: 10 for 1 arc second (30m), 30 for 3 arc seconds (90m)")
	areaKM := flag.Float64("area-km", 1, "side of the square area in kilometers, 0 for the whole raster")
	stride := flag.Int("stride", 1, "sub-sampling stride")
	baseHeight := flag.Float64("base-height", 0, "height added to every surface vertex")
	mode := flag.String("mode", "solid", "mesh mode: solid or flat")
	output := flag.String("output", "terrain.stl", "output STL file")
	verify := flag.Bool("verify", false, "read back and check the output file")
	verbose := flag.Bool("v", false, "verbose logging")
	var clipMin, clipMax *float64
	flag.Var(optionalFloat{&clipMin}, "clip-min", "minimum elevation")
	flag.Var(optionalFloat{&clipMax}, "clip-max", "maximum elevation")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dem":
			c.DEM = *dem
		case "dem-dir":
			c.DEMDir = *demDir
		case "resolution":
			c.Resolution = *resolution
		case "area-km":
			c.AreaKM = *areaKM
		case "stride":
			c.Stride = *stride
		case "base-height":
			c.BaseHeight = *baseHeight
		case "mode":
			c.MeshMode = *mode
		case "output":
			c.Output = *output
		case "clip-min":
			c.ClipMin = clipMin
		case "clip-max":
			c.ClipMax = clipMax
		}
	})
	if c.DEMDir == "" && *demDir != "" {
		c.DEMDir = *demDir
	}

	switch flag.NArg() {
	case 0:
		if *configFile == "" {
			return errors.New("syntax: terrainmesh [flags] latitude longitude")
		}
	case 2:
		if c.Lat, err = strconv.ParseFloat(flag.Arg(0), 64); err != nil {
			return fmt.Errorf("%w: latitude: %w", terrainmesh.ErrInvalidRequest, err)
		}
		if c.Lon, err = strconv.ParseFloat(flag.Arg(1), 64); err != nil {
			return fmt.Errorf("%w: longitude: %w", terrainmesh.ErrInvalidRequest, err)
		}
	default:
		return errors.New("syntax: terrainmesh [flags] latitude longitude")
	}
	if c.Request.Mode, err = terrainmesh.ParseMeshMode(c.MeshMode); err != nil {
		return err
	}
	if err := c.Request.Validate(); err != nil {
		return err
	}

	raster, closeRaster, err := openRaster(c)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeRaster()
	}()
	logger.Debug("raster", "srid", raster.SRID(), "geoTransform", raster.GeoTransform())

	ctx := context.Background()
	if center, err := centerSample(ctx, raster, c.Lat, c.Lon); err == nil {
		logger.Debug("center", "lat", c.Lat, "lon", c.Lon, "elevation", center)
	}

	generator := terrainmesh.NewGenerator(terrainmesh.WithLogger(logger))
	if err := generator.WriteFile(ctx, raster, &c.Request, c.Output); err != nil {
		return err
	}

	if *verify {
		return verifyFile(c.Output)
	}
	return nil
}

// openRaster opens the DEM named by c.
func openRaster(c *config) (*terrainmesh.GeoTIFFTile, func() error, error) {
	if c.DEM != "" {
		dir, filename := filepath.Split(c.DEM)
		if dir == "" {
			dir = "."
		}
		tile, err := terrainmesh.NewGeoTIFFTile(os.DirFS(dir), filename)
		if err != nil {
			return nil, nil, err
		}
		return tile, tile.Close, nil
	}
	if c.DEMDir == "" {
		return nil, nil, errors.New("one of -dem or -dem-dir is required")
	}
	tileSet, err := terrainmesh.NewCopernicusDEM(os.DirFS(c.DEMDir), c.Resolution)
	if err != nil {
		return nil, nil, err
	}
	tile, err := tileSet.Tile(c.Lat, c.Lon)
	if err != nil {
		_ = tileSet.Close()
		return nil, nil, err
	}
	return tile, tileSet.Close, nil
}

// centerSample returns the elevation at (lat, lon).
func centerSample(ctx context.Context, tile *terrainmesh.GeoTIFFTile, lat, lon float64) (float64, error) {
	inv, err := tile.GeoTransform().Invert()
	if err != nil {
		return 0, err
	}
	col, row := inv.Apply(lon, lat)
	return tile.Sample(ctx, terrainmesh.Coord{X: int(col), Y: int(row)})
}

func verifyFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	mesh, err := terrainmesh.ReadSTL(file)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	fileInfo, err := file.Stat()
	if err != nil {
		return err
	}
	if want := terrainmesh.STLSize(len(mesh.Triangles)); fileInfo.Size() != want {
		return fmt.Errorf("%s: size %d, want %d", filename, fileInfo.Size(), want)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
