package terrainmesh

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newConstantRaster(rows, cols int, value float64) *gridRaster {
	raster := &gridRaster{
		samples: make([][]float64, rows),
	}
	for y := range rows {
		raster.samples[y] = make([]float64, cols)
		for x := range cols {
			raster.samples[y][x] = value
		}
	}
	return raster
}

func writeTestMesh(t *testing.T, generator *Generator, raster Raster, req *Request) []byte {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "mesh.stl")
	assert.NoError(t, generator.WriteFile(t.Context(), raster, req, filename))
	data, err := os.ReadFile(filename)
	assert.NoError(t, err)
	return data
}

func TestGenerator_TwoByTwo(t *testing.T) {
	raster := newConstantRaster(2, 2, 10)
	data := writeTestMesh(t, NewGenerator(), raster, &Request{})
	assert.Equal(t, 684, len(data))

	mesh, err := ReadSTL(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, 12, len(mesh.Triangles))
	for _, triangle := range mesh.Triangles {
		normal := triangle.Normal
		length := math.Sqrt(float64(normal[0]*normal[0] + normal[1]*normal[1] + normal[2]*normal[2]))
		assert.True(t, math.Abs(length-1) < 1e-5)
	}
}

func TestGenerator_NoDataCorner(t *testing.T) {
	raster := newConstantRaster(2, 2, 10)
	raster.samples[0][1] = -32768
	raster.noData = ptr(-32768.0)

	before := testutil.ToFloat64(noDataQuadsSkipped)
	data := writeTestMesh(t, NewGenerator(), raster, &Request{})
	assert.Equal(t, 84+8*50, len(data))
	assert.Equal(t, before+1, testutil.ToFloat64(noDataQuadsSkipped))
}

func TestGenerator_Window(t *testing.T) {
	raster := newConstantRaster(30, 30, 100)
	raster.geoTransform = &GeoTransform{13, 0.0008333, 0, 48, 0, -0.0008333}

	generator := NewGenerator()
	req := &Request{
		Lat:    48 - 15.5*0.0008333,
		Lon:    13 + 15.5*0.0008333,
		AreaKM: 1,
	}
	window, err := generator.Window(raster, req)
	assert.NoError(t, err)
	assert.Equal(t, PixelWindow{OffsetX: 10, OffsetY: 10, Width: 10, Height: 10}, window)

	before := testutil.ToFloat64(trianglesEmitted)
	mesh, err := generator.Mesh(t.Context(), raster, req)
	assert.NoError(t, err)
	assert.Equal(t, 2*81+4*9+4*9+2*81, len(mesh.Triangles))
	assert.Equal(t, before+float64(len(mesh.Triangles)), testutil.ToFloat64(trianglesEmitted))
}

func TestGenerator_Stride(t *testing.T) {
	raster := newConstantRaster(9, 9, 1)
	mesh, err := NewGenerator().Mesh(t.Context(), raster, &Request{Stride: 4})
	assert.NoError(t, err)
	// Rows and columns 0, 4 and 8.
	assert.Equal(t, 2*4+4*2+4*2+2*4, len(mesh.Triangles))
}

func TestGenerator_VerticalScaleOverride(t *testing.T) {
	raster := newConstantRaster(2, 2, 1000)
	raster.geoTransform = &GeoTransform{0, 0.001, 0, 0, 0, -0.001}

	var logs bytes.Buffer
	generator := NewGenerator(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	mesh, err := generator.Mesh(t.Context(), raster, &Request{VerticalScale: 1, BaseHeight: 2})
	assert.NoError(t, err)
	// 1000 * 0.001 * 111 + 2.
	assert.Equal(t, float32(113), mesh.Triangles[0].Vertices[0][2])
	assert.Contains(t, logs.String(), "vertical scale overridden")
}

func TestGenerator_Clip(t *testing.T) {
	raster := newConstantRaster(2, 2, 500)
	raster.geoTransform = &GeoTransform{0, 1 / KilometersPerDegree, 0, 0, 0, -1 / KilometersPerDegree}
	mesh, err := NewGenerator().Mesh(t.Context(), raster, &Request{ClipMax: ptr(20.0)})
	assert.NoError(t, err)
	assert.Equal(t, float32(20), mesh.Triangles[0].Vertices[0][2])
}

func TestGenerator_FlatSurfaceOnly(t *testing.T) {
	raster := newConstantRaster(3, 4, 1)
	mesh, err := NewGenerator().Mesh(t.Context(), raster, &Request{Mode: FlatSurfaceOnly})
	assert.NoError(t, err)
	assert.Equal(t, 2*2*3, len(mesh.Triangles))
}

func TestGenerator_Idempotent(t *testing.T) {
	raster := newConstantRaster(12, 9, 0)
	for y, row := range raster.samples {
		for x := range row {
			row[x] = math.Sin(float64(x)) * math.Cos(float64(y)) * 50
		}
	}
	raster.samples[3][4] = -9999
	raster.noData = ptr(-9999.0)
	req := &Request{ClipMax: ptr(40.0), BaseHeight: 20}

	first := writeTestMesh(t, NewGenerator(WithWorkers(1)), raster, req)
	second := writeTestMesh(t, NewGenerator(WithWorkers(4)), raster, req)
	assert.Equal(t, first, second)
}

func TestGenerator_InvalidRequest(t *testing.T) {
	for _, req := range []*Request{
		{Lat: 91},
		{Lon: math.NaN()},
		{AreaKM: -1},
		{AreaKM: math.Inf(1)},
		{Stride: -2},
		{ClipMin: ptr(2.0), ClipMax: ptr(1.0)},
		{Mode: MeshMode(7)},
	} {
		raster := newConstantRaster(2, 2, 0)
		_, err := NewGenerator().Mesh(t.Context(), raster, req)
		assert.IsError(t, err, ErrInvalidRequest)
		assert.Equal(t, 0, raster.reads)
	}
}

func TestGenerator_WindowOutOfBounds(t *testing.T) {
	raster := newConstantRaster(30, 30, 100)
	raster.geoTransform = &GeoTransform{13, 0.0008333, 0, 48, 0, -0.0008333}
	req := &Request{Lat: 48, Lon: 13, AreaKM: 1}
	_, err := NewGenerator().Mesh(t.Context(), raster, req)
	assert.IsError(t, err, ErrWindowOutOfBounds)
}
