package terrainmesh_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-terrainmesh"
)

func TestWriteSTL(t *testing.T) {
	mesh := &terrainmesh.Mesh{
		Triangles: []terrainmesh.Triangle{
			terrainmesh.NewTriangle(
				terrainmesh.Vertex{0, 0, 0},
				terrainmesh.Vertex{0, -1, 0},
				terrainmesh.Vertex{1, 0, 0},
			),
			terrainmesh.NewTriangle(
				terrainmesh.Vertex{1, 2, 3},
				terrainmesh.Vertex{1, 2, 3},
				terrainmesh.Vertex{4, 5, 6},
			),
		},
	}

	var buf bytes.Buffer
	assert.NoError(t, terrainmesh.WriteSTL(&buf, mesh))
	data := buf.Bytes()
	assert.Equal(t, terrainmesh.STLSize(2), int64(len(data)))
	assert.Equal(t, 84+2*50, len(data))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[80:84]))

	float := func(offset int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
	}
	// First record: normal, then three vertices, then a zero attribute.
	assert.Equal(t, float32(1), float(84+8))
	assert.Equal(t, float32(-1), float(84+12+12+4))
	assert.Equal(t, float32(1), float(84+12+24))
	assert.Equal(t, []byte{0, 0}, data[84+48:84+50])
	// Second record is degenerate.
	assert.Equal(t, float32(0), float(134))
	assert.Equal(t, float32(0), float(134+4))
	assert.Equal(t, float32(1), float(134+8))
	assert.Equal(t, []byte{0, 0}, data[134+48:134+50])

	actual, err := terrainmesh.ReadSTL(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, mesh, actual)
}

func TestWriteSTL_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, terrainmesh.WriteSTL(&buf, &terrainmesh.Mesh{}))
	assert.Equal(t, 84, buf.Len())
}

func TestReadSTL_Truncated(t *testing.T) {
	var buf bytes.Buffer
	mesh := &terrainmesh.Mesh{
		Triangles: []terrainmesh.Triangle{
			terrainmesh.NewTriangle(terrainmesh.Vertex{0, 0, 0}, terrainmesh.Vertex{1, 0, 0}, terrainmesh.Vertex{0, 1, 0}),
		},
	}
	assert.NoError(t, terrainmesh.WriteSTL(&buf, mesh))
	data := buf.Bytes()

	_, err := terrainmesh.ReadSTL(bytes.NewReader(data[:len(data)-1]))
	assert.Error(t, err)

	_, err = terrainmesh.ReadSTL(bytes.NewReader(append(data, 0)))
	assert.Error(t, err)
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n < len(p) {
		n := w.n
		w.n = 0
		return n, errors.New("disk full")
	}
	w.n -= len(p)
	return len(p), nil
}

func TestWriteSTL_Error(t *testing.T) {
	triangles := make([]terrainmesh.Triangle, 1000)
	err := terrainmesh.WriteSTL(&failingWriter{n: 1000}, &terrainmesh.Mesh{Triangles: triangles})
	assert.EqualError(t, err, "disk full")
}

func TestWriteSTLFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "mesh.stl")
	mesh := &terrainmesh.Mesh{
		Triangles: make([]terrainmesh.Triangle, 3),
	}
	assert.NoError(t, terrainmesh.WriteSTLFile(filename, mesh))
	fileInfo, err := os.Stat(filename)
	assert.NoError(t, err)
	assert.Equal(t, int64(84+3*50), fileInfo.Size())

	err = terrainmesh.WriteSTLFile(filepath.Join(dir, "missing", "mesh.stl"), mesh)
	assert.IsError(t, err, os.ErrNotExist)
}
