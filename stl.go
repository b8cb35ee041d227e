package terrainmesh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

var errTriangleCount = errors.New("triangle count mismatch")

// STLSize returns the size in bytes of a binary STL file with n triangles.
func STLSize(n int) int64 {
	return stlHeaderSize + 4 + stlTriangleSize*int64(n)
}

// WriteSTL writes m to w as binary STL.
func WriteSTL(w io.Writer, m *Mesh) error {
	if uint64(len(m.Triangles)) > math.MaxUint32 {
		return fmt.Errorf("%d triangles: %w", len(m.Triangles), errTriangleCount)
	}
	bw := bufio.NewWriter(w)

	var header [stlHeaderSize + 4]byte
	copy(header[:], "binary STL generated by go-terrainmesh")
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(m.Triangles)))
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}

	var record [stlTriangleSize]byte
	for _, t := range m.Triangles {
		putVertex(record[0:12], t.Normal)
		for i, v := range t.Vertices {
			putVertex(record[12+12*i:24+12*i], v)
		}
		// The attribute byte count in record[48:50] is always zero.
		if _, err := bw.Write(record[:]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// WriteSTLFile writes m to the file filename. A failed write leaves a
// truncated file.
func WriteSTLFile(filename string, m *Mesh) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	return WriteSTL(file, m)
}

// ReadSTL reads a binary STL mesh from r.
func ReadSTL(r io.Reader) (*Mesh, error) {
	var header [stlHeaderSize + 4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[stlHeaderSize:])

	m := &Mesh{
		Triangles: make([]Triangle, 0, min(n, 1<<20)),
	}
	var record [stlTriangleSize]byte
	for i := range n {
		switch _, err := io.ReadFull(r, record[:]); {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("triangle %d of %d: %w", i, n, errTriangleCount)
		case err != nil:
			return nil, err
		}
		var t Triangle
		t.Normal = getVertex(record[0:12])
		for j := range t.Vertices {
			t.Vertices[j] = getVertex(record[12+12*j : 24+12*j])
		}
		m.Triangles = append(m.Triangles, t)
	}

	switch k, err := r.Read(record[:1]); {
	case k != 0:
		return nil, fmt.Errorf("trailing data after %d triangles: %w", n, errTriangleCount)
	case err != nil && !errors.Is(err, io.EOF):
		return nil, err
	}
	return m, nil
}

func putVertex(b []byte, v Vertex) {
	for i, c := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(c))
	}
}

func getVertex(b []byte) Vertex {
	var v Vertex
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
