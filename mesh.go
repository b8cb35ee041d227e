package terrainmesh

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// A Vertex is a point in the mesh's local frame.
type Vertex [3]float32

// A Triangle is a mesh face. Its vertices are counter-clockwise when viewed
// from outside the solid.
type Triangle struct {
	Normal   Vertex
	Vertices [3]Vertex
}

// NewTriangle returns the triangle (v0, v1, v2) with its face normal.
func NewTriangle(v0, v1, v2 Vertex) Triangle {
	return Triangle{
		Normal:   FaceNormal(v0, v1, v2),
		Vertices: [3]Vertex{v0, v1, v2},
	}
}

// A Mesh is an ordered list of triangles.
type Mesh struct {
	Triangles []Triangle
}

// A MeshMode selects which faces a MeshBuilder emits.
type MeshMode int

const (
	// SolidWithBase emits the terrain surface, four side walls and a flat
	// bottom.
	SolidWithBase MeshMode = iota
	// FlatSurfaceOnly emits only the terrain surface.
	FlatSurfaceOnly
)

func (m MeshMode) String() string {
	switch m {
	case SolidWithBase:
		return "solid"
	case FlatSurfaceOnly:
		return "flat"
	default:
		return fmt.Sprintf("MeshMode(%d)", int(m))
	}
}

// ParseMeshMode parses s as a MeshMode.
func ParseMeshMode(s string) (MeshMode, error) {
	switch s {
	case "", "solid":
		return SolidWithBase, nil
	case "flat":
		return FlatSurfaceOnly, nil
	default:
		return 0, fmt.Errorf("%w: unknown mesh mode %q", ErrInvalidRequest, s)
	}
}

// MeshStats counts the triangles of each face of a mesh.
type MeshStats struct {
	Top            int
	Walls          int
	Bottom         int
	SkippedQuads   int
	SkippedBottoms int
}

// A MeshBuilder triangulates an ElevationGrid.
type MeshBuilder struct {
	grid    *ElevationGrid
	mode    MeshMode
	workers int
	top     [][]Vertex
	base    [][]Vertex
	stats   MeshStats
}

// NewMeshBuilder returns a MeshBuilder for grid. Vertex heights are
// sample*scaleZ + baseHeight. Vertex x and y are in grid cells, centered on
// the grid, with y increasing towards the first row.
func NewMeshBuilder(grid *ElevationGrid, scaleZ, baseHeight float64, mode MeshMode) *MeshBuilder {
	b := &MeshBuilder{
		grid:    grid,
		mode:    mode,
		workers: runtime.GOMAXPROCS(0),
		top:     make([][]Vertex, grid.Rows),
		base:    make([][]Vertex, grid.Rows),
	}
	halfCols := float32(grid.Cols) / 2
	halfRows := float32(grid.Rows) / 2
	for y, row := range grid.Samples {
		b.top[y] = make([]Vertex, grid.Cols)
		b.base[y] = make([]Vertex, grid.Cols)
		for x, sample := range row {
			vx := float32(x) - halfCols
			vy := halfRows - float32(y)
			b.top[y][x] = Vertex{vx, vy, float32(sample*scaleZ + baseHeight)}
			b.base[y][x] = Vertex{vx, vy, 0}
		}
	}
	return b
}

// Top returns the vertex of the terrain surface at (row, col).
func (b *MeshBuilder) Top(row, col int) Vertex {
	return b.top[row][col]
}

// Stats returns the statistics of the last call to Build.
func (b *MeshBuilder) Stats() MeshStats {
	return b.stats
}

// Build returns the mesh. Triangles are ordered: terrain surface, left wall,
// right wall, front wall, back wall, bottom.
//
// Quads touching a no-data sample are omitted from the terrain surface and
// the bottom, so a hole goes through the solid, while side walls are never
// checked for no-data. Both are known quirks kept for compatibility with
// existing outputs: a 2x2 grid with one no-data corner yields only its eight
// wall triangles, and a hole leaves the mesh open around its rim.
func (b *MeshBuilder) Build(ctx context.Context) (*Mesh, error) {
	b.stats = MeshStats{}

	top, skipped, err := b.quads(ctx, b.topQuad)
	if err != nil {
		return nil, err
	}
	b.stats.Top = len(top)
	b.stats.SkippedQuads = skipped
	if b.mode == FlatSurfaceOnly {
		return &Mesh{Triangles: top}, nil
	}

	walls := b.walls()
	b.stats.Walls = len(walls)

	bottom, skipped, err := b.quads(ctx, b.bottomQuad)
	if err != nil {
		return nil, err
	}
	b.stats.Bottom = len(bottom)
	b.stats.SkippedBottoms = skipped

	triangles := make([]Triangle, 0, len(top)+len(walls)+len(bottom))
	triangles = append(triangles, top...)
	triangles = append(triangles, walls...)
	triangles = append(triangles, bottom...)
	return &Mesh{Triangles: triangles}, nil
}

type quadFunc func(y, x int) (Triangle, Triangle)

// quads triangulates every quad of the grid with quadFunc, skipping quads
// with a no-data corner. Rows are triangulated concurrently and concatenated
// in row order.
func (b *MeshBuilder) quads(ctx context.Context, quadFunc quadFunc) ([]Triangle, int, error) {
	if b.grid.Rows < 2 || b.grid.Cols < 2 {
		return nil, 0, nil
	}
	rows := make([][]Triangle, b.grid.Rows-1)
	skips := make([]int, b.grid.Rows-1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for y := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			triangles := make([]Triangle, 0, 2*(b.grid.Cols-1))
			for x := range b.grid.Cols - 1 {
				if b.quadHasNoData(y, x) {
					skips[y]++
					continue
				}
				t0, t1 := quadFunc(y, x)
				triangles = append(triangles, t0, t1)
			}
			rows[y] = triangles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var n, skipped int
	for y, row := range rows {
		n += len(row)
		skipped += skips[y]
	}
	triangles := make([]Triangle, 0, n)
	for _, row := range rows {
		triangles = append(triangles, row...)
	}
	return triangles, skipped, nil
}

func (b *MeshBuilder) quadHasNoData(y, x int) bool {
	s := b.grid.Samples
	return b.grid.IsNoData(s[y][x]) ||
		b.grid.IsNoData(s[y+1][x]) ||
		b.grid.IsNoData(s[y][x+1]) ||
		b.grid.IsNoData(s[y+1][x+1])
}

func (b *MeshBuilder) topQuad(y, x int) (Triangle, Triangle) {
	v00, v10 := b.top[y][x], b.top[y+1][x]
	v01, v11 := b.top[y][x+1], b.top[y+1][x+1]
	return NewTriangle(v00, v10, v01), NewTriangle(v01, v10, v11)
}

func (b *MeshBuilder) bottomQuad(y, x int) (Triangle, Triangle) {
	v00, v10 := b.base[y][x], b.base[y+1][x]
	v01, v11 := b.base[y][x+1], b.base[y+1][x+1]
	return NewTriangle(v00, v01, v10), NewTriangle(v01, v11, v10)
}

// walls returns the left, right, front and back walls.
func (b *MeshBuilder) walls() []Triangle {
	rows, cols := b.grid.Rows, b.grid.Cols
	triangles := make([]Triangle, 0, 4*(rows-1)+4*(cols-1))

	// Left, x = 0, facing -x.
	for y := range rows - 1 {
		t0, t1 := b.top[y][0], b.top[y+1][0]
		b0, b1 := b.base[y][0], b.base[y+1][0]
		triangles = append(triangles, NewTriangle(t0, b0, t1), NewTriangle(t1, b0, b1))
	}

	// Right, x = cols-1, facing +x.
	for y := range rows - 1 {
		t0, t1 := b.top[y][cols-1], b.top[y+1][cols-1]
		b0, b1 := b.base[y][cols-1], b.base[y+1][cols-1]
		triangles = append(triangles, NewTriangle(t0, t1, b0), NewTriangle(t1, b1, b0))
	}

	// Front, y = 0, facing +y.
	for x := range cols - 1 {
		t0, t1 := b.top[0][x], b.top[0][x+1]
		b0, b1 := b.base[0][x], b.base[0][x+1]
		triangles = append(triangles, NewTriangle(t0, t1, b0), NewTriangle(t1, b1, b0))
	}

	// Back, y = rows-1, facing -y.
	for x := range cols - 1 {
		t0, t1 := b.top[rows-1][x], b.top[rows-1][x+1]
		b0, b1 := b.base[rows-1][x], b.base[rows-1][x+1]
		triangles = append(triangles, NewTriangle(t0, b0, t1), NewTriangle(t1, b0, b1))
	}

	return triangles
}
