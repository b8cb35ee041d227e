package terrainmesh

import (
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// DegenerateNormal is the normal of triangles with zero area.
var DegenerateNormal = Vertex{0, 0, 1}

// FaceNormal returns the unit normal of the triangle (v0, v1, v2), computed
// as the normalized cross product of v0-v1 and v1-v2. Counter-clockwise
// triangles have normals pointing towards the viewer.
func FaceNormal(v0, v1, v2 Vertex) Vertex {
	p0, p1, p2 := v0.vec3d(), v1.vec3d(), v2.vec3d()
	edge1 := vec3d.Sub(&p0, &p1)
	edge2 := vec3d.Sub(&p1, &p2)
	cross := vec3d.Cross(&edge1, &edge2)
	length := cross.Length()
	if length == 0 {
		return DegenerateNormal
	}
	return Vertex{
		float32(cross[0] / length),
		float32(cross[1] / length),
		float32(cross[2] / length),
	}
}

func (v Vertex) vec3d() vec3d.T {
	return vec3d.T{float64(v[0]), float64(v[1]), float64(v[2])}
}
