package math

// GenerateNormals writes face normals into every vertex of each triangle.
func GenerateNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		// NOTE: face normals only, smoothing is left to the asset pipeline.
		normal := edge1.Cross(edge2).Normalized()
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// Bounds returns the box enclosing every vertex position.
func Bounds(vertices []Vertex) Extents3D {
	if len(vertices) == 0 {
		return Extents3D{}
	}
	e := Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		p := v.Position
		e.Min = Vec3{Min(e.Min.X, p.X), Min(e.Min.Y, p.Y), Min(e.Min.Z, p.Z)}
		e.Max = Vec3{Max(e.Max.X, p.X), Max(e.Max.Y, p.Y), Max(e.Max.Z, p.Z)}
	}
	return e
}

// NewCube returns an indexed unit cube centred at the origin, four vertices per face.
func NewCube(color Vec4) ([]Vertex, []uint32) {
	faces := [6][4]Vec3{
		{{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5}},
		{{0.5, -0.5, -0.5}, {-0.5, -0.5, -0.5}, {-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5}},
		{{0.5, -0.5, 0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, 0.5, 0.5}},
		{{-0.5, -0.5, -0.5}, {-0.5, -0.5, 0.5}, {-0.5, 0.5, 0.5}, {-0.5, 0.5, -0.5}},
		{{-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5}},
		{{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, -0.5, 0.5}, {-0.5, -0.5, 0.5}},
	}
	uvs := [4]Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for f, face := range faces {
		base := uint32(f * 4)
		for i, p := range face {
			vertices = append(vertices, Vertex{Position: p, UVX: uvs[i].X, UVY: uvs[i].Y, Color: color})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	GenerateNormals(vertices, indices)
	return vertices, indices
}
