package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// Quaternion is a rotation stored as (x, y, z, w).
type Quaternion Vec4

// Mat4 is a column-major 4x4 matrix: element (col, row) lives at Data[col*4+row].
type Mat4 struct {
	Data [16]float32
}

// Extents3D is an axis aligned box.
type Extents3D struct {
	Min Vec3
	Max Vec3
}

// Vertex is the GPU vertex layout shared by every mesh. UVs are split so the
// struct packs into three 16-byte rows.
type Vertex struct {
	Position Vec3
	UVX      float32
	Normal   Vec3
	UVY      float32
	Color    Vec4
}

// VertexSize is the byte size of Vertex.
const VertexSize = 48

// Transform3x4 is a row-major affine transform, the instance transform
// layout of acceleration structures.
type Transform3x4 struct {
	M [3][4]float32
}
