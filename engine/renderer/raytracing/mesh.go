package raytracing

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/math"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/resources"
)

// vertexStride is the byte stride of math.Vertex; positions sit at offset 0.
const vertexStride = math.VertexSize

// Surface is a range of the mesh index buffer drawn with one material.
type Surface struct {
	StartIndex uint32
	Count      uint32
}

// Mesh is an uploaded mesh. Its pointer identifies its bottom level structure.
type Mesh struct {
	Name     string
	Buffers  resources.MeshBuffers
	Surfaces []Surface
}

// RenderObject is one drawn mesh instance.
type RenderObject struct {
	Mesh      *Mesh
	Transform math.Mat4
}

// DrawContext is the draw list of a frame. Only opaque objects enter the
// top level structure.
type DrawContext struct {
	Opaque      []RenderObject
	Transparent []RenderObject
}
