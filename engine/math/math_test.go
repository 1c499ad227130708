package math

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, uintptr(VertexSize), unsafe.Sizeof(Vertex{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(Transform3x4{}))
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, uint32(1), NextPowerOfTwo(uint32(0)))
	assert.Equal(t, uint32(1), NextPowerOfTwo(uint32(1)))
	assert.Equal(t, uint32(8), NextPowerOfTwo(uint32(5)))
	assert.Equal(t, uint64(64), NextPowerOfTwo(uint64(64)))
	assert.Equal(t, uint32(3), DivCeil(uint32(17), uint32(8)))
	assert.Equal(t, 5, Clamp(9, 0, 5))
}

func TestTranslationToTransform3x4(t *testing.T) {
	mt := NewMat4Translation(NewVec3(1, 2, 3)).Mul(NewMat4Scale(NewVec3(2, 2, 2)))
	tr := mt.ToTransform3x4()
	assert.Equal(t, [4]float32{2, 0, 0, 1}, tr.M[0])
	assert.Equal(t, [4]float32{0, 2, 0, 2}, tr.M[1])
	assert.Equal(t, [4]float32{0, 0, 2, 3}, tr.M[2])
	assert.True(t, NewVec3(1, 1, 1).Transform(mt).Compare(NewVec3(3, 4, 5), 1e-6))
}

func TestCubeNormalsPointOutward(t *testing.T) {
	vertices, indices := NewCube(NewVec4(1, 1, 1, 1))
	assert.Len(t, vertices, 24)
	assert.Len(t, indices, 36)
	for _, v := range vertices {
		assert.Greater(t, v.Normal.Dot(v.Position), float32(0))
	}
	b := Bounds(vertices)
	assert.Equal(t, NewVec3(-0.5, -0.5, -0.5), b.Min)
	assert.Equal(t, NewVec3(0.5, 0.5, 0.5), b.Max)
}
