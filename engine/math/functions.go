package math

import (
	m "math"
)

const (
	K_PI                 float32 = 3.14159265358979323846
	K_HALF_PI            float32 = 0.5 * K_PI
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
	// Smallest positive number where 1.0 + FLOAT_EPSILON != 0
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

func ksin(x float32) float32  { return float32(m.Sin(float64(x))) }
func kcos(x float32) float32  { return float32(m.Cos(float64(x))) }
func ktan(x float32) float32  { return float32(m.Tan(float64(x))) }
func ksqrt(x float32) float32 { return float32(m.Sqrt(float64(x))) }
func kabs(x float32) float32  { return float32(m.Abs(float64(x))) }

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec3Zero() Vec3 { return Vec3{} }
func NewVec3One() Vec3  { return Vec3{1, 1, 1} }
func NewVec3Up() Vec3   { return Vec3{0, 1, 0} }

func (v Vec3) ToVec4(w float32) Vec4 {
	return Vec4{v.X, v.Y, v.Z, w}
}

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

func (v Vec3) Mul(other Vec3) Vec3 {
	return Vec3{v.X * other.X, v.Y * other.Y, v.Z * other.Z}
}

func (v Vec3) MulScalar(scalar float32) Vec3 {
	return Vec3{v.X * scalar, v.Y * scalar, v.Z * scalar}
}

func (v Vec3) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

func (v Vec3) Length() float32 {
	return ksqrt(v.LengthSquared())
}

// Normalized returns a unit copy of v, or v itself when its length is zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.MulScalar(1 / l)
}

func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X,
	}
}

// Compare reports whether every component differs by at most tolerance.
func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	return kabs(v.X-other.X) <= tolerance &&
		kabs(v.Y-other.Y) <= tolerance &&
		kabs(v.Z-other.Z) <= tolerance
}

// Transform multiplies v as a point by m.
func (v Vec3) Transform(mt Mat4) Vec3 {
	d := mt.Data
	return Vec3{
		v.X*d[0] + v.Y*d[4] + v.Z*d[8] + d[12],
		v.X*d[1] + v.Y*d[5] + v.Z*d[9] + d[13],
		v.X*d[2] + v.Y*d[6] + v.Z*d[10] + d[14],
	}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func (v Vec4) ToVec3() Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

func NewMat4Identity() Mat4 {
	var mt Mat4
	mt.Data[0], mt.Data[5], mt.Data[10], mt.Data[15] = 1, 1, 1, 1
	return mt
}

// Mul returns mt * other, so other is applied first.
func (mt Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += mt.Data[k*4+r] * other.Data[c*4+k]
			}
			out.Data[c*4+r] = sum
		}
	}
	return out
}

func (mt Mat4) At(col, row int) float32 {
	return mt.Data[col*4+row]
}

func NewMat4Translation(position Vec3) Mat4 {
	mt := NewMat4Identity()
	mt.Data[12], mt.Data[13], mt.Data[14] = position.X, position.Y, position.Z
	return mt
}

func NewMat4Scale(scale Vec3) Mat4 {
	mt := NewMat4Identity()
	mt.Data[0], mt.Data[5], mt.Data[10] = scale.X, scale.Y, scale.Z
	return mt
}

// NewMat4EulerY rotates around the Y axis.
func NewMat4EulerY(angleRadians float32) Mat4 {
	mt := NewMat4Identity()
	c, s := kcos(angleRadians), ksin(angleRadians)
	mt.Data[0], mt.Data[2] = c, -s
	mt.Data[8], mt.Data[10] = s, c
	return mt
}

// NewMat4Perspective builds a right-handed projection with reversed depth
// (near maps to 1, far to 0) and Y flipped for Vulkan clip space.
func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	var mt Mat4
	f := 1 / ktan(fovRadians*0.5)
	mt.Data[0] = f / aspectRatio
	mt.Data[5] = -f
	mt.Data[10] = nearClip / (farClip - nearClip)
	mt.Data[11] = -1
	mt.Data[14] = nearClip * farClip / (farClip - nearClip)
	return mt
}

func NewMat4LookAt(position, target, up Vec3) Mat4 {
	z := position.Sub(target).Normalized()
	x := up.Cross(z).Normalized()
	y := z.Cross(x)
	mt := NewMat4Identity()
	mt.Data[0], mt.Data[4], mt.Data[8] = x.X, x.Y, x.Z
	mt.Data[1], mt.Data[5], mt.Data[9] = y.X, y.Y, y.Z
	mt.Data[2], mt.Data[6], mt.Data[10] = z.X, z.Y, z.Z
	mt.Data[12] = -x.Dot(position)
	mt.Data[13] = -y.Dot(position)
	mt.Data[14] = -z.Dot(position)
	return mt
}

// ToTransform3x4 drops the projective row of an affine matrix.
func (mt Mat4) ToTransform3x4() Transform3x4 {
	var t Transform3x4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			t.M[r][c] = mt.Data[c*4+r]
		}
	}
	return t
}
