package gpu

import "math/bits"

// MipLevels returns floor(log2(max(w, h))) + 1.
func MipLevels(w, h uint32) uint32 {
	m := w
	if h > m {
		m = h
	}
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// AlignUp rounds v up to a multiple of align. align must be a power of two or zero.
func AlignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// LevelExtent returns the extent of mip level l, never below 1 texel.
func LevelExtent(e Extent3D, l uint32) Extent3D {
	r := Extent3D{Width: e.Width >> l, Height: e.Height >> l, Depth: e.Depth >> l}
	if r.Width == 0 {
		r.Width = 1
	}
	if r.Height == 0 {
		r.Height = 1
	}
	if r.Depth == 0 {
		r.Depth = 1
	}
	return r
}
