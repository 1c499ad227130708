package gpu

import "fmt"

// Format values match the native Vulkan enumerants so backends can cast directly.
type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8Unorm            Format = 9
	FormatR8Srgb             Format = 15
	FormatR8G8Unorm          Format = 16
	FormatR8G8Srgb           Format = 22
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32Uint            Format = 98
	FormatR32Sfloat          Format = 100
	FormatR32G32B32Sfloat    Format = 106
	FormatD16Unorm           Format = 124
	FormatD32Sfloat          Format = 126
	FormatD16UnormS8Uint     Format = 128
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
	FormatBC1RGBAUnorm       Format = 133
	FormatBC1RGBASrgb        Format = 134
	FormatBC3Unorm           Format = 137
	FormatBC3Srgb            Format = 138
	FormatBC5Unorm           Format = 141
	FormatBC7Unorm           Format = 145
	FormatBC7Srgb            Format = 146
)

// IsDepth reports whether f carries a depth component.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32Sfloat, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether f carries a stencil component.
func (f Format) HasStencil() bool {
	switch f {
	case FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// IsCompressed reports block-compressed formats.
func (f Format) IsCompressed() bool {
	switch f {
	case FormatBC1RGBAUnorm, FormatBC1RGBASrgb, FormatBC3Unorm, FormatBC3Srgb, FormatBC5Unorm, FormatBC7Unorm, FormatBC7Srgb:
		return true
	}
	return false
}

// BytesPerPixel returns the texel size of uncompressed formats, 0 otherwise.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm, FormatR8Srgb:
		return 1
	case FormatR8G8Unorm, FormatR8G8Srgb, FormatD16Unorm:
		return 2
	case FormatD16UnormS8Uint:
		return 3
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatR32Uint, FormatR32Sfloat, FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatD32SfloatS8Uint:
		return 5
	case FormatR16G16B16A16Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	}
	return 0
}

// BlockBytes returns the size of one 4x4 block of compressed formats, 0 otherwise.
func (f Format) BlockBytes() int {
	switch f {
	case FormatBC1RGBAUnorm, FormatBC1RGBASrgb:
		return 8
	case FormatBC3Unorm, FormatBC3Srgb, FormatBC5Unorm, FormatBC7Unorm, FormatBC7Srgb:
		return 16
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "Undefined"
	case FormatR8Unorm:
		return "R8Unorm"
	case FormatR8Srgb:
		return "R8Srgb"
	case FormatR8G8Unorm:
		return "R8G8Unorm"
	case FormatR8G8Srgb:
		return "R8G8Srgb"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8Unorm"
	case FormatR8G8B8A8Srgb:
		return "R8G8B8A8Srgb"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8Unorm"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8Srgb"
	case FormatR16G16B16A16Sfloat:
		return "R16G16B16A16Sfloat"
	case FormatR32Uint:
		return "R32Uint"
	case FormatR32Sfloat:
		return "R32Sfloat"
	case FormatD32Sfloat:
		return "D32Sfloat"
	case FormatD24UnormS8Uint:
		return "D24UnormS8Uint"
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// Layout is the device-side arrangement an image must be in for a given access.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthAttachment:
		return "DepthAttachment"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutPresent:
		return "Present"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// Aspect selects the planes of an image a barrier or copy applies to.
type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

func (e Extent3D) Extent2D() Extent2D {
	return Extent2D{Width: e.Width, Height: e.Height}
}

func (e Extent2D) Extent3D() Extent3D {
	return Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Min returns the per-axis minimum of e and o.
func (e Extent2D) Min(o Extent2D) Extent2D {
	r := e
	if o.Width < r.Width {
		r.Width = o.Width
	}
	if o.Height < r.Height {
		r.Height = o.Height
	}
	return r
}

type Offset3D struct {
	X, Y, Z int32
}

type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}
