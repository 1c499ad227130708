// Package graph implements the frame-scoped render graph. Passes declare the
// images and buffers they read and write; Compile orders them by hazards and
// synthesizes the barriers; Execute records them into one command buffer.
package graph

import (
	"fmt"
	"math"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/swapchain"
)

// Host is what the graph needs from the engine context it is instantiated with.
type Host interface {
	Device() gpu.Device
	// CurrentFrame owns the deletion queue transients are released through. May be nil.
	CurrentFrame() *frame.Frame
	DrawExtent() gpu.Extent2D
	Swapchain() *swapchain.Swapchain
	// DrawLetterbox records a fullscreen draw sampling src into the bound color target.
	DrawLetterbox(cmd gpu.CmdBuffer, src gpu.ImageView)
}

type PassKind int

const (
	PassGraphics PassKind = iota
	PassCompute
	PassTransfer
)

func (k PassKind) String() string {
	switch k {
	case PassGraphics:
		return "Graphics"
	case PassCompute:
		return "Compute"
	case PassTransfer:
		return "Transfer"
	}
	return fmt.Sprintf("PassKind(%d)", int(k))
}

// ImageUsage is the intent a pass declares for an image access.
type ImageUsage int

const (
	ImageSampledFragment ImageUsage = iota
	ImageSampledCompute
	ImageTransferSrc
	ImageTransferDst
	ImageColorAttachment
	ImageDepthAttachment
	ImageComputeWrite
	ImagePresent
)

func (u ImageUsage) String() string {
	switch u {
	case ImageSampledFragment:
		return "SampledFragment"
	case ImageSampledCompute:
		return "SampledCompute"
	case ImageTransferSrc:
		return "TransferSrc"
	case ImageTransferDst:
		return "TransferDst"
	case ImageColorAttachment:
		return "ColorAttachment"
	case ImageDepthAttachment:
		return "DepthAttachment"
	case ImageComputeWrite:
		return "ComputeWrite"
	case ImagePresent:
		return "Present"
	}
	return fmt.Sprintf("ImageUsage(%d)", int(u))
}

// BufferUsage is the intent a pass declares for a buffer access.
type BufferUsage int

const (
	BufferTransferSrc BufferUsage = iota
	BufferTransferDst
	BufferVertexRead
	BufferIndexRead
	BufferUniformRead
	BufferStorageRead
	BufferStorageReadWrite
	BufferIndirectArgs
)

func (u BufferUsage) String() string {
	switch u {
	case BufferTransferSrc:
		return "TransferSrc"
	case BufferTransferDst:
		return "TransferDst"
	case BufferVertexRead:
		return "VertexRead"
	case BufferIndexRead:
		return "IndexRead"
	case BufferUniformRead:
		return "UniformRead"
	case BufferStorageRead:
		return "StorageRead"
	case BufferStorageReadWrite:
		return "StorageReadWrite"
	case BufferIndirectArgs:
		return "IndirectArgs"
	}
	return fmt.Sprintf("BufferUsage(%d)", int(u))
}

// ImageHandle identifies an image for the current frame only.
type ImageHandle uint32

// BufferHandle identifies a buffer for the current frame only.
type BufferHandle uint32

const (
	InvalidImage  ImageHandle  = math.MaxUint32
	InvalidBuffer BufferHandle = math.MaxUint32
)

func (h ImageHandle) Valid() bool  { return h != InvalidImage }
func (h BufferHandle) Valid() bool { return h != InvalidBuffer }

// ImportedImage describes an image owned outside the graph. With Layout
// known but Stage and Access left empty, the first use is synchronized
// against an unknown prior write.
type ImportedImage struct {
	Name   string
	Image  gpu.Image
	View   gpu.ImageView
	Format gpu.Format
	Extent gpu.Extent2D
	Layout gpu.Layout
	Stage  gpu.Stage
	Access gpu.Access
}

type ImportedBuffer struct {
	Name   string
	Buffer gpu.Buffer
	// Zero means unknown; barriers then cover the whole buffer.
	Size   uint64
	Stage  gpu.Stage
	Access gpu.Access
}

// ImageDesc declares a transient image. Usage is the creation usage.
type ImageDesc struct {
	Name   string
	Format gpu.Format
	Extent gpu.Extent2D
	Usage  gpu.ImageUsage
}

type BufferDesc struct {
	Name   string
	Size   uint64
	Usage  gpu.BufferUsage
	Memory gpu.MemoryUsage
}

// Attachment is a color or depth target of a graphics pass.
type Attachment struct {
	Image      ImageHandle
	Clear      bool
	ClearColor gpu.ClearColor
	ClearDepth float32
	Store      bool
}

type imageAccess struct {
	image ImageHandle
	usage ImageUsage
}

type bufferAccess struct {
	buffer BufferHandle
	usage  BufferUsage
}

type imageUsageInfo struct {
	stage  gpu.Stage
	access gpu.Access
	layout gpu.Layout
}

func imageUsageInfoOf(u ImageUsage) imageUsageInfo {
	switch u {
	case ImageSampledFragment:
		return imageUsageInfo{gpu.StageFragmentShader, gpu.AccessShaderSampledRead, gpu.LayoutShaderReadOnly}
	case ImageSampledCompute:
		return imageUsageInfo{gpu.StageComputeShader, gpu.AccessShaderSampledRead, gpu.LayoutShaderReadOnly}
	case ImageTransferSrc:
		return imageUsageInfo{gpu.StageTransfer, gpu.AccessTransferRead, gpu.LayoutTransferSrc}
	case ImageTransferDst:
		return imageUsageInfo{gpu.StageTransfer, gpu.AccessTransferWrite, gpu.LayoutTransferDst}
	case ImageColorAttachment:
		return imageUsageInfo{gpu.StageColorAttachmentOutput,
			gpu.AccessColorAttachmentWrite | gpu.AccessColorAttachmentRead, gpu.LayoutColorAttachment}
	case ImageDepthAttachment:
		return imageUsageInfo{gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests,
			gpu.AccessDepthStencilAttachmentWrite | gpu.AccessDepthStencilAttachmentRead, gpu.LayoutDepthAttachment}
	case ImageComputeWrite:
		return imageUsageInfo{gpu.StageComputeShader,
			gpu.AccessShaderStorageRead | gpu.AccessShaderStorageWrite, gpu.LayoutGeneral}
	case ImagePresent:
		return imageUsageInfo{gpu.StageBottomOfPipe, gpu.AccessMemoryRead, gpu.LayoutPresent}
	}
	return imageUsageInfo{gpu.StageAllCommands, gpu.AccessMemoryRead | gpu.AccessMemoryWrite, gpu.LayoutGeneral}
}

// imagePriority picks the layout when one pass declares several usages of an image.
func imagePriority(u ImageUsage) int {
	switch u {
	case ImageDepthAttachment:
		return 30
	case ImageColorAttachment:
		return 25
	case ImageComputeWrite:
		return 20
	case ImageTransferDst:
		return 15
	case ImageTransferSrc:
		return 10
	case ImagePresent:
		return 5
	case ImageSampledFragment, ImageSampledCompute:
		return 1
	}
	return 0
}

// requiredImageUsage is the creation usage an image needs for u.
func requiredImageUsage(u ImageUsage) gpu.ImageUsage {
	switch u {
	case ImageSampledFragment, ImageSampledCompute:
		return gpu.ImageUsageSampled
	case ImageTransferSrc:
		return gpu.ImageUsageTransferSrc
	case ImageTransferDst:
		return gpu.ImageUsageTransferDst
	case ImageColorAttachment:
		return gpu.ImageUsageColorAttachment
	case ImageDepthAttachment:
		return gpu.ImageUsageDepthStencilAttachment
	case ImageComputeWrite:
		return gpu.ImageUsageStorage
	}
	return 0
}

type bufferUsageInfo struct {
	stage  gpu.Stage
	access gpu.Access
}

func bufferUsageInfoOf(u BufferUsage) bufferUsageInfo {
	switch u {
	case BufferTransferSrc:
		return bufferUsageInfo{gpu.StageTransfer, gpu.AccessTransferRead}
	case BufferTransferDst:
		return bufferUsageInfo{gpu.StageTransfer, gpu.AccessTransferWrite}
	case BufferVertexRead:
		return bufferUsageInfo{gpu.StageVertexInput, gpu.AccessVertexAttributeRead}
	case BufferIndexRead:
		return bufferUsageInfo{gpu.StageIndexInput, gpu.AccessIndexRead}
	case BufferUniformRead:
		return bufferUsageInfo{gpu.StageAllGraphics | gpu.StageComputeShader, gpu.AccessUniformRead}
	case BufferStorageRead:
		return bufferUsageInfo{gpu.StageComputeShader | gpu.StageAllGraphics, gpu.AccessShaderStorageRead}
	case BufferStorageReadWrite:
		return bufferUsageInfo{gpu.StageComputeShader | gpu.StageAllGraphics,
			gpu.AccessShaderStorageRead | gpu.AccessShaderStorageWrite}
	case BufferIndirectArgs:
		return bufferUsageInfo{gpu.StageDrawIndirect, gpu.AccessIndirectCommandRead}
	}
	return bufferUsageInfo{gpu.StageAllCommands, gpu.AccessMemoryRead | gpu.AccessMemoryWrite}
}

func bufferPriority(u BufferUsage) int {
	switch u {
	case BufferTransferDst:
		return 30
	case BufferTransferSrc:
		return 25
	case BufferStorageReadWrite:
		return 20
	case BufferStorageRead:
		return 15
	case BufferIndirectArgs:
		return 10
	case BufferVertexRead, BufferIndexRead:
		return 5
	case BufferUniformRead:
		return 1
	}
	return 0
}

func requiredBufferUsage(u BufferUsage) gpu.BufferUsage {
	switch u {
	case BufferTransferSrc:
		return gpu.BufferUsageTransferSrc
	case BufferTransferDst:
		return gpu.BufferUsageTransferDst
	case BufferVertexRead:
		return gpu.BufferUsageVertex
	case BufferIndexRead:
		return gpu.BufferUsageIndex
	case BufferUniformRead:
		return gpu.BufferUsageUniform
	case BufferStorageRead, BufferStorageReadWrite:
		return gpu.BufferUsageStorage
	case BufferIndirectArgs:
		return gpu.BufferUsageIndirect
	}
	return 0
}
