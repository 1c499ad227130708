package gpu

import "strings"

// Stage is a set of pipeline stages, modelled on synchronization2.
type Stage uint64

const StageNone Stage = 0

const (
	StageTopOfPipe Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageIndexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost
	StageAccelerationStructureBuild
	StageAllGraphics
	StageAllCommands
)

var stageNames = []struct {
	bit  Stage
	name string
}{
	{StageTopOfPipe, "TopOfPipe"},
	{StageDrawIndirect, "DrawIndirect"},
	{StageVertexInput, "VertexInput"},
	{StageIndexInput, "IndexInput"},
	{StageVertexShader, "VertexShader"},
	{StageFragmentShader, "FragmentShader"},
	{StageEarlyFragmentTests, "EarlyFragmentTests"},
	{StageLateFragmentTests, "LateFragmentTests"},
	{StageColorAttachmentOutput, "ColorAttachmentOutput"},
	{StageComputeShader, "ComputeShader"},
	{StageTransfer, "Transfer"},
	{StageBottomOfPipe, "BottomOfPipe"},
	{StageHost, "Host"},
	{StageAccelerationStructureBuild, "AccelerationStructureBuild"},
	{StageAllGraphics, "AllGraphics"},
	{StageAllCommands, "AllCommands"},
}

func (s Stage) String() string {
	if s == StageNone {
		return "None"
	}
	var parts []string
	for _, n := range stageNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Access is a set of memory access kinds.
type Access uint64

const AccessNone Access = 0

const (
	AccessIndirectCommandRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderSampledRead
	AccessShaderStorageRead
	AccessShaderStorageWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
)

// WriteAccessMask holds every access bit that modifies memory.
const WriteAccessMask = AccessShaderStorageWrite | AccessColorAttachmentWrite |
	AccessDepthStencilAttachmentWrite | AccessTransferWrite | AccessHostWrite |
	AccessMemoryWrite | AccessAccelerationStructureWrite

// HasWrite reports whether any bit of a modifies memory.
func (a Access) HasWrite() bool {
	return a&WriteAccessMask != 0
}

var accessNames = []struct {
	bit  Access
	name string
}{
	{AccessIndirectCommandRead, "IndirectCommandRead"},
	{AccessIndexRead, "IndexRead"},
	{AccessVertexAttributeRead, "VertexAttributeRead"},
	{AccessUniformRead, "UniformRead"},
	{AccessShaderSampledRead, "ShaderSampledRead"},
	{AccessShaderStorageRead, "ShaderStorageRead"},
	{AccessShaderStorageWrite, "ShaderStorageWrite"},
	{AccessColorAttachmentRead, "ColorAttachmentRead"},
	{AccessColorAttachmentWrite, "ColorAttachmentWrite"},
	{AccessDepthStencilAttachmentRead, "DepthStencilAttachmentRead"},
	{AccessDepthStencilAttachmentWrite, "DepthStencilAttachmentWrite"},
	{AccessTransferRead, "TransferRead"},
	{AccessTransferWrite, "TransferWrite"},
	{AccessHostRead, "HostRead"},
	{AccessHostWrite, "HostWrite"},
	{AccessMemoryRead, "MemoryRead"},
	{AccessMemoryWrite, "MemoryWrite"},
	{AccessAccelerationStructureRead, "AccelerationStructureRead"},
	{AccessAccelerationStructureWrite, "AccelerationStructureWrite"},
}

func (a Access) String() string {
	if a == AccessNone {
		return "None"
	}
	var parts []string
	for _, n := range accessNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// WholeSize covers a buffer from the given offset to its end.
const WholeSize = ^uint64(0)

// ImageBarrier orders accesses to an image and optionally changes its layout.
type ImageBarrier struct {
	Image     Image
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
	Aspect    Aspect
	BaseLevel uint32
	// Zero means every remaining level.
	LevelCount uint32
}

// BufferBarrier orders accesses to a buffer range.
type BufferBarrier struct {
	Buffer    Buffer
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
	Offset    uint64
	Size      uint64
}

// MemoryBarrier is a global barrier with no resource attached.
type MemoryBarrier struct {
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
}
