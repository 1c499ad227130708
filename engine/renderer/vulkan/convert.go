package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

func toVkFormat(f gpu.Format) vk.Format {
	return vk.Format(f)
}

func toVkLayout(l gpu.Layout) vk.ImageLayout {
	switch l {
	case gpu.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var stageBits = []struct {
	from gpu.Stage
	to   vk.PipelineStageFlagBits
}{
	{gpu.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{gpu.StageDrawIndirect, vk.PipelineStageDrawIndirectBit},
	{gpu.StageVertexInput, vk.PipelineStageVertexInputBit},
	{gpu.StageIndexInput, vk.PipelineStageVertexInputBit},
	{gpu.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{gpu.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{gpu.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{gpu.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{gpu.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{gpu.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{gpu.StageTransfer, vk.PipelineStageTransferBit},
	{gpu.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{gpu.StageHost, vk.PipelineStageHostBit},
	{gpu.StageAccelerationStructureBuild, vk.PipelineStageAllCommandsBit},
	{gpu.StageAllGraphics, vk.PipelineStageAllGraphicsBit},
	{gpu.StageAllCommands, vk.PipelineStageAllCommandsBit},
}

// toVkStages lowers a stage set to Vulkan 1.0 bits. An empty set becomes
// fallback, since 1.0 barriers reject a zero stage mask.
func toVkStages(s gpu.Stage, fallback vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.from != 0 {
			out |= vk.PipelineStageFlags(b.to)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(fallback)
	}
	return out
}

var accessBits = []struct {
	from gpu.Access
	to   vk.AccessFlagBits
}{
	{gpu.AccessIndirectCommandRead, vk.AccessIndirectCommandReadBit},
	{gpu.AccessIndexRead, vk.AccessIndexReadBit},
	{gpu.AccessVertexAttributeRead, vk.AccessVertexAttributeReadBit},
	{gpu.AccessUniformRead, vk.AccessUniformReadBit},
	{gpu.AccessShaderSampledRead, vk.AccessShaderReadBit},
	{gpu.AccessShaderStorageRead, vk.AccessShaderReadBit},
	{gpu.AccessShaderStorageWrite, vk.AccessShaderWriteBit},
	{gpu.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{gpu.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{gpu.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{gpu.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{gpu.AccessTransferRead, vk.AccessTransferReadBit},
	{gpu.AccessTransferWrite, vk.AccessTransferWriteBit},
	{gpu.AccessHostRead, vk.AccessHostReadBit},
	{gpu.AccessHostWrite, vk.AccessHostWriteBit},
	{gpu.AccessMemoryRead, vk.AccessMemoryReadBit},
	{gpu.AccessMemoryWrite, vk.AccessMemoryWriteBit},
	{gpu.AccessAccelerationStructureRead, vk.AccessMemoryReadBit},
	{gpu.AccessAccelerationStructureWrite, vk.AccessMemoryWriteBit},
}

func toVkAccess(a gpu.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.from != 0 {
			out |= vk.AccessFlags(b.to)
		}
	}
	return out
}

func toVkAspect(a gpu.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlags
	if a&gpu.AspectColor != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&gpu.AspectDepth != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if a&gpu.AspectStencil != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return out
}

// aspectOf is the full aspect mask of a format.
func aspectOf(f gpu.Format) vk.ImageAspectFlags {
	if !f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	out := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if f.HasStencil() {
		out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return out
}

func toVkBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&(gpu.BufferUsageStorage|gpu.BufferUsageASBuildInput|gpu.BufferUsageASStorage) != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u&gpu.BufferUsageIndirect != 0 {
		out |= vk.BufferUsageIndirectBufferBit
	}
	return vk.BufferUsageFlags(out)
}

func toVkImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&gpu.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&gpu.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&gpu.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&gpu.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&gpu.ImageUsageDepthStencilAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

// memoryFlags returns the required and preferred property flags of a placement hint.
func memoryFlags(m gpu.MemoryUsage) (required, preferred vk.MemoryPropertyFlagBits) {
	switch m {
	case gpu.MemoryCPUToGPU:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, vk.MemoryPropertyDeviceLocalBit
	case gpu.MemoryCPUOnly:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, 0
	case gpu.MemoryGPUToCPU:
		return vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCachedBit
	}
	return vk.MemoryPropertyDeviceLocalBit, 0
}

func toVkDescriptorType(t gpu.DescriptorType) (vk.DescriptorType, bool) {
	switch t {
	case gpu.DescriptorSampler:
		return vk.DescriptorTypeSampler, true
	case gpu.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler, true
	case gpu.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage, true
	case gpu.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage, true
	case gpu.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, true
	case gpu.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, true
	}
	return 0, false
}

func toVkShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&gpu.ShaderStageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	if s&gpu.ShaderStageCompute != 0 {
		out |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(out)
}

func toVkFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toVkMipmapMode(f gpu.Filter) vk.SamplerMipmapMode {
	if f == gpu.FilterNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func toVkAddressMode(m gpu.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.AddressMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case gpu.AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gpu.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func toVkTopology(t gpu.Topology) vk.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gpu.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func toVkCullMode(c gpu.CullMode) vk.CullModeFlags {
	switch c {
	case gpu.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	case gpu.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func toVkCompareOp(c gpu.CompareOp) vk.CompareOp {
	switch c {
	case gpu.CompareLess:
		return vk.CompareOpLess
	case gpu.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case gpu.CompareAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}

func toVkIndexType(t gpu.IndexType) vk.IndexType {
	if t == gpu.IndexUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toVkBindPoint(bp gpu.BindPoint) vk.PipelineBindPoint {
	if bp == gpu.BindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func toVkOffset3D(o gpu.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z}
}

func toVkExtent3D(e gpu.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func toVkRect(r gpu.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}
