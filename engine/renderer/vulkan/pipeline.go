package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type pipelineLayout struct {
	device *Device
	handle vk.PipelineLayout
}

func (d *Device) NewPipelineLayout(sets []gpu.DescriptorSetLayout, pushConstants []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		setLayouts[i] = s.(*descriptorSetLayout).handle
	}
	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, r := range pushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: toVkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	l := &pipelineLayout{device: d}
	err := d.locks.SafeCall(PipelineCreation, func() error {
		return resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.handle, &info, nil, &l.handle))
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *pipelineLayout) Destroy() {
	if l.handle != nil {
		vk.DestroyPipelineLayout(l.device.handle, l.handle, nil)
		l.handle = nil
	}
}

type pipeline struct {
	device    *Device
	handle    vk.Pipeline
	bindPoint gpu.BindPoint
}

func (p *pipeline) BindPoint() gpu.BindPoint { return p.bindPoint }

func (p *pipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.device.handle, p.handle, nil)
		p.handle = vk.NullPipeline
	}
}

func blendAttachment(mode gpu.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit,
		),
		BlendEnable: vk.False,
	}
	switch mode {
	case gpu.BlendAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	case gpu.BlendAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

// NewGraphicsPipeline builds a pipeline without vertex input. Vertices are
// pulled from storage buffers, viewport and scissor are dynamic.
func (d *Device) NewGraphicsPipeline(desc *gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	renderpass, err := d.renderpasses.get(compatibleKey(desc.ColorFormats, desc.DepthFormat))
	if err != nil {
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		shaderStage(vk.ShaderStageVertexBit, desc.VertexShader),
		shaderStage(vk.ShaderStageFragmentBit, desc.FragmentShader),
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVkTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                toVkCullMode(desc.Cull),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}
	if desc.FrontFaceCW {
		raster.FrontFace = vk.FrontFaceClockwise
	}
	if desc.Wireframe && d.physical.features.FillModeNonSolid == vk.True {
		raster.PolygonMode = vk.PolygonModeLine
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples:  vk.SampleCount1Bit,
		SampleShadingEnable:   vk.False,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = toVkCompareOp(desc.DepthCompare)
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorFormats))
	for i := range attachments {
		attachments[i] = blendAttachment(desc.Blend)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              desc.Layout.(*pipelineLayout).handle,
		RenderPass:          renderpass,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}

	p := &pipeline{device: d, bindPoint: gpu.BindGraphics}
	handles := make([]vk.Pipeline, 1)
	err = d.locks.SafeCall(PipelineCreation, func() error {
		return resultError("vkCreateGraphicsPipelines",
			vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, handles))
	})
	if err != nil {
		return nil, err
	}
	p.handle = handles[0]
	return p, nil
}

func (d *Device) NewComputePipeline(desc *gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	stage := shaderStage(vk.ShaderStageComputeBit, desc.Shader)
	if n := len(desc.Specialization); n > 0 {
		entries := make([]vk.SpecializationMapEntry, n)
		for i := range entries {
			entries[i] = vk.SpecializationMapEntry{
				ConstantID: uint32(i),
				Offset:     uint32(i * 4),
				Size:       4,
			}
		}
		data := append([]uint32(nil), desc.Specialization...)
		stage.PSpecializationInfo = []vk.SpecializationInfo{{
			MapEntryCount: uint32(n),
			PMapEntries:   entries,
			DataSize:      uint(n * 4),
			PData:         unsafe.Pointer(&data[0]),
		}}
	}

	info := vk.ComputePipelineCreateInfo{
		SType:             vk.StructureTypeComputePipelineCreateInfo,
		Stage:             stage,
		Layout:            desc.Layout.(*pipelineLayout).handle,
		BasePipelineIndex: -1,
	}

	p := &pipeline{device: d, bindPoint: gpu.BindCompute}
	handles := make([]vk.Pipeline, 1)
	err := d.locks.SafeCall(PipelineCreation, func() error {
		return resultError("vkCreateComputePipelines",
			vk.CreateComputePipelines(d.handle, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, nil, handles))
	})
	if err != nil {
		return nil, err
	}
	p.handle = handles[0]
	return p, nil
}
