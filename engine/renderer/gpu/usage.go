package gpu

// ImageUsage lists the ways an image may be used after creation.
type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

// BufferUsage lists the ways a buffer may be used after creation.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageIndirect
	BufferUsageDeviceAddress
	BufferUsageASBuildInput
	BufferUsageASStorage
)

// MemoryUsage is the placement hint handed to the allocator.
type MemoryUsage int

const (
	MemoryGPUOnly MemoryUsage = iota
	MemoryCPUToGPU
	MemoryCPUOnly
	MemoryGPUToCPU
)

func (m MemoryUsage) HostVisible() bool {
	return m != MemoryGPUOnly
}

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressMirroredRepeat
	AddressClampToEdge
	AddressClampToBorder
)

type SamplerDesc struct {
	MagFilter   Filter
	MinFilter   Filter
	MipFilter   Filter
	AddressMode AddressMode
	MaxLOD      float32
	Anisotropy  float32
}

type ImageDesc struct {
	Format Format
	Extent Extent3D
	Usage  ImageUsage
	Levels uint32
	Memory MemoryUsage
}

type DescriptorType int

const (
	DescriptorSampler DescriptorType = iota
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorAccelerationStructure
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorSampler:
		return "Sampler"
	case DescriptorCombinedImageSampler:
		return "CombinedImageSampler"
	case DescriptorSampledImage:
		return "SampledImage"
	case DescriptorStorageImage:
		return "StorageImage"
	case DescriptorUniformBuffer:
		return "UniformBuffer"
	case DescriptorStorageBuffer:
		return "StorageBuffer"
	case DescriptorAccelerationStructure:
		return "AccelerationStructure"
	}
	return "Unknown"
}

// ShaderStage selects shader stages for bindings and push constants.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageFragment
)

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// PoolRatio sizes a descriptor pool: Ratio descriptors of Type per set.
type PoolRatio struct {
	Type  DescriptorType
	Ratio float32
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type BindPoint int

const (
	BindGraphics BindPoint = iota
	BindCompute
)

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessOrEqual
	CompareGreaterOrEqual
	CompareAlways
)

type BlendMode int

const (
	BlendDisabled BlendMode = iota
	BlendAlpha
	BlendAdditive
)

type IndexType int

const (
	IndexUint32 IndexType = iota
	IndexUint16
)

// GraphicsPipelineDesc is filled by the pipeline manager and the configure
// callback of a graphics spec.
type GraphicsPipelineDesc struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	Layout         PipelineLayout
	Topology       Topology
	Cull           CullMode
	FrontFaceCW    bool
	Wireframe      bool
	DepthTest      bool
	DepthWrite     bool
	DepthCompare   CompareOp
	Blend          BlendMode
	ColorFormats   []Format
	DepthFormat    Format
}

type ComputePipelineDesc struct {
	Shader ShaderModule
	Layout PipelineLayout
	// Specialization constants, constant id i takes Specialization[i].
	Specialization []uint32
}
