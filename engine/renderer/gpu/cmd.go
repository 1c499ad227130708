package gpu

type ClearColor [4]float32

type ColorAttachment struct {
	View       ImageView
	Clear      bool
	ClearValue ClearColor
	Store      bool
}

type DepthAttachment struct {
	View       ImageView
	Clear      bool
	ClearDepth float32
	Store      bool
}

// RenderingInfo begins dynamic rendering over Area.
type RenderingInfo struct {
	Area   Extent2D
	Colors []ColorAttachment
	Depth  *DepthAttachment
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Level        uint32
	Aspect       Aspect
	Offset       Offset3D
	Extent       Extent3D
}

type ImageBlit struct {
	SrcLevel  uint32
	SrcOffset [2]Offset3D
	DstLevel  uint32
	DstOffset [2]Offset3D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// CmdBuffer records commands. It is owned by one goroutine at a time.
type CmdBuffer interface {
	Begin() error
	End() error

	Barrier(images []ImageBarrier, buffers []BufferBarrier, memory []MemoryBarrier)
	BeginRendering(info *RenderingInfo)
	EndRendering()

	BeginLabel(name string)
	EndLabel()
	ResetQueryPool(pool QueryPool, first, count int)
	WriteTimestamp(pool QueryPool, stage Stage, query int)

	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout Layout, regions []BufferImageCopy)
	BlitImage(src Image, srcLayout Layout, dst Image, dstLayout Layout, regions []ImageBlit, filter Filter)

	BindPipeline(p Pipeline)
	BindDescriptorSets(bp BindPoint, layout PipelineLayout, first uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffer(buf Buffer, offset uint64)
	BindIndexBuffer(buf Buffer, offset uint64, t IndexType)
	SetViewport(vp Viewport)
	SetScissor(r Rect2D)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	BuildAccelerationStructures(builds []ASBuildInfo)
}
