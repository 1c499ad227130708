package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// cmdPool owns its command buffers and the framebuffers they recorded.
type cmdPool struct {
	device       *Device
	handle       vk.CommandPool
	framebuffers []vk.Framebuffer
}

func (d *Device) NewCmdPool() (gpu.CmdPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.physical.queueFamily,
	}
	p := &cmdPool{device: d}
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(d.handle, &info, nil, &p.handle)); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *cmdPool) NewCmdBuffer() (gpu.CmdBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(p.device.handle, &info, handles)); err != nil {
		return nil, err
	}
	return &cmdBuffer{pool: p, handle: handles[0]}, nil
}

func (p *cmdPool) releaseFramebuffers() {
	for _, fb := range p.framebuffers {
		vk.DestroyFramebuffer(p.device.handle, fb, nil)
	}
	p.framebuffers = p.framebuffers[:0]
}

func (p *cmdPool) Reset() error {
	p.releaseFramebuffers()
	return resultError("vkResetCommandPool", vk.ResetCommandPool(p.device.handle, p.handle, 0))
}

func (p *cmdPool) Destroy() {
	if p.handle == nil {
		return
	}
	p.releaseFramebuffers()
	vk.DestroyCommandPool(p.device.handle, p.handle, nil)
	p.handle = nil
}

type cmdBuffer struct {
	pool   *cmdPool
	handle vk.CommandBuffer
	// err is the first recording failure, reported by End.
	err          error
	inRenderpass bool
}

var errNotInRenderpass = errors.New("EndRendering without BeginRendering")

func (c *cmdBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
		core.LogError("command recording failed: %v", err)
	}
}

func (c *cmdBuffer) Begin() error {
	c.err = nil
	c.inRenderpass = false
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.handle, &info))
}

func (c *cmdBuffer) End() error {
	if c.inRenderpass {
		vk.CmdEndRenderPass(c.handle)
		c.inRenderpass = false
		c.fail(fmt.Errorf("command buffer ended inside a render pass: %w", core.ErrUnknown))
	}
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(c.handle)); err != nil {
		return err
	}
	return c.err
}

// Barrier records a single vkCmdPipelineBarrier whose stage masks are the
// union of every barrier's stages.
func (c *cmdBuffer) Barrier(images []gpu.ImageBarrier, buffers []gpu.BufferBarrier, memory []gpu.MemoryBarrier) {
	if len(images)+len(buffers)+len(memory) == 0 {
		return
	}
	var src, dst gpu.Stage

	var memBarriers []vk.MemoryBarrier
	for _, m := range memory {
		src |= m.SrcStage
		dst |= m.DstStage
		memBarriers = append(memBarriers, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: toVkAccess(m.SrcAccess),
			DstAccessMask: toVkAccess(m.DstAccess),
		})
	}

	var bufBarriers []vk.BufferMemoryBarrier
	for _, b := range buffers {
		src |= b.SrcStage
		dst |= b.DstStage
		size := b.Size
		if size == 0 {
			size = gpu.WholeSize
		}
		bufBarriers = append(bufBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       toVkAccess(b.SrcAccess),
			DstAccessMask:       toVkAccess(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b.Buffer.(*buffer).handle,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                vk.DeviceSize(size),
		})
	}

	var imgBarriers []vk.ImageMemoryBarrier
	for _, ib := range images {
		src |= ib.SrcStage
		dst |= ib.DstStage
		img := ib.Image.(*image)
		levels := ib.LevelCount
		if levels == 0 {
			levels = img.levels - ib.BaseLevel
		}
		aspect := toVkAspect(ib.Aspect)
		if aspect == 0 {
			aspect = aspectOf(img.format)
		}
		imgBarriers = append(imgBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       toVkAccess(ib.SrcAccess),
			DstAccessMask:       toVkAccess(ib.DstAccess),
			OldLayout:           toVkLayout(ib.OldLayout),
			NewLayout:           toVkLayout(ib.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspect,
				BaseMipLevel:   ib.BaseLevel,
				LevelCount:     levels,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
	}

	vk.CmdPipelineBarrier(c.handle,
		toVkStages(src, vk.PipelineStageTopOfPipeBit),
		toVkStages(dst, vk.PipelineStageBottomOfPipeBit),
		0,
		uint32(len(memBarriers)), memBarriers,
		uint32(len(bufBarriers)), bufBarriers,
		uint32(len(imgBarriers)), imgBarriers,
	)
}

func (c *cmdBuffer) BeginRendering(info *gpu.RenderingInfo) {
	d := c.pool.device
	rp, err := d.renderpasses.get(keyFromRendering(info))
	if err != nil {
		c.fail(err)
		return
	}
	fb, err := d.newFramebuffer(rp, info)
	if err != nil {
		c.fail(err)
		return
	}
	c.pool.framebuffers = append(c.pool.framebuffers, fb)

	clears := clearValues(info)
	begin := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: info.Area.Width, Height: info.Area.Height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(c.handle, &begin, vk.SubpassContentsInline)
	c.inRenderpass = true
}

func (c *cmdBuffer) EndRendering() {
	if !c.inRenderpass {
		c.fail(errNotInRenderpass)
		return
	}
	vk.CmdEndRenderPass(c.handle)
	c.inRenderpass = false
}

// Labels need VK_EXT_debug_utils, which the binding does not load.
func (c *cmdBuffer) BeginLabel(name string) {}
func (c *cmdBuffer) EndLabel()              {}

func (c *cmdBuffer) ResetQueryPool(pool gpu.QueryPool, first, count int) {
	vk.CmdResetQueryPool(c.handle, pool.(*queryPool).handle, uint32(first), uint32(count))
}

func (c *cmdBuffer) WriteTimestamp(pool gpu.QueryPool, stage gpu.Stage, query int) {
	bits := vk.PipelineStageFlagBits(toVkStages(stage, vk.PipelineStageBottomOfPipeBit))
	vk.CmdWriteTimestamp(c.handle, bits, pool.(*queryPool).handle, uint32(query))
}

func (c *cmdBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.handle, src.(*buffer).handle, dst.(*buffer).handle, uint32(len(copies)), copies)
}

func (c *cmdBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout gpu.Layout, regions []gpu.BufferImageCopy) {
	if len(regions) == 0 {
		return
	}
	img := dst.(*image)
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		aspect := toVkAspect(r.Aspect)
		if aspect == 0 {
			aspect = aspectOf(img.format)
		}
		copies[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     aspect,
				MipLevel:       r.Level,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: toVkOffset3D(r.Offset),
			ImageExtent: toVkExtent3D(r.Extent),
		}
	}
	vk.CmdCopyBufferToImage(c.handle, src.(*buffer).handle, img.handle, toVkLayout(layout), uint32(len(copies)), copies)
}

func (c *cmdBuffer) BlitImage(src gpu.Image, srcLayout gpu.Layout, dst gpu.Image, dstLayout gpu.Layout, regions []gpu.ImageBlit, filter gpu.Filter) {
	if len(regions) == 0 {
		return
	}
	s, d := src.(*image), dst.(*image)
	blits := make([]vk.ImageBlit, len(regions))
	for i, r := range regions {
		blits[i] = vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: aspectOf(s.format),
				MipLevel:   r.SrcLevel,
				LayerCount: 1,
			},
			SrcOffsets: [2]vk.Offset3D{toVkOffset3D(r.SrcOffset[0]), toVkOffset3D(r.SrcOffset[1])},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: aspectOf(d.format),
				MipLevel:   r.DstLevel,
				LayerCount: 1,
			},
			DstOffsets: [2]vk.Offset3D{toVkOffset3D(r.DstOffset[0]), toVkOffset3D(r.DstOffset[1])},
		}
	}
	vk.CmdBlitImage(c.handle, s.handle, toVkLayout(srcLayout), d.handle, toVkLayout(dstLayout), uint32(len(blits)), blits, toVkFilter(filter))
}

func (c *cmdBuffer) BindPipeline(p gpu.Pipeline) {
	pl := p.(*pipeline)
	vk.CmdBindPipeline(c.handle, toVkBindPoint(pl.bindPoint), pl.handle)
}

func (c *cmdBuffer) BindDescriptorSets(bp gpu.BindPoint, layout gpu.PipelineLayout, first uint32, sets []gpu.DescriptorSet) {
	if len(sets) == 0 {
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.(*descriptorSet).handle
	}
	vk.CmdBindDescriptorSets(c.handle, toVkBindPoint(bp), layout.(*pipelineLayout).handle, first, uint32(len(handles)), handles, 0, nil)
}

func (c *cmdBuffer) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, layout.(*pipelineLayout).handle, toVkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *cmdBuffer) BindVertexBuffer(buf gpu.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{buf.(*buffer).handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (c *cmdBuffer) BindIndexBuffer(buf gpu.Buffer, offset uint64, t gpu.IndexType) {
	vk.CmdBindIndexBuffer(c.handle, buf.(*buffer).handle, vk.DeviceSize(offset), toVkIndexType(t))
}

func (c *cmdBuffer) SetViewport(vp gpu.Viewport) {
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (c *cmdBuffer) SetScissor(r gpu.Rect2D) {
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{toVkRect(r)})
}

func (c *cmdBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *cmdBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *cmdBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(c.handle, x, y, z)
}

// BuildAccelerationStructures is unreachable while RayTracing returns nil.
func (c *cmdBuffer) BuildAccelerationStructures(builds []gpu.ASBuildInfo) {
	if len(builds) > 0 {
		c.fail(fmt.Errorf("acceleration structure builds: %w", core.ErrUnsupported))
	}
}
