package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// newFramebuffer creates a framebuffer for one BeginRendering. The caller
// owns it until the command pool that recorded it is reset.
func (d *Device) newFramebuffer(renderpass vk.RenderPass, info *gpu.RenderingInfo) (vk.Framebuffer, error) {
	attachments := make([]vk.ImageView, 0, len(info.Colors)+1)
	for _, c := range info.Colors {
		attachments = append(attachments, c.View.(*imageView).handle)
	}
	if info.Depth != nil {
		attachments = append(attachments, info.Depth.View.(*imageView).handle)
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Area.Width,
		Height:          info.Area.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := resultError("vkCreateFramebuffer", vk.CreateFramebuffer(d.handle, &createInfo, nil, &fb)); err != nil {
		return nil, err
	}
	return fb, nil
}

// clearValues returns one clear value per attachment, in framebuffer order.
func clearValues(info *gpu.RenderingInfo) []vk.ClearValue {
	out := make([]vk.ClearValue, 0, len(info.Colors)+1)
	for _, c := range info.Colors {
		var v vk.ClearValue
		v.SetColor(c.ClearValue[:])
		out = append(out, v)
	}
	if info.Depth != nil {
		var v vk.ClearValue
		v.SetDepthStencil(info.Depth.ClearDepth, 0)
		out = append(out, v)
	}
	return out
}
