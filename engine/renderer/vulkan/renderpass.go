package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type attachmentKey struct {
	format gpu.Format
	clear  bool
	store  bool
}

// renderpassKey identifies a single subpass render pass. Attachments keep
// the layout the graph transitioned them to, so only formats and load/store
// operations vary.
type renderpassKey struct {
	colors []attachmentKey
	depth  *attachmentKey
}

func (k renderpassKey) String() string {
	var sb strings.Builder
	for _, c := range k.colors {
		fmt.Fprintf(&sb, "c%d:%t:%t;", c.format, c.clear, c.store)
	}
	if k.depth != nil {
		fmt.Fprintf(&sb, "d%d:%t:%t", k.depth.format, k.depth.clear, k.depth.store)
	}
	return sb.String()
}

func keyFromRendering(info *gpu.RenderingInfo) renderpassKey {
	k := renderpassKey{colors: make([]attachmentKey, len(info.Colors))}
	for i, c := range info.Colors {
		k.colors[i] = attachmentKey{format: c.View.Image().Format(), clear: c.Clear, store: c.Store}
	}
	if info.Depth != nil {
		k.depth = &attachmentKey{format: info.Depth.View.Image().Format(), clear: info.Depth.Clear, store: info.Depth.Store}
	}
	return k
}

// compatibleKey is the key a pipeline is created against. Render pass
// compatibility ignores load and store operations.
func compatibleKey(colors []gpu.Format, depth gpu.Format) renderpassKey {
	k := renderpassKey{colors: make([]attachmentKey, len(colors))}
	for i, f := range colors {
		k.colors[i] = attachmentKey{format: f, store: true}
	}
	if depth != gpu.FormatUndefined {
		k.depth = &attachmentKey{format: depth, store: true}
	}
	return k
}

type renderpassCache struct {
	device *Device
	passes map[string]vk.RenderPass
}

func newRenderpassCache(d *Device) *renderpassCache {
	return &renderpassCache{device: d, passes: make(map[string]vk.RenderPass)}
}

func (c *renderpassCache) get(key renderpassKey) (vk.RenderPass, error) {
	id := key.String()
	var pass vk.RenderPass
	err := c.device.locks.SafeCall(RenderpassCache, func() error {
		if rp, ok := c.passes[id]; ok {
			pass = rp
			return nil
		}
		rp, err := c.create(key)
		if err != nil {
			return err
		}
		c.passes[id] = rp
		pass = rp
		core.LogDebug("render pass created for %s (%d cached)", id, len(c.passes))
		return nil
	})
	return pass, err
}

func (c *renderpassCache) create(key renderpassKey) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(key.colors)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(key.colors))

	for i, a := range key.colors {
		attachments = append(attachments, attachmentDescription(a, vk.ImageLayoutColorAttachmentOptimal))
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if key.depth != nil {
		attachments = append(attachments, attachmentDescription(*key.depth, vk.ImageLayoutDepthStencilAttachmentOptimal))
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(key.colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var rp vk.RenderPass
	if err := resultError("vkCreateRenderPass", vk.CreateRenderPass(c.device.handle, &info, nil, &rp)); err != nil {
		return nil, err
	}
	return rp, nil
}

func attachmentDescription(a attachmentKey, layout vk.ImageLayout) vk.AttachmentDescription {
	load := vk.AttachmentLoadOpLoad
	if a.clear {
		load = vk.AttachmentLoadOpClear
	}
	store := vk.AttachmentStoreOpDontCare
	if a.store {
		store = vk.AttachmentStoreOpStore
	}
	stencilLoad, stencilStore := vk.AttachmentLoadOpDontCare, vk.AttachmentStoreOpDontCare
	if a.format.HasStencil() {
		stencilLoad, stencilStore = load, store
	}
	return vk.AttachmentDescription{
		Format:         toVkFormat(a.format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         load,
		StoreOp:        store,
		StencilLoadOp:  stencilLoad,
		StencilStoreOp: stencilStore,
		InitialLayout:  layout,
		FinalLayout:    layout,
	}
}

func (c *renderpassCache) destroy() {
	_ = c.device.locks.SafeCall(RenderpassCache, func() error {
		for id, rp := range c.passes {
			vk.DestroyRenderPass(c.device.handle, rp, nil)
			delete(c.passes, id)
		}
		return nil
	})
}
