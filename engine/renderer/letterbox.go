package renderer

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/pipelines"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/swapchain"
)

const (
	LetterboxPipeline = "letterbox"
	FullscreenShader  = "fullscreen.vert.spv"
	LetterboxShader   = "letterbox.frag.spv"
)

func (r *Renderer) registerLetterbox() bool {
	err := r.Pipelines.RegisterGraphics(LetterboxPipeline, pipelines.GraphicsSpec{
		VertexShader:   FullscreenShader,
		FragmentShader: LetterboxShader,
		SetLayouts:     []gpu.DescriptorSetLayout{r.Layouts.SingleImage},
		Configure: func(desc *gpu.GraphicsPipelineDesc) {
			desc.ColorFormats = []gpu.Format{swapchain.SwapchainFormat}
			desc.Cull = gpu.CullNone
			desc.Blend = gpu.BlendDisabled
		},
	})
	if err != nil {
		core.LogWarn("letterbox pipeline unavailable, the draw image will not be presented: %v", err)
		return false
	}
	return true
}

// letterboxRect fits src inside dst keeping the aspect ratio, centred.
func letterboxRect(src, dst gpu.Extent2D) gpu.Rect2D {
	if src.Width == 0 || src.Height == 0 || dst.Width == 0 || dst.Height == 0 {
		return gpu.Rect2D{Extent: dst}
	}
	sx := float64(dst.Width) / float64(src.Width)
	sy := float64(dst.Height) / float64(src.Height)
	scale := min(sx, sy)
	w := max(uint32(float64(src.Width)*scale), 1)
	h := max(uint32(float64(src.Height)*scale), 1)
	return gpu.Rect2D{
		X:      int32((dst.Width - w) / 2),
		Y:      int32((dst.Height - h) / 2),
		Extent: gpu.Extent2D{Width: w, Height: h},
	}
}

// DrawLetterbox samples src across the largest rectangle of the swapchain
// image that keeps the draw extent's aspect ratio.
func (r *Renderer) DrawLetterbox(cmd gpu.CmdBuffer, src gpu.ImageView) {
	if !r.letterbox || src == nil {
		return
	}
	pipeline, layout, ok := r.Pipelines.GetGraphics(LetterboxPipeline)
	if !ok {
		return
	}
	fr := r.CurrentFrame()
	if fr == nil {
		return
	}
	set, err := fr.Descriptors.Allocate(r.Layouts.SingleImage)
	if err != nil {
		core.LogError("letterbox descriptor allocation failed: %v", err)
		return
	}
	set.WriteImage(0, gpu.DescriptorCombinedImageSampler, src, r.Samplers.LinearClamp, gpu.LayoutShaderReadOnly)

	rect := letterboxRect(r.drawExtent, r.swapchain.Extent())
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSets(gpu.BindGraphics, layout, 0, []gpu.DescriptorSet{set})
	cmd.SetViewport(gpu.Viewport{
		X:        float32(rect.X),
		Y:        float32(rect.Y),
		Width:    float32(rect.Extent.Width),
		Height:   float32(rect.Extent.Height),
		MaxDepth: 1,
	})
	cmd.SetScissor(rect)
	cmd.Draw(3, 1, 0, 0)
}
