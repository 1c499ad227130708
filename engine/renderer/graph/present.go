package graph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

const (
	PresentLetterboxPass = "PresentLetterbox"
	PreparePresentPass   = "PreparePresent"
)

// AddPresentChain samples sourceDraw into the swapchain image with letterboxing,
// lets extra append passes (UI) drawing onto the swapchain image, then moves
// the image into the present layout.
func (g *Graph[C]) AddPresentChain(sourceDraw, targetSwapchain ImageHandle, extra func(g *Graph[C])) {
	if !sourceDraw.Valid() || !targetSwapchain.Valid() {
		return
	}

	g.AddPass(PresentLetterboxPass, PassGraphics,
		func(b *Builder, _ C) {
			b.Read(sourceDraw, ImageSampledFragment)
			b.WriteColor(targetSwapchain, true, gpu.ClearColor{0, 0, 0, 1})
		},
		func(cmd gpu.CmdBuffer, res *PassResources, ctx C) {
			src := res.ImageView(sourceDraw)
			if src == nil || res.ImageView(targetSwapchain) == nil {
				return
			}
			ctx.DrawLetterbox(cmd, src)
		})

	if extra != nil {
		extra(g)
	}

	g.AddPass(PreparePresentPass, PassTransfer,
		func(b *Builder, _ C) {
			b.Write(targetSwapchain, ImagePresent)
		},
		nil)
}

func (g *Graph[C]) importTarget(name string, img gpu.Image) ImageHandle {
	if img == nil {
		return InvalidImage
	}
	// Layout is treated as unknown at frame start so the first use always transitions.
	return g.ImportImage(ImportedImage{
		Name:   name,
		Image:  img,
		Format: img.Format(),
		Extent: g.ctx.DrawExtent(),
		Layout: gpu.LayoutUndefined,
	})
}

func (g *Graph[C]) ImportDrawImage() ImageHandle {
	return g.importTarget("drawImage", g.ctx.Swapchain().DrawImage())
}

func (g *Graph[C]) ImportDepthImage() ImageHandle {
	return g.importTarget("depthImage", g.ctx.Swapchain().DepthImage())
}

func (g *Graph[C]) ImportGBufferPosition() ImageHandle {
	return g.importTarget("gBuffer.position", g.ctx.Swapchain().GBufferPosition())
}

func (g *Graph[C]) ImportGBufferNormal() ImageHandle {
	return g.importTarget("gBuffer.normal", g.ctx.Swapchain().GBufferNormal())
}

func (g *Graph[C]) ImportGBufferAlbedo() ImageHandle {
	return g.importTarget("gBuffer.albedo", g.ctx.Swapchain().GBufferAlbedo())
}

func (g *Graph[C]) ImportGBufferExtra() ImageHandle {
	return g.importTarget("gBuffer.extra", g.ctx.Swapchain().GBufferExtra())
}

func (g *Graph[C]) ImportIDBuffer() ImageHandle {
	return g.importTarget("idBuffer.objectID", g.ctx.Swapchain().IDBuffer())
}

// ImportSwapchainImage imports swapchain image index in the layout the
// previous frame left it in.
func (g *Graph[C]) ImportSwapchainImage(index int) ImageHandle {
	sc := g.ctx.Swapchain()
	if index < 0 || index >= sc.ImageCount() {
		return InvalidImage
	}
	return g.ImportImage(ImportedImage{
		Name:   "swapchain.image",
		Image:  sc.Image(index),
		Format: sc.Format(),
		Extent: sc.Extent(),
		Layout: sc.ImageLayout(index),
	})
}
