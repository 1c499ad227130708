package resources

import (
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/graph"
)

// UploadPassName is the transfer pass RegisterUploadPass adds.
const UploadPassName = "ResourceUploads"

func recordBufferCopy(cmd gpu.CmdBuffer, staging, dst gpu.Buffer, c bufferCopy) {
	cmd.CopyBuffer(staging, dst, []gpu.BufferCopy{{
		SrcOffset: c.stagingOffset,
		DstOffset: c.dstOffset,
		Size:      c.size,
	}})
}

// transitionImage moves every level of img between layouts with a full
// transfer/shader dependency.
func transitionImage(cmd gpu.CmdBuffer, img gpu.Image, from, to gpu.Layout) {
	cmd.Barrier([]gpu.ImageBarrier{{
		Image:     img,
		SrcStage:  gpu.StageAllCommands,
		SrcAccess: gpu.AccessMemoryWrite,
		DstStage:  gpu.StageAllCommands,
		DstAccess: gpu.AccessMemoryRead | gpu.AccessMemoryWrite,
		OldLayout: from,
		NewLayout: to,
		Aspect:    aspectOf(img.Format()),
	}}, nil, nil)
}

func aspectOf(f gpu.Format) gpu.Aspect {
	if f.IsDepth() {
		return gpu.AspectDepth
	}
	return gpu.AspectColor
}

// recordImageUpload copies the staged texels into img, which must already be
// in TransferDst, then generates mips or moves it to the final layout.
func recordImageUpload(cmd gpu.CmdBuffer, staging gpu.Buffer, img gpu.Image, up *pendingImageUpload) {
	regions := up.copies
	if len(regions) == 0 {
		regions = []gpu.BufferImageCopy{{Aspect: gpu.AspectColor, Extent: up.extent}}
	}
	cmd.CopyBufferToImage(staging, img, gpu.LayoutTransferDst, regions)

	if up.generateMips {
		generateMips(cmd, img, up.extent, up.levels)
		return
	}
	transitionImage(cmd, img, gpu.LayoutTransferDst, up.finalLayout)
}

// generateMips fills levels 1..n-1 by halving blits and leaves every level
// in ShaderReadOnly.
func generateMips(cmd gpu.CmdBuffer, img gpu.Image, extent gpu.Extent3D, levels uint32) {
	if levels == 0 {
		levels = 1
	}
	size := extent
	for level := uint32(0); level < levels; level++ {
		cmd.Barrier([]gpu.ImageBarrier{{
			Image:      img,
			SrcStage:   gpu.StageTransfer,
			SrcAccess:  gpu.AccessTransferWrite,
			DstStage:   gpu.StageTransfer,
			DstAccess:  gpu.AccessTransferRead,
			OldLayout:  gpu.LayoutTransferDst,
			NewLayout:  gpu.LayoutTransferSrc,
			Aspect:     gpu.AspectColor,
			BaseLevel:  level,
			LevelCount: 1,
		}}, nil, nil)

		if level < levels-1 {
			half := gpu.LevelExtent(extent, level+1)
			cmd.BlitImage(img, gpu.LayoutTransferSrc, img, gpu.LayoutTransferDst, []gpu.ImageBlit{{
				SrcLevel:  level,
				SrcOffset: [2]gpu.Offset3D{{}, {X: int32(size.Width), Y: int32(size.Height), Z: 1}},
				DstLevel:  level + 1,
				DstOffset: [2]gpu.Offset3D{{}, {X: int32(half.Width), Y: int32(half.Height), Z: 1}},
			}}, gpu.FilterLinear)
			size = half
		}
	}
	transitionImage(cmd, img, gpu.LayoutTransferSrc, gpu.LayoutShaderReadOnly)
}

type bufferBinding struct {
	upload  int
	staging graph.BufferHandle
	dsts    []graph.BufferHandle
}

type imageBinding struct {
	upload  int
	staging graph.BufferHandle
	image   graph.ImageHandle
}

// RegisterUploadPass drains the pending uploads into a single transfer pass
// of g. Staging buffers are released through fr's deletion queue, or with the
// manager when fr is nil. Nothing is added when the queues are empty.
func RegisterUploadPass[C graph.Host](m *Manager, g *graph.Graph[C], fr *frame.Frame) {
	buffers, images := m.takePending()
	if len(buffers) == 0 && len(images) == 0 {
		return
	}

	bufferBindings := make([]bufferBinding, 0, len(buffers))
	imageBindings := make([]imageBinding, 0, len(images))
	dstHandles := make(map[gpu.Buffer]graph.BufferHandle)
	imageHandles := make(map[gpu.Image]graph.ImageHandle)

	for i, up := range buffers {
		b := bufferBinding{upload: i}
		b.staging = g.ImportBuffer(graph.ImportedBuffer{
			Name:   fmt.Sprintf("upload.staging.buffer.%d", i),
			Buffer: up.staging,
			Size:   up.staging.Size(),
			Stage:  gpu.StageTopOfPipe,
		})
		for _, c := range up.copies {
			h, ok := dstHandles[c.dst]
			if !ok {
				h = g.ImportBuffer(graph.ImportedBuffer{
					Name:   fmt.Sprintf("upload.dst.buffer.%d", len(dstHandles)),
					Buffer: c.dst,
					Size:   c.dstOffset + c.size,
					Stage:  gpu.StageTopOfPipe,
				})
				dstHandles[c.dst] = h
			}
			b.dsts = append(b.dsts, h)
		}
		bufferBindings = append(bufferBindings, b)
	}

	for i, up := range images {
		b := imageBinding{upload: i}
		b.staging = g.ImportBuffer(graph.ImportedBuffer{
			Name:   fmt.Sprintf("upload.staging.image.%d", i),
			Buffer: up.staging,
			Size:   up.staging.Size(),
			Stage:  gpu.StageTopOfPipe,
		})
		h, ok := imageHandles[up.image]
		if !ok {
			h = g.ImportImage(graph.ImportedImage{
				Name:   fmt.Sprintf("upload.image.%d", len(imageHandles)),
				Image:  up.image,
				Format: up.format,
				Extent: up.extent.Extent2D(),
				Layout: up.initialLayout,
			})
			imageHandles[up.image] = h
		}
		b.image = h
		imageBindings = append(imageBindings, b)
	}

	g.AddPass(UploadPassName, graph.PassTransfer,
		func(b *graph.Builder, _ C) {
			for _, bb := range bufferBindings {
				b.ReadBuffer(bb.staging, graph.BufferTransferSrc)
				for _, h := range bb.dsts {
					b.WriteBuffer(h, graph.BufferTransferDst)
				}
			}
			for _, ib := range imageBindings {
				b.ReadBuffer(ib.staging, graph.BufferTransferSrc)
				b.Write(ib.image, graph.ImageTransferDst)
			}
		},
		func(cmd gpu.CmdBuffer, res *graph.PassResources, _ C) {
			for _, bb := range bufferBindings {
				up := buffers[bb.upload]
				staging := res.Buffer(bb.staging)
				for ci, c := range up.copies {
					recordBufferCopy(cmd, staging, res.Buffer(bb.dsts[ci]), c)
				}
			}
			for _, ib := range imageBindings {
				up := images[ib.upload]
				recordImageUpload(cmd, res.Buffer(ib.staging), res.Image(ib.image), &up)
			}
		})

	release := func() { destroyStaging(buffers, images) }
	if fr != nil {
		fr.Deletion.Push(release)
	} else {
		m.deletion.Push(release)
	}
}
