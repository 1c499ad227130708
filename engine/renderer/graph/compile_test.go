package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

func TestHDRComputeThenSampleThenPresent(t *testing.T) {
	g, host := newTestGraph(t)
	host.sc.SetImageLayout(0, gpu.LayoutPresent)

	draw := g.ImportDrawImage()
	sw := g.ImportSwapchainImage(0)
	require.True(t, draw.Valid())
	require.True(t, sw.Valid())
	drawImg := host.sc.DrawImage()
	swImg := host.sc.Image(0)

	g.AddPass("Background", PassCompute, func(b *Builder, _ *testHost) {
		b.Write(draw, ImageComputeWrite)
	}, nil)
	g.AddPass("Tonemap", PassGraphics, func(b *Builder, _ *testHost) {
		b.Read(draw, ImageSampledFragment)
		b.WriteColor(sw, false, gpu.ClearColor{})
	}, nil)
	g.AddPresentChain(draw, sw, nil)
	require.True(t, g.Compile())
	assert.Empty(t, g.Warnings())

	names := []string{"Background", "Tonemap", PresentLetterboxPass, PreparePresentPass}
	for i, n := range names {
		assert.Equal(t, n, g.PassName(i))
	}

	first := barrierFor(g, 0, drawImg)
	require.Len(t, first, 1)
	assert.Equal(t, gpu.LayoutUndefined, first[0].OldLayout)
	assert.Equal(t, gpu.LayoutGeneral, first[0].NewLayout)
	assert.Equal(t, gpu.StageTopOfPipe, first[0].SrcStage)
	assert.Equal(t, gpu.AccessNone, first[0].SrcAccess)
	assert.Equal(t, gpu.StageComputeShader, first[0].DstStage)
	assert.NotZero(t, first[0].DstAccess&gpu.AccessShaderStorageWrite)

	second := barrierFor(g, 1, drawImg)
	require.Len(t, second, 1)
	assert.Equal(t, gpu.LayoutGeneral, second[0].OldLayout)
	assert.Equal(t, gpu.LayoutShaderReadOnly, second[0].NewLayout)
	assert.Equal(t, gpu.StageComputeShader, second[0].SrcStage)
	assert.NotZero(t, second[0].SrcAccess&gpu.AccessShaderStorageWrite)
	assert.Equal(t, gpu.StageFragmentShader, second[0].DstStage)
	assert.Equal(t, gpu.AccessShaderSampledRead, second[0].DstAccess)

	swBarriers := barrierFor(g, 1, swImg)
	require.Len(t, swBarriers, 1)
	assert.Equal(t, gpu.LayoutPresent, swBarriers[0].OldLayout)
	assert.Equal(t, gpu.LayoutColorAttachment, swBarriers[0].NewLayout)

	assert.Empty(t, barrierFor(g, 2, drawImg))

	prep := barrierFor(g, 3, swImg)
	require.Len(t, prep, 1)
	assert.Equal(t, gpu.LayoutColorAttachment, prep[0].OldLayout)
	assert.Equal(t, gpu.LayoutPresent, prep[0].NewLayout)
	assert.Equal(t, gpu.LayoutPresent, g.FinalLayout(sw))
	assert.Equal(t, gpu.LayoutShaderReadOnly, g.FinalLayout(draw))
}

func TestCycleKeepsInsertionOrder(t *testing.T) {
	g, _ := newTestGraph(t)
	usage := gpu.ImageUsageStorage | gpu.ImageUsageSampled
	x := g.CreateImage(ImageDesc{Name: "x", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 4, Height: 4}, Usage: usage})
	y := g.CreateImage(ImageDesc{Name: "y", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 4, Height: 4}, Usage: usage})

	g.AddPass("B", PassCompute, func(b *Builder, _ *testHost) {
		b.Read(x, ImageSampledCompute)
		b.Write(y, ImageComputeWrite)
	}, nil)
	g.AddPass("A", PassCompute, func(b *Builder, _ *testHost) {
		b.Read(y, ImageSampledCompute)
		b.Write(x, ImageComputeWrite)
	}, nil)

	require.True(t, g.Compile())
	assert.Equal(t, "B", g.PassName(0))
	assert.Equal(t, "A", g.PassName(1))
	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "cycle")

	// A reads what B wrote, so the read waits on the compute write.
	ys := barrierFor(g, 1, g.reg.image(y).image)
	require.Len(t, ys, 1)
	assert.Equal(t, gpu.LayoutGeneral, ys[0].OldLayout)
	assert.NotZero(t, ys[0].SrcAccess&gpu.AccessShaderStorageWrite)
	// A overwrites what B read.
	xs := barrierFor(g, 1, g.reg.image(x).image)
	require.Len(t, xs, 1)
	assert.Equal(t, gpu.AccessShaderSampledRead, xs[0].SrcAccess)
}

func TestSortMovesProducerBeforeConsumer(t *testing.T) {
	g, host := newTestGraph(t)
	a := g.ImportImage(ImportedImage{Name: "a", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})
	b := g.ImportImage(ImportedImage{Name: "b", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})

	g.AddPass("consume", PassGraphics, func(bb *Builder, _ *testHost) { bb.Read(b, ImageSampledFragment) }, nil)
	g.AddPass("produce", PassCompute, func(bb *Builder, _ *testHost) { bb.Write(a, ImageComputeWrite) }, nil)
	g.AddPass("use", PassGraphics, func(bb *Builder, _ *testHost) { bb.Read(a, ImageSampledFragment) }, nil)
	require.True(t, g.Compile())

	assert.Less(t, passIndex(g, "produce"), passIndex(g, "use"))
	assert.Empty(t, g.Warnings())
}

func TestSingleReadOfKnownLayoutEmitsOneBarrier(t *testing.T) {
	g, host := newTestGraph(t)
	img := host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)
	h := g.ImportImage(ImportedImage{
		Name:   "uploaded",
		Image:  img,
		Layout: gpu.LayoutTransferDst,
		Stage:  gpu.StageTransfer,
		Access: gpu.AccessTransferWrite,
	})
	g.AddPass("sample", PassGraphics, func(b *Builder, _ *testHost) { b.Read(h, ImageSampledFragment) }, nil)
	require.True(t, g.Compile())

	images, buffers := g.PassBarriers(0)
	require.Len(t, images, 1)
	assert.Empty(t, buffers)
	assert.Equal(t, gpu.LayoutTransferDst, images[0].OldLayout)
	assert.Equal(t, gpu.LayoutShaderReadOnly, images[0].NewLayout)
	assert.Equal(t, gpu.StageTransfer, images[0].SrcStage)
	assert.Equal(t, gpu.AccessTransferWrite, images[0].SrcAccess)
}

func TestUnknownPriorAccessSynchronizesAgainstEverything(t *testing.T) {
	g, host := newTestGraph(t)
	h := g.ImportImage(ImportedImage{Name: "general", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8), Layout: gpu.LayoutGeneral})
	g.AddPass("read", PassCompute, func(b *Builder, _ *testHost) { b.Read(h, ImageSampledCompute) }, nil)
	require.True(t, g.Compile())

	images, _ := g.PassBarriers(0)
	require.Len(t, images, 1)
	assert.Equal(t, gpu.StageAllCommands, images[0].SrcStage)
	assert.Equal(t, gpu.AccessMemoryRead|gpu.AccessMemoryWrite, images[0].SrcAccess)
}

func TestMultipleLayoutsWarnOnceAndPickPriority(t *testing.T) {
	g, host := newTestGraph(t)
	h := g.ImportImage(ImportedImage{Name: "both", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})
	g.AddPass("mixed", PassCompute, func(b *Builder, _ *testHost) {
		b.Read(h, ImageSampledCompute)
		b.Read(h, ImageTransferSrc)
		b.Write(h, ImageComputeWrite)
	}, nil)
	require.True(t, g.Compile())

	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "multiple layouts")
	images, _ := g.PassBarriers(0)
	require.Len(t, images, 1)
	assert.Equal(t, gpu.LayoutGeneral, images[0].NewLayout)
	assert.Equal(t, gpu.StageComputeShader|gpu.StageTransfer, images[0].DstStage)
}

func TestDepthAspectAndValidation(t *testing.T) {
	g, host := newTestGraph(t)
	depth := g.CreateDepthImage("", gpu.Extent2D{Width: 64, Height: 64}, gpu.FormatUndefined)
	color := g.ImportImage(ImportedImage{Name: "color", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 64, 64)})

	g.AddPass("geometry", PassGraphics, func(b *Builder, _ *testHost) {
		b.WriteDepth(depth, true, 1)
		b.WriteDepth(color, true, 1)
	}, nil)
	require.True(t, g.Compile())

	barriers := barrierFor(g, 0, g.reg.image(depth).image)
	require.Len(t, barriers, 1)
	assert.Equal(t, gpu.AspectDepth, barriers[0].Aspect)
	assert.Equal(t, gpu.LayoutDepthAttachment, barriers[0].NewLayout)

	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "non-depth image 'color'")
}

func TestMissingCreationUsageWarns(t *testing.T) {
	g, _ := newTestGraph(t)
	img := g.CreateImage(ImageDesc{Name: "sampled-only", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 4, Height: 4}, Usage: gpu.ImageUsageSampled})
	buf := g.CreateBuffer(BufferDesc{Name: "uniforms", Size: 256, Usage: gpu.BufferUsageUniform})

	g.AddPass("write", PassCompute, func(b *Builder, _ *testHost) {
		b.Write(img, ImageComputeWrite)
		b.WriteBuffer(buf, BufferStorageReadWrite)
	}, nil)
	g.AddPass("write-again", PassCompute, func(b *Builder, _ *testHost) {
		b.WriteBuffer(buf, BufferStorageReadWrite)
	}, nil)
	require.True(t, g.Compile())

	warnings := g.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "image 'sampled-only'")
	assert.Contains(t, warnings[1], "buffer 'uniforms'")
}

func TestBufferBarrierSizes(t *testing.T) {
	g, host := newTestGraph(t)
	transient := g.CreateBuffer(BufferDesc{Name: "t", Size: 512, Usage: gpu.BufferUsageStorage})
	imported := g.ImportBuffer(ImportedBuffer{Name: "i", Buffer: host.buffer(t, 1024), Size: 1024})

	g.AddPass("fill", PassCompute, func(b *Builder, _ *testHost) {
		b.WriteBuffer(transient, BufferStorageReadWrite)
		b.WriteBuffer(imported, BufferStorageReadWrite)
	}, nil)
	g.AddPass("read", PassCompute, func(b *Builder, _ *testHost) {
		b.ReadBuffer(transient, BufferStorageRead)
		b.ReadBuffer(imported, BufferStorageRead)
	}, nil)
	require.True(t, g.Compile())

	before, _ := g.PassBarriers(0)
	assert.Empty(t, before)
	_, buffers := g.PassBarriers(1)
	require.Len(t, buffers, 2)
	assert.Equal(t, uint64(512), buffers[0].Size)
	assert.Equal(t, gpu.WholeSize, buffers[1].Size)
	assert.Equal(t, gpu.AccessShaderStorageRead|gpu.AccessShaderStorageWrite, buffers[0].SrcAccess)
}

func TestDisabledPassIsSkippedByBarriers(t *testing.T) {
	g, host := newTestGraph(t)
	h := g.ImportImage(ImportedImage{Name: "x", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})
	g.AddPass("write", PassCompute, func(b *Builder, _ *testHost) { b.Write(h, ImageComputeWrite) }, nil)
	g.AddPass("read", PassGraphics, func(b *Builder, _ *testHost) { b.Read(h, ImageSampledFragment) }, nil)
	g.SetPassEnabled(0, false)
	require.True(t, g.Compile())

	first, _ := g.PassBarriers(passIndex(g, "write"))
	assert.Empty(t, first)
	read := barrierFor(g, passIndex(g, "read"), g.reg.image(h).image)
	require.Len(t, read, 1)
	assert.Equal(t, gpu.LayoutUndefined, read[0].OldLayout)
}

type randomAccess struct {
	image ImageHandle
	usage ImageUsage
}

var randomUsages = []ImageUsage{
	ImageSampledFragment, ImageSampledCompute, ImageTransferSrc, ImageTransferDst,
	ImageColorAttachment, ImageComputeWrite,
}

func isWriteUsage(u ImageUsage) bool {
	return imageUsageInfoOf(u).access.HasWrite()
}

// buildRandomGraph adds passes touching each image at most once.
func buildRandomGraph(t *testing.T, rng *rand.Rand) (*Graph[*testHost], []ImageHandle) {
	g, host := newTestGraph(t)
	layouts := []gpu.Layout{gpu.LayoutUndefined, gpu.LayoutGeneral, gpu.LayoutShaderReadOnly}
	var images []ImageHandle
	for i := 0; i < 4; i++ {
		images = append(images, g.ImportImage(ImportedImage{
			Name:   fmt.Sprintf("img%d", i),
			Image:  host.image(t, gpu.FormatR8G8B8A8Unorm, 16, 16),
			Layout: layouts[rng.Intn(len(layouts))],
		}))
	}
	passes := 3 + rng.Intn(6)
	for p := 0; p < passes; p++ {
		var accesses []randomAccess
		for _, h := range images {
			if rng.Intn(2) == 0 {
				accesses = append(accesses, randomAccess{h, randomUsages[rng.Intn(len(randomUsages))]})
			}
		}
		g.AddPass(fmt.Sprintf("p%d", p), PassCompute, func(b *Builder, _ *testHost) {
			for _, a := range accesses {
				if isWriteUsage(a.usage) {
					b.Write(a.image, a.usage)
				} else {
					b.Read(a.image, a.usage)
				}
			}
		}, nil)
	}
	return g, images
}

func passAccess(p *pass, h ImageHandle) (ImageUsage, bool) {
	for _, a := range p.imageReads {
		if a.image == h {
			return a.usage, true
		}
	}
	for _, a := range p.imageWrites {
		if a.image == h {
			return a.usage, true
		}
	}
	return 0, false
}

func TestBarrierInvariantsOnRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(20240611))
	for iter := 0; iter < 200; iter++ {
		g, images := buildRandomGraph(t, rng)
		require.True(t, g.Compile())

		for _, h := range images {
			rec := g.reg.image(h)
			layout := rec.initialLayout
			var prev *ImageUsage
			for pi, p := range g.passes {
				usage, ok := passAccess(p, h)
				if !ok {
					continue
				}
				info := imageUsageInfoOf(usage)
				barriers := barrierFor(g, pi, rec.image)
				require.LessOrEqual(t, len(barriers), 1)
				for _, b := range barriers {
					assert.Equal(t, layout, b.OldLayout, "iter %d pass %s", iter, p.name)
					layout = b.NewLayout
				}
				assert.Equal(t, info.layout, layout, "iter %d pass %s: layout after barriers", iter, p.name)

				if prev != nil {
					prevWrite := isWriteUsage(*prev)
					switch {
					case prevWrite && isWriteUsage(usage):
						assert.Len(t, barriers, 1, "iter %d pass %s: write after write", iter, p.name)
					case prevWrite:
						require.Len(t, barriers, 1, "iter %d pass %s: read after write", iter, p.name)
						assert.Equal(t, info.stage, barriers[0].DstStage&info.stage)
						assert.Equal(t, info.access, barriers[0].DstAccess&info.access)
					case *prev == usage:
						assert.Empty(t, barriers, "iter %d pass %s: repeated read", iter, p.name)
					}
				}
				u := usage
				prev = &u
			}
		}
	}
}

func TestCompiledOrderRespectsHazards(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for iter := 0; iter < 200; iter++ {
		g, images := buildRandomGraph(t, rng)
		inserted := append([]*pass(nil), g.passes...)
		require.True(t, g.Compile())

		position := make(map[*pass]int, len(g.passes))
		for i, p := range g.passes {
			position[p] = i
		}
		for _, h := range images {
			for i := 0; i < len(inserted); i++ {
				ui, ok := passAccess(inserted[i], h)
				if !ok {
					continue
				}
				for j := i + 1; j < len(inserted); j++ {
					uj, ok := passAccess(inserted[j], h)
					if !ok || (!isWriteUsage(ui) && !isWriteUsage(uj)) {
						continue
					}
					assert.Less(t, position[inserted[i]], position[inserted[j]],
						"iter %d: %s must stay before %s", iter, inserted[i].name, inserted[j].name)
				}
			}
		}
	}
}

func TestFirstBufferUseIsValidatedWithoutBarrier(t *testing.T) {
	g, _ := newTestGraph(t)
	buf := g.CreateBuffer(BufferDesc{Name: "params", Size: 64, Usage: gpu.BufferUsageUniform})
	g.AddPass("simulate", PassCompute, func(b *Builder, _ *testHost) {
		b.WriteBuffer(buf, BufferStorageReadWrite)
	}, nil)
	require.True(t, g.Compile())

	_, buffers := g.PassBarriers(0)
	assert.Empty(t, buffers)
	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "buffer 'params'")
}

func TestCreationUsageWarnsOncePerResource(t *testing.T) {
	g, _ := newTestGraph(t)
	img := g.CreateImage(ImageDesc{Name: "scratch", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 4, Height: 4}, Usage: gpu.ImageUsageSampled})
	for _, name := range []string{"first", "second", "third"} {
		g.AddPass(name, PassCompute, func(b *Builder, _ *testHost) {
			b.Write(img, ImageComputeWrite)
		}, nil)
	}
	require.True(t, g.Compile())
	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "image 'scratch'")

	// A recompile reports it again.
	require.True(t, g.Compile())
	assert.Len(t, g.Warnings(), 2)
}
