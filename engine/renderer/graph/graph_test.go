package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

func TestImportDeduplicatesByObject(t *testing.T) {
	g, host := newTestGraph(t)
	img := host.image(t, gpu.FormatR8G8B8A8Unorm, 64, 64)

	a := g.ImportImage(ImportedImage{Name: "first", Image: img, Layout: gpu.LayoutUndefined, Stage: gpu.StageTransfer, Access: gpu.AccessTransferWrite})
	b := g.ImportImage(ImportedImage{Name: "second", Image: img, Layout: gpu.LayoutShaderReadOnly, Stage: gpu.StageComputeShader, Access: gpu.AccessShaderSampledRead})
	assert.Equal(t, a, b)

	rec := g.reg.image(a)
	assert.Equal(t, "second", rec.name)
	assert.Equal(t, gpu.LayoutShaderReadOnly, rec.initialLayout)
	assert.Equal(t, gpu.StageTransfer, rec.initialStage, "earliest stage is kept")
	assert.Equal(t, gpu.AccessTransferWrite, rec.initialAccess)
	assert.Equal(t, img.View(), rec.view)

	buf := host.buffer(t, 256)
	ba := g.ImportBuffer(ImportedBuffer{Name: "b", Buffer: buf})
	bb := g.ImportBuffer(ImportedBuffer{Name: "b2", Buffer: buf, Stage: gpu.StageVertexInput})
	assert.Equal(t, ba, bb)
	assert.Equal(t, gpu.StageVertexInput, g.reg.buffer(ba).initialStage)
}

func TestTransientsReleasedThroughFrameDeletionQueue(t *testing.T) {
	g, host := newTestGraph(t)
	before := host.dev.LiveImages()

	h := g.CreateImage(ImageDesc{Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 32, Height: 32}, Usage: gpu.ImageUsageSampled})
	require.True(t, h.Valid())
	assert.Contains(t, g.reg.image(h).name, "rg.transient.")
	assert.Equal(t, gpu.LayoutUndefined, g.reg.image(h).initialLayout)
	assert.Equal(t, gpu.StageTopOfPipe, g.reg.image(h).initialStage)

	bh := g.CreateBuffer(BufferDesc{Name: "scratch", Size: 1024, Usage: gpu.BufferUsageStorage})
	require.True(t, bh.Valid())
	assert.Equal(t, 2, host.frame.Deletion.Len())
	assert.Equal(t, before+1, host.dev.LiveImages())

	host.frame.Deletion.Flush()
	assert.Equal(t, before, host.dev.LiveImages())
}

func TestCreateDepthImageDefaults(t *testing.T) {
	g, _ := newTestGraph(t)
	h := g.CreateDepthImage("", gpu.Extent2D{Width: 512, Height: 512}, gpu.FormatUndefined)
	rec := g.reg.image(h)
	assert.Equal(t, "depth.transient", rec.name)
	assert.Equal(t, gpu.FormatD32Sfloat, rec.format)
	assert.Equal(t, gpu.ImageUsageDepthStencilAttachment|gpu.ImageUsageSampled, rec.creationUsage)
}

func TestExternalBufferAutoImport(t *testing.T) {
	g, host := newTestGraph(t)
	buf := host.buffer(t, 4096)

	var first, second BufferHandle
	g.AddPass("a", PassCompute, func(b *Builder, _ *testHost) {
		first = b.WriteExternalBuffer(buf, BufferStorageReadWrite, 4096, "")
	}, nil)
	g.AddPass("b", PassCompute, func(b *Builder, _ *testHost) {
		second = b.ReadExternalBuffer(buf, BufferStorageRead, 0, "named")
	}, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, externalBufferName, g.reg.buffer(first).name)
	assert.Equal(t, gpu.StageTopOfPipe, g.reg.buffer(first).initialStage)

	var none BufferHandle
	g.AddPass("c", PassCompute, func(b *Builder, _ *testHost) {
		none = b.ReadExternalBuffer(nil, BufferStorageRead, 0, "")
	}, nil)
	assert.False(t, none.Valid())
}

func TestClearKeepsTimings(t *testing.T) {
	g, host := newTestGraph(t)
	img := g.ImportImage(ImportedImage{Name: "x", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})
	g.AddPass("w", PassCompute, func(b *Builder, _ *testHost) { b.Write(img, ImageComputeWrite) }, nil)
	require.True(t, g.Compile())
	g.Execute(host.dev.NewCmd())
	g.ResolveTimings()

	g.Clear()
	assert.Equal(t, 0, g.PassCount())
	assert.Empty(t, g.DebugImages())
	assert.Len(t, g.gpuMillis, 1)
}

func TestPassEnableToggles(t *testing.T) {
	g, _ := newTestGraph(t)
	g.AddPass("one", PassGraphics, nil, nil)
	assert.True(t, g.PassEnabled(0))
	g.SetPassEnabled(0, false)
	assert.False(t, g.PassEnabled(0))
	g.SetPassEnabled(5, false)
	assert.False(t, g.PassEnabled(5))
	assert.Equal(t, "", g.PassName(5))
}

func TestApplyOverridesRecompiles(t *testing.T) {
	g, host := newTestGraph(t)
	img := g.ImportImage(ImportedImage{Name: "x", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})
	g.AddPass("write", PassCompute, func(b *Builder, _ *testHost) { b.Write(img, ImageComputeWrite) }, nil)
	g.AddPass("read", PassGraphics, func(b *Builder, _ *testHost) { b.Read(img, ImageSampledFragment) }, nil)
	require.True(t, g.Compile())

	g.ApplyOverrides(map[string]bool{"write": false, "unknown": false})
	assert.False(t, g.PassEnabled(passIndex(g, "write")))

	barriers := barrierFor(g, passIndex(g, "read"), g.reg.image(img).image)
	require.Len(t, barriers, 1)
	assert.Equal(t, gpu.LayoutUndefined, barriers[0].OldLayout)
	assert.Equal(t, gpu.StageTopOfPipe, barriers[0].SrcStage)
}

func TestDebugEnumerators(t *testing.T) {
	g, host := newTestGraph(t)
	img := g.ImportImage(ImportedImage{Name: "color", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 16, 16)})
	buf := g.CreateBuffer(BufferDesc{Name: "args", Size: 64, Usage: gpu.BufferUsageIndirect | gpu.BufferUsageStorage})
	g.AddPass("fill", PassCompute, func(b *Builder, _ *testHost) {
		b.WriteBuffer(buf, BufferStorageReadWrite)
	}, nil)
	g.AddPass("draw", PassGraphics, func(b *Builder, _ *testHost) {
		b.ReadBuffer(buf, BufferIndirectArgs)
		b.WriteColor(img, true, gpu.ClearColor{})
	}, nil)
	require.True(t, g.Compile())

	passes := g.DebugPasses()
	require.Len(t, passes, 2)
	assert.Equal(t, "fill", passes[0].Name)
	assert.Equal(t, PassGraphics, passes[1].Kind)
	assert.Equal(t, 1, passes[1].ColorAttachments)
	assert.Equal(t, 1, passes[1].BufferReads)
	assert.Equal(t, float32(-1), passes[1].GPUMillis)

	images := g.DebugImages()
	require.Len(t, images, 1)
	assert.True(t, images[0].Imported)
	assert.Equal(t, 1, images[0].FirstUse)
	assert.Equal(t, 1, images[0].LastUse)

	buffers := g.DebugBuffers()
	require.Len(t, buffers, 1)
	assert.False(t, buffers[0].Imported)
	assert.Equal(t, uint64(64), buffers[0].Size)
	assert.Equal(t, 0, buffers[0].FirstUse)
	assert.Equal(t, 1, buffers[0].LastUse)
}
