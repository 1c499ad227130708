package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
)

func markRecord(label string) RecordFunc[*testHost] {
	return func(cmd gpu.CmdBuffer, _ *PassResources, _ *testHost) {
		cmd.(*gputest.CmdBuffer).Mark(label)
	}
}

func TestExecuteRecordsPassInOrder(t *testing.T) {
	g, host := newTestGraph(t)
	color := g.ImportImage(ImportedImage{Name: "color", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 64, 64), Extent: gpu.Extent2D{Width: 64, Height: 64}})
	g.AddPass("Forward", PassGraphics, func(b *Builder, _ *testHost) {
		b.WriteColor(color, true, gpu.ClearColor{1, 0, 0, 1})
	}, markRecord("forward"))
	require.True(t, g.Compile())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)

	assert.Equal(t, []gputest.Op{
		gputest.OpResetQueries,
		gputest.OpBarrier,
		gputest.OpBeginLabel,
		gputest.OpTimestamp,
		gputest.OpBeginRendering,
		gputest.OpMark,
		gputest.OpEndRendering,
		gputest.OpTimestamp,
		gputest.OpEndLabel,
	}, cmd.Ops())
	assert.Equal(t, 2, cmd.Index(gputest.OpBeginLabel, "RG: Forward"))

	stamps := cmd.Find(gputest.OpTimestamp)
	require.Len(t, stamps, 2)
	assert.Equal(t, 0, stamps[0].Query)
	assert.Equal(t, 1, stamps[1].Query)
	assert.Equal(t, gpu.StageAllCommands, stamps[0].Stage)

	rendering := cmd.Find(gputest.OpBeginRendering)[0].Rendering
	require.Len(t, rendering.Colors, 1)
	assert.True(t, rendering.Colors[0].Clear)
	assert.True(t, rendering.Colors[0].Store)
	assert.Equal(t, gpu.ClearColor{1, 0, 0, 1}, rendering.Colors[0].ClearValue)
	assert.Equal(t, gpu.Extent2D{Width: 64, Height: 64}, rendering.Area)
}

func TestExecuteSkipsDisabledPasses(t *testing.T) {
	g, host := newTestGraph(t)
	g.AddPass("on", PassCompute, nil, markRecord("on"))
	g.AddPass("off", PassCompute, nil, markRecord("off"))
	g.SetPassEnabled(1, false)
	require.True(t, g.Compile())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)
	assert.NotEqual(t, -1, cmd.Index(gputest.OpMark, "on"))
	assert.Equal(t, -1, cmd.Index(gputest.OpMark, "off"))
	assert.Equal(t, -1, cmd.Index(gputest.OpBeginLabel, "RG: off"))
	assert.Empty(t, cmd.Find(gputest.OpBeginRendering))
}

func TestAttachmentExtentMismatchWarnsOnce(t *testing.T) {
	g, host := newTestGraph(t)
	usage := gpu.ImageUsageColorAttachment
	big := g.CreateImage(ImageDesc{Name: "big", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 1920, Height: 1080}, Usage: usage})
	small := g.CreateImage(ImageDesc{Name: "small", Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent2D{Width: 1600, Height: 900}, Usage: usage})
	g.AddPass("mrt", PassGraphics, func(b *Builder, _ *testHost) {
		b.WriteColor(big, true, gpu.ClearColor{})
		b.WriteColor(small, true, gpu.ClearColor{})
	}, markRecord("mrt"))
	require.True(t, g.Compile())
	require.Empty(t, g.Warnings())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)

	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "mismatched extents")
	rendering := cmd.Find(gputest.OpBeginRendering)
	require.Len(t, rendering, 1)
	assert.Equal(t, gpu.Extent2D{Width: 1600, Height: 900}, rendering[0].Rendering.Area)
	assert.NotEqual(t, -1, cmd.Index(gputest.OpMark, "mrt"))
}

func TestRenderAreaFallsBackToDrawExtent(t *testing.T) {
	g, host := newTestGraph(t)
	host.extent = gpu.Extent2D{Width: 800, Height: 600}
	color := g.ImportImage(ImportedImage{Name: "unsized", Image: host.image(t, gpu.FormatR8G8B8A8Unorm, 8, 8)})
	g.AddPass("draw", PassGraphics, func(b *Builder, _ *testHost) { b.WriteColor(color, false, gpu.ClearColor{}) }, nil)
	require.True(t, g.Compile())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)
	assert.Equal(t, host.extent, cmd.Find(gputest.OpBeginRendering)[0].Rendering.Area)
}

func TestDepthAttachmentStoreFlag(t *testing.T) {
	g, host := newTestGraph(t)
	depth := g.CreateDepthImage("shadow", gpu.Extent2D{Width: 256, Height: 256}, gpu.FormatD32Sfloat)
	g.AddPass("prepass", PassGraphics, func(b *Builder, _ *testHost) {
		b.WriteDepth(depth, true, 0)
		b.DiscardDepth()
	}, nil)
	require.True(t, g.Compile())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)
	info := cmd.Find(gputest.OpBeginRendering)[0].Rendering
	require.NotNil(t, info.Depth)
	assert.False(t, info.Depth.Store)
	assert.True(t, info.Depth.Clear)
	assert.Equal(t, float32(0), info.Depth.ClearDepth)
	assert.Equal(t, gpu.Extent2D{Width: 256, Height: 256}, info.Area)
}

func TestResolveTimings(t *testing.T) {
	g, host := newTestGraph(t)
	g.AddPass("a", PassCompute, nil, markRecord("a"))
	g.AddPass("b", PassCompute, nil, markRecord("b"))
	require.True(t, g.Compile())
	g.Execute(host.dev.NewCmd())
	g.ResolveTimings()

	for _, p := range g.DebugPasses() {
		assert.Greater(t, p.GPUMillis, float32(0), p.Name)
		assert.GreaterOrEqual(t, p.CPUMillis, float32(0), p.Name)
	}
	require.NotEmpty(t, host.dev.QueryPools)
	pool := host.dev.QueryPools[len(host.dev.QueryPools)-1]
	assert.Contains(t, host.dev.Log(), fmt.Sprintf("destroy querypool#%d", pool.ID))
}

func TestTimingsUnavailableWithoutTimestamps(t *testing.T) {
	g, host := newTestGraph(t, gputest.WithoutTimestamps())
	g.AddPass("a", PassCompute, nil, nil)
	require.True(t, g.Compile())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)
	assert.Empty(t, cmd.Find(gputest.OpTimestamp))
	assert.Empty(t, cmd.Find(gputest.OpResetQueries))

	g.ResolveTimings()
	assert.Equal(t, float32(-1), g.DebugPasses()[0].GPUMillis)
}

func TestTimestampsCanBeDisabled(t *testing.T) {
	g, host := newTestGraph(t)
	g.SetTimestamps(false)
	g.AddPass("a", PassCompute, nil, nil)
	require.True(t, g.Compile())
	cmd := host.dev.NewCmd()
	g.Execute(cmd)
	assert.Empty(t, cmd.Find(gputest.OpTimestamp))
	g.Shutdown()
}

func TestPresentChainLetterboxesSource(t *testing.T) {
	g, host := newTestGraph(t)
	draw := g.ImportDrawImage()
	sw := g.ImportSwapchainImage(1)
	g.AddPresentChain(draw, sw, func(g *Graph[*testHost]) {
		g.AddPass("ImGui", PassGraphics, func(b *Builder, _ *testHost) {
			b.WriteColor(sw, false, gpu.ClearColor{})
		}, markRecord("ui"))
	})
	require.True(t, g.Compile())
	assert.Equal(t, 3, g.PassCount())
	assert.Equal(t, "ImGui", g.PassName(1))

	cmd := host.dev.NewCmd()
	g.Execute(cmd)
	require.Len(t, host.letterboxed, 1)
	assert.Equal(t, host.sc.DrawImage().View(), host.letterboxed[0])
	assert.Less(t, cmd.Index(gputest.OpBeginLabel, "RG: "+PresentLetterboxPass), cmd.Index(gputest.OpMark, "ui"))

	host.sc.SetImageLayout(1, g.FinalLayout(sw))
	assert.Equal(t, gpu.LayoutPresent, host.sc.ImageLayout(1))

	assert.False(t, g.ImportSwapchainImage(99).Valid())
}

func TestDepthExtentMismatchWarns(t *testing.T) {
	g, host := newTestGraph(t)
	color := g.CreateImage(ImageDesc{Name: "hdr", Format: gpu.FormatR16G16B16A16Sfloat, Extent: gpu.Extent2D{Width: 1920, Height: 1080}, Usage: gpu.ImageUsageColorAttachment})
	depth := g.CreateDepthImage("depth", gpu.Extent2D{Width: 1600, Height: 900}, gpu.FormatD32Sfloat)
	g.AddPass("forward", PassGraphics, func(b *Builder, _ *testHost) {
		b.WriteColor(color, true, gpu.ClearColor{})
		b.WriteDepth(depth, true, 0)
	}, markRecord("forward"))
	require.True(t, g.Compile())
	require.Empty(t, g.Warnings())

	cmd := host.dev.NewCmd()
	g.Execute(cmd)

	require.Len(t, g.Warnings(), 1)
	assert.Contains(t, g.Warnings()[0], "mismatched extents")
	assert.Contains(t, g.Warnings()[0], "1600x900")
	assert.Equal(t, gpu.Extent2D{Width: 1600, Height: 900}, cmd.Find(gputest.OpBeginRendering)[0].Rendering.Area)
}
