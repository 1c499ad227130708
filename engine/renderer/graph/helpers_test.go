package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/swapchain"
)

type testHost struct {
	dev         *gputest.Device
	frame       *frame.Frame
	extent      gpu.Extent2D
	sc          *swapchain.Swapchain
	letterboxed []gpu.ImageView
}

func (h *testHost) Device() gpu.Device              { return h.dev }
func (h *testHost) CurrentFrame() *frame.Frame      { return h.frame }
func (h *testHost) DrawExtent() gpu.Extent2D        { return h.extent }
func (h *testHost) Swapchain() *swapchain.Swapchain { return h.sc }
func (h *testHost) DrawLetterbox(cmd gpu.CmdBuffer, src gpu.ImageView) {
	h.letterboxed = append(h.letterboxed, src)
}

func newTestGraph(t *testing.T, opts ...gputest.Option) (*Graph[*testHost], *testHost) {
	t.Helper()
	dev := gputest.NewDevice(opts...)
	ring, err := frame.NewRing(dev, 2, nil)
	require.NoError(t, err)
	sc, err := swapchain.New(dev, func() (uint32, uint32) { return 1920, 1080 }, true)
	require.NoError(t, err)
	host := &testHost{
		dev:    dev,
		frame:  ring.Current(),
		extent: gpu.Extent2D{Width: 1920, Height: 1080},
		sc:     sc,
	}
	return New(host), host
}

func (h *testHost) image(t *testing.T, format gpu.Format, w, hgt uint32) gpu.Image {
	t.Helper()
	img, err := h.dev.NewImage(gpu.ImageDesc{
		Format: format,
		Extent: gpu.Extent3D{Width: w, Height: hgt, Depth: 1},
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageColorAttachment | gpu.ImageUsageStorage,
	})
	require.NoError(t, err)
	return img
}

func (h *testHost) buffer(t *testing.T, size uint64) gpu.Buffer {
	t.Helper()
	buf, err := h.dev.NewBuffer(size, gpu.BufferUsageStorage, gpu.MemoryGPUOnly)
	require.NoError(t, err)
	return buf
}

// barrierFor returns the image barriers of pass i that target img.
func barrierFor(g *Graph[*testHost], i int, img gpu.Image) []gpu.ImageBarrier {
	images, _ := g.PassBarriers(i)
	var out []gpu.ImageBarrier
	for _, b := range images {
		if b.Image == img {
			out = append(out, b)
		}
	}
	return out
}

func passIndex(g *Graph[*testHost], name string) int {
	for i := 0; i < g.PassCount(); i++ {
		if g.PassName(i) == name {
			return i
		}
	}
	return -1
}
