// Package swapchain wraps the presentable swapchain together with the
// per-swapchain render targets (HDR draw image, depth, GBuffer, object ids).
package swapchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/containers"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

const (
	SwapchainFormat = gpu.FormatB8G8R8A8Unorm
	DrawFormat      = gpu.FormatR16G16B16A16Sfloat
	DepthFormat     = gpu.FormatD32Sfloat
	PositionFormat  = gpu.FormatR16G16B16A16Sfloat
	NormalFormat    = gpu.FormatR16G16B16A16Sfloat
	AlbedoFormat    = gpu.FormatR8G8B8A8Unorm
	ExtraFormat     = gpu.FormatR16G16B16A16Sfloat
	IDFormat        = gpu.FormatR32Uint
)

// SizeFunc reports the drawable size in pixels (HiDPI aware).
type SizeFunc func() (width, height uint32)

type Swapchain struct {
	device gpu.Device
	size   SizeFunc
	vsync  bool

	handle  gpu.Swapchain
	layouts []gpu.Layout

	drawImage       gpu.Image
	depthImage      gpu.Image
	gBufferPosition gpu.Image
	gBufferNormal   gpu.Image
	gBufferAlbedo   gpu.Image
	gBufferExtra    gpu.Image
	idBuffer        gpu.Image

	deletion containers.DeletionQueue

	// ResizeRequested is set when acquire or present reported an out-of-date surface.
	ResizeRequested bool
}

// New creates the swapchain and its render targets at the current drawable size.
// vsync selects FIFO presentation.
func New(device gpu.Device, size SizeFunc, vsync bool) (*Swapchain, error) {
	sc := &Swapchain{device: device, size: size, vsync: vsync}
	if err := sc.create(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) create() error {
	width, height := sc.size()
	if width == 0 || height == 0 {
		return fmt.Errorf("drawable size %dx%d: %w", width, height, core.ErrSwapchainBooting)
	}
	handle, err := sc.device.NewSwapchain(gpu.SwapchainDesc{
		Width:  width,
		Height: height,
		Format: SwapchainFormat,
		VSync:  sc.vsync,
	})
	if err != nil {
		err = fmt.Errorf("failed to create swapchain: %w", err)
		core.LogError(err.Error())
		return err
	}
	sc.handle = handle
	sc.layouts = make([]gpu.Layout, len(handle.Images()))
	sc.deletion.Push(handle.Destroy)

	extent := gpu.Extent3D{Width: width, Height: height, Depth: 1}
	targets := []struct {
		dst   *gpu.Image
		name  string
		fmt   gpu.Format
		usage gpu.ImageUsage
	}{
		{&sc.drawImage, "draw", DrawFormat, gpu.ImageUsageColorAttachment | gpu.ImageUsageStorage | gpu.ImageUsageSampled | gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst},
		{&sc.depthImage, "depth", DepthFormat, gpu.ImageUsageDepthStencilAttachment | gpu.ImageUsageSampled},
		{&sc.gBufferPosition, "gbuffer.position", PositionFormat, gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled},
		{&sc.gBufferNormal, "gbuffer.normal", NormalFormat, gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled},
		{&sc.gBufferAlbedo, "gbuffer.albedo", AlbedoFormat, gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled},
		{&sc.gBufferExtra, "gbuffer.extra", ExtraFormat, gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled},
		{&sc.idBuffer, "id", IDFormat, gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferSrc | gpu.ImageUsageSampled},
	}
	for _, t := range targets {
		img, err := sc.device.NewImage(gpu.ImageDesc{Format: t.fmt, Extent: extent, Usage: t.usage, Levels: 1})
		if err != nil {
			err = fmt.Errorf("failed to create %s image: %w", t.name, err)
			core.LogError(err.Error())
			return err
		}
		*t.dst = img
		sc.deletion.Push(img.Destroy)
	}
	core.LogInfo("swapchain created %dx%d (%d images)", width, height, len(sc.layouts))
	return nil
}

// Resize waits for the device, releases the current set and recreates it at
// the current drawable size.
func (sc *Swapchain) Resize() error {
	if err := sc.device.WaitIdle(); err != nil {
		return err
	}
	sc.deletion.Flush()
	sc.handle = nil
	if err := sc.create(); err != nil {
		return err
	}
	sc.ResizeRequested = false
	return nil
}

// Acquire returns the next presentable image. An out-of-date surface sets
// ResizeRequested and returns core.ErrSwapchainOutOfDate.
func (sc *Swapchain) Acquire(signal gpu.Semaphore, timeout time.Duration) (int, error) {
	index, err := sc.handle.Acquire(signal, timeout)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		sc.ResizeRequested = true
	}
	return index, err
}

func (sc *Swapchain) Present(index int, wait gpu.Semaphore) error {
	err := sc.handle.Present(index, wait)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		sc.ResizeRequested = true
	}
	return err
}

func (sc *Swapchain) Format() gpu.Format {
	return sc.handle.Format()
}

func (sc *Swapchain) Extent() gpu.Extent2D {
	return sc.handle.Extent()
}

func (sc *Swapchain) ImageCount() int {
	return len(sc.layouts)
}

func (sc *Swapchain) Image(index int) gpu.Image {
	return sc.handle.Images()[index]
}

// ImageLayout is the layout the image was left in by the last frame that used it.
func (sc *Swapchain) ImageLayout(index int) gpu.Layout {
	if index < 0 || index >= len(sc.layouts) {
		return gpu.LayoutUndefined
	}
	return sc.layouts[index]
}

func (sc *Swapchain) SetImageLayout(index int, layout gpu.Layout) {
	if index >= 0 && index < len(sc.layouts) {
		sc.layouts[index] = layout
	}
}

func (sc *Swapchain) DrawImage() gpu.Image       { return sc.drawImage }
func (sc *Swapchain) DepthImage() gpu.Image      { return sc.depthImage }
func (sc *Swapchain) GBufferPosition() gpu.Image { return sc.gBufferPosition }
func (sc *Swapchain) GBufferNormal() gpu.Image   { return sc.gBufferNormal }
func (sc *Swapchain) GBufferAlbedo() gpu.Image   { return sc.gBufferAlbedo }
func (sc *Swapchain) GBufferExtra() gpu.Image    { return sc.gBufferExtra }
func (sc *Swapchain) IDBuffer() gpu.Image        { return sc.idBuffer }

// Destroy releases everything. The caller waits for the device to go idle first.
func (sc *Swapchain) Destroy() {
	sc.deletion.Flush()
	sc.handle = nil
}
