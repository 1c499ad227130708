package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func (d *Device) querySwapchainSupport() (*swapchainSupport, error) {
	pd, surface := d.physical.handle, d.instance.surface
	s := &swapchainSupport{}
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &s.capabilities)); err != nil {
		return nil, err
	}
	s.capabilities.Deref()
	s.capabilities.CurrentExtent.Deref()
	s.capabilities.MinImageExtent.Deref()
	s.capabilities.MaxImageExtent.Deref()

	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, nil)
	s.formats = make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, s.formats)
	for i := range s.formats {
		s.formats[i].Deref()
	}

	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, nil)
	s.presentModes = make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, s.presentModes)

	if len(s.formats) == 0 || len(s.presentModes) == 0 {
		return nil, fmt.Errorf("surface has no formats or present modes: %w", core.ErrDeviceLost)
	}
	return s, nil
}

// chooseSurfaceFormat prefers want in the sRGB nonlinear color space and
// falls back to the first reported format.
func chooseSurfaceFormat(formats []vk.SurfaceFormat, want gpu.Format) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == toVkFormat(want) && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode uses FIFO with vsync. Without it mailbox is preferred,
// then immediate.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	best := vk.PresentModeFifo
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
		if m == vk.PresentModeImmediate {
			best = m
		}
	}
	return best
}

func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  min(max(width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width),
		Height: min(max(height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height),
	}
}

type swapchain struct {
	device *Device
	handle vk.Swapchain
	format gpu.Format
	extent gpu.Extent2D
	images []gpu.Image
}

func (d *Device) NewSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	support, err := d.querySwapchainSupport()
	if err != nil {
		return nil, err
	}
	caps := support.capabilities
	surfaceFormat := chooseSurfaceFormat(support.formats, desc.Format)
	presentMode := choosePresentMode(support.presentModes, desc.VSync)
	extent := chooseExtent(caps, desc.Width, desc.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, fmt.Errorf("surface is %dx%d: %w", extent.Width, extent.Height, core.ErrSwapchainOutOfDate)
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.instance.surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if old, ok := desc.Old.(*swapchain); ok && old != nil {
		info.OldSwapchain = old.handle
	}

	sc := &swapchain{
		device: d,
		format: gpu.Format(surfaceFormat.Format),
		extent: gpu.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(d.handle, &info, nil, &sc.handle)); err != nil {
		return nil, err
	}

	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, nil)); err != nil {
		sc.Destroy()
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, handles)); err != nil {
		sc.Destroy()
		return nil, err
	}
	for _, h := range handles {
		img, err := d.wrapSwapchainImage(h, sc.format, sc.extent)
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.images = append(sc.images, img)
	}

	core.LogInfo("swapchain %dx%d, %d images, format %s, present mode %d",
		extent.Width, extent.Height, len(sc.images), sc.format, presentMode)
	return sc, nil
}

func (sc *swapchain) Format() gpu.Format   { return sc.format }
func (sc *swapchain) Extent() gpu.Extent2D { return sc.extent }
func (sc *swapchain) Images() []gpu.Image  { return sc.images }

func (sc *swapchain) Acquire(signal gpu.Semaphore, timeout time.Duration) (int, error) {
	var index uint32
	result := vk.AcquireNextImage(sc.device.handle, sc.handle, uint64(timeout.Nanoseconds()), signal.(*semaphore).handle, vk.NullFence, &index)
	if err := resultError("vkAcquireNextImage", result); err != nil {
		return 0, err
	}
	return int(index), nil
}

// Present reports a suboptimal swapchain as out of date so the caller
// recreates it.
func (sc *swapchain) Present(index int, wait gpu.Semaphore) error {
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.(*semaphore).handle},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{uint32(index)},
	}
	var result vk.Result
	_ = sc.device.locks.SafeCall(QueueSubmission, func() error {
		result = vk.QueuePresent(sc.device.queue, &info)
		return nil
	})
	if result == vk.Suboptimal {
		return fmt.Errorf("vkQueuePresent: %s: %w", resultString(result), core.ErrSwapchainOutOfDate)
	}
	return resultError("vkQueuePresent", result)
}

func (sc *swapchain) Destroy() {
	for _, img := range sc.images {
		img.Destroy()
	}
	sc.images = nil
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.device.handle, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
}
