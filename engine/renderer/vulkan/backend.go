// Package vulkan implements gpu.Device on the Vulkan 1.0 core API.
//
// Dynamic rendering is lowered to render passes cached by attachment
// formats and operations, with one framebuffer per BeginRendering that
// lives until its command pool is reset. Barriers are lowered to
// vkCmdPipelineBarrier.
package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type Device struct {
	instance *instanceContext
	physical *physicalDeviceInfo
	handle   vk.Device
	queue    vk.Queue

	locks        *lockPool
	renderpasses *renderpassCache
}

var _ gpu.Device = (*Device)(nil)

// New creates the instance, the window surface and a logical device with a
// single graphics queue that can present.
func New(window Window, cfg Config) (*Device, error) {
	if err := loadLoader(); err != nil {
		return nil, err
	}
	ic, err := createInstance(window, cfg)
	if err != nil {
		return nil, err
	}
	pd, err := selectPhysicalDevice(ic)
	if err != nil {
		ic.destroy()
		return nil, err
	}
	handle, queue, err := createLogicalDevice(pd, ic.layers)
	if err != nil {
		ic.destroy()
		return nil, err
	}

	d := &Device{
		instance: ic,
		physical: pd,
		handle:   handle,
		queue:    queue,
		locks:    newLockPool(),
	}
	d.renderpasses = newRenderpassCache(d)
	core.LogInfo("vulkan device ready, queue family %d, acceleration structures unavailable", pd.queueFamily)
	return d, nil
}

// Destroy releases the device, the surface and the instance. Every object
// created from the device must already be destroyed.
func (d *Device) Destroy() {
	if d.handle != nil {
		vk.DeviceWaitIdle(d.handle)
		d.renderpasses.destroy()
		vk.DestroyDevice(d.handle, nil)
		d.handle = nil
	}
	if d.instance != nil {
		d.instance.destroy()
		d.instance = nil
	}
	core.LogDebug("vulkan device destroyed")
}
