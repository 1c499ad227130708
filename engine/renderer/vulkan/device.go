package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

const portabilitySubset = "VK_KHR_portability_subset"

type physicalDeviceInfo struct {
	handle      vk.PhysicalDevice
	properties  vk.PhysicalDeviceProperties
	features    vk.PhysicalDeviceFeatures
	memory      vk.PhysicalDeviceMemoryProperties
	queueFamily uint32
	extensions  []string
	score       int
}

func deviceExtensions(pd vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &count, props)); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

// graphicsPresentFamily returns a queue family that can both draw and
// present to surface.
func graphicsPresentFamily(pd vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent); res != vk.Success {
			continue
		}
		if supportsPresent == vk.True {
			return uint32(i), true
		}
	}
	return 0, false
}

// evaluatePhysicalDevice returns nil when pd cannot drive the renderer.
func evaluatePhysicalDevice(pd vk.PhysicalDevice, surface vk.Surface) *physicalDeviceInfo {
	info := &physicalDeviceInfo{handle: pd}
	vk.GetPhysicalDeviceProperties(pd, &info.properties)
	info.properties.Deref()
	info.properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(pd, &info.features)
	info.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(pd, &info.memory)
	info.memory.Deref()

	name := cString(info.properties.DeviceName[:])

	family, ok := graphicsPresentFamily(pd, surface)
	if !ok {
		core.LogInfo("%s: no queue family with graphics and present, skipping", name)
		return nil
	}
	info.queueFamily = family

	exts, err := deviceExtensions(pd)
	if err != nil {
		core.LogWarn("%s: %v", name, err)
		return nil
	}
	if _, ok := exts[vk.KhrSwapchainExtensionName]; !ok {
		core.LogInfo("%s: %s missing, skipping", name, vk.KhrSwapchainExtensionName)
		return nil
	}
	info.extensions = []string{vk.KhrSwapchainExtensionName}
	if _, ok := exts[portabilitySubset]; ok {
		info.extensions = append(info.extensions, portabilitySubset)
	}

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil)
	if formatCount == 0 || modeCount == 0 {
		core.LogInfo("%s: no surface formats or present modes, skipping", name)
		return nil
	}

	switch info.properties.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		info.score = 1000
	case vk.PhysicalDeviceTypeIntegratedGpu:
		info.score = 500
	case vk.PhysicalDeviceTypeVirtualGpu:
		info.score = 100
	default:
		info.score = 10
	}
	if info.features.SamplerAnisotropy == vk.True {
		info.score += 50
	}
	return info
}

func selectPhysicalDevice(ic *instanceContext) (*physicalDeviceInfo, error) {
	var count uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(ic.handle, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("no vulkan capable device: %w", core.ErrUnsupported)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(ic.handle, &count, devices)); err != nil {
		return nil, err
	}

	var best *physicalDeviceInfo
	for _, pd := range devices {
		info := evaluatePhysicalDevice(pd, ic.surface)
		if info != nil && (best == nil || info.score > best.score) {
			best = info
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no device meets the renderer requirements: %w", core.ErrUnsupported)
	}

	props := best.properties
	core.LogInfo("selected device '%s', driver %d.%d.%d, vulkan %d.%d.%d",
		cString(props.DeviceName[:]),
		vk.Version.Major(vk.Version(props.DriverVersion)),
		vk.Version.Minor(vk.Version(props.DriverVersion)),
		vk.Version.Patch(vk.Version(props.DriverVersion)),
		vk.Version.Major(vk.Version(props.ApiVersion)),
		vk.Version.Minor(vk.Version(props.ApiVersion)),
		vk.Version.Patch(vk.Version(props.ApiVersion)),
	)
	for i := uint32(0); i < best.memory.MemoryHeapCount; i++ {
		heap := best.memory.MemoryHeaps[i]
		heap.Deref()
		gib := float64(heap.Size) / (1 << 30)
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("shared system memory: %.2f GiB", gib)
		}
	}
	return best, nil
}

func createLogicalDevice(pd *physicalDeviceInfo, layers []string) (vk.Device, vk.Queue, error) {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: pd.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	features := vk.PhysicalDeviceFeatures{}
	if pd.features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
	}
	if pd.features.FillModeNonSolid == vk.True {
		features.FillModeNonSolid = vk.True
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(pd.extensions)),
		PpEnabledExtensionNames: safeStrings(pd.extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var device vk.Device
	if err := resultError("vkCreateDevice", vk.CreateDevice(pd.handle, &createInfo, nil, &device)); err != nil {
		return nil, nil, err
	}
	var queue vk.Queue
	vk.GetDeviceQueue(device, pd.queueFamily, 0, &queue)
	return device, queue, nil
}

// findMemoryType returns the first memory type allowed by typeFilter that
// has every required flag, preferring ones that also have preferred.
func (d *Device) findMemoryType(typeFilter uint32, required, preferred vk.MemoryPropertyFlagBits) (uint32, bool) {
	mem := d.physical.memory
	fallback, found := uint32(0), false
	for i := uint32(0); i < mem.MemoryTypeCount; i++ {
		if typeFilter&(1<<i) == 0 {
			continue
		}
		mt := mem.MemoryTypes[i]
		mt.Deref()
		flags := vk.MemoryPropertyFlagBits(mt.PropertyFlags)
		if flags&required != required {
			continue
		}
		if flags&preferred == preferred {
			return i, true
		}
		if !found {
			fallback, found = i, true
		}
	}
	return fallback, found
}

func (d *Device) Limits() gpu.Limits {
	l := d.physical.properties.Limits
	return gpu.Limits{
		TimestampPeriod:      l.TimestampPeriod,
		TimestampsSupported:  l.TimestampComputeAndGraphics == vk.True,
		MinUniformAlignment:  uint64(l.MinUniformBufferOffsetAlignment),
		MaxImageDimension2D:  l.MaxImageDimension2D,
		MaxPushConstantsSize: l.MaxPushConstantsSize,
	}
}

// RayTracing is always nil: the binding exposes no acceleration structure
// entry points.
func (d *Device) RayTracing() gpu.RayTracer {
	return nil
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	submit := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}

	for _, c := range info.Cmds {
		submit.PCommandBuffers = append(submit.PCommandBuffers, c.(*cmdBuffer).handle)
	}
	submit.CommandBufferCount = uint32(len(submit.PCommandBuffers))

	for i, s := range info.Wait {
		submit.PWaitSemaphores = append(submit.PWaitSemaphores, s.(*semaphore).handle)
		stage := gpu.StageAllCommands
		if i < len(info.WaitStages) {
			stage = info.WaitStages[i]
		}
		submit.PWaitDstStageMask = append(submit.PWaitDstStageMask, toVkStages(stage, vk.PipelineStageAllCommandsBit))
	}
	submit.WaitSemaphoreCount = uint32(len(submit.PWaitSemaphores))

	for _, s := range info.Signal {
		submit.PSignalSemaphores = append(submit.PSignalSemaphores, s.(*semaphore).handle)
	}
	submit.SignalSemaphoreCount = uint32(len(submit.PSignalSemaphores))

	fence := vk.NullFence
	if info.Fence != nil {
		fence = info.Fence.(*fenceObj).handle
	}
	return d.locks.SafeCall(QueueSubmission, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, fence))
	})
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeCall(QueueSubmission, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle))
	})
}
