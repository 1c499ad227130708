package vulkan

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type fenceObj struct {
	device *Device
	handle vk.Fence
}

func (d *Device) NewFence(signaled bool) (gpu.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &fenceObj{device: d}
	if err := resultError("vkCreateFence", vk.CreateFence(d.handle, &info, nil, &f.handle)); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fenceObj) Wait(timeout time.Duration) error {
	result := vk.WaitForFences(f.device.handle, 1, []vk.Fence{f.handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait timed out after %s", timeout)
	case vk.ErrorDeviceLost:
		core.LogError("fence wait: VK_ERROR_DEVICE_LOST")
	}
	return resultError("vkWaitForFences", result)
}

func (f *fenceObj) Reset() error {
	return resultError("vkResetFences", vk.ResetFences(f.device.handle, 1, []vk.Fence{f.handle}))
}

func (f *fenceObj) Signaled() bool {
	return vk.GetFenceStatus(f.device.handle, f.handle) == vk.Success
}

func (f *fenceObj) Destroy() {
	if f.handle != vk.NullFence {
		vk.DestroyFence(f.device.handle, f.handle, nil)
		f.handle = vk.NullFence
	}
}

type semaphore struct {
	device *Device
	handle vk.Semaphore
}

func (d *Device) NewSemaphore() (gpu.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	s := &semaphore{device: d}
	if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(d.handle, &info, nil, &s.handle)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *semaphore) Destroy() {
	if s.handle != vk.NullSemaphore {
		vk.DestroySemaphore(s.device.handle, s.handle, nil)
		s.handle = vk.NullSemaphore
	}
}

// queryPool holds GPU timestamps.
type queryPool struct {
	device *Device
	handle vk.QueryPool
	count  int
}

func (d *Device) NewQueryPool(count int) (gpu.QueryPool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("query pool of %d queries: %w", count, core.ErrUnsupported)
	}
	info := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: uint32(count),
	}
	q := &queryPool{device: d, count: count}
	if err := resultError("vkCreateQueryPool", vk.CreateQueryPool(d.handle, &info, nil, &q.handle)); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *queryPool) Count() int { return q.count }

func (q *queryPool) Results(first, count int) ([]uint64, error) {
	if first < 0 || count <= 0 || first+count > q.count {
		return nil, fmt.Errorf("queries [%d, %d) outside pool of %d: %w", first, first+count, q.count, core.ErrNotFound)
	}
	out := make([]uint64, count)
	size := uint64(count) * 8
	flags := vk.QueryResultFlags(vk.QueryResult64Bit | vk.QueryResultWaitBit)
	result := vk.GetQueryPoolResults(q.device.handle, q.handle, uint32(first), uint32(count), size, unsafe.Pointer(&out[0]), 8, flags)
	if err := resultError("vkGetQueryPoolResults", result); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *queryPool) Destroy() {
	if q.handle != nil {
		vk.DestroyQueryPool(q.device.handle, q.handle, nil)
		q.handle = nil
	}
}
