package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// allocation is one dedicated vkDeviceMemory block.
type allocation struct {
	memory vk.DeviceMemory
	size   vk.DeviceSize
	mapped []byte
}

func (d *Device) allocate(reqs vk.MemoryRequirements, usage gpu.MemoryUsage) (*allocation, error) {
	reqs.Deref()
	required, preferred := memoryFlags(usage)
	index, ok := d.findMemoryType(reqs.MemoryTypeBits, required, preferred)
	if !ok {
		return nil, fmt.Errorf("no memory type for usage %d: %w", usage, core.ErrUnsupported)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	a := &allocation{size: reqs.Size}
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(d.handle, &info, nil, &a.memory)); err != nil {
		return nil, err
	}
	if usage.HostVisible() {
		var ptr unsafe.Pointer
		if err := resultError("vkMapMemory", vk.MapMemory(d.handle, a.memory, 0, reqs.Size, 0, &ptr)); err != nil {
			vk.FreeMemory(d.handle, a.memory, nil)
			return nil, err
		}
		a.mapped = unsafe.Slice((*byte)(ptr), int(reqs.Size))
	}
	return a, nil
}

func (d *Device) free(a *allocation) {
	if a == nil {
		return
	}
	if a.mapped != nil {
		vk.UnmapMemory(d.handle, a.memory)
		a.mapped = nil
	}
	vk.FreeMemory(d.handle, a.memory, nil)
}

type buffer struct {
	device *Device
	handle vk.Buffer
	mem    *allocation
	size   uint64
	usage  gpu.BufferUsage
}

func (d *Device) NewBuffer(size uint64, usage gpu.BufferUsage, mem gpu.MemoryUsage) (gpu.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero sized buffer: %w", core.ErrUnsupported)
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       toVkBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b := &buffer{device: d, size: size, usage: usage}
	if err := resultError("vkCreateBuffer", vk.CreateBuffer(d.handle, &info, nil, &b.handle)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, b.handle, &reqs)
	a, err := d.allocate(reqs, mem)
	if err != nil {
		vk.DestroyBuffer(d.handle, b.handle, nil)
		return nil, err
	}
	b.mem = a
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(d.handle, b.handle, a.memory, 0)); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *buffer) Size() uint64           { return b.size }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }
func (b *buffer) Address() uint64        { return 0 }

func (b *buffer) Bytes() []byte {
	if b.mem == nil || b.mem.mapped == nil {
		return nil
	}
	return b.mem.mapped[:b.size]
}

func (b *buffer) Destroy() {
	if b.handle != nil {
		vk.DestroyBuffer(b.device.handle, b.handle, nil)
		b.handle = nil
	}
	b.device.free(b.mem)
	b.mem = nil
}
