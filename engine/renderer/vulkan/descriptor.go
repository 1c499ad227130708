package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type descriptorSetLayout struct {
	device   *Device
	handle   vk.DescriptorSetLayout
	bindings []gpu.DescriptorBinding
}

func (d *Device) NewDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		t, ok := toVkDescriptorType(b.Type)
		if !ok {
			return nil, fmt.Errorf("binding %d of type %s: %w", b.Binding, b.Type, core.ErrUnsupported)
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  t,
			DescriptorCount: max(b.Count, 1),
			StageFlags:      toVkShaderStages(b.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	l := &descriptorSetLayout{device: d, bindings: append([]gpu.DescriptorBinding(nil), bindings...)}
	err := d.locks.SafeCall(PipelineCreation, func() error {
		return resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.handle, &info, nil, &l.handle))
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *descriptorSetLayout) Bindings() []gpu.DescriptorBinding { return l.bindings }

func (l *descriptorSetLayout) Destroy() {
	if l.handle != nil {
		vk.DestroyDescriptorSetLayout(l.device.handle, l.handle, nil)
		l.handle = nil
	}
}

type descriptorPool struct {
	device *Device
	handle vk.DescriptorPool
}

// NewDescriptorPool sizes every descriptor type as ratio * maxSets.
// Acceleration structure ratios are dropped.
func (d *Device) NewDescriptorPool(maxSets uint32, ratios []gpu.PoolRatio) (gpu.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(ratios))
	for _, r := range ratios {
		t, ok := toVkDescriptorType(r.Type)
		if !ok {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            t,
			DescriptorCount: max(uint32(r.Ratio*float32(maxSets)), 1),
		})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	p := &descriptorPool{device: d}
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.handle, &info, nil, &p.handle)); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *descriptorPool) Alloc(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.(*descriptorSetLayout).handle},
	}
	set := &descriptorSet{device: p.device}
	if err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(p.device.handle, &info, &set.handle)); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *descriptorPool) Reset() error {
	return resultError("vkResetDescriptorPool", vk.ResetDescriptorPool(p.device.handle, p.handle, 0))
}

func (p *descriptorPool) Destroy() {
	if p.handle != nil {
		vk.DestroyDescriptorPool(p.device.handle, p.handle, nil)
		p.handle = nil
	}
}

// descriptorSet writes immediately; sets are never written while in use.
type descriptorSet struct {
	device *Device
	handle vk.DescriptorSet
}

func (s *descriptorSet) write(w vk.WriteDescriptorSet) {
	w.SType = vk.StructureTypeWriteDescriptorSet
	w.DstSet = s.handle
	w.DescriptorCount = 1
	vk.UpdateDescriptorSets(s.device.handle, 1, []vk.WriteDescriptorSet{w}, 0, nil)
}

func (s *descriptorSet) WriteImage(binding uint32, t gpu.DescriptorType, view gpu.ImageView, smp gpu.Sampler, layout gpu.Layout) {
	vt, ok := toVkDescriptorType(t)
	if !ok {
		core.LogError("image write to binding %d: unsupported type %s", binding, t)
		return
	}
	info := vk.DescriptorImageInfo{ImageLayout: toVkLayout(layout)}
	if view != nil {
		info.ImageView = view.(*imageView).handle
	}
	if smp != nil {
		info.Sampler = smp.(*sampler).handle
	}
	s.write(vk.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: vt,
		PImageInfo:     []vk.DescriptorImageInfo{info},
	})
}

func (s *descriptorSet) WriteBuffer(binding uint32, t gpu.DescriptorType, buf gpu.Buffer, offset, size uint64) {
	vt, ok := toVkDescriptorType(t)
	if !ok {
		core.LogError("buffer write to binding %d: unsupported type %s", binding, t)
		return
	}
	s.write(vk.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: vt,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.(*buffer).handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	})
}

// WriteAccelerationStructure is unreachable while RayTracing returns nil.
func (s *descriptorSet) WriteAccelerationStructure(binding uint32, as gpu.AccelerationStructure) {
	core.LogError("acceleration structure write to binding %d: %v", binding, core.ErrUnsupported)
}
