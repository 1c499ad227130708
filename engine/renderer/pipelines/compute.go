package pipelines

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/math"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// ComputeSpec describes a compute pipeline. Bindings[i] is the descriptor
// type of binding i of set 0.
type ComputeSpec struct {
	Shader           string
	Bindings         []gpu.DescriptorType
	PushConstantSize uint32
	Specialization   []uint32
}

// Binding is one descriptor write of a dispatch or instance.
type Binding struct {
	Binding uint32
	Type    gpu.DescriptorType

	Buffer gpu.Buffer
	Offset uint64
	Size   uint64

	View    gpu.ImageView
	Sampler gpu.Sampler
	Layout  gpu.Layout
}

func UniformBuffer(binding uint32, buf gpu.Buffer, size, offset uint64) Binding {
	return Binding{Binding: binding, Type: gpu.DescriptorUniformBuffer, Buffer: buf, Size: size, Offset: offset}
}

func StorageBuffer(binding uint32, buf gpu.Buffer, size, offset uint64) Binding {
	return Binding{Binding: binding, Type: gpu.DescriptorStorageBuffer, Buffer: buf, Size: size, Offset: offset}
}

func SampledImage(binding uint32, view gpu.ImageView, sampler gpu.Sampler) Binding {
	return Binding{Binding: binding, Type: gpu.DescriptorCombinedImageSampler, View: view, Sampler: sampler, Layout: gpu.LayoutShaderReadOnly}
}

func StorageImage(binding uint32, view gpu.ImageView) Binding {
	return Binding{Binding: binding, Type: gpu.DescriptorStorageImage, View: view, Layout: gpu.LayoutGeneral}
}

// DispatchInfo is one dispatch. Barriers are recorded after binding and
// before the dispatch; After is recorded once the dispatch was issued.
type DispatchInfo struct {
	GroupsX, GroupsY, GroupsZ uint32

	Bindings      []Binding
	PushConstants []byte

	MemoryBarriers []gpu.MemoryBarrier
	BufferBarriers []gpu.BufferBarrier
	ImageBarriers  []gpu.ImageBarrier
	After          []gpu.MemoryBarrier
}

// DispatchGroups is the number of groups of size local covering n items.
func DispatchGroups(n, local uint32) uint32 {
	if local == 0 {
		local = 1
	}
	return math.DivCeil(n, local)
}

func Dispatch2D(width, height, localX, localY uint32) DispatchInfo {
	return DispatchInfo{
		GroupsX: DispatchGroups(width, localX),
		GroupsY: DispatchGroups(height, localY),
		GroupsZ: 1,
	}
}

func Dispatch3D(width, height, depth, localX, localY, localZ uint32) DispatchInfo {
	return DispatchInfo{
		GroupsX: DispatchGroups(width, localX),
		GroupsY: DispatchGroups(height, localY),
		GroupsZ: DispatchGroups(depth, localZ),
	}
}

type computeRecord struct {
	spec      ComputeSpec
	pipeline  gpu.Pipeline
	layout    gpu.PipelineLayout
	setLayout gpu.DescriptorSetLayout
}

func (r *computeRecord) destroy() {
	if r.pipeline != nil {
		r.pipeline.Destroy()
	}
	if r.layout != nil {
		r.layout.Destroy()
	}
	if r.setLayout != nil {
		r.setLayout.Destroy()
	}
}

type computeInstance struct {
	pipeline     string
	set          gpu.DescriptorSet
	bindings     []Binding
	ownedImages  []gpu.Image
	ownedBuffers []gpu.Buffer
}

// CreateCompute builds a compute pipeline with one descriptor set and an
// optional push-constant block.
func (m *Manager) CreateCompute(name string, spec ComputeSpec) error {
	if _, exists := m.compute[name]; exists {
		return fmt.Errorf("compute pipeline %q: %w", name, core.ErrAlreadyExists)
	}
	shader, err := m.loadShader(spec.Shader)
	if err != nil {
		err = fmt.Errorf("compute pipeline %q: %w", name, err)
		core.LogError(err.Error())
		return err
	}
	defer shader.Destroy()

	rec := &computeRecord{spec: spec}
	var sets []gpu.DescriptorSetLayout
	if len(spec.Bindings) > 0 {
		bindings := make([]gpu.DescriptorBinding, len(spec.Bindings))
		for i, t := range spec.Bindings {
			bindings[i] = gpu.DescriptorBinding{Binding: uint32(i), Type: t, Count: 1, Stages: gpu.ShaderStageCompute}
		}
		if rec.setLayout, err = m.device.NewDescriptorSetLayout(bindings); err != nil {
			return fmt.Errorf("compute pipeline %q: set layout: %w", name, err)
		}
		sets = []gpu.DescriptorSetLayout{rec.setLayout}
	}

	var push []gpu.PushConstantRange
	if spec.PushConstantSize > 0 {
		push = []gpu.PushConstantRange{{Stages: gpu.ShaderStageCompute, Size: spec.PushConstantSize}}
	}
	if rec.layout, err = m.device.NewPipelineLayout(sets, push); err != nil {
		rec.destroy()
		return fmt.Errorf("compute pipeline %q: layout: %w", name, err)
	}
	if rec.pipeline, err = m.device.NewComputePipeline(&gpu.ComputePipelineDesc{
		Shader:         shader,
		Layout:         rec.layout,
		Specialization: spec.Specialization,
	}); err != nil {
		rec.destroy()
		return fmt.Errorf("compute pipeline %q: %w", name, err)
	}

	m.compute[name] = rec
	return nil
}

func (m *Manager) HasCompute(name string) bool {
	_, ok := m.compute[name]
	return ok
}

// DestroyCompute releases the pipeline. Instances built from it stay until
// destroyed and fail to dispatch.
func (m *Manager) DestroyCompute(name string) {
	rec, ok := m.compute[name]
	if !ok {
		return
	}
	rec.destroy()
	delete(m.compute, name)
}

// transientSet allocates a set for this frame, or from the manager's own
// pools when no frame is current.
func (m *Manager) transientSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	if m.currentFrame != nil {
		if fr := m.currentFrame(); fr != nil && fr.Descriptors != nil {
			return fr.Descriptors.Allocate(layout)
		}
	}
	return m.descriptors.Allocate(layout)
}

func writeBindings(set gpu.DescriptorSet, bindings []Binding) {
	for _, b := range bindings {
		switch b.Type {
		case gpu.DescriptorUniformBuffer, gpu.DescriptorStorageBuffer:
			size := b.Size
			if size == 0 {
				size = gpu.WholeSize
			}
			set.WriteBuffer(b.Binding, b.Type, b.Buffer, b.Offset, size)
		case gpu.DescriptorCombinedImageSampler, gpu.DescriptorSampledImage:
			layout := b.Layout
			if layout == gpu.LayoutUndefined {
				layout = gpu.LayoutShaderReadOnly
			}
			set.WriteImage(b.Binding, b.Type, b.View, b.Sampler, layout)
		case gpu.DescriptorStorageImage:
			layout := b.Layout
			if layout == gpu.LayoutUndefined {
				layout = gpu.LayoutGeneral
			}
			set.WriteImage(b.Binding, b.Type, b.View, nil, layout)
		default:
			core.LogWarn("compute binding %d: unsupported descriptor type %s", b.Binding, b.Type)
		}
	}
}

func (m *Manager) record(cmd gpu.CmdBuffer, rec *computeRecord, set gpu.DescriptorSet, info *DispatchInfo) {
	cmd.BindPipeline(rec.pipeline)
	if set != nil {
		cmd.BindDescriptorSets(gpu.BindCompute, rec.layout, 0, []gpu.DescriptorSet{set})
	}
	if len(info.PushConstants) > 0 {
		cmd.PushConstants(rec.layout, gpu.ShaderStageCompute, 0, info.PushConstants)
	}
	if len(info.MemoryBarriers) > 0 || len(info.BufferBarriers) > 0 || len(info.ImageBarriers) > 0 {
		buffers := append([]gpu.BufferBarrier(nil), info.BufferBarriers...)
		for i := range buffers {
			if buffers[i].Size == 0 {
				buffers[i].Size = gpu.WholeSize
			}
		}
		cmd.Barrier(info.ImageBarriers, buffers, info.MemoryBarriers)
	}
	x, y, z := info.GroupsX, info.GroupsY, info.GroupsZ
	if x == 0 {
		x = 1
	}
	if y == 0 {
		y = 1
	}
	if z == 0 {
		z = 1
	}
	cmd.Dispatch(x, y, z)
	if len(info.After) > 0 {
		cmd.Barrier(nil, nil, info.After)
	}
}

// Dispatch binds the pipeline name, writes info.Bindings into a transient
// set and records the dispatch into cmd.
func (m *Manager) Dispatch(cmd gpu.CmdBuffer, name string, info DispatchInfo) error {
	rec, ok := m.compute[name]
	if !ok {
		return fmt.Errorf("compute pipeline %q: %w", name, core.ErrNotFound)
	}
	var set gpu.DescriptorSet
	if len(info.Bindings) > 0 && rec.setLayout != nil {
		var err error
		if set, err = m.transientSet(rec.setLayout); err != nil {
			return fmt.Errorf("compute pipeline %q: %w", name, err)
		}
		writeBindings(set, info.Bindings)
	}
	m.record(cmd, rec, set, &info)
	return nil
}

// DispatchImmediate records the dispatch into a one-shot submission and waits.
func (m *Manager) DispatchImmediate(name string, info DispatchInfo) error {
	if m.resources == nil {
		return fmt.Errorf("immediate dispatch of %q: %w", name, core.ErrUnsupported)
	}
	var dispatchErr error
	err := m.resources.ImmediateSubmit(func(cmd gpu.CmdBuffer) {
		dispatchErr = m.Dispatch(cmd, name, info)
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return err
}

// CreateInstance allocates a persistent descriptor set for pipeline. An
// empty instance name gets a generated one; the name in use is returned.
func (m *Manager) CreateInstance(instance, pipeline string) (string, error) {
	if instance == "" {
		instance = pipeline + "." + uuid.NewString()
	}
	if _, exists := m.instances[instance]; exists {
		return "", fmt.Errorf("compute instance %q: %w", instance, core.ErrAlreadyExists)
	}
	rec, ok := m.compute[pipeline]
	if !ok {
		return "", fmt.Errorf("compute instance %q: pipeline %q: %w", instance, pipeline, core.ErrNotFound)
	}
	inst := &computeInstance{pipeline: pipeline}
	if rec.setLayout != nil {
		set, err := m.descriptors.Allocate(rec.setLayout)
		if err != nil {
			return "", fmt.Errorf("compute instance %q: %w", instance, err)
		}
		inst.set = set
	}
	m.instances[instance] = inst
	return instance, nil
}

func (m *Manager) HasInstance(instance string) bool {
	_, ok := m.instances[instance]
	return ok
}

// DestroyInstance releases the images and buffers the instance created.
func (m *Manager) DestroyInstance(instance string) {
	inst, ok := m.instances[instance]
	if !ok {
		return
	}
	for _, img := range inst.ownedImages {
		img.Destroy()
	}
	for _, buf := range inst.ownedBuffers {
		buf.Destroy()
	}
	delete(m.instances, instance)
}

// SetInstanceBinding replaces the binding with the same index or adds it.
func (m *Manager) SetInstanceBinding(instance string, b Binding) error {
	inst, ok := m.instances[instance]
	if !ok {
		return fmt.Errorf("compute instance %q: %w", instance, core.ErrNotFound)
	}
	for i := range inst.bindings {
		if inst.bindings[i].Binding == b.Binding {
			inst.bindings[i] = b
			return nil
		}
	}
	inst.bindings = append(inst.bindings, b)
	return nil
}

func (m *Manager) SetInstanceStorageImage(instance string, binding uint32, view gpu.ImageView) error {
	return m.SetInstanceBinding(instance, StorageImage(binding, view))
}

func (m *Manager) SetInstanceSampledImage(instance string, binding uint32, view gpu.ImageView, sampler gpu.Sampler) error {
	return m.SetInstanceBinding(instance, SampledImage(binding, view, sampler))
}

func (m *Manager) SetInstanceBuffer(instance string, binding uint32, buf gpu.Buffer, size uint64, t gpu.DescriptorType, offset uint64) error {
	return m.SetInstanceBinding(instance, Binding{Binding: binding, Type: t, Buffer: buf, Size: size, Offset: offset})
}

// CreateAndBindStorageImage creates an image owned by the instance and binds
// it as a storage image.
func (m *Manager) CreateAndBindStorageImage(instance string, binding uint32, extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage) (gpu.Image, error) {
	inst, ok := m.instances[instance]
	if !ok {
		return nil, fmt.Errorf("compute instance %q: %w", instance, core.ErrNotFound)
	}
	if m.resources == nil {
		return nil, fmt.Errorf("compute instance %q: %w", instance, core.ErrUnsupported)
	}
	if usage == 0 {
		usage = gpu.ImageUsageStorage | gpu.ImageUsageSampled
	}
	img, err := m.resources.CreateImage(extent, format, usage, false)
	if err != nil {
		return nil, err
	}
	inst.ownedImages = append(inst.ownedImages, img)
	return img, m.SetInstanceStorageImage(instance, binding, img.View())
}

// CreateAndBindStorageBuffer creates a GPU-only buffer owned by the instance
// and binds it as a storage buffer.
func (m *Manager) CreateAndBindStorageBuffer(instance string, binding uint32, size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	inst, ok := m.instances[instance]
	if !ok {
		return nil, fmt.Errorf("compute instance %q: %w", instance, core.ErrNotFound)
	}
	if m.resources == nil {
		return nil, fmt.Errorf("compute instance %q: %w", instance, core.ErrUnsupported)
	}
	if usage == 0 {
		usage = gpu.BufferUsageStorage
	}
	buf, err := m.resources.CreateBuffer(size, usage, gpu.MemoryGPUOnly)
	if err != nil {
		return nil, err
	}
	inst.ownedBuffers = append(inst.ownedBuffers, buf)
	return buf, m.SetInstanceBuffer(instance, binding, buf, size, gpu.DescriptorStorageBuffer, 0)
}

// DispatchInstance dispatches with the instance's bindings. The bindings are
// written into a per-frame set so a set still read by an earlier frame is
// never updated; the instance's own set is the fallback.
func (m *Manager) DispatchInstance(cmd gpu.CmdBuffer, instance string, info DispatchInfo) error {
	inst, ok := m.instances[instance]
	if !ok {
		return fmt.Errorf("compute instance %q: %w", instance, core.ErrNotFound)
	}
	rec, ok := m.compute[inst.pipeline]
	if !ok {
		return fmt.Errorf("compute instance %q: pipeline %q: %w", instance, inst.pipeline, core.ErrNotFound)
	}

	var set gpu.DescriptorSet
	if rec.setLayout != nil {
		var err error
		if set, err = m.transientSet(rec.setLayout); err != nil {
			core.LogWarn("compute instance %q: per-frame set unavailable, using the persistent one: %v", instance, err)
			set = inst.set
		}
		writeBindings(set, inst.bindings)
	}
	m.record(cmd, rec, set, &info)
	return nil
}
