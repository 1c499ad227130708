package gputest

import (
	"fmt"
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type Buffer struct {
	dev          *Device
	ID           int
	Mem          gpu.MemoryUsage
	DestroyCount int

	size    uint64
	usage   gpu.BufferUsage
	data    []byte
	address uint64
}

func (b *Buffer) Size() uint64          { return b.size }
func (b *Buffer) Usage() gpu.BufferUsage { return b.usage }
func (b *Buffer) Bytes() []byte         { return b.data }
func (b *Buffer) Address() uint64       { return b.address }

func (b *Buffer) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	b.DestroyCount++
	b.dev.record("destroy buffer#%d", b.ID)
}

func (b *Buffer) String() string { return fmt.Sprintf("buffer#%d", b.ID) }

type Image struct {
	dev          *Device
	ID           int
	Desc         gpu.ImageDesc
	DestroyCount int
	view         *ImageView
}

func (i *Image) Format() gpu.Format     { return i.Desc.Format }
func (i *Image) Extent() gpu.Extent3D   { return i.Desc.Extent }
func (i *Image) Levels() uint32         { return i.Desc.Levels }
func (i *Image) Usage() gpu.ImageUsage  { return i.Desc.Usage }
func (i *Image) View() gpu.ImageView    { return i.view }
func (i *Image) String() string         { return fmt.Sprintf("image#%d", i.ID) }

func (i *Image) Destroy() {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	i.DestroyCount++
	i.dev.record("destroy image#%d", i.ID)
}

type ImageView struct {
	img *Image
}

func (v *ImageView) Image() gpu.Image { return v.img }

type Sampler struct {
	dev  *Device
	ID   int
	Desc gpu.SamplerDesc
}

func (s *Sampler) Destroy() { s.dev.logf("destroy sampler#%d", s.ID) }

type Fence struct {
	dev      *Device
	ID       int
	signaled bool
}

func (f *Fence) Wait(timeout time.Duration) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.record("wait fence#%d", f.ID)
	if !f.signaled {
		return errNotSignaled
	}
	return nil
}

func (f *Fence) Reset() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.record("reset fence#%d", f.ID)
	f.signaled = false
	return nil
}

func (f *Fence) Signaled() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.signaled
}

// Signal marks the fence as signaled without a submit.
func (f *Fence) Signal() {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.signaled = true
}

func (f *Fence) Destroy() { f.dev.logf("destroy fence#%d", f.ID) }

type Semaphore struct {
	dev *Device
	ID  int
}

func (s *Semaphore) Destroy() { s.dev.logf("destroy semaphore#%d", s.ID) }

// QueryPool stores one timestamp per query. WriteTimestamp stores a
// monotonically increasing tick so every end query exceeds its begin query.
type QueryPool struct {
	dev          *Device
	ID           int
	DestroyCount int
	values       []uint64
}

func (q *QueryPool) Count() int { return len(q.values) }

func (q *QueryPool) Results(first, count int) ([]uint64, error) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	if first < 0 || first+count > len(q.values) {
		return nil, fmt.Errorf("query range [%d,%d) outside pool of %d", first, first+count, len(q.values))
	}
	return append([]uint64(nil), q.values[first:first+count]...), nil
}

// Set overrides a stored timestamp.
func (q *QueryPool) Set(query int, value uint64) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.values[query] = value
}

func (q *QueryPool) Destroy() {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.DestroyCount++
	q.dev.record("destroy querypool#%d", q.ID)
}

type CmdPool struct {
	dev     *Device
	ID      int
	Buffers []*CmdBuffer
	Resets  int
}

func (p *CmdPool) Reset() error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.Resets++
	p.dev.record("reset cmdpool#%d", p.ID)
	return nil
}

func (p *CmdPool) NewCmdBuffer() (gpu.CmdBuffer, error) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	cb := &CmdBuffer{dev: p.dev, ID: p.dev.id()}
	p.Buffers = append(p.Buffers, cb)
	return cb, nil
}

func (p *CmdPool) Destroy() { p.dev.logf("destroy cmdpool#%d", p.ID) }

type DescriptorSetLayout struct {
	dev      *Device
	ID       int
	bindings []gpu.DescriptorBinding
}

func (l *DescriptorSetLayout) Bindings() []gpu.DescriptorBinding { return l.bindings }
func (l *DescriptorSetLayout) Destroy()                          { l.dev.logf("destroy setlayout#%d", l.ID) }

// DescriptorPool hands out at most MaxSets sets between resets.
type DescriptorPool struct {
	dev       *Device
	ID        int
	MaxSets   uint32
	Allocated uint32
	Resets    int
}

func (p *DescriptorPool) Alloc(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.Allocated >= p.MaxSets {
		return nil, core.ErrOutOfPoolMemory
	}
	p.Allocated++
	return &DescriptorSet{ID: p.dev.id(), Pool: p, Layout: layout, writes: map[uint32]DescriptorWrite{}}, nil
}

func (p *DescriptorPool) Reset() error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.Allocated = 0
	p.Resets++
	return nil
}

func (p *DescriptorPool) Destroy() { p.dev.logf("destroy descpool#%d", p.ID) }

// DescriptorWrite is the latest update applied to one binding.
type DescriptorWrite struct {
	Type    gpu.DescriptorType
	View    gpu.ImageView
	Sampler gpu.Sampler
	Layout  gpu.Layout
	Buffer  gpu.Buffer
	Offset  uint64
	Size    uint64
	AS      gpu.AccelerationStructure
}

type DescriptorSet struct {
	ID     int
	Pool   *DescriptorPool
	Layout gpu.DescriptorSetLayout
	writes map[uint32]DescriptorWrite
}

func (s *DescriptorSet) WriteImage(binding uint32, t gpu.DescriptorType, view gpu.ImageView, sampler gpu.Sampler, layout gpu.Layout) {
	s.writes[binding] = DescriptorWrite{Type: t, View: view, Sampler: sampler, Layout: layout}
}

func (s *DescriptorSet) WriteBuffer(binding uint32, t gpu.DescriptorType, buf gpu.Buffer, offset, size uint64) {
	s.writes[binding] = DescriptorWrite{Type: t, Buffer: buf, Offset: offset, Size: size}
}

func (s *DescriptorSet) WriteAccelerationStructure(binding uint32, as gpu.AccelerationStructure) {
	s.writes[binding] = DescriptorWrite{Type: gpu.DescriptorAccelerationStructure, AS: as}
}

// Write returns the latest update of binding.
func (s *DescriptorSet) Write(binding uint32) (DescriptorWrite, bool) {
	w, ok := s.writes[binding]
	return w, ok
}

// Image returns the image bound at binding, nil when none.
func (s *DescriptorSet) Image(binding uint32) gpu.Image {
	w, ok := s.writes[binding]
	if !ok || w.View == nil {
		return nil
	}
	return w.View.Image()
}

type ShaderModule struct {
	dev  *Device
	ID   int
	Code []byte
}

func (m *ShaderModule) Destroy() { m.dev.logf("destroy shader#%d", m.ID) }

type PipelineLayout struct {
	dev           *Device
	ID            int
	Sets          []gpu.DescriptorSetLayout
	PushConstants []gpu.PushConstantRange
}

func (l *PipelineLayout) Destroy() { l.dev.logf("destroy layout#%d", l.ID) }

type Pipeline struct {
	dev          *Device
	ID           int
	DestroyCount int
	Graphics     *gpu.GraphicsPipelineDesc
	Compute      *gpu.ComputePipelineDesc
	bindPoint    gpu.BindPoint
}

func (p *Pipeline) BindPoint() gpu.BindPoint { return p.bindPoint }

func (p *Pipeline) Destroy() {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.DestroyCount++
	p.dev.record("destroy pipeline#%d", p.ID)
}

// Swapchain hands out images round robin. Setting OutOfDate makes the next
// Acquire and Present fail with core.ErrSwapchainOutOfDate.
type Swapchain struct {
	dev       *Device
	ID        int
	OutOfDate bool
	Presented []int
	format    gpu.Format
	extent    gpu.Extent2D
	images    []gpu.Image
	next      int
}

func (s *Swapchain) Format() gpu.Format     { return s.format }
func (s *Swapchain) Extent() gpu.Extent2D   { return s.extent }
func (s *Swapchain) Images() []gpu.Image    { return s.images }

func (s *Swapchain) Acquire(signal gpu.Semaphore, timeout time.Duration) (int, error) {
	if s.OutOfDate {
		return 0, core.ErrSwapchainOutOfDate
	}
	i := s.next
	s.next = (s.next + 1) % len(s.images)
	return i, nil
}

func (s *Swapchain) Present(index int, wait gpu.Semaphore) error {
	if s.OutOfDate {
		return core.ErrSwapchainOutOfDate
	}
	s.Presented = append(s.Presented, index)
	return nil
}

func (s *Swapchain) Destroy() { s.dev.logf("destroy swapchain#%d", s.ID) }

// RayTracer fakes acceleration structure sizing: storage is 256 bytes per
// primitive or instance, scratch half of that.
type RayTracer struct {
	dev          *Device
	scratchAlign uint64
	Created      []*AccelerationStructure
}

func (r *RayTracer) BuildSizes(kind gpu.ASKind, flags gpu.ASBuildFlags, geoms []gpu.ASGeometry) (gpu.ASBuildSizes, error) {
	var n uint64
	for _, g := range geoms {
		if g.Triangles != nil {
			n += uint64(g.Triangles.PrimitiveCount)
		}
		if g.Instances != nil {
			n += uint64(g.Instances.Count)
		}
	}
	if n == 0 {
		n = 1
	}
	return gpu.ASBuildSizes{StorageSize: n * 256, ScratchSize: n * 128}, nil
}

func (r *RayTracer) NewAccelerationStructure(kind gpu.ASKind, storage gpu.Buffer, offset, size uint64) (gpu.AccelerationStructure, error) {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	as := &AccelerationStructure{dev: r.dev, ID: r.dev.id(), Kind: kind, Storage: storage}
	as.address = uint64(as.ID)<<40 | 0x1000
	r.Created = append(r.Created, as)
	r.dev.record("create as#%d", as.ID)
	return as, nil
}

func (r *RayTracer) MinScratchAlignment() uint64 { return r.scratchAlign }

type AccelerationStructure struct {
	dev          *Device
	ID           int
	Kind         gpu.ASKind
	Storage      gpu.Buffer
	DestroyCount int
	address      uint64
}

func (a *AccelerationStructure) Address() uint64 { return a.address }

func (a *AccelerationStructure) Destroy() {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	a.DestroyCount++
	a.dev.record("destroy as#%d", a.ID)
}
