// Package gputest provides an in-memory gpu.Device that records every object
// and command. Submitted work completes immediately: Submit signals its fence.
package gputest

import (
	"fmt"
	"sync"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// Device is a recording fake. All exported fields may be read by tests after
// the code under test returns; Log is guarded by the device mutex.
type Device struct {
	mu     sync.Mutex
	nextID int
	log    []string

	limits  gpu.Limits
	tracer  *RayTracer
	ticks   uint64
	Submits []gpu.SubmitInfo

	// ShaderError, when set, decides whether NewShaderModule fails for the given code.
	ShaderError func(code []byte) error

	Buffers    []*Buffer
	Images     []*Image
	Fences     []*Fence
	Pipelines  []*Pipeline
	Swapchains []*Swapchain
	QueryPools []*QueryPool
}

// Option configures a fake device.
type Option func(*Device)

// WithRayTracing enables the acceleration structure extension.
func WithRayTracing() Option {
	return func(d *Device) {
		d.tracer = &RayTracer{dev: d, scratchAlign: 128}
	}
}

// WithoutTimestamps reports timestamp queries as unsupported.
func WithoutTimestamps() Option {
	return func(d *Device) {
		d.limits.TimestampsSupported = false
	}
}

func NewDevice(opts ...Option) *Device {
	d := &Device{
		limits: gpu.Limits{
			TimestampPeriod:      1.0,
			TimestampsSupported:  true,
			MinUniformAlignment:  256,
			MaxImageDimension2D:  16384,
			MaxPushConstantsSize: 128,
		},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Device) id() int {
	d.nextID++
	return d.nextID
}

func (d *Device) record(format string, args ...interface{}) {
	d.log = append(d.log, fmt.Sprintf(format, args...))
}

func (d *Device) logf(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(format, args...)
}

// Log returns a copy of the device event log ("create buffer#3", "destroy image#4", ...).
func (d *Device) Log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// ClearLog empties the event log.
func (d *Device) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

func (d *Device) NewBuffer(size uint64, usage gpu.BufferUsage, mem gpu.MemoryUsage) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{dev: d, ID: d.id(), size: size, usage: usage, Mem: mem}
	if mem.HostVisible() {
		b.data = make([]byte, size)
	}
	if usage&gpu.BufferUsageDeviceAddress != 0 {
		b.address = uint64(b.ID) << 32
	}
	d.Buffers = append(d.Buffers, b)
	d.record("create buffer#%d", b.ID)
	return b, nil
}

func (d *Device) NewImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Levels == 0 {
		desc.Levels = 1
	}
	if desc.Extent.Depth == 0 {
		desc.Extent.Depth = 1
	}
	img := &Image{dev: d, ID: d.id(), Desc: desc}
	img.view = &ImageView{img: img}
	d.Images = append(d.Images, img)
	d.record("create image#%d", img.ID)
	return img, nil
}

func (d *Device) NewSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Sampler{dev: d, ID: d.id(), Desc: desc}, nil
}

func (d *Device) NewFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &Fence{dev: d, ID: d.id(), signaled: signaled}
	d.Fences = append(d.Fences, f)
	return f, nil
}

func (d *Device) NewSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Semaphore{dev: d, ID: d.id()}, nil
}

func (d *Device) NewCmdPool() (gpu.CmdPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &CmdPool{dev: d, ID: d.id()}, nil
}

func (d *Device) NewQueryPool(count int) (gpu.QueryPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := &QueryPool{dev: d, ID: d.id(), values: make([]uint64, count)}
	d.QueryPools = append(d.QueryPools, q)
	d.record("create querypool#%d", q.ID)
	return q, nil
}

func (d *Device) NewDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &DescriptorSetLayout{dev: d, ID: d.id(), bindings: append([]gpu.DescriptorBinding(nil), bindings...)}, nil
}

func (d *Device) NewDescriptorPool(maxSets uint32, ratios []gpu.PoolRatio) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &DescriptorPool{dev: d, ID: d.id(), MaxSets: maxSets}
	d.record("create descpool#%d(%d)", p.ID, maxSets)
	return p, nil
}

func (d *Device) NewShaderModule(code []byte) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ShaderError != nil {
		if err := d.ShaderError(code); err != nil {
			return nil, err
		}
	}
	m := &ShaderModule{dev: d, ID: d.id(), Code: append([]byte(nil), code...)}
	d.record("create shader#%d", m.ID)
	return m, nil
}

func (d *Device) NewPipelineLayout(sets []gpu.DescriptorSetLayout, pushConstants []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &PipelineLayout{dev: d, ID: d.id(), Sets: sets, PushConstants: pushConstants}
	return l, nil
}

func (d *Device) NewGraphicsPipeline(desc *gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &Pipeline{dev: d, ID: d.id(), bindPoint: gpu.BindGraphics, Graphics: desc}
	d.Pipelines = append(d.Pipelines, p)
	d.record("create pipeline#%d", p.ID)
	return p, nil
}

func (d *Device) NewComputePipeline(desc *gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &Pipeline{dev: d, ID: d.id(), bindPoint: gpu.BindCompute, Compute: desc}
	d.Pipelines = append(d.Pipelines, p)
	d.record("create pipeline#%d", p.ID)
	return p, nil
}

func (d *Device) NewSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := &Swapchain{dev: d, ID: d.id(), format: desc.Format, extent: gpu.Extent2D{Width: desc.Width, Height: desc.Height}}
	if sc.format == gpu.FormatUndefined {
		sc.format = gpu.FormatB8G8R8A8Unorm
	}
	for i := 0; i < 3; i++ {
		img := &Image{dev: d, ID: d.id(), Desc: gpu.ImageDesc{
			Format: sc.format,
			Extent: gpu.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
			Usage:  gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
			Levels: 1,
		}}
		img.view = &ImageView{img: img}
		sc.images = append(sc.images, img)
	}
	d.Swapchains = append(d.Swapchains, sc)
	d.record("create swapchain#%d", sc.ID)
	return sc, nil
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Submits = append(d.Submits, info)
	d.record("submit")
	if f, ok := info.Fence.(*Fence); ok {
		f.signaled = true
	}
	return nil
}

func (d *Device) WaitIdle() error {
	d.logf("wait idle")
	return nil
}

func (d *Device) Limits() gpu.Limits {
	return d.limits
}

func (d *Device) RayTracing() gpu.RayTracer {
	if d.tracer == nil {
		return nil
	}
	return d.tracer
}

func (d *Device) Destroy() {
	d.logf("destroy device")
}

// LiveBuffers counts buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.Buffers {
		if b.DestroyCount == 0 {
			n++
		}
	}
	return n
}

// LiveImages counts images not yet destroyed.
func (d *Device) LiveImages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, img := range d.Images {
		if img.DestroyCount == 0 {
			n++
		}
	}
	return n
}

// NewCmd returns a command buffer outside of any pool.
func (d *Device) NewCmd() *CmdBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &CmdBuffer{dev: d, ID: d.id()}
}

func (d *Device) tick() uint64 {
	d.ticks += 1000
	return d.ticks
}

var _ gpu.Device = (*Device)(nil)

// errNotSignaled is returned by Fence.Wait on an unsignaled fence.
var errNotSignaled = fmt.Errorf("fake fence never signaled: %w", core.ErrTimeout)
