// Package gpu describes the explicit GPU API the renderer is written against:
// handles, pipeline barriers with image layouts, dynamic rendering and a
// present operation. Backends implement Device; tests use gputest.
package gpu

import "time"

// Destroyer is implemented by every device object with an explicit lifetime.
type Destroyer interface {
	Destroy()
}

type Buffer interface {
	Destroyer
	Size() uint64
	Usage() BufferUsage
	// Bytes returns the persistently mapped memory, nil when not host visible.
	Bytes() []byte
	// Address returns the device address, 0 without BufferUsageDeviceAddress.
	Address() uint64
}

// Image owns a default view covering every level.
type Image interface {
	Destroyer
	Format() Format
	Extent() Extent3D
	Levels() uint32
	Usage() ImageUsage
	View() ImageView
}

type ImageView interface {
	Image() Image
}

type Sampler interface {
	Destroyer
}

type Fence interface {
	Destroyer
	// Wait blocks until the fence signals or the timeout expires (core.ErrTimeout).
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() bool
}

type Semaphore interface {
	Destroyer
}

type QueryPool interface {
	Destroyer
	Count() int
	// Results reads count timestamps starting at first, waiting for availability.
	Results(first, count int) ([]uint64, error)
}

type CmdPool interface {
	Destroyer
	// Reset returns every command buffer of the pool to the initial state.
	Reset() error
	NewCmdBuffer() (CmdBuffer, error)
}

type DescriptorSetLayout interface {
	Destroyer
	Bindings() []DescriptorBinding
}

type DescriptorPool interface {
	Destroyer
	// Alloc returns core.ErrOutOfPoolMemory when the pool is exhausted.
	Alloc(layout DescriptorSetLayout) (DescriptorSet, error)
	Reset() error
}

type DescriptorSet interface {
	WriteImage(binding uint32, t DescriptorType, view ImageView, sampler Sampler, layout Layout)
	WriteBuffer(binding uint32, t DescriptorType, buf Buffer, offset, size uint64)
	WriteAccelerationStructure(binding uint32, as AccelerationStructure)
}

type ShaderModule interface {
	Destroyer
}

type PipelineLayout interface {
	Destroyer
}

type Pipeline interface {
	Destroyer
	BindPoint() BindPoint
}

type Limits struct {
	// Nanoseconds per timestamp tick.
	TimestampPeriod      float32
	TimestampsSupported  bool
	MinUniformAlignment  uint64
	MaxImageDimension2D  uint32
	MaxPushConstantsSize uint32
}

type SubmitInfo struct {
	Cmds       []CmdBuffer
	Wait       []Semaphore
	WaitStages []Stage
	Signal     []Semaphore
	Fence      Fence
}

type SwapchainDesc struct {
	Width, Height uint32
	Format        Format
	VSync         bool
	Old           Swapchain
}

// Device creates objects and submits work on the single graphics queue.
// Every method is called from the main thread except NewShaderModule,
// NewPipelineLayout, NewGraphicsPipeline and NewComputePipeline, which the
// pipeline rebuild worker may call concurrently.
type Device interface {
	NewBuffer(size uint64, usage BufferUsage, mem MemoryUsage) (Buffer, error)
	NewImage(desc ImageDesc) (Image, error)
	NewSampler(desc SamplerDesc) (Sampler, error)
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewCmdPool() (CmdPool, error)
	NewQueryPool(count int) (QueryPool, error)
	NewDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	NewDescriptorPool(maxSets uint32, ratios []PoolRatio) (DescriptorPool, error)
	NewShaderModule(code []byte) (ShaderModule, error)
	NewPipelineLayout(sets []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	NewGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	NewComputePipeline(desc *ComputePipelineDesc) (Pipeline, error)
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)

	Submit(info SubmitInfo) error
	WaitIdle() error
	Limits() Limits
	// RayTracing returns nil when acceleration structures are unsupported.
	RayTracing() RayTracer
	Destroy()
}

// Swapchain presents images to the window surface.
type Swapchain interface {
	Destroyer
	Format() Format
	Extent() Extent2D
	Images() []Image
	// Acquire returns core.ErrSwapchainOutOfDate when the surface changed.
	Acquire(signal Semaphore, timeout time.Duration) (int, error)
	// Present returns core.ErrSwapchainOutOfDate when the surface changed.
	Present(index int, wait Semaphore) error
}
