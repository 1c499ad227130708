// Package frame implements the ring of frames in flight. A slot is reused
// only after its render fence was observed signaled; at that point its
// deletion queue is flushed and its transient descriptors are returned.
package frame

import (
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/containers"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// InitialDescriptorSets sizes the first transient descriptor pool of a frame.
const InitialDescriptorSets = 1000

// DefaultPoolRatios is the per-frame transient pool mix.
var DefaultPoolRatios = []gpu.PoolRatio{
	{Type: gpu.DescriptorStorageImage, Ratio: 3},
	{Type: gpu.DescriptorStorageBuffer, Ratio: 3},
	{Type: gpu.DescriptorUniformBuffer, Ratio: 3},
	{Type: gpu.DescriptorCombinedImageSampler, Ratio: 4},
}

// Frame is one slot of the ring.
type Frame struct {
	Index int

	CmdPool gpu.CmdPool
	Cmd     gpu.CmdBuffer

	// ImageAvailable is signaled by swapchain acquire, RenderFinished by the submit.
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	Fence          gpu.Fence

	Deletion    containers.DeletionQueue
	Descriptors *DescriptorAllocator

	// Number is the frame number that last used this slot.
	Number uint64
}

func newFrame(device gpu.Device, index int, ratios []gpu.PoolRatio) (*Frame, error) {
	f := &Frame{Index: index}
	var err error
	if f.CmdPool, err = device.NewCmdPool(); err != nil {
		return nil, fmt.Errorf("frame %d: command pool: %w", index, err)
	}
	if f.Cmd, err = f.CmdPool.NewCmdBuffer(); err != nil {
		return nil, fmt.Errorf("frame %d: command buffer: %w", index, err)
	}
	if f.Fence, err = device.NewFence(true); err != nil {
		return nil, fmt.Errorf("frame %d: fence: %w", index, err)
	}
	if f.ImageAvailable, err = device.NewSemaphore(); err != nil {
		return nil, fmt.Errorf("frame %d: semaphore: %w", index, err)
	}
	if f.RenderFinished, err = device.NewSemaphore(); err != nil {
		return nil, fmt.Errorf("frame %d: semaphore: %w", index, err)
	}
	if f.Descriptors, err = NewDescriptorAllocator(device, InitialDescriptorSets, ratios); err != nil {
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	return f, nil
}

// BeginCommands resets the fence, the command pool and opens the command buffer.
// Call it once the frame is certain to be submitted.
func (f *Frame) BeginCommands() error {
	if err := f.Fence.Reset(); err != nil {
		return err
	}
	if err := f.CmdPool.Reset(); err != nil {
		return err
	}
	return f.Cmd.Begin()
}

func (f *Frame) destroy() {
	f.Deletion.Flush()
	f.Descriptors.Destroy()
	f.ImageAvailable.Destroy()
	f.RenderFinished.Destroy()
	f.Fence.Destroy()
	f.CmdPool.Destroy()
	core.LogDebug("frame slot %d destroyed", f.Index)
}
