package frame

import (
	"fmt"
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// Ring owns the frames in flight, indexed by frame number modulo their count.
type Ring struct {
	frames []*Frame
	number uint64
}

func NewRing(device gpu.Device, framesInFlight int, ratios []gpu.PoolRatio) (*Ring, error) {
	if framesInFlight < 1 {
		return nil, fmt.Errorf("frames in flight must be positive, got %d", framesInFlight)
	}
	if ratios == nil {
		ratios = DefaultPoolRatios
	}
	r := &Ring{}
	for i := 0; i < framesInFlight; i++ {
		f, err := newFrame(device, i, ratios)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.frames = append(r.frames, f)
	}
	return r, nil
}

func (r *Ring) Len() int {
	return len(r.frames)
}

// FrameNumber counts frames advanced since creation.
func (r *Ring) FrameNumber() uint64 {
	return r.number
}

// Current returns the slot of the current frame number.
func (r *Ring) Current() *Frame {
	return r.frames[r.number%uint64(len(r.frames))]
}

// Wait blocks on the current slot's render fence. Only once it signaled are
// the slot's deferred destructions run and its transient descriptors cleared.
func (r *Ring) Wait(timeout time.Duration) (*Frame, error) {
	f := r.Current()
	if err := f.Fence.Wait(timeout); err != nil {
		return nil, fmt.Errorf("wait render fence of frame %d: %w", r.number, err)
	}
	f.Deletion.Flush()
	f.Descriptors.Clear()
	f.Number = r.number
	return f, nil
}

// Advance moves to the next slot.
func (r *Ring) Advance() {
	r.number++
}

// Destroy releases every slot. The caller waits for the device to go idle first.
func (r *Ring) Destroy() {
	for _, f := range r.frames {
		f.destroy()
	}
	r.frames = nil
	core.LogDebug("frame ring destroyed")
}
