package frame

import (
	"errors"
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// MaxSetsPerPool caps the size of a single descriptor pool.
const MaxSetsPerPool = 4092

// DescriptorAllocator hands out descriptor sets from a growing list of pools.
// Exhausted pools are parked until Clear resets them all at once.
type DescriptorAllocator struct {
	device      gpu.Device
	ratios      []gpu.PoolRatio
	setsPerPool uint32
	ready       []gpu.DescriptorPool
	full        []gpu.DescriptorPool
}

func NewDescriptorAllocator(device gpu.Device, initialSets uint32, ratios []gpu.PoolRatio) (*DescriptorAllocator, error) {
	a := &DescriptorAllocator{
		device: device,
		ratios: append([]gpu.PoolRatio(nil), ratios...),
	}
	pool, err := device.NewDescriptorPool(initialSets, a.ratios)
	if err != nil {
		return nil, fmt.Errorf("create descriptor pool: %w", err)
	}
	a.ready = append(a.ready, pool)
	a.setsPerPool = grow(initialSets)
	return a, nil
}

func grow(n uint32) uint32 {
	n = n + n/2
	if n > MaxSetsPerPool {
		n = MaxSetsPerPool
	}
	return n
}

func (a *DescriptorAllocator) pool() (gpu.DescriptorPool, error) {
	if n := len(a.ready); n > 0 {
		p := a.ready[n-1]
		a.ready = a.ready[:n-1]
		return p, nil
	}
	p, err := a.device.NewDescriptorPool(a.setsPerPool, a.ratios)
	if err != nil {
		return nil, err
	}
	a.setsPerPool = grow(a.setsPerPool)
	return p, nil
}

// Allocate returns a set for layout, opening a new pool when the current one is exhausted.
func (a *DescriptorAllocator) Allocate(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	p, err := a.pool()
	if err != nil {
		return nil, err
	}
	set, err := p.Alloc(layout)
	if errors.Is(err, core.ErrOutOfPoolMemory) {
		a.full = append(a.full, p)
		if p, err = a.pool(); err != nil {
			return nil, err
		}
		set, err = p.Alloc(layout)
	}
	a.ready = append(a.ready, p)
	if err != nil {
		return nil, fmt.Errorf("allocate descriptor set: %w", err)
	}
	return set, nil
}

// Clear returns every set of every pool.
func (a *DescriptorAllocator) Clear() {
	for _, p := range a.ready {
		if err := p.Reset(); err != nil {
			core.LogWarn("descriptor pool reset failed: %v", err)
		}
	}
	for _, p := range a.full {
		if err := p.Reset(); err != nil {
			core.LogWarn("descriptor pool reset failed: %v", err)
		}
		a.ready = append(a.ready, p)
	}
	a.full = a.full[:0]
}

// Pools reports the number of pools owned by the allocator.
func (a *DescriptorAllocator) Pools() int {
	return len(a.ready) + len(a.full)
}

func (a *DescriptorAllocator) Destroy() {
	for _, p := range a.ready {
		p.Destroy()
	}
	for _, p := range a.full {
		p.Destroy()
	}
	a.ready = nil
	a.full = nil
}
