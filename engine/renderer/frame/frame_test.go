package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
)

func TestRingCyclesSlots(t *testing.T) {
	dev := gputest.NewDevice()
	ring, err := NewRing(dev, 2, nil)
	require.NoError(t, err)
	defer ring.Destroy()

	assert.Equal(t, 2, ring.Len())
	first := ring.Current()
	ring.Advance()
	second := ring.Current()
	ring.Advance()
	assert.NotSame(t, first, second)
	assert.Same(t, first, ring.Current())
	assert.Equal(t, uint64(2), ring.FrameNumber())
}

func TestRingRejectsZeroFrames(t *testing.T) {
	_, err := NewRing(gputest.NewDevice(), 0, nil)
	assert.Error(t, err)
}

func TestSlotReusedOnlyAfterFenceSignaled(t *testing.T) {
	dev := gputest.NewDevice()
	ring, err := NewRing(dev, 1, nil)
	require.NoError(t, err)
	defer ring.Destroy()

	f, err := ring.Wait(time.Second)
	require.NoError(t, err)
	require.NoError(t, f.BeginCommands())

	flushed := 0
	f.Deletion.Push(func() { flushed++ })
	require.NoError(t, f.Cmd.End())
	ring.Advance()

	// Not submitted yet: the fence was reset by BeginCommands and never signaled.
	_, err = ring.Wait(time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTimeout))
	assert.Equal(t, 0, flushed)
	assert.Equal(t, 1, f.Deletion.Len())

	require.NoError(t, dev.Submit(gpu.SubmitInfo{Cmds: []gpu.CmdBuffer{f.Cmd}, Fence: f.Fence}))
	again, err := ring.Wait(time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, f, again)
	assert.Equal(t, 1, flushed)
	assert.Equal(t, uint64(1), again.Number)
}

func TestWaitFlushesDeletionQueueLIFO(t *testing.T) {
	dev := gputest.NewDevice()
	ring, err := NewRing(dev, 2, nil)
	require.NoError(t, err)
	defer ring.Destroy()

	f := ring.Current()
	var order []string
	f.Deletion.Push(func() { order = append(order, "image") })
	f.Deletion.Push(func() { order = append(order, "view") })

	_, err = ring.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "image"}, order)
}

func TestBeginCommandsResetsPoolAndFence(t *testing.T) {
	dev := gputest.NewDevice()
	ring, err := NewRing(dev, 1, nil)
	require.NoError(t, err)
	defer ring.Destroy()

	f, err := ring.Wait(time.Second)
	require.NoError(t, err)
	require.NoError(t, f.BeginCommands())

	assert.False(t, f.Fence.Signaled())
	assert.Equal(t, 1, f.CmdPool.(*gputest.CmdPool).Resets)
	assert.Equal(t, 1, f.Cmd.(*gputest.CmdBuffer).Begun)
}

func TestDescriptorAllocatorGrows(t *testing.T) {
	dev := gputest.NewDevice()
	layout, err := dev.NewDescriptorSetLayout([]gpu.DescriptorBinding{{Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1}})
	require.NoError(t, err)

	a, err := NewDescriptorAllocator(dev, 2, DefaultPoolRatios)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := a.Allocate(layout)
		require.NoError(t, err)
	}
	// 2 + 3 sets fit into the first two pools.
	assert.Equal(t, 2, a.Pools())

	_, err = a.Allocate(layout)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Pools())

	a.Clear()
	for i := 0; i < 2; i++ {
		_, err := a.Allocate(layout)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, a.Pools(), "cleared pools are reused")
	a.Destroy()
	assert.Equal(t, 0, a.Pools())
}

func TestPoolGrowthIsCapped(t *testing.T) {
	n := uint32(1000)
	for i := 0; i < 20; i++ {
		n = grow(n)
	}
	assert.Equal(t, uint32(MaxSetsPerPool), n)
}
