package swapchain

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

func fixedSize(w, h uint32) SizeFunc {
	return func() (uint32, uint32) { return w, h }
}

func TestCreateTargets(t *testing.T) {
	dev := gputest.NewDevice()
	sc, err := New(dev, fixedSize(1280, 720), true)
	require.NoError(t, err)
	defer sc.Destroy()

	assert.Equal(t, gpu.Extent2D{Width: 1280, Height: 720}, sc.Extent())
	assert.Equal(t, SwapchainFormat, sc.Format())
	assert.Equal(t, DrawFormat, sc.DrawImage().Format())
	assert.Equal(t, DepthFormat, sc.DepthImage().Format())
	assert.Equal(t, IDFormat, sc.IDBuffer().Format())
	assert.NotZero(t, sc.DrawImage().Usage()&gpu.ImageUsageStorage)
	assert.NotZero(t, sc.IDBuffer().Usage()&gpu.ImageUsageTransferSrc)
	assert.Equal(t, 7, dev.LiveImages())

	for i := 0; i < sc.ImageCount(); i++ {
		assert.Equal(t, gpu.LayoutUndefined, sc.ImageLayout(i))
	}
}

func TestZeroSizeIsBooting(t *testing.T) {
	_, err := New(gputest.NewDevice(), fixedSize(0, 600), false)
	assert.True(t, errors.Is(err, core.ErrSwapchainBooting))
}

func TestResizeRecreatesAtNewSize(t *testing.T) {
	dev := gputest.NewDevice()
	w, h := uint32(800), uint32(600)
	sc, err := New(dev, func() (uint32, uint32) { return w, h }, true)
	require.NoError(t, err)
	old := sc.DrawImage()

	w, h = 1024, 768
	require.NoError(t, sc.Resize())
	assert.Equal(t, gpu.Extent2D{Width: 1024, Height: 768}, sc.Extent())
	assert.Equal(t, uint32(1024), sc.DrawImage().Extent().Width)
	assert.Equal(t, 1, old.(*gputest.Image).DestroyCount)
	assert.Equal(t, 7, dev.LiveImages())
	assert.Contains(t, dev.Log(), "wait idle")
}

func TestOutOfDateRequestsResize(t *testing.T) {
	dev := gputest.NewDevice()
	sc, err := New(dev, fixedSize(640, 480), true)
	require.NoError(t, err)

	fake := dev.Swapchains[0]
	i, err := sc.Acquire(nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, sc.Present(i, nil))
	assert.False(t, sc.ResizeRequested)

	fake.OutOfDate = true
	_, err = sc.Acquire(nil, time.Second)
	assert.True(t, errors.Is(err, core.ErrSwapchainOutOfDate))
	assert.True(t, sc.ResizeRequested)

	require.NoError(t, sc.Resize())
	assert.False(t, sc.ResizeRequested)
}

func TestImageLayoutTracking(t *testing.T) {
	sc, err := New(gputest.NewDevice(), fixedSize(640, 480), true)
	require.NoError(t, err)
	sc.SetImageLayout(1, gpu.LayoutPresent)
	assert.Equal(t, gpu.LayoutPresent, sc.ImageLayout(1))
	assert.Equal(t, gpu.LayoutUndefined, sc.ImageLayout(0))
	assert.Equal(t, gpu.LayoutUndefined, sc.ImageLayout(99))
}
