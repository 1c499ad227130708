package textures

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/resources"
)

// 128x128 RGBA8 without mips.
const texBytes = 128 * 128 * 4

func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func flatKey(data []byte) Key {
	k := BytesKey(data, false)
	k.Mipmapped = false
	return k
}

type fixture struct {
	dev      *gputest.Device
	res      *resources.Manager
	cache    *Cache
	set      gpu.DescriptorSet
	fallback gpu.Image
}

func newFixture(t *testing.T, settings core.TextureSettings) *fixture {
	t.Helper()
	dev := gputest.NewDevice()
	res, err := resources.NewManager(dev, resources.UploadImmediate)
	require.NoError(t, err)
	t.Cleanup(res.Shutdown)

	if settings.DecodeWorkers == 0 {
		settings.DecodeWorkers = 2
	}
	c, err := New(settings)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	layout, err := dev.NewDescriptorSetLayout([]gpu.DescriptorBinding{{Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 16, Stages: gpu.ShaderStageFragment}})
	require.NoError(t, err)
	alloc, err := frame.NewDescriptorAllocator(dev, 4, nil)
	require.NoError(t, err)
	set, err := alloc.Allocate(layout)
	require.NoError(t, err)

	fallback, err := dev.NewImage(gpu.ImageDesc{Format: gpu.FormatR8G8B8A8Unorm, Extent: gpu.Extent3D{Width: 1, Height: 1, Depth: 1}, Usage: gpu.ImageUsageSampled})
	require.NoError(t, err)

	return &fixture{dev: dev, res: res, cache: c, set: set, fallback: fallback}
}

// settle pumps until no decode is outstanding.
func (f *fixture) settle(t *testing.T, fr *frame.Frame) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		f.cache.PumpLoads(f.res, fr)
		_, stats := f.cache.DebugSnapshot()
		if stats.Loading == 0 {
			return
		}
		if time.Now().After(deadline) {
			require.FailNow(t, "texture decodes did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}

func imageID(img gpu.Image) int {
	if img == nil {
		return 0
	}
	return img.(*gputest.Image).ID
}

func (f *fixture) slot(binding uint32) int {
	return imageID(f.set.(*gputest.DescriptorSet).Image(binding))
}

func TestKeyDigest(t *testing.T) {
	assert.Equal(t, uint64(0xaf63dc4c8601ec8c), fnv1a64([]byte("a")))

	srgb := PathKey("albedo.png", true)
	assert.Equal(t, fnv1a64([]byte("PATH:albedo.png#sRGB")), srgb.Digest())
	assert.NotEqual(t, srgb.Digest(), PathKey("albedo.png", false).Digest())

	blob := []byte{1, 2, 3}
	assert.Equal(t, fnv1a64(blob), BytesKey(blob, false).Digest())
	assert.Equal(t, fnv1a64(blob)^srgbSalt, BytesKey(blob, true).Digest())
	assert.Zero(t, BytesKey(nil, true).Digest())

	fixed := PathKey("x.png", false)
	fixed.Hash = 42
	assert.EqualValues(t, 42, fixed.Digest())
}

func TestRequestDeduplicates(t *testing.T) {
	f := newFixture(t, core.TextureSettings{})
	sampler, err := f.dev.NewSampler(gpu.SamplerDesc{})
	require.NoError(t, err)

	h := f.cache.Request(PathKey("a.png", true), nil)
	assert.Equal(t, h, f.cache.Request(PathKey("a.png", true), sampler))
	assert.NotEqual(t, h, f.cache.Request(PathKey("a.png", false), nil))
	assert.Equal(t, StateUnloaded, f.cache.State(h))
	assert.Equal(t, sampler, f.cache.entries[h].sampler)

	assert.Equal(t, InvalidHandle, f.cache.Request(BytesKey(nil, false), nil))
	assert.Equal(t, StateUnloaded, f.cache.State(InvalidHandle))
	assert.Nil(t, f.cache.ImageView(h))
}

func TestStreamingUnderPressure(t *testing.T) {
	const budget = 5 * texBytes
	f := newFixture(t, core.TextureSettings{
		MaxLoadsPerPump:      10,
		GPUBudget:            budget,
		ReloadCooldownFrames: 2,
	})

	handles := make([]Handle, 10)
	for i := range handles {
		handles[i] = f.cache.Request(flatKey(pngBytes(t, 128, 128, uint8(i*20))), nil)
		f.cache.WatchBinding(handles[i], f.set, uint32(i), nil, f.fallback.View())
		assert.Equal(t, imageID(f.fallback), f.slot(uint32(i)))
	}

	fr := &frame.Frame{Number: 1}
	f.cache.MarkSetUsed(f.set, 1)
	f.settle(t, fr)

	assert.LessOrEqual(t, f.cache.ResidentBytes(), uint64(budget))
	resident := 0
	var total uint64
	for i, h := range handles {
		switch f.cache.State(h) {
		case StateResident:
			resident++
			total += texBytes
			assert.Equal(t, imageID(f.cache.ImageView(h).Image()), f.slot(uint32(i)))
		case StateEvicted, StateUnloaded:
			assert.Equal(t, imageID(f.fallback), f.slot(uint32(i)))
		default:
			t.Fatalf("handle %d left in state %s", h, f.cache.State(h))
		}
	}
	assert.Equal(t, 5, resident)
	assert.Equal(t, total, f.cache.ResidentBytes())

	next := &frame.Frame{Number: 2}
	f.cache.PumpLoads(f.res, next)
	f.cache.EvictToBudget(2 * texBytes)
	assert.LessOrEqual(t, f.cache.ResidentBytes(), uint64(2*texBytes))

	destroyed := func() int {
		n := 0
		for _, img := range f.dev.Images {
			n += img.DestroyCount
		}
		return n
	}
	assert.Zero(t, destroyed())
	next.Deletion.Flush()
	assert.Equal(t, 3, destroyed())

	for i, h := range handles {
		if f.cache.State(h) != StateResident {
			assert.Equal(t, imageID(f.fallback), f.slot(uint32(i)))
		}
	}
}

func TestFailedDecodeIsNotRetried(t *testing.T) {
	f := newFixture(t, core.TextureSettings{})
	h := f.cache.Request(BytesKey([]byte("definitely not an image"), true), nil)
	f.cache.WatchBinding(h, f.set, 3, nil, f.fallback.View())

	f.settle(t, &frame.Frame{Number: 1})
	assert.Equal(t, StateEvicted, f.cache.State(h))
	assert.True(t, f.cache.Failed(h))
	assert.Equal(t, imageID(f.fallback), f.slot(3))

	for n := uint64(2); n < 8; n++ {
		f.cache.MarkUsed(h, n)
		f.cache.PumpLoads(f.res, &frame.Frame{Number: n})
		assert.Equal(t, StateEvicted, f.cache.State(h))
	}
}

func TestDecodeDownscalesAndPacksChannels(t *testing.T) {
	f := newFixture(t, core.TextureSettings{MaxUploadDimension: 32})
	key := BytesKey(pngBytes(t, 128, 64, 7), false)
	key.Channels = ChannelsRG
	key.MipClampLevels = 3
	h := f.cache.Request(key, nil)

	f.settle(t, &frame.Frame{Number: 1})
	require.Equal(t, StateResident, f.cache.State(h))

	img := f.cache.ImageView(h).Image()
	assert.Equal(t, gpu.Extent3D{Width: 32, Height: 16, Depth: 1}, img.Extent())
	assert.Equal(t, gpu.FormatR8G8Unorm, img.Format())
	assert.EqualValues(t, 3, img.Levels())
	assert.Equal(t, residentBytes(32, 16, gpu.FormatR8G8Unorm, 3), f.cache.ResidentBytes())
	assert.Greater(t, f.cache.ResidentBytes(), uint64(32*16*2))
}

func TestUnloadDiscardsAndReloads(t *testing.T) {
	f := newFixture(t, core.TextureSettings{ReloadCooldownFrames: 2, KeepSourceBytes: true, CPUSourceBudget: 1 << 20})
	h := f.cache.Request(flatKey(pngBytes(t, 128, 128, 1)), nil)
	f.cache.WatchBinding(h, f.set, 0, nil, f.fallback.View())

	first := &frame.Frame{Number: 1}
	f.cache.PumpLoads(f.res, first)
	require.True(t, f.cache.Unload(h, false))
	assert.Equal(t, StateEvicted, f.cache.State(h))
	assert.Zero(t, f.cache.ResidentBytes())
	assert.Equal(t, imageID(f.fallback), f.slot(0))

	// The cooldown keeps it evicted, and the stale decode is dropped.
	f.settle(t, first)
	time.Sleep(20 * time.Millisecond)
	f.cache.PumpLoads(f.res, first)
	assert.Equal(t, StateEvicted, f.cache.State(h))
	assert.Zero(t, f.cache.ResidentBytes())

	f.cache.MarkUsed(h, 3)
	f.settle(t, &frame.Frame{Number: 3})
	require.Equal(t, StateResident, f.cache.State(h))
	assert.EqualValues(t, texBytes, f.cache.ResidentBytes())
	assert.Equal(t, imageID(f.cache.ImageView(h).Image()), f.slot(0))

	assert.False(t, f.cache.Unload(InvalidHandle, true))
}

func TestPinnedTexturesSurviveEviction(t *testing.T) {
	f := newFixture(t, core.TextureSettings{MaxLoadsPerPump: 4})
	a := f.cache.Request(flatKey(pngBytes(t, 128, 128, 10)), nil)
	b := f.cache.Request(flatKey(pngBytes(t, 128, 128, 20)), nil)
	f.settle(t, &frame.Frame{Number: 1})
	require.Equal(t, StateResident, f.cache.State(a))
	require.Equal(t, StateResident, f.cache.State(b))

	f.cache.Pin(a)
	assert.True(t, f.cache.IsPinned(a))
	f.cache.EvictToBudget(0)
	assert.Equal(t, StateResident, f.cache.State(a))
	assert.Equal(t, StateEvicted, f.cache.State(b))
	assert.EqualValues(t, texBytes, f.cache.ResidentBytes())

	f.cache.Unpin(a)
	f.cache.EvictToBudget(0)
	assert.Equal(t, StateEvicted, f.cache.State(a))
	assert.Zero(t, f.cache.ResidentBytes())
}

func TestSourceBytesFollowPolicy(t *testing.T) {
	blobs := [][]byte{pngBytes(t, 128, 128, 1), pngBytes(t, 128, 128, 2), pngBytes(t, 128, 128, 3)}

	dropping := newFixture(t, core.TextureSettings{MaxLoadsPerPump: 4})
	for _, b := range blobs {
		dropping.cache.Request(flatKey(b), nil)
	}
	assert.EqualValues(t, len(blobs[0])+len(blobs[1])+len(blobs[2]), dropping.cache.CPUSourceBytes())
	dropping.settle(t, &frame.Frame{Number: 1})
	assert.Zero(t, dropping.cache.CPUSourceBytes())

	budget := uint64(len(blobs[0]))
	keeping := newFixture(t, core.TextureSettings{MaxLoadsPerPump: 4, KeepSourceBytes: true, CPUSourceBudget: budget})
	for _, b := range blobs {
		keeping.cache.Request(flatKey(b), nil)
	}
	keeping.settle(t, &frame.Frame{Number: 1})
	assert.LessOrEqual(t, keeping.cache.CPUSourceBytes(), budget)
}

func TestUnwatchSetStopsPatching(t *testing.T) {
	f := newFixture(t, core.TextureSettings{})
	h := f.cache.Request(flatKey(pngBytes(t, 128, 128, 5)), nil)
	f.cache.WatchBinding(h, f.set, 0, nil, f.fallback.View())
	f.settle(t, &frame.Frame{Number: 1})
	require.Equal(t, StateResident, f.cache.State(h))
	view := imageID(f.cache.ImageView(h).Image())
	assert.Equal(t, view, f.slot(0))

	f.cache.UnwatchSet(f.set)
	f.cache.MarkSetUsed(f.set, 9)
	assert.Zero(t, f.cache.entries[h].lastUsed)

	f.cache.EvictToBudget(0)
	assert.Equal(t, StateEvicted, f.cache.State(h))
	assert.Equal(t, view, f.slot(0))
}

func TestPerPumpByteBudget(t *testing.T) {
	f := newFixture(t, core.TextureSettings{MaxLoadsPerPump: 4, MaxBytesPerPump: texBytes})
	handles := []Handle{
		f.cache.Request(flatKey(pngBytes(t, 128, 128, 1)), nil),
		f.cache.Request(flatKey(pngBytes(t, 128, 128, 2)), nil),
		f.cache.Request(flatKey(pngBytes(t, 128, 128, 3)), nil),
	}
	countResident := func() int {
		n := 0
		for _, h := range handles {
			if f.cache.State(h) == StateResident {
				n++
			}
		}
		return n
	}

	fr := &frame.Frame{Number: 1}
	deadline := time.Now().Add(5 * time.Second)
	prev := 0
	for countResident() < len(handles) {
		require.True(t, time.Now().Before(deadline), "textures never became resident")
		f.cache.PumpLoads(f.res, fr)
		now := countResident()
		assert.LessOrEqual(t, now, prev+1)
		prev = now
		time.Sleep(time.Millisecond)
	}
}

func TestDebugSnapshot(t *testing.T) {
	f := newFixture(t, core.TextureSettings{})
	big := f.cache.Request(flatKey(pngBytes(t, 128, 128, 1)), nil)
	f.settle(t, &frame.Frame{Number: 1})
	f.cache.Request(PathKey("missing/texture.png", true), nil)

	rows, stats := f.cache.DebugSnapshot()
	require.Len(t, rows, 2)
	assert.Equal(t, big, rows[0].Handle)
	assert.Contains(t, rows[0].Name, "[")
	assert.Equal(t, StateResident, rows[0].State)
	assert.Equal(t, "missing/texture.png", rows[1].Name)
	assert.Equal(t, 1, stats.Resident)
	assert.Equal(t, 1, stats.Unloaded)
	assert.EqualValues(t, texBytes, stats.ResidentBytes)
}
