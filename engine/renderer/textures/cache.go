// Package textures streams sampled textures in and out of VRAM. Consumers
// request a key, register the descriptor slots that sample it and let the
// cache rewrite those slots whenever the texture becomes resident or is
// evicted back to a fallback.
package textures

import (
	"fmt"
	"sync"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/systems"
)

type Handle uint32

const InvalidHandle Handle = 0xFFFFFFFF

type State uint8

const (
	StateUnloaded State = iota
	StateLoading
	StateResident
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateResident:
		return "resident"
	case StateEvicted:
		return "evicted"
	default:
		return "unloaded"
	}
}

// decodeQueueSize bounds the decode jobs waiting for a worker.
const decodeQueueSize = 64

// Uploader creates sampled images from decoded pixels. *resources.Manager
// satisfies it.
type Uploader interface {
	CreateImageDataLevels(data []byte, extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool, levels uint32) (gpu.Image, error)
}

type patch struct {
	set      gpu.DescriptorSet
	binding  uint32
	sampler  gpu.Sampler
	fallback gpu.ImageView
}

type entry struct {
	// key keeps the flags only; the source lives in path or bytes.
	key        Key
	sampler    gpu.Sampler
	state      State
	generation uint32
	pinned     bool
	failed     bool

	image     gpu.Image
	sizeBytes uint64

	lastUsed    uint64
	lastEvicted uint64
	nextAttempt uint64

	patches []patch

	path  string
	bytes []byte
}

func (e *entry) name() string {
	if e.key.Kind == SourceFilePath {
		return e.path
	}
	return fmt.Sprintf("<bytes> (%d)", len(e.bytes))
}

// Cache is main-thread only apart from the ready queue fed by the decode
// workers.
type Cache struct {
	settings core.TextureSettings
	jobs     *systems.JobSystem

	entries      []*entry
	lookup       map[uint64]Handle
	setToHandles map[gpu.DescriptorSet][]Handle

	residentBytes  uint64
	cpuSourceBytes uint64

	// Frame of the latest pump: its number is "now" and its deletion queue
	// receives evicted images.
	frame *frame.Frame

	readyMu sync.Mutex
	ready   []*decoded
}

func New(settings core.TextureSettings) (*Cache, error) {
	workers := settings.DecodeWorkers
	if workers < 1 {
		workers = 1
	}
	if settings.MaxLoadsPerPump < 1 {
		settings.MaxLoadsPerPump = 1
	}
	jobs, err := systems.NewJobSystem(workers, decodeQueueSize)
	if err != nil {
		return nil, err
	}
	core.LogDebug("texture cache ready with %d decode workers", workers)
	return &Cache{
		settings:     settings,
		jobs:         jobs,
		lookup:       make(map[uint64]Handle),
		setToHandles: make(map[gpu.DescriptorSet][]Handle),
	}, nil
}

// Shutdown stops the decode workers and destroys every resident image. The
// caller waits for the device to go idle first.
func (c *Cache) Shutdown() {
	if err := c.jobs.Shutdown(); err != nil {
		core.LogError("failed to stop texture decode workers: %v", err)
	}
	c.readyMu.Lock()
	c.ready = nil
	c.readyMu.Unlock()

	for h, e := range c.entries {
		if e.state == StateResident && e.image != nil {
			core.LogDebug("texture cache shutdown destroys handle=%d %s bytes=%d", h, e.name(), e.sizeBytes)
			e.image.Destroy()
			e.image = nil
		}
		e.state = StateEvicted
	}
	c.residentBytes = 0
	c.lookup = make(map[uint64]Handle)
	c.setToHandles = make(map[gpu.DescriptorSet][]Handle)
}

func (c *Cache) now() uint64 {
	if c.frame == nil {
		return 0
	}
	return c.frame.Number
}

// retire releases img once the frame that may still sample it has retired.
func (c *Cache) retire(img gpu.Image) {
	if img == nil {
		return
	}
	if c.frame != nil {
		c.frame.Deletion.Push(img.Destroy)
		return
	}
	img.Destroy()
}

func (c *Cache) get(h Handle) *entry {
	if h == InvalidHandle || int(h) >= len(c.entries) {
		return nil
	}
	return c.entries[h]
}

// Request returns the handle of key, creating an Unloaded entry the next
// pump starts loading. Handles stay valid for the cache's lifetime.
func (c *Cache) Request(key Key, sampler gpu.Sampler) Handle {
	hash := key.Digest()
	if hash == 0 {
		core.LogWarn("texture request without a source ignored")
		return InvalidHandle
	}
	key.Hash = hash

	if h, ok := c.lookup[hash]; ok {
		e := c.entries[h]
		if sampler != nil {
			e.sampler = sampler
		}
		// Byte sources dropped after upload may be handed back for a reload.
		if key.Kind == SourceBytes && len(key.Bytes) > 0 && len(e.bytes) == 0 && e.state != StateResident {
			e.bytes = key.Bytes
			c.cpuSourceBytes += uint64(len(e.bytes))
		}
		return h
	}

	h := Handle(len(c.entries))
	e := &entry{
		key:        key,
		sampler:    sampler,
		state:      StateUnloaded,
		generation: 1,
		lastUsed:   c.now(),
	}
	e.key.Path = ""
	e.key.Bytes = nil
	if key.Kind == SourceFilePath {
		e.path = key.Path
	} else {
		e.bytes = key.Bytes
		c.cpuSourceBytes += uint64(len(e.bytes))
	}
	c.entries = append(c.entries, e)
	c.lookup[hash] = h
	core.LogDebug("texture request handle=%d %s srgb=%t mipmapped=%t hash=0x%016x", h, key.name(), key.SRGB, key.Mipmapped, hash)
	return h
}

func writeSlot(p patch, view gpu.ImageView, sampler gpu.Sampler) {
	if p.set == nil || view == nil {
		return
	}
	if p.sampler != nil {
		sampler = p.sampler
	}
	p.set.WriteImage(p.binding, gpu.DescriptorCombinedImageSampler, view, sampler, gpu.LayoutShaderReadOnly)
}

func (c *Cache) patchResident(e *entry) {
	if e.state != StateResident || e.image == nil {
		return
	}
	for _, p := range e.patches {
		writeSlot(p, e.image.View(), e.sampler)
	}
}

func (c *Cache) patchFallback(e *entry) {
	for _, p := range e.patches {
		writeSlot(p, p.fallback, e.sampler)
	}
}

// WatchBinding registers a descriptor slot that samples h. The slot is
// written right away: the texture when resident, otherwise the fallback.
func (c *Cache) WatchBinding(h Handle, set gpu.DescriptorSet, binding uint32, sampler gpu.Sampler, fallback gpu.ImageView) {
	e := c.get(h)
	if e == nil || set == nil {
		return
	}
	p := patch{set: set, binding: binding, sampler: sampler, fallback: fallback}
	e.patches = append(e.patches, p)
	c.setToHandles[set] = append(c.setToHandles[set], h)

	if e.state == StateResident && e.image != nil {
		writeSlot(p, e.image.View(), e.sampler)
	} else {
		writeSlot(p, fallback, e.sampler)
	}
}

// UnwatchSet forgets every slot of set. Call it before the set's pool is
// destroyed.
func (c *Cache) UnwatchSet(set gpu.DescriptorSet) {
	handles, ok := c.setToHandles[set]
	if !ok {
		return
	}
	for _, h := range handles {
		e := c.get(h)
		if e == nil {
			continue
		}
		kept := e.patches[:0]
		for _, p := range e.patches {
			if p.set != set {
				kept = append(kept, p)
			}
		}
		e.patches = kept
	}
	delete(c.setToHandles, set)
}

func (c *Cache) MarkUsed(h Handle, frameIndex uint64) {
	if e := c.get(h); e != nil {
		e.lastUsed = frameIndex
	}
}

// MarkSetUsed bumps every texture patched into set.
func (c *Cache) MarkSetUsed(set gpu.DescriptorSet, frameIndex uint64) {
	for _, h := range c.setToHandles[set] {
		if e := c.get(h); e != nil {
			e.lastUsed = frameIndex
		}
	}
}

// Pin keeps h resident through every eviction.
func (c *Cache) Pin(h Handle) {
	if e := c.get(h); e != nil {
		e.pinned = true
	}
}

func (c *Cache) Unpin(h Handle) {
	if e := c.get(h); e != nil {
		e.pinned = false
	}
}

func (c *Cache) IsPinned(h Handle) bool {
	e := c.get(h)
	return e != nil && e.pinned
}

func (c *Cache) State(h Handle) State {
	if e := c.get(h); e != nil {
		return e.state
	}
	return StateUnloaded
}

// Failed reports whether h failed to decode. Failed entries are not retried.
func (c *Cache) Failed(h Handle) bool {
	e := c.get(h)
	return e != nil && e.failed
}

// ImageView returns the view of a resident texture, nil otherwise.
func (c *Cache) ImageView(h Handle) gpu.ImageView {
	e := c.get(h)
	if e == nil || e.state != StateResident || e.image == nil {
		return nil
	}
	return e.image.View()
}

func (c *Cache) ResidentBytes() uint64 { return c.residentBytes }

// CPUSourceBytes counts the encoded blobs retained for a later reload.
func (c *Cache) CPUSourceBytes() uint64 { return c.cpuSourceBytes }

func (c *Cache) Settings() core.TextureSettings { return c.settings }

// SetGPUBudget caps resident bytes when admitting uploads; zero is unlimited.
// The engine refreshes it every frame.
func (c *Cache) SetGPUBudget(bytes uint64) { c.settings.GPUBudget = bytes }

func (c *Cache) SetMaxLoadsPerPump(n int) {
	if n < 1 {
		n = 1
	}
	c.settings.MaxLoadsPerPump = n
}

func (c *Cache) SetMaxBytesPerPump(bytes uint64) { c.settings.MaxBytesPerPump = bytes }

func (c *Cache) SetMaxUploadDimension(dim uint32) { c.settings.MaxUploadDimension = dim }

func (c *Cache) SetKeepSourceBytes(keep bool) { c.settings.KeepSourceBytes = keep }

func (c *Cache) SetCPUSourceBudget(bytes uint64) { c.settings.CPUSourceBudget = bytes }

func (c *Cache) dropSourceBytes(e *entry) {
	if e.key.Kind != SourceBytes || len(e.bytes) == 0 {
		return
	}
	n := uint64(len(e.bytes))
	if c.cpuSourceBytes >= n {
		c.cpuSourceBytes -= n
	} else {
		c.cpuSourceBytes = 0
	}
	e.bytes = nil
}

// Unload frees h right away: watched slots fall back, the image is retired
// and in-flight decodes are discarded. The handle may be loaded again later.
func (c *Cache) Unload(h Handle, dropSource bool) bool {
	e := c.get(h)
	if e == nil {
		return false
	}
	e.generation++
	c.dropReady(h)

	if e.state == StateResident && e.image != nil {
		core.LogDebug("texture unload handle=%d %s bytes=%d", h, e.name(), e.sizeBytes)
		c.release(e)
	}
	e.failed = false
	c.markEvicted(e, c.now())
	if dropSource {
		c.dropSourceBytes(e)
	}
	return true
}

func (c *Cache) dropReady(h Handle) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	kept := c.ready[:0]
	for _, r := range c.ready {
		if r.handle != h {
			kept = append(kept, r)
		}
	}
	c.ready = kept
}

// release retires the image of a resident entry and falls its slots back.
func (c *Cache) release(e *entry) {
	c.patchFallback(e)
	c.retire(e.image)
	e.image = nil
	if c.residentBytes >= e.sizeBytes {
		c.residentBytes -= e.sizeBytes
	} else {
		c.residentBytes = 0
	}
}

// markEvicted moves e to Evicted and delays its next load attempt.
func (c *Cache) markEvicted(e *entry, now uint64) {
	e.state = StateEvicted
	e.lastEvicted = now
	e.nextAttempt = max(e.nextAttempt, now+uint64(c.settings.ReloadCooldownFrames))
	c.patchFallback(e)
}
