package textures

import (
	"golang.org/x/exp/slices"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/systems"
)

// PumpLoads uploads decoded textures within the per-pump byte budget, then
// starts up to MaxLoadsPerPump decodes for entries used in the current or
// previous frame. Evicted entries wait out the reload cooldown first.
func (c *Cache) PumpLoads(res Uploader, fr *frame.Frame) {
	if fr != nil {
		c.frame = fr
	}
	now := c.now()
	budget := c.settings.MaxBytesPerPump

	admitted := c.drainReady(res, budget, 0)
	if budget > 0 && admitted >= budget {
		c.evictCPUToBudget()
		return
	}

	started := 0
	for h, e := range c.entries {
		if e.state != StateUnloaded && e.state != StateEvicted {
			continue
		}
		if e.failed || now < e.nextAttempt {
			continue
		}
		if now != 0 && e.lastUsed+1 < now {
			continue
		}
		if !c.enqueue(Handle(h), e) {
			continue
		}
		started++
		if started >= c.settings.MaxLoadsPerPump {
			break
		}
	}

	c.drainReady(res, budget, admitted)
	c.evictCPUToBudget()
}

// enqueue hands e to a decode worker. A byte source that was dropped stays
// Evicted until Request supplies it again.
func (c *Cache) enqueue(h Handle, e *entry) bool {
	if e.key.Kind == SourceBytes && len(e.bytes) == 0 {
		return false
	}
	req := decodeRequest{
		handle:     h,
		generation: e.generation,
		kind:       e.key.Kind,
		path:       e.path,
		data:       e.bytes,
		channels:   e.key.Channels,
		maxDim:     c.settings.MaxUploadDimension,
	}
	prev := e.state
	e.state = StateLoading
	err := c.jobs.Submit(systems.JobTask{
		Name: "texture decode " + e.name(),
		Run: func() (interface{}, error) {
			return decodeImage(req)
		},
		OnComplete: func(result interface{}) {
			c.pushReady(result.(*decoded))
		},
		OnFailure: func(err error) {
			c.pushReady(&decoded{handle: req.handle, generation: req.generation, err: err})
		},
	})
	if err != nil {
		core.LogWarn("cannot queue decode of texture %d: %v", h, err)
		e.state = prev
		return false
	}
	return true
}

func (c *Cache) pushReady(d *decoded) {
	c.readyMu.Lock()
	c.ready = append(c.ready, d)
	c.readyMu.Unlock()
}

// drainReady creates images for finished decodes until admitted reaches
// budget; results that do not fit go back to the queue. The first upload of
// a pump is always admitted. Returns the running admitted total.
func (c *Cache) drainReady(res Uploader, budget, admitted uint64) uint64 {
	c.readyMu.Lock()
	local := c.ready
	c.ready = nil
	c.readyMu.Unlock()
	if len(local) == 0 {
		return admitted
	}

	now := c.now()
	var requeue []*decoded
	for _, r := range local {
		e := c.get(r.handle)
		if e == nil || r.generation != e.generation || e.state != StateLoading {
			continue
		}
		if r.err != nil || r.width == 0 || r.height == 0 {
			core.LogWarn("texture %d (%s) failed to load, keeping its fallback: %v", r.handle, e.name(), r.err)
			e.failed = true
			c.markEvicted(e, now)
			continue
		}

		fmtUpload := format(e.key.Channels, e.key.SRGB)
		levels := uint32(1)
		if e.key.Mipmapped {
			levels = gpu.MipLevels(r.width, r.height)
			if e.key.MipClampLevels > 0 && e.key.MipClampLevels < levels {
				levels = e.key.MipClampLevels
			}
		}
		size := residentBytes(r.width, r.height, fmtUpload, levels)

		if budget > 0 && admitted > 0 && admitted+size > budget {
			requeue = append(requeue, r)
			continue
		}
		if limit := c.settings.GPUBudget; limit > 0 && c.residentBytes+size > limit {
			c.makeSpace(c.residentBytes+size-limit, now)
			if c.residentBytes+size > limit {
				core.LogDebug("texture %d does not fit the GPU budget, backing off", r.handle)
				c.markEvicted(e, now)
				continue
			}
		}

		extent := gpu.Extent3D{Width: r.width, Height: r.height, Depth: 1}
		img, err := res.CreateImageDataLevels(r.pixels, extent, fmtUpload, gpu.ImageUsageSampled, e.key.Mipmapped, levels)
		if err != nil {
			core.LogError("failed to upload texture %d: %v", r.handle, err)
			e.failed = true
			c.markEvicted(e, now)
			continue
		}
		core.LogDebug("texture upload handle=%d fmt=%s levels=%d size=%dx%d", r.handle, fmtUpload, levels, r.width, r.height)

		e.image = img
		e.sizeBytes = size
		e.state = StateResident
		e.nextAttempt = 0
		c.residentBytes += size
		if !c.settings.KeepSourceBytes {
			c.dropSourceBytes(e)
		}
		c.patchResident(e)
		admitted += size
	}

	if len(requeue) > 0 {
		c.readyMu.Lock()
		c.ready = append(requeue, c.ready...)
		c.readyMu.Unlock()
	}
	return admitted
}

// lru lists resident, unpinned entries, least recently used first.
func (c *Cache) lru(skip func(*entry) bool) []Handle {
	var order []Handle
	for h, e := range c.entries {
		if e.state != StateResident || e.pinned || (skip != nil && skip(e)) {
			continue
		}
		order = append(order, Handle(h))
	}
	slices.SortStableFunc(order, func(a, b Handle) int {
		la, lb := c.entries[a].lastUsed, c.entries[b].lastUsed
		switch {
		case la < lb:
			return -1
		case la > lb:
			return 1
		}
		return 0
	})
	return order
}

func (c *Cache) evict(h Handle, now uint64, reason string) {
	e := c.entries[h]
	core.LogDebug("texture %s evicts handle=%d %s bytes=%d resident=%d", reason, h, e.name(), e.sizeBytes, c.residentBytes)
	c.release(e)
	c.markEvicted(e, now)
}

// EvictToBudget evicts least recently used textures until resident bytes
// fit budget. Textures used this frame go last; pinned ones never do.
func (c *Cache) EvictToBudget(budget uint64) {
	if c.residentBytes <= budget {
		return
	}
	now := c.now()
	usedNow := func(e *entry) bool { return e.lastUsed == now }
	for _, skip := range []func(*entry) bool{usedNow, nil} {
		for _, h := range c.lru(skip) {
			if c.residentBytes <= budget {
				return
			}
			c.evict(h, now, "budget")
		}
	}
	if c.residentBytes > budget {
		core.LogWarn("pinned textures hold %d bytes, over the %d byte budget", c.residentBytes, budget)
	}
}

// makeSpace evicts textures not used this frame until need bytes are freed.
func (c *Cache) makeSpace(need uint64, now uint64) bool {
	var freed uint64
	for _, h := range c.lru(func(e *entry) bool { return e.lastUsed == now }) {
		if freed >= need {
			break
		}
		freed += c.entries[h].sizeBytes
		c.evict(h, now, "upload")
	}
	return freed >= need
}

// evictCPUToBudget drops retained byte sources of resident textures, least
// recently used first.
func (c *Cache) evictCPUToBudget() {
	if c.cpuSourceBytes <= c.settings.CPUSourceBudget {
		return
	}
	for _, h := range c.lru(func(e *entry) bool { return len(e.bytes) == 0 }) {
		if c.cpuSourceBytes <= c.settings.CPUSourceBudget {
			return
		}
		c.dropSourceBytes(c.entries[h])
	}
}
