package graph

import (
	"github.com/google/uuid"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type imageRecord struct {
	name          string
	imported      bool
	image         gpu.Image
	view          gpu.ImageView
	format        gpu.Format
	extent        gpu.Extent2D
	creationUsage gpu.ImageUsage

	initialLayout gpu.Layout
	initialStage  gpu.Stage
	initialAccess gpu.Access

	// Set by Compile.
	firstUse    int
	lastUse     int
	finalLayout gpu.Layout
	usageWarned bool
}

type bufferRecord struct {
	name     string
	imported bool
	buffer   gpu.Buffer
	size     uint64
	usage    gpu.BufferUsage

	initialStage  gpu.Stage
	initialAccess gpu.Access

	firstUse    int
	lastUse     int
	usageWarned bool
}

// registry holds the per-frame resources. Imports are deduplicated by the
// underlying object.
type registry struct {
	images  []imageRecord
	buffers []bufferRecord

	imageLookup  map[gpu.Image]ImageHandle
	bufferLookup map[gpu.Buffer]BufferHandle
}

func newRegistry() *registry {
	return &registry{
		imageLookup:  make(map[gpu.Image]ImageHandle),
		bufferLookup: make(map[gpu.Buffer]BufferHandle),
	}
}

func (r *registry) reset() {
	r.images = r.images[:0]
	r.buffers = r.buffers[:0]
	r.imageLookup = make(map[gpu.Image]ImageHandle)
	r.bufferLookup = make(map[gpu.Buffer]BufferHandle)
}

func transientName(name string) string {
	if name != "" {
		return name
	}
	return "rg.transient." + uuid.NewString()
}

func (r *registry) importImage(d ImportedImage) ImageHandle {
	view := d.View
	if view == nil && d.Image != nil {
		view = d.Image.View()
	}
	if d.Image != nil {
		if h, ok := r.imageLookup[d.Image]; ok {
			rec := &r.images[h]
			rec.name = d.Name
			rec.view = view
			rec.format = d.Format
			rec.extent = d.Extent
			rec.initialLayout = d.Layout
			if rec.initialStage == gpu.StageNone {
				rec.initialStage = d.Stage
			}
			if rec.initialAccess == gpu.AccessNone {
				rec.initialAccess = d.Access
			}
			return h
		}
	}
	r.images = append(r.images, imageRecord{
		name:          d.Name,
		imported:      true,
		image:         d.Image,
		view:          view,
		format:        d.Format,
		extent:        d.Extent,
		initialLayout: d.Layout,
		initialStage:  d.Stage,
		initialAccess: d.Access,
		firstUse:      -1,
		lastUse:       -1,
	})
	h := ImageHandle(len(r.images) - 1)
	if d.Image != nil {
		r.imageLookup[d.Image] = h
	}
	return h
}

// createImage allocates a transient. It is released through the deletion
// queue of the frame it was declared in.
func (r *registry) createImage(dev gpu.Device, fr *frame.Frame, d ImageDesc) ImageHandle {
	img, err := dev.NewImage(gpu.ImageDesc{
		Format: d.Format,
		Extent: d.Extent.Extent3D(),
		Usage:  d.Usage,
		Levels: 1,
		Memory: gpu.MemoryGPUOnly,
	})
	if err != nil {
		core.LogError("[RG] failed to create transient image '%s': %v", d.Name, err)
		return InvalidImage
	}
	if fr != nil {
		fr.Deletion.Push(img.Destroy)
	}
	r.images = append(r.images, imageRecord{
		name:          transientName(d.Name),
		image:         img,
		view:          img.View(),
		format:        d.Format,
		extent:        d.Extent,
		creationUsage: d.Usage,
		initialLayout: gpu.LayoutUndefined,
		initialStage:  gpu.StageTopOfPipe,
		firstUse:      -1,
		lastUse:       -1,
	})
	return ImageHandle(len(r.images) - 1)
}

func (r *registry) importBuffer(d ImportedBuffer) BufferHandle {
	if d.Buffer != nil {
		if h, ok := r.bufferLookup[d.Buffer]; ok {
			rec := &r.buffers[h]
			rec.name = d.Name
			rec.size = d.Size
			if rec.initialStage == gpu.StageNone {
				rec.initialStage = d.Stage
			}
			if rec.initialAccess == gpu.AccessNone {
				rec.initialAccess = d.Access
			}
			return h
		}
	}
	r.buffers = append(r.buffers, bufferRecord{
		name:          d.Name,
		imported:      true,
		buffer:        d.Buffer,
		size:          d.Size,
		initialStage:  d.Stage,
		initialAccess: d.Access,
		firstUse:      -1,
		lastUse:       -1,
	})
	h := BufferHandle(len(r.buffers) - 1)
	if d.Buffer != nil {
		r.bufferLookup[d.Buffer] = h
	}
	return h
}

func (r *registry) createBuffer(dev gpu.Device, fr *frame.Frame, d BufferDesc) BufferHandle {
	buf, err := dev.NewBuffer(d.Size, d.Usage, d.Memory)
	if err != nil {
		core.LogError("[RG] failed to create transient buffer '%s': %v", d.Name, err)
		return InvalidBuffer
	}
	if fr != nil {
		fr.Deletion.Push(buf.Destroy)
	}
	r.buffers = append(r.buffers, bufferRecord{
		name:         transientName(d.Name),
		buffer:       buf,
		size:         d.Size,
		usage:        d.Usage,
		initialStage: gpu.StageTopOfPipe,
		firstUse:     -1,
		lastUse:      -1,
	})
	h := BufferHandle(len(r.buffers) - 1)
	r.bufferLookup[buf] = h
	return h
}

func (r *registry) image(h ImageHandle) *imageRecord {
	if !h.Valid() || int(h) >= len(r.images) {
		return nil
	}
	return &r.images[h]
}

func (r *registry) buffer(h BufferHandle) *bufferRecord {
	if !h.Valid() || int(h) >= len(r.buffers) {
		return nil
	}
	return &r.buffers[h]
}

func (r *registry) findBuffer(buf gpu.Buffer) (BufferHandle, bool) {
	h, ok := r.bufferLookup[buf]
	return h, ok
}
