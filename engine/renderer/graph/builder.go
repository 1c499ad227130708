package graph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

const externalBufferName = "external.buffer"

// Builder collects the declarations of one pass during AddPass.
type Builder struct {
	reg  *registry
	pass *pass
}

func (b *Builder) Read(h ImageHandle, usage ImageUsage) {
	b.pass.imageReads = append(b.pass.imageReads, imageAccess{h, usage})
}

func (b *Builder) Write(h ImageHandle, usage ImageUsage) {
	b.pass.imageWrites = append(b.pass.imageWrites, imageAccess{h, usage})
}

func (b *Builder) ReadBuffer(h BufferHandle, usage BufferUsage) {
	b.pass.bufferReads = append(b.pass.bufferReads, bufferAccess{h, usage})
}

func (b *Builder) WriteBuffer(h BufferHandle, usage BufferUsage) {
	b.pass.bufferWrites = append(b.pass.bufferWrites, bufferAccess{h, usage})
}

// importExternal finds buf in the registry or imports it with no prior access.
func (b *Builder) importExternal(buf gpu.Buffer, size uint64, name string) BufferHandle {
	if buf == nil {
		return InvalidBuffer
	}
	if h, ok := b.reg.findBuffer(buf); ok {
		return h
	}
	if name == "" {
		name = externalBufferName
	}
	return b.reg.importBuffer(ImportedBuffer{
		Name:   name,
		Buffer: buf,
		Size:   size,
		Stage:  gpu.StageTopOfPipe,
	})
}

// ReadExternalBuffer declares a read of a raw buffer, importing it on first sight.
// size may be zero when unknown.
func (b *Builder) ReadExternalBuffer(buf gpu.Buffer, usage BufferUsage, size uint64, name string) BufferHandle {
	h := b.importExternal(buf, size, name)
	if h.Valid() {
		b.ReadBuffer(h, usage)
	}
	return h
}

func (b *Builder) WriteExternalBuffer(buf gpu.Buffer, usage BufferUsage, size uint64, name string) BufferHandle {
	h := b.importExternal(buf, size, name)
	if h.Valid() {
		b.WriteBuffer(h, usage)
	}
	return h
}

// WriteColor adds a color attachment. Without clear the previous contents are loaded.
func (b *Builder) WriteColor(h ImageHandle, clear bool, value gpu.ClearColor) {
	b.pass.colors = append(b.pass.colors, Attachment{Image: h, Clear: clear, ClearColor: value, Store: true})
	b.Write(h, ImageColorAttachment)
}

// WriteDepth sets the depth attachment; a second call replaces the first.
func (b *Builder) WriteDepth(h ImageHandle, clear bool, depth float32) {
	b.pass.depth = &Attachment{Image: h, Clear: clear, ClearDepth: depth, Store: true}
	b.Write(h, ImageDepthAttachment)
}

// DiscardColor drops the results of color attachment h after the pass.
func (b *Builder) DiscardColor(h ImageHandle) {
	for i := range b.pass.colors {
		if b.pass.colors[i].Image == h {
			b.pass.colors[i].Store = false
		}
	}
}

// DiscardDepth drops the depth results after the pass.
func (b *Builder) DiscardDepth() {
	if b.pass.depth != nil {
		b.pass.depth.Store = false
	}
}

// PassResources resolves handles to GPU objects while a pass records.
type PassResources struct {
	reg *registry
}

func (r *PassResources) Image(h ImageHandle) gpu.Image {
	if rec := r.reg.image(h); rec != nil {
		return rec.image
	}
	return nil
}

func (r *PassResources) ImageView(h ImageHandle) gpu.ImageView {
	if rec := r.reg.image(h); rec != nil {
		return rec.view
	}
	return nil
}

func (r *PassResources) Extent(h ImageHandle) gpu.Extent2D {
	if rec := r.reg.image(h); rec != nil {
		return rec.extent
	}
	return gpu.Extent2D{}
}

func (r *PassResources) Buffer(h BufferHandle) gpu.Buffer {
	if rec := r.reg.buffer(h); rec != nil {
		return rec.buffer
	}
	return nil
}
