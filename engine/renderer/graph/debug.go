package graph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type PassInfo struct {
	Name             string
	Kind             PassKind
	Enabled          bool
	ImageReads       int
	ImageWrites      int
	BufferReads      int
	BufferWrites     int
	ColorAttachments int
	HasDepth         bool
	// Last resolved timings in milliseconds, -1 when unavailable.
	GPUMillis float32
	CPUMillis float32
}

type ImageInfo struct {
	ID            ImageHandle
	Name          string
	Imported      bool
	Format        gpu.Format
	Extent        gpu.Extent2D
	CreationUsage gpu.ImageUsage
	FirstUse      int
	LastUse       int
}

type BufferInfo struct {
	ID       BufferHandle
	Name     string
	Imported bool
	Size     uint64
	Usage    gpu.BufferUsage
	FirstUse int
	LastUse  int
}

func (g *Graph[C]) DebugPasses() []PassInfo {
	out := make([]PassInfo, 0, len(g.passes))
	for i, p := range g.passes {
		info := PassInfo{
			Name:             p.name,
			Kind:             p.kind,
			Enabled:          p.enabled,
			ImageReads:       len(p.imageReads),
			ImageWrites:      len(p.imageWrites),
			BufferReads:      len(p.bufferReads),
			BufferWrites:     len(p.bufferWrites),
			ColorAttachments: len(p.colors),
			HasDepth:         p.depth != nil,
			GPUMillis:        -1,
			CPUMillis:        -1,
		}
		if i < len(g.gpuMillis) {
			info.GPUMillis = g.gpuMillis[i]
		}
		if i < len(g.cpuMillis) {
			info.CPUMillis = g.cpuMillis[i]
		}
		out = append(out, info)
	}
	return out
}

func (g *Graph[C]) DebugImages() []ImageInfo {
	out := make([]ImageInfo, 0, len(g.reg.images))
	for i, rec := range g.reg.images {
		out = append(out, ImageInfo{
			ID:            ImageHandle(i),
			Name:          rec.name,
			Imported:      rec.imported,
			Format:        rec.format,
			Extent:        rec.extent,
			CreationUsage: rec.creationUsage,
			FirstUse:      rec.firstUse,
			LastUse:       rec.lastUse,
		})
	}
	return out
}

func (g *Graph[C]) DebugBuffers() []BufferInfo {
	out := make([]BufferInfo, 0, len(g.reg.buffers))
	for i, rec := range g.reg.buffers {
		out = append(out, BufferInfo{
			ID:       BufferHandle(i),
			Name:     rec.name,
			Imported: rec.imported,
			Size:     rec.size,
			Usage:    rec.usage,
			FirstUse: rec.firstUse,
			LastUse:  rec.lastUse,
		})
	}
	return out
}
