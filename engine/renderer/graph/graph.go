package graph

import (
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// BuildFunc declares the accesses of a pass. It runs once, inside AddPass.
type BuildFunc[C Host] func(b *Builder, ctx C)

// RecordFunc records the commands of a pass. It runs once per Execute.
type RecordFunc[C Host] func(cmd gpu.CmdBuffer, res *PassResources, ctx C)

type pass struct {
	name    string
	kind    PassKind
	enabled bool

	imageReads   []imageAccess
	imageWrites  []imageAccess
	bufferReads  []bufferAccess
	bufferWrites []bufferAccess
	colors       []Attachment
	depth        *Attachment

	preImageBarriers  []gpu.ImageBarrier
	preBufferBarriers []gpu.BufferBarrier

	record func(cmd gpu.CmdBuffer, res *PassResources)
}

// Graph is rebuilt every frame: Clear, AddPass..., Compile, Execute.
// C is the engine context handed to build and record callbacks.
type Graph[C Host] struct {
	ctx    C
	reg    *registry
	passes []*pass

	timestamps bool
	queryPool  gpu.QueryPool
	gpuMillis  []float32
	cpuMillis  []float32
	wroteQuery []bool

	warnings []string
}

func New[C Host](ctx C) *Graph[C] {
	return &Graph[C]{
		ctx:        ctx,
		reg:        newRegistry(),
		timestamps: true,
	}
}

// SetTimestamps enables per-pass GPU timestamps when the device supports them.
func (g *Graph[C]) SetTimestamps(enabled bool) {
	g.timestamps = enabled
}

// Clear drops every pass and resource of the previous frame. Timings survive
// for the debug UI.
func (g *Graph[C]) Clear() {
	g.passes = g.passes[:0]
	g.reg.reset()
	g.warnings = g.warnings[:0]
}

// Shutdown releases the timestamp pool. Call before destroying the device.
func (g *Graph[C]) Shutdown() {
	if g.queryPool == nil {
		return
	}
	if err := g.ctx.Device().WaitIdle(); err != nil {
		core.LogWarn("[RG] wait idle before query pool destroy: %v", err)
	}
	g.queryPool.Destroy()
	g.queryPool = nil
}

func (g *Graph[C]) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	g.warnings = append(g.warnings, msg)
	core.LogWarn("[RG] %s", msg)
}

// Warnings lists the diagnostics emitted since the last Clear.
func (g *Graph[C]) Warnings() []string {
	return append([]string(nil), g.warnings...)
}

func (g *Graph[C]) ImportImage(d ImportedImage) ImageHandle {
	return g.reg.importImage(d)
}

func (g *Graph[C]) ImportBuffer(d ImportedBuffer) BufferHandle {
	return g.reg.importBuffer(d)
}

// CreateImage allocates a transient image that lives until this frame slot is reused.
func (g *Graph[C]) CreateImage(d ImageDesc) ImageHandle {
	return g.reg.createImage(g.ctx.Device(), g.ctx.CurrentFrame(), d)
}

// CreateDepthImage declares a transient depth target that can be sampled later.
// A zero format selects D32.
func (g *Graph[C]) CreateDepthImage(name string, extent gpu.Extent2D, format gpu.Format) ImageHandle {
	if name == "" {
		name = "depth.transient"
	}
	if format == gpu.FormatUndefined {
		format = gpu.FormatD32Sfloat
	}
	return g.CreateImage(ImageDesc{
		Name:   name,
		Format: format,
		Extent: extent,
		Usage:  gpu.ImageUsageDepthStencilAttachment | gpu.ImageUsageSampled,
	})
}

func (g *Graph[C]) CreateBuffer(d BufferDesc) BufferHandle {
	return g.reg.createBuffer(g.ctx.Device(), g.ctx.CurrentFrame(), d)
}

// AddPass registers a pass. build may be nil for passes without declarations.
func (g *Graph[C]) AddPass(name string, kind PassKind, build BuildFunc[C], record RecordFunc[C]) {
	p := &pass{name: name, kind: kind, enabled: true}
	if build != nil {
		build(&Builder{reg: g.reg, pass: p}, g.ctx)
	}
	if record != nil {
		ctx := g.ctx
		p.record = func(cmd gpu.CmdBuffer, res *PassResources) { record(cmd, res, ctx) }
	}
	g.passes = append(g.passes, p)
}

func (g *Graph[C]) PassCount() int {
	return len(g.passes)
}

func (g *Graph[C]) PassName(i int) string {
	if i < 0 || i >= len(g.passes) {
		return ""
	}
	return g.passes[i].name
}

func (g *Graph[C]) PassEnabled(i int) bool {
	if i < 0 || i >= len(g.passes) {
		return false
	}
	return g.passes[i].enabled
}

// SetPassEnabled toggles pass i. Disabled passes keep their slot and are skipped.
func (g *Graph[C]) SetPassEnabled(i int, enabled bool) {
	if i >= 0 && i < len(g.passes) {
		g.passes[i].enabled = enabled
	}
}

// ApplyOverrides enables or disables passes by name after Compile. When a
// state changes, barriers are synthesized again for the new set of passes.
func (g *Graph[C]) ApplyOverrides(overrides map[string]bool) {
	changed := false
	for _, p := range g.passes {
		if enabled, ok := overrides[p.name]; ok && p.enabled != enabled {
			p.enabled = enabled
			changed = true
		}
	}
	if changed {
		g.Compile()
	}
}

// FinalLayout is the layout image h is left in once every compiled pass ran.
func (g *Graph[C]) FinalLayout(h ImageHandle) gpu.Layout {
	if rec := g.reg.image(h); rec != nil {
		return rec.finalLayout
	}
	return gpu.LayoutUndefined
}

// PassBarriers returns the barriers Compile placed before pass i.
func (g *Graph[C]) PassBarriers(i int) ([]gpu.ImageBarrier, []gpu.BufferBarrier) {
	if i < 0 || i >= len(g.passes) {
		return nil, nil
	}
	return g.passes[i].preImageBarriers, g.passes[i].preBufferBarriers
}
