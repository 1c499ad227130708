package graph

import (
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// Execute records every enabled pass in compiled order: barriers, debug
// label, begin timestamp, dynamic rendering when attachments were declared,
// the record callback, end timestamp.
func (g *Graph[C]) Execute(cmd gpu.CmdBuffer) {
	g.beginQueries(cmd)

	g.cpuMillis = make([]float32, len(g.passes))
	g.wroteQuery = make([]bool, len(g.passes))
	for i := range g.cpuMillis {
		g.cpuMillis[i] = -1
	}

	res := &PassResources{reg: g.reg}
	for i, p := range g.passes {
		if !p.enabled {
			continue
		}
		if len(p.preImageBarriers) > 0 || len(p.preBufferBarriers) > 0 {
			cmd.Barrier(p.preImageBarriers, p.preBufferBarriers, nil)
		}
		cmd.BeginLabel("RG: " + p.name)

		if g.queryPool != nil {
			cmd.WriteTimestamp(g.queryPool, gpu.StageAllCommands, 2*i)
		}
		start := time.Now()

		rendering := len(p.colors) > 0 || p.depth != nil
		if rendering {
			cmd.BeginRendering(g.renderingInfo(p))
		}
		if p.record != nil {
			p.record(cmd, res)
		}
		if rendering {
			cmd.EndRendering()
		}

		g.cpuMillis[i] = float32(time.Since(start).Seconds() * 1000)
		if g.queryPool != nil {
			cmd.WriteTimestamp(g.queryPool, gpu.StageAllCommands, 2*i+1)
			g.wroteQuery[i] = true
		}
		cmd.EndLabel()
	}
}

// beginQueries replaces the timestamp pool with one sized for this frame's passes.
func (g *Graph[C]) beginQueries(cmd gpu.CmdBuffer) {
	dev := g.ctx.Device()
	if g.queryPool != nil {
		g.queryPool.Destroy()
		g.queryPool = nil
	}
	count := 2 * len(g.passes)
	if !g.timestamps || count == 0 || !dev.Limits().TimestampsSupported {
		return
	}
	pool, err := dev.NewQueryPool(count)
	if err != nil {
		core.LogWarn("[RG] timestamp pool unavailable: %v", err)
		return
	}
	g.queryPool = pool
	cmd.ResetQueryPool(pool, 0, count)
}

// renderingInfo resolves the attachments of p. The render area is the per-axis
// minimum of the attachment extents, or the draw extent when none is known.
func (g *Graph[C]) renderingInfo(p *pass) *gpu.RenderingInfo {
	info := &gpu.RenderingInfo{}
	var area, first gpu.Extent2D
	warned := false
	clampTo := func(e gpu.Extent2D) {
		if e.IsZero() {
			return
		}
		if area.IsZero() {
			area = e
		} else {
			area = area.Min(e)
		}
		// Every attachment, depth included, is compared against the first one.
		if first.IsZero() {
			first = e
		} else if !warned && e != first {
			g.warn("pass '%s' has attachments with mismatched extents (%dx%d vs %dx%d), using the minimum",
				p.name, first.Width, first.Height, e.Width, e.Height)
			warned = true
		}
	}

	for _, a := range p.colors {
		rec := g.reg.image(a.Image)
		if rec == nil || rec.view == nil {
			continue
		}
		info.Colors = append(info.Colors, gpu.ColorAttachment{
			View:       rec.view,
			Clear:      a.Clear,
			ClearValue: a.ClearColor,
			Store:      a.Store,
		})
		clampTo(rec.extent)
	}

	if p.depth != nil {
		if rec := g.reg.image(p.depth.Image); rec != nil && rec.view != nil {
			info.Depth = &gpu.DepthAttachment{
				View:       rec.view,
				Clear:      p.depth.Clear,
				ClearDepth: p.depth.ClearDepth,
				Store:      p.depth.Store,
			}
			clampTo(rec.extent)
		}
	}

	if area.IsZero() {
		area = g.ctx.DrawExtent()
	}
	info.Area = area
	return info
}
