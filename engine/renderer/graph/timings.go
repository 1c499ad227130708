package graph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
)

// ResolveTimings reads the timestamps of the last Execute and converts them
// to milliseconds per pass (-1 when unavailable). Call it only after the
// fence of that frame was observed signaled.
func (g *Graph[C]) ResolveTimings() {
	n := len(g.passes)
	g.gpuMillis = make([]float32, n)
	for i := range g.gpuMillis {
		g.gpuMillis[i] = -1
	}
	if g.queryPool == nil || n == 0 {
		return
	}

	dev := g.ctx.Device()
	count := 2 * n
	if count > g.queryPool.Count() {
		count = g.queryPool.Count()
	}
	results, err := g.queryPool.Results(0, count)
	if err != nil {
		core.LogWarn("[RG] timestamp readback failed: %v", err)
	} else {
		period := float64(dev.Limits().TimestampPeriod)
		for i := 0; i < n && 2*i+1 < len(results); i++ {
			if i < len(g.wroteQuery) && !g.wroteQuery[i] {
				continue
			}
			t0, t1 := results[2*i], results[2*i+1]
			if t1 > t0 {
				g.gpuMillis[i] = float32(float64(t1-t0) * period / 1e6)
			}
		}
	}

	if err := dev.WaitIdle(); err != nil {
		core.LogWarn("[RG] wait idle before query pool destroy: %v", err)
	}
	g.queryPool.Destroy()
	g.queryPool = nil
}
