package graph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type resourceState struct {
	layout      gpu.Layout
	readStage   gpu.Stage
	readAccess  gpu.Access
	writeStage  gpu.Stage
	writeAccess gpu.Access
}

func (s *resourceState) reset() {
	s.readStage, s.readAccess = gpu.StageNone, gpu.AccessNone
	s.writeStage, s.writeAccess = gpu.StageNone, gpu.AccessNone
}

// apply records an access made after any barrier it needed.
func (s *resourceState) apply(stage gpu.Stage, access gpu.Access, barrier bool) {
	if barrier {
		s.reset()
	}
	if access.HasWrite() {
		s.readStage, s.readAccess = gpu.StageNone, gpu.AccessNone
		s.writeStage, s.writeAccess = stage, access
		return
	}
	s.writeStage, s.writeAccess = gpu.StageNone, gpu.AccessNone
	s.readStage |= stage
	s.readAccess |= access
}

// seed splits a known prior access into the writer or the reader fields.
func (s *resourceState) seed(stage gpu.Stage, access gpu.Access) {
	if access.HasWrite() {
		s.writeStage, s.writeAccess = stage, access
	} else if access != gpu.AccessNone {
		s.readStage, s.readAccess = stage, access
	}
}

type desiredImage struct {
	info          imageUsageInfo
	canonical     ImageUsage
	hasDepthUsage bool
	warned        bool
}

type desiredBuffer struct {
	info      bufferUsageInfo
	canonical BufferUsage
}

// Compile orders the enabled passes by their hazards and synthesizes the
// barriers each one needs. A dependency cycle keeps insertion order; the
// barriers still serialize that order correctly. It returns false only when
// the graph has no host.
func (g *Graph[C]) Compile() bool {
	if any(g.ctx) == nil {
		return false
	}
	g.sort()

	images := g.reg.images
	buffers := g.reg.buffers
	imageStates := make([]resourceState, len(images))
	bufferStates := make([]resourceState, len(buffers))

	for i := range images {
		rec := &images[i]
		rec.firstUse, rec.lastUse = -1, -1
		rec.usageWarned = false
		imageStates[i].layout = rec.initialLayout
		if rec.initialLayout == gpu.LayoutUndefined {
			continue
		}
		stage, access := rec.initialStage, rec.initialAccess
		if stage == gpu.StageNone && access == gpu.AccessNone {
			stage = gpu.StageAllCommands
			access = gpu.AccessMemoryRead | gpu.AccessMemoryWrite
		}
		imageStates[i].seed(stage, access)
	}
	for i := range buffers {
		rec := &buffers[i]
		rec.firstUse, rec.lastUse = -1, -1
		rec.usageWarned = false
		stage := rec.initialStage
		if stage == gpu.StageNone {
			stage = gpu.StageTopOfPipe
		}
		bufferStates[i].seed(stage, rec.initialAccess)
	}

	for pi, p := range g.passes {
		p.preImageBarriers = p.preImageBarriers[:0]
		p.preBufferBarriers = p.preBufferBarriers[:0]
		if !p.enabled {
			continue
		}
		g.compileImages(pi, p, imageStates)
		g.compileBuffers(pi, p, bufferStates)
	}

	for i := range images {
		images[i].finalLayout = imageStates[i].layout
	}
	return true
}

// sort reorders passes by a topological order of their read/write hazards.
// Passes that consume each other's outputs form a cycle no order satisfies;
// insertion order is kept for them.
func (g *Graph[C]) sort() {
	n := len(g.passes)
	if n <= 1 {
		return
	}
	if g.producersCyclic() {
		g.warn("dependency cycle between passes, keeping insertion order")
		return
	}

	edges := newEdgeSet(n)
	lastImageWriter := make(map[ImageHandle]int)
	imageReaders := make(map[ImageHandle][]int)
	lastBufferWriter := make(map[BufferHandle]int)
	bufferReaders := make(map[BufferHandle][]int)

	for i, p := range g.passes {
		if !p.enabled {
			continue
		}
		for _, r := range p.imageReads {
			if !r.image.Valid() {
				continue
			}
			if w, ok := lastImageWriter[r.image]; ok {
				edges.add(w, i)
			}
			imageReaders[r.image] = append(imageReaders[r.image], i)
		}
		for _, w := range p.imageWrites {
			if !w.image.Valid() {
				continue
			}
			if prev, ok := lastImageWriter[w.image]; ok {
				edges.add(prev, i)
			}
			for _, r := range imageReaders[w.image] {
				edges.add(r, i)
			}
			imageReaders[w.image] = imageReaders[w.image][:0]
			lastImageWriter[w.image] = i
		}
		for _, r := range p.bufferReads {
			if !r.buffer.Valid() {
				continue
			}
			if w, ok := lastBufferWriter[r.buffer]; ok {
				edges.add(w, i)
			}
			bufferReaders[r.buffer] = append(bufferReaders[r.buffer], i)
		}
		for _, w := range p.bufferWrites {
			if !w.buffer.Valid() {
				continue
			}
			if prev, ok := lastBufferWriter[w.buffer]; ok {
				edges.add(prev, i)
			}
			for _, r := range bufferReaders[w.buffer] {
				edges.add(r, i)
			}
			bufferReaders[w.buffer] = bufferReaders[w.buffer][:0]
			lastBufferWriter[w.buffer] = i
		}
	}

	order := edges.kahn()
	if len(order) != n {
		g.warn("dependency cycle between passes, keeping insertion order")
		return
	}
	sorted := make([]*pass, n)
	for i, idx := range order {
		sorted[i] = g.passes[idx]
	}
	g.passes = sorted
}

// producersCyclic reports whether enabled passes form a cycle through
// producer to consumer relations, regardless of insertion order.
func (g *Graph[C]) producersCyclic() bool {
	n := len(g.passes)
	imageWriters := make(map[ImageHandle][]int)
	bufferWriters := make(map[BufferHandle][]int)
	for i, p := range g.passes {
		if !p.enabled {
			continue
		}
		for _, w := range p.imageWrites {
			imageWriters[w.image] = append(imageWriters[w.image], i)
		}
		for _, w := range p.bufferWrites {
			bufferWriters[w.buffer] = append(bufferWriters[w.buffer], i)
		}
	}
	edges := newEdgeSet(n)
	for i, p := range g.passes {
		if !p.enabled {
			continue
		}
		for _, r := range p.imageReads {
			for _, w := range imageWriters[r.image] {
				edges.add(w, i)
			}
		}
		for _, r := range p.bufferReads {
			for _, w := range bufferWriters[r.buffer] {
				edges.add(w, i)
			}
		}
	}
	return len(edges.kahn()) != n
}

// edgeSet is a deduplicated adjacency list over pass indices.
type edgeSet struct {
	adj   [][]int
	indeg []int
	seen  map[[2]int]struct{}
}

func newEdgeSet(n int) *edgeSet {
	return &edgeSet{
		adj:   make([][]int, n),
		indeg: make([]int, n),
		seen:  make(map[[2]int]struct{}),
	}
}

func (e *edgeSet) add(u, v int) {
	if u == v {
		return
	}
	key := [2]int{u, v}
	if _, ok := e.seen[key]; ok {
		return
	}
	e.seen[key] = struct{}{}
	e.adj[u] = append(e.adj[u], v)
	e.indeg[v]++
}

// kahn returns a topological order, shorter than the node count on a cycle.
func (e *edgeSet) kahn() []int {
	n := len(e.adj)
	indeg := append([]int(nil), e.indeg...)
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, v := range e.adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	return order
}

func (g *Graph[C]) compileImages(pi int, p *pass, states []resourceState) {
	var order []ImageHandle
	desired := make(map[ImageHandle]*desiredImage)

	merge := func(h ImageHandle, usage ImageUsage) {
		u := imageUsageInfoOf(usage)
		d, ok := desired[h]
		if !ok {
			desired[h] = &desiredImage{info: u, canonical: usage, hasDepthUsage: usage == ImageDepthAttachment}
			order = append(order, h)
			return
		}
		d.info.stage |= u.stage
		d.info.access |= u.access
		d.hasDepthUsage = d.hasDepthUsage || usage == ImageDepthAttachment
		if d.info.layout != u.layout && !d.warned {
			g.warn("pass '%s' declares multiple layouts for image '%s' (%s vs %s)",
				p.name, g.reg.images[h].name, d.info.layout, u.layout)
			d.warned = true
		}
		if imagePriority(usage) >= imagePriority(d.canonical) {
			d.canonical = usage
			d.info.layout = u.layout
		}
	}

	declare := func(accesses []imageAccess) {
		for _, a := range accesses {
			rec := g.reg.image(a.image)
			if rec == nil {
				continue
			}
			merge(a.image, a.usage)
			if rec.firstUse == -1 {
				rec.firstUse = pi
			}
			rec.lastUse = pi
		}
	}
	declare(p.imageReads)
	declare(p.imageWrites)

	for _, h := range order {
		d := desired[h]
		rec := &g.reg.images[h]
		state := &states[h]

		prevLayout := state.layout
		layoutChange := prevLayout != d.info.layout
		desiredWrite := d.info.access.HasWrite()
		prevWrite := state.writeAccess != gpu.AccessNone
		prevReads := state.readAccess != gpu.AccessNone
		needBarrier := layoutChange || prevWrite || (prevReads && desiredWrite)

		if needBarrier {
			var srcStage gpu.Stage
			var srcAccess gpu.Access
			switch {
			case prevWrite:
				srcStage, srcAccess = state.writeStage, state.writeAccess
			case prevReads:
				srcStage, srcAccess = state.readStage, state.readAccess
			case prevLayout == gpu.LayoutUndefined:
				srcStage, srcAccess = gpu.StageTopOfPipe, gpu.AccessNone
			default:
				srcStage, srcAccess = gpu.StageAllCommands, gpu.AccessMemoryRead|gpu.AccessMemoryWrite
			}
			if srcStage == gpu.StageNone {
				srcStage = gpu.StageTopOfPipe
			}
			aspect := gpu.AspectColor
			if d.hasDepthUsage || rec.format.IsDepth() {
				aspect = gpu.AspectDepth
			}
			p.preImageBarriers = append(p.preImageBarriers, gpu.ImageBarrier{
				Image:     rec.image,
				SrcStage:  srcStage,
				SrcAccess: srcAccess,
				DstStage:  d.info.stage,
				DstAccess: d.info.access,
				OldLayout: prevLayout,
				NewLayout: d.info.layout,
				Aspect:    aspect,
			})
		}
		g.validateImage(p, rec, d.canonical)
		state.layout = d.info.layout
		state.apply(d.info.stage, d.info.access, needBarrier)
	}
}

func (g *Graph[C]) validateImage(p *pass, rec *imageRecord, usage ImageUsage) {
	if usage == ImageColorAttachment && rec.format.IsDepth() {
		g.warn("pass '%s' binds depth-format image '%s' as color attachment", p.name, rec.name)
	}
	if usage == ImageDepthAttachment && !rec.format.IsDepth() {
		g.warn("pass '%s' binds non-depth image '%s' as depth attachment", p.name, rec.name)
	}
	if !rec.imported && !rec.usageWarned {
		need := requiredImageUsage(usage)
		if rec.creationUsage&need != need {
			g.warn("image '%s' used as %s but created without the needed usage (0x%x)", rec.name, usage, uint32(need))
			rec.usageWarned = true
		}
	}
}

func (g *Graph[C]) compileBuffers(pi int, p *pass, states []resourceState) {
	if len(g.reg.buffers) == 0 {
		return
	}
	var order []BufferHandle
	desired := make(map[BufferHandle]*desiredBuffer)

	declare := func(accesses []bufferAccess) {
		for _, a := range accesses {
			rec := g.reg.buffer(a.buffer)
			if rec == nil {
				continue
			}
			u := bufferUsageInfoOf(a.usage)
			if d, ok := desired[a.buffer]; ok {
				d.info.stage |= u.stage
				d.info.access |= u.access
				if bufferPriority(a.usage) >= bufferPriority(d.canonical) {
					d.canonical = a.usage
				}
			} else {
				desired[a.buffer] = &desiredBuffer{info: u, canonical: a.usage}
				order = append(order, a.buffer)
			}
			if rec.firstUse == -1 {
				rec.firstUse = pi
			}
			rec.lastUse = pi
		}
	}
	declare(p.bufferReads)
	declare(p.bufferWrites)

	for _, h := range order {
		d := desired[h]
		rec := &g.reg.buffers[h]
		state := &states[h]

		desiredWrite := d.info.access.HasWrite()
		prevWrite := state.writeAccess != gpu.AccessNone
		prevReads := state.readAccess != gpu.AccessNone
		needBarrier := prevWrite || (prevReads && desiredWrite)

		if needBarrier {
			var srcStage gpu.Stage
			var srcAccess gpu.Access
			if prevWrite {
				srcStage, srcAccess = state.writeStage, state.writeAccess
			} else {
				srcStage, srcAccess = state.readStage, state.readAccess
			}
			if srcStage == gpu.StageNone {
				srcStage = gpu.StageTopOfPipe
			}
			size := gpu.WholeSize
			if !rec.imported && rec.size > 0 {
				size = rec.size
			}
			p.preBufferBarriers = append(p.preBufferBarriers, gpu.BufferBarrier{
				Buffer:    rec.buffer,
				SrcStage:  srcStage,
				SrcAccess: srcAccess,
				DstStage:  d.info.stage,
				DstAccess: d.info.access,
				Size:      size,
			})
		}
		if !rec.imported && !rec.usageWarned {
			need := requiredBufferUsage(d.canonical)
			if rec.usage&need != need {
				g.warn("buffer '%s' used as %s but created without the needed usage (0x%x)", rec.name, d.canonical, uint32(need))
				rec.usageWarned = true
			}
		}
		state.apply(d.info.stage, d.info.access, needBarrier)
	}
}
