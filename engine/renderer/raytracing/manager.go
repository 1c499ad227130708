package raytracing

import (
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/containers"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/resources"
)

// minScratchAlignment is the floor applied to the device reported scratch
// offset alignment.
const minScratchAlignment = 256

// maxQueuedBLAS bounds the build queue. Requests past it are dropped and
// picked up again by the next GetOrBuildBLAS of the mesh.
const maxQueuedBLAS = 1024

// Handle is a built acceleration structure. The zero Handle means "not ready".
type Handle struct {
	AS      gpu.AccelerationStructure
	Address uint64
}

func (h Handle) Valid() bool {
	return h.AS != nil
}

// accel owns an acceleration structure and its storage buffer. A nil as is
// the sentinel cached for meshes without triangles.
type accel struct {
	as      gpu.AccelerationStructure
	storage gpu.Buffer
}

func (a *accel) handle() Handle {
	if a == nil || a.as == nil {
		return Handle{}
	}
	return Handle{AS: a.as, Address: a.as.Address()}
}

func (a *accel) destroy() {
	if a == nil {
		return
	}
	if a.as != nil {
		a.as.Destroy()
	}
	if a.storage != nil {
		a.storage.Destroy()
	}
}

type retired struct {
	accel *accel
	frame uint64
}

// Manager keeps one bottom level structure per mesh and rebuilds the top
// level structure from each frame's draw list.
type Manager struct {
	res            *resources.Manager
	tracer         gpu.RayTracer
	framesInFlight uint64
	scratchAlign   uint64

	blasByMesh map[*Mesh]*accel
	pending    map[*Mesh]struct{}
	queue      *containers.RingQueue[*Mesh]

	tlas          *accel
	instances     gpu.Buffer
	instanceCap   uint32
	instanceBytes []byte

	frame   uint64
	retired []retired
}

// New returns core.ErrUnsupported when the device cannot build acceleration
// structures.
func New(res *resources.Manager, framesInFlight int) (*Manager, error) {
	tracer := res.Device().RayTracing()
	if tracer == nil {
		return nil, core.ErrUnsupported
	}
	if framesInFlight < 1 {
		return nil, fmt.Errorf("frames in flight must be positive, got %d", framesInFlight)
	}
	m := &Manager{
		res:            res,
		tracer:         tracer,
		framesInFlight: uint64(framesInFlight),
		scratchAlign:   max(tracer.MinScratchAlignment(), minScratchAlignment),
		blasByMesh:     make(map[*Mesh]*accel),
		pending:        make(map[*Mesh]struct{}),
		queue:          containers.NewRingQueue[*Mesh](maxQueuedBLAS),
	}
	core.LogInfo("ray tracing enabled, scratch alignment %d", m.scratchAlign)
	return m, nil
}

// GetOrBuildBLAS returns the cached structure of mesh. Otherwise it queues
// one build and returns the zero Handle until PumpBLASBuilds has run.
func (m *Manager) GetOrBuildBLAS(mesh *Mesh) Handle {
	if mesh == nil {
		return Handle{}
	}
	if a, ok := m.blasByMesh[mesh]; ok {
		return a.handle()
	}
	if _, ok := m.pending[mesh]; ok {
		return Handle{}
	}
	if err := m.queue.Enqueue(mesh); err != nil {
		core.LogWarn("BLAS build of mesh %s deferred: %v", mesh.Name, err)
		return Handle{}
	}
	m.pending[mesh] = struct{}{}
	return Handle{}
}

// PumpBLASBuilds builds up to maxBuilds queued structures and returns how
// many succeeded.
func (m *Manager) PumpBLASBuilds(maxBuilds int) int {
	if maxBuilds < 1 || m.queue.IsEmpty() {
		return 0
	}
	if m.res.UploadMode() == resources.UploadDeferred && m.res.HasPendingUploads() {
		if err := m.res.ProcessQueuedUploadsImmediate(); err != nil {
			core.LogError("failed to flush uploads before BLAS build: %v", err)
			return 0
		}
	}

	built := 0
	for !m.queue.IsEmpty() && built < maxBuilds {
		mesh, _ := m.queue.Dequeue()
		delete(m.pending, mesh)
		if _, ok := m.blasByMesh[mesh]; ok {
			continue
		}

		a, err := m.buildBLAS(mesh)
		if err != nil {
			core.LogError("failed to build BLAS for mesh %s: %v", mesh.Name, err)
			continue
		}
		m.blasByMesh[mesh] = a
		if a.as != nil {
			built++
		}
	}
	return built
}

func (m *Manager) buildBLAS(mesh *Mesh) (*accel, error) {
	mb := mesh.Buffers
	var geoms []gpu.ASGeometry
	if mb.VertexAddress != 0 && mb.IndexAddress != 0 && mb.VertexCount > 0 {
		for _, s := range mesh.Surfaces {
			prims := s.Count / 3
			if prims == 0 {
				continue
			}
			geoms = append(geoms, gpu.ASGeometry{Triangles: &gpu.ASTriangles{
				VertexAddress:    mb.VertexAddress,
				VertexStride:     uint64(vertexStride),
				VertexFormat:     gpu.FormatR32G32B32Sfloat,
				MaxVertex:        mb.VertexCount - 1,
				IndexAddress:     mb.IndexAddress,
				IndexType:        gpu.IndexUint32,
				PrimitiveCount:   prims,
				FirstIndexOffset: s.StartIndex * 4,
				Opaque:           true,
			}})
		}
	}
	if len(geoms) == 0 {
		core.LogDebug("mesh %s has no triangles, caching an empty BLAS", mesh.Name)
		return &accel{}, nil
	}

	a, err := m.build(gpu.ASBottomLevel, geoms)
	if err != nil {
		return nil, err
	}
	core.LogDebug("built BLAS for mesh %s geometries=%d address=%#x", mesh.Name, len(geoms), a.as.Address())
	return a, nil
}

// build creates storage for kind and records the build in an immediate
// submission. The scratch buffer is released once it completes.
func (m *Manager) build(kind gpu.ASKind, geoms []gpu.ASGeometry) (*accel, error) {
	sizes, err := m.tracer.BuildSizes(kind, gpu.ASPreferFastTrace, geoms)
	if err != nil {
		return nil, fmt.Errorf("query build sizes: %w", err)
	}
	storage, err := m.res.CreateBuffer(sizes.StorageSize,
		gpu.BufferUsageASStorage|gpu.BufferUsageDeviceAddress, gpu.MemoryGPUOnly)
	if err != nil {
		return nil, err
	}
	as, err := m.tracer.NewAccelerationStructure(kind, storage, 0, sizes.StorageSize)
	if err != nil {
		storage.Destroy()
		return nil, fmt.Errorf("create acceleration structure: %w", err)
	}
	a := &accel{as: as, storage: storage}

	scratch, err := m.res.CreateBuffer(sizes.ScratchSize+m.scratchAlign-1,
		gpu.BufferUsageStorage|gpu.BufferUsageDeviceAddress, gpu.MemoryGPUOnly)
	if err != nil {
		a.destroy()
		return nil, err
	}
	defer scratch.Destroy()

	info := gpu.ASBuildInfo{
		Kind:       kind,
		Flags:      gpu.ASPreferFastTrace,
		Dst:        as,
		Geometries: geoms,
		Scratch:    gpu.AlignUp(scratch.Address(), m.scratchAlign),
	}
	if err := m.res.ImmediateSubmit(func(cmd gpu.CmdBuffer) {
		cmd.BuildAccelerationStructures([]gpu.ASBuildInfo{info})
	}); err != nil {
		a.destroy()
		return nil, err
	}
	return a, nil
}

// RemoveBLASForMesh drops a queued build of mesh and retires its structure.
func (m *Manager) RemoveBLASForMesh(mesh *Mesh) {
	if mesh == nil {
		return
	}
	m.dropQueued(func(q *Mesh) bool { return q == mesh })
	if a, ok := m.blasByMesh[mesh]; ok {
		delete(m.blasByMesh, mesh)
		m.retire(a)
	}
}

// RemoveBLASForBuffer retires every structure built over the vertex buffer.
func (m *Manager) RemoveBLASForBuffer(vertex gpu.Buffer) {
	if vertex == nil {
		return
	}
	m.dropQueued(func(q *Mesh) bool { return q.Buffers.Vertex == vertex })
	for mesh, a := range m.blasByMesh {
		if mesh.Buffers.Vertex == vertex {
			delete(m.blasByMesh, mesh)
			m.retire(a)
		}
	}
}

func (m *Manager) dropQueued(match func(*Mesh) bool) {
	m.queue.RemoveIf(func(q *Mesh) bool {
		if match(q) {
			delete(m.pending, q)
			return true
		}
		return false
	})
}

// retire keeps a until every frame that may reference it has completed.
func (m *Manager) retire(a *accel) {
	if a == nil || a.as == nil {
		return
	}
	m.retired = append(m.retired, retired{accel: a, frame: m.frame})
}

// FlushPendingDeletes destroys retired structures whose frames can no longer
// be in flight. Call it once per frame after waiting on the frame's fence.
func (m *Manager) FlushPendingDeletes(frameNumber uint64) {
	m.frame = frameNumber
	kept := m.retired[:0]
	for _, r := range m.retired {
		if frameNumber >= r.frame+m.framesInFlight {
			r.accel.destroy()
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(m.retired); i++ {
		m.retired[i] = retired{}
	}
	m.retired = kept
}

// PendingBuilds returns the number of queued bottom level builds.
func (m *Manager) PendingBuilds() int {
	return m.queue.Len()
}

// BLASCount counts cached structures, empty sentinels included.
func (m *Manager) BLASCount() int {
	return len(m.blasByMesh)
}

// Shutdown destroys everything. The caller waits for the device to go idle.
func (m *Manager) Shutdown() {
	for mesh, a := range m.blasByMesh {
		a.destroy()
		delete(m.blasByMesh, mesh)
	}
	for _, r := range m.retired {
		r.accel.destroy()
	}
	m.retired = nil
	m.queue.Clear()
	m.pending = make(map[*Mesh]struct{})
	m.tlas.destroy()
	m.tlas = nil
	if m.instances != nil {
		m.instances.Destroy()
		m.instances = nil
	}
	m.instanceCap = 0
	core.LogDebug("ray tracing manager shut down")
}
