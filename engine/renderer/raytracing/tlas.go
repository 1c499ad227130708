package raytracing

import (
	"encoding/binary"
	stdmath "math"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/containers"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/math"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

const (
	instanceMask = 0xFF
	// instanceCullDisable renders instances two-sided.
	instanceCullDisable = 0x1
)

// putInstance writes one packed instance record: a row-major 3x4 transform,
// custom index and mask, binding table offset and flags, then the BLAS address.
func putInstance(dst []byte, t math.Transform3x4, blasAddress uint64) {
	off := 0
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(dst[off:], stdmath.Float32bits(t.M[r][c]))
			off += 4
		}
	}
	binary.LittleEndian.PutUint32(dst[48:], instanceMask<<24)
	binary.LittleEndian.PutUint32(dst[52:], instanceCullDisable<<24)
	binary.LittleEndian.PutUint64(dst[56:], blasAddress)
}

// BuildTLASFromDrawContext rebuilds the top level structure from the opaque
// objects of dc. Objects whose BLAS is not built yet are skipped and their
// build is queued. The previous structure is handed to deletion so frames
// still in flight keep a valid one. Returns nil when nothing is traceable.
func (m *Manager) BuildTLASFromDrawContext(dc *DrawContext, deletion *containers.DeletionQueue) gpu.AccelerationStructure {
	m.instanceBytes = m.instanceBytes[:0]
	var count uint32
	if dc != nil {
		for _, obj := range dc.Opaque {
			blas := m.GetOrBuildBLAS(obj.Mesh)
			if !blas.Valid() {
				continue
			}
			var rec [gpu.InstanceSize]byte
			putInstance(rec[:], obj.Transform.ToTransform3x4(), blas.Address)
			m.instanceBytes = append(m.instanceBytes, rec[:]...)
			count++
		}
	}

	if count == 0 {
		if m.tlas != nil {
			deferDestroy(deletion, m.tlas.destroy)
			m.tlas = nil
		}
		return nil
	}

	if err := m.ensureInstanceCapacity(count, deletion); err != nil {
		core.LogError("failed to grow TLAS instance buffer: %v", err)
		return m.TLAS()
	}
	copy(m.instances.Bytes(), m.instanceBytes)

	geoms := []gpu.ASGeometry{{Instances: &gpu.ASInstances{Address: m.instances.Address(), Count: count}}}
	a, err := m.build(gpu.ASTopLevel, geoms)
	if err != nil {
		core.LogError("failed to build TLAS of %d instances: %v", count, err)
		return m.TLAS()
	}
	if m.tlas != nil {
		deferDestroy(deletion, m.tlas.destroy)
	}
	m.tlas = a
	return a.as
}

// deferDestroy runs fn on the next flush of deletion, or now without a queue.
func deferDestroy(deletion *containers.DeletionQueue, fn func()) {
	if deletion == nil {
		fn()
		return
	}
	deletion.Push(fn)
}

// ensureInstanceCapacity grows the mapped instance buffer to the next power
// of two above count.
func (m *Manager) ensureInstanceCapacity(count uint32, deletion *containers.DeletionQueue) error {
	if m.instances != nil && count <= m.instanceCap {
		return nil
	}
	capacity := math.NextPowerOfTwo(count)
	buf, err := m.res.CreateBuffer(uint64(capacity)*gpu.InstanceSize,
		gpu.BufferUsageASBuildInput|gpu.BufferUsageDeviceAddress|gpu.BufferUsageTransferDst,
		gpu.MemoryCPUToGPU)
	if err != nil {
		return err
	}
	if m.instances != nil {
		deferDestroy(deletion, m.instances.Destroy)
	}
	m.instances = buf
	m.instanceCap = capacity
	core.LogDebug("TLAS instance buffer grown to %d instances", capacity)
	return nil
}

// TLAS returns the current top level structure, nil when none was built.
func (m *Manager) TLAS() gpu.AccelerationStructure {
	if m.tlas == nil {
		return nil
	}
	return m.tlas.as
}

func (m *Manager) TLASAddress() uint64 {
	return m.tlas.handle().Address
}
