// Package resources creates GPU buffers and images and moves data into them,
// either with a one-shot submission or through a transfer pass of the frame's
// render graph.
package resources

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/containers"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/math"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type UploadMode int

const (
	// UploadImmediate flushes every queued upload with a blocking submission.
	UploadImmediate UploadMode = iota
	// UploadDeferred keeps uploads queued until the frame's transfer pass.
	UploadDeferred
)

func (m UploadMode) String() string {
	if m == UploadDeferred {
		return "deferred"
	}
	return "immediate"
}

// ImmediateTimeout bounds the fence wait of ImmediateSubmit.
const ImmediateTimeout = 10 * time.Second

var ErrEmptyUpload = errors.New("empty upload")

// MeshBuffers are the GPU buffers of one uploaded mesh.
type MeshBuffers struct {
	Vertex        gpu.Buffer
	Index         gpu.Buffer
	VertexAddress uint64
	IndexAddress  uint64
	VertexCount   uint32
	IndexCount    uint32
}

// Destroy releases both buffers.
func (mb *MeshBuffers) Destroy() {
	if mb.Vertex != nil {
		mb.Vertex.Destroy()
	}
	if mb.Index != nil {
		mb.Index.Destroy()
	}
}

// MipLevelCopy locates one pre-encoded level inside a compressed payload.
type MipLevelCopy struct {
	Offset uint64
	Length uint64
	Width  uint32
	Height uint32
}

type bufferCopy struct {
	dst           gpu.Buffer
	dstOffset     uint64
	size          uint64
	stagingOffset uint64
}

type pendingBufferUpload struct {
	staging gpu.Buffer
	copies  []bufferCopy
}

type pendingImageUpload struct {
	staging       gpu.Buffer
	image         gpu.Image
	extent        gpu.Extent3D
	format        gpu.Format
	initialLayout gpu.Layout
	finalLayout   gpu.Layout
	generateMips  bool
	levels        uint32
	// Explicit per-level regions; empty means one tightly packed level 0.
	copies []gpu.BufferImageCopy
}

// Manager owns the immediate submission objects and the pending upload queues.
// Queueing is safe from any goroutine; recording happens on the main thread.
type Manager struct {
	device gpu.Device
	mode   UploadMode

	immPool  gpu.CmdPool
	immCmd   gpu.CmdBuffer
	immFence gpu.Fence

	mu             sync.Mutex
	pendingBuffers []pendingBufferUpload
	pendingImages  []pendingImageUpload

	deletion containers.DeletionQueue
}

func NewManager(device gpu.Device, mode UploadMode) (*Manager, error) {
	m := &Manager{device: device, mode: mode}

	pool, err := device.NewCmdPool()
	if err != nil {
		err = fmt.Errorf("failed to create immediate command pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	m.deletion.Push(pool.Destroy)
	m.immPool = pool

	cmd, err := pool.NewCmdBuffer()
	if err != nil {
		m.deletion.Flush()
		return nil, fmt.Errorf("failed to allocate immediate command buffer: %w", err)
	}
	m.immCmd = cmd

	fence, err := device.NewFence(true)
	if err != nil {
		m.deletion.Flush()
		return nil, fmt.Errorf("failed to create immediate fence: %w", err)
	}
	m.deletion.Push(fence.Destroy)
	m.immFence = fence

	core.LogDebug("resource manager ready, uploads are %s", mode)
	return m, nil
}

func (m *Manager) Device() gpu.Device { return m.device }

func (m *Manager) SetUploadMode(mode UploadMode) { m.mode = mode }

func (m *Manager) UploadMode() UploadMode { return m.mode }

// Shutdown drops queued uploads and releases the immediate submission objects.
func (m *Manager) Shutdown() {
	m.ClearPendingUploads()
	m.deletion.Flush()
}

// CreateBuffer allocates a buffer. Host visible memory is persistently mapped.
func (m *Manager) CreateBuffer(size uint64, usage gpu.BufferUsage, mem gpu.MemoryUsage) (gpu.Buffer, error) {
	buf, err := m.device.NewBuffer(size, usage, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer of %d bytes: %w", size, err)
	}
	return buf, nil
}

func (m *Manager) DestroyBuffer(buf gpu.Buffer) {
	if buf != nil {
		buf.Destroy()
	}
}

// CreateImage allocates an uninitialized GPU-only image with a full mip chain
// when mipmapped.
func (m *Manager) CreateImage(extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool) (gpu.Image, error) {
	levels := uint32(1)
	if mipmapped {
		levels = gpu.MipLevels(extent.Width, extent.Height)
	}
	return m.createImage(extent, format, usage, levels)
}

func (m *Manager) createImage(extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, levels uint32) (gpu.Image, error) {
	if extent.Depth == 0 {
		extent.Depth = 1
	}
	img, err := m.device.NewImage(gpu.ImageDesc{
		Format: format,
		Extent: extent,
		Usage:  usage,
		Levels: levels,
		Memory: gpu.MemoryGPUOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %dx%d %s image: %w", extent.Width, extent.Height, format, err)
	}
	return img, nil
}

func (m *Manager) DestroyImage(img gpu.Image) {
	if img != nil {
		img.Destroy()
	}
}

// stage copies data into a new host visible transfer source.
func (m *Manager) stage(data []byte, mem gpu.MemoryUsage) (gpu.Buffer, error) {
	staging, err := m.device.NewBuffer(uint64(len(data)), gpu.BufferUsageTransferSrc, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}
	copy(staging.Bytes(), data)
	return staging, nil
}

// CreateImageData creates an image and queues the upload of data into level
// 0. A mipmapped image gets its chain generated by blits after the copy.
func (m *Manager) CreateImageData(data []byte, extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool) (gpu.Image, error) {
	return m.CreateImageDataLevels(data, extent, format, usage, mipmapped, 0)
}

// CreateImageDataLevels is CreateImageData with an explicit level count; zero
// selects the full chain.
func (m *Manager) CreateImageDataLevels(data []byte, extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool, levels uint32) (gpu.Image, error) {
	if extent.Depth == 0 {
		extent.Depth = 1
	}
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		bpp = 4
	}
	size := uint64(extent.Depth) * uint64(extent.Width) * uint64(extent.Height) * uint64(bpp)
	if size == 0 {
		return nil, ErrEmptyUpload
	}
	if uint64(len(data)) < size {
		return nil, fmt.Errorf("image data holds %d bytes, %dx%d %s needs %d", len(data), extent.Width, extent.Height, format, size)
	}

	switch {
	case !mipmapped:
		levels = 1
	case levels == 0:
		levels = gpu.MipLevels(extent.Width, extent.Height)
	}

	staging, err := m.stage(data[:size], gpu.MemoryCPUToGPU)
	if err != nil {
		return nil, err
	}
	img, err := m.createImage(extent, format, usage|gpu.ImageUsageTransferDst|gpu.ImageUsageTransferSrc, levels)
	if err != nil {
		staging.Destroy()
		return nil, err
	}

	m.queueImage(pendingImageUpload{
		staging:       staging,
		image:         img,
		extent:        extent,
		format:        format,
		initialLayout: gpu.LayoutUndefined,
		finalLayout:   gpu.LayoutShaderReadOnly,
		generateMips:  mipmapped && levels > 1,
		levels:        levels,
	})
	return img, nil
}

// CreateImageCompressed uploads a pre-encoded payload whose levels are laid
// out in data. No mips are generated; the image has len(levels) levels.
func (m *Manager) CreateImageCompressed(data []byte, format gpu.Format, levels []MipLevelCopy, usage gpu.ImageUsage) (gpu.Image, error) {
	if len(data) == 0 || len(levels) == 0 {
		return nil, ErrEmptyUpload
	}
	for i, l := range levels {
		if l.Offset+l.Length > uint64(len(data)) {
			return nil, fmt.Errorf("level %d [%d,+%d) outside payload of %d bytes", i, l.Offset, l.Length, len(data))
		}
	}
	if usage == 0 {
		usage = gpu.ImageUsageSampled
	}
	extent := gpu.Extent3D{Width: levels[0].Width, Height: levels[0].Height, Depth: 1}

	staging, err := m.stage(data, gpu.MemoryCPUToGPU)
	if err != nil {
		return nil, err
	}
	img, err := m.createImage(extent, format, usage|gpu.ImageUsageTransferDst, uint32(len(levels)))
	if err != nil {
		staging.Destroy()
		return nil, err
	}

	copies := make([]gpu.BufferImageCopy, len(levels))
	for i, l := range levels {
		copies[i] = gpu.BufferImageCopy{
			BufferOffset: l.Offset,
			Level:        uint32(i),
			Aspect:       gpu.AspectColor,
			Extent:       gpu.Extent3D{Width: l.Width, Height: l.Height, Depth: 1},
		}
	}
	m.queueImage(pendingImageUpload{
		staging:       staging,
		image:         img,
		extent:        extent,
		format:        format,
		initialLayout: gpu.LayoutUndefined,
		finalLayout:   gpu.LayoutShaderReadOnly,
		levels:        uint32(len(levels)),
		copies:        copies,
	})
	return img, nil
}

func vertexBytes(vertices []math.Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*math.VertexSize)
}

func indexBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
}

// UploadMesh creates device-address-capable vertex and index buffers and
// queues their contents through one staging buffer.
func (m *Manager) UploadMesh(indices []uint32, vertices []math.Vertex) (MeshBuffers, error) {
	if len(indices) == 0 || len(vertices) == 0 {
		return MeshBuffers{}, ErrEmptyUpload
	}
	vb := vertexBytes(vertices)
	ib := indexBytes(indices)
	vertexSize, indexSize := uint64(len(vb)), uint64(len(ib))

	var mb MeshBuffers
	var err error
	mb.Vertex, err = m.CreateBuffer(vertexSize,
		gpu.BufferUsageStorage|gpu.BufferUsageTransferDst|gpu.BufferUsageDeviceAddress|gpu.BufferUsageASBuildInput,
		gpu.MemoryGPUOnly)
	if err != nil {
		return MeshBuffers{}, err
	}
	mb.Index, err = m.CreateBuffer(indexSize,
		gpu.BufferUsageIndex|gpu.BufferUsageTransferDst|gpu.BufferUsageDeviceAddress|gpu.BufferUsageASBuildInput,
		gpu.MemoryGPUOnly)
	if err != nil {
		mb.Destroy()
		return MeshBuffers{}, err
	}
	mb.VertexAddress = mb.Vertex.Address()
	mb.IndexAddress = mb.Index.Address()
	mb.VertexCount = uint32(len(vertices))
	mb.IndexCount = uint32(len(indices))

	staging, err := m.device.NewBuffer(vertexSize+indexSize, gpu.BufferUsageTransferSrc, gpu.MemoryCPUOnly)
	if err != nil {
		mb.Destroy()
		return MeshBuffers{}, fmt.Errorf("failed to create mesh staging buffer: %w", err)
	}
	mapped := staging.Bytes()
	copy(mapped, vb)
	copy(mapped[vertexSize:], ib)

	m.queueBuffer(pendingBufferUpload{
		staging: staging,
		copies: []bufferCopy{
			{dst: mb.Vertex, size: vertexSize},
			{dst: mb.Index, size: indexSize, stagingOffset: vertexSize},
		},
	})
	return mb, nil
}

// CreateBufferData creates a buffer with usage|TransferDst and queues data into it.
func (m *Manager) CreateBufferData(data []byte, usage gpu.BufferUsage, mem gpu.MemoryUsage) (gpu.Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	dst, err := m.CreateBuffer(uint64(len(data)), usage|gpu.BufferUsageTransferDst, mem)
	if err != nil {
		return nil, err
	}
	if err := m.UploadBuffer(data, dst, 0); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// UploadBuffer queues a copy of data into dst at offset.
func (m *Manager) UploadBuffer(data []byte, dst gpu.Buffer, offset uint64) error {
	if len(data) == 0 || dst == nil {
		return ErrEmptyUpload
	}
	if offset+uint64(len(data)) > dst.Size() {
		return fmt.Errorf("upload of %d bytes at %d overflows buffer of %d", len(data), offset, dst.Size())
	}
	staging, err := m.stage(data, gpu.MemoryCPUOnly)
	if err != nil {
		return err
	}
	m.queueBuffer(pendingBufferUpload{
		staging: staging,
		copies:  []bufferCopy{{dst: dst, dstOffset: offset, size: uint64(len(data))}},
	})
	return nil
}

func (m *Manager) queueBuffer(up pendingBufferUpload) {
	m.mu.Lock()
	m.pendingBuffers = append(m.pendingBuffers, up)
	m.mu.Unlock()
	m.flushIfImmediate()
}

func (m *Manager) queueImage(up pendingImageUpload) {
	m.mu.Lock()
	m.pendingImages = append(m.pendingImages, up)
	m.mu.Unlock()
	m.flushIfImmediate()
}

func (m *Manager) flushIfImmediate() {
	if m.mode != UploadImmediate {
		return
	}
	if err := m.ProcessQueuedUploadsImmediate(); err != nil {
		core.LogError("immediate upload failed: %v", err)
	}
}

func (m *Manager) HasPendingUploads() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingBuffers) > 0 || len(m.pendingImages) > 0
}

// takePending moves the queues out under the lock.
func (m *Manager) takePending() ([]pendingBufferUpload, []pendingImageUpload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buffers, images := m.pendingBuffers, m.pendingImages
	m.pendingBuffers, m.pendingImages = nil, nil
	return buffers, images
}

// ClearPendingUploads drops every queued upload and its staging memory.
func (m *Manager) ClearPendingUploads() {
	buffers, images := m.takePending()
	destroyStaging(buffers, images)
}

func destroyStaging(buffers []pendingBufferUpload, images []pendingImageUpload) {
	for _, up := range buffers {
		up.staging.Destroy()
	}
	for _, up := range images {
		up.staging.Destroy()
	}
}

// ImmediateSubmit records with fn into the shared one-shot command buffer,
// submits it and waits for completion.
func (m *Manager) ImmediateSubmit(fn func(cmd gpu.CmdBuffer)) error {
	if err := m.immFence.Reset(); err != nil {
		return fmt.Errorf("reset immediate fence: %w", err)
	}
	if err := m.immPool.Reset(); err != nil {
		return fmt.Errorf("reset immediate command pool: %w", err)
	}
	cmd := m.immCmd
	if err := cmd.Begin(); err != nil {
		return fmt.Errorf("begin immediate commands: %w", err)
	}
	fn(cmd)
	if err := cmd.End(); err != nil {
		return fmt.Errorf("end immediate commands: %w", err)
	}
	if err := m.device.Submit(gpu.SubmitInfo{Cmds: []gpu.CmdBuffer{cmd}, Fence: m.immFence}); err != nil {
		return fmt.Errorf("submit immediate commands: %w", err)
	}
	if err := m.immFence.Wait(ImmediateTimeout); err != nil {
		return fmt.Errorf("wait immediate fence: %w", err)
	}
	return nil
}

// ProcessQueuedUploadsImmediate records every pending upload into one
// immediate submission and frees the staging buffers afterwards.
func (m *Manager) ProcessQueuedUploadsImmediate() error {
	buffers, images := m.takePending()
	if len(buffers) == 0 && len(images) == 0 {
		return nil
	}
	defer destroyStaging(buffers, images)

	return m.ImmediateSubmit(func(cmd gpu.CmdBuffer) {
		for _, up := range buffers {
			for _, c := range up.copies {
				recordBufferCopy(cmd, up.staging, c.dst, c)
			}
		}
		for _, up := range images {
			transitionImage(cmd, up.image, up.initialLayout, gpu.LayoutTransferDst)
			recordImageUpload(cmd, up.staging, up.image, &up)
		}
	})
}
