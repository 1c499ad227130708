package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/math"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/graph"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/swapchain"
)

type uploadHost struct {
	dev   *gputest.Device
	frame *frame.Frame
}

func (h *uploadHost) Device() gpu.Device                               { return h.dev }
func (h *uploadHost) CurrentFrame() *frame.Frame                       { return h.frame }
func (h *uploadHost) DrawExtent() gpu.Extent2D                         { return gpu.Extent2D{Width: 1280, Height: 720} }
func (h *uploadHost) Swapchain() *swapchain.Swapchain                  { return nil }
func (h *uploadHost) DrawLetterbox(cmd gpu.CmdBuffer, src gpu.ImageView) {}

func newManager(t *testing.T, mode UploadMode) (*Manager, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	m, err := NewManager(dev, mode)
	require.NoError(t, err)
	return m, dev
}

func newUploadGraph(t *testing.T, dev *gputest.Device) (*graph.Graph[*uploadHost], *uploadHost) {
	t.Helper()
	ring, err := frame.NewRing(dev, 2, nil)
	require.NoError(t, err)
	host := &uploadHost{dev: dev, frame: ring.Current()}
	return graph.New(host), host
}

func TestImmediateSubmitReusesCommandBuffer(t *testing.T) {
	m, dev := newManager(t, UploadImmediate)

	calls := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, m.ImmediateSubmit(func(cmd gpu.CmdBuffer) { calls++ }))
	}
	assert.Equal(t, 3, calls)
	require.Len(t, dev.Submits, 3)
	first := dev.Submits[0].Cmds[0]
	for _, s := range dev.Submits[1:] {
		assert.Equal(t, first, s.Cmds[0])
		assert.NotNil(t, s.Fence)
	}
	assert.Equal(t, 3, first.(*gputest.CmdBuffer).Begun)
}

func TestImmediateBufferUploadCopiesData(t *testing.T) {
	m, dev := newManager(t, UploadImmediate)

	dst, err := m.CreateBuffer(16, gpu.BufferUsageUniform|gpu.BufferUsageTransferDst, gpu.MemoryCPUToGPU)
	require.NoError(t, err)

	require.NoError(t, m.UploadBuffer([]byte{1, 2, 3, 4}, dst, 8))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0}, dst.Bytes())
	assert.False(t, m.HasPendingUploads())
	require.Len(t, dev.Submits, 1)

	staging := dev.Buffers[1]
	assert.Equal(t, 1, staging.DestroyCount)

	err = m.UploadBuffer(make([]byte, 12), dst, 8)
	assert.Error(t, err)
	assert.Len(t, dev.Submits, 1)
}

func TestDeferredMeshUploadRunsInGraphPass(t *testing.T) {
	m, dev := newManager(t, UploadDeferred)
	g, host := newUploadGraph(t, dev)

	vertices, indices := math.NewCube(math.NewVec4(1, 1, 1, 1))
	mesh, err := m.UploadMesh(indices, vertices)
	require.NoError(t, err)
	assert.EqualValues(t, 24, mesh.VertexCount)
	assert.EqualValues(t, 36, mesh.IndexCount)
	assert.NotZero(t, mesh.VertexAddress)
	assert.NotZero(t, mesh.IndexAddress)

	assert.True(t, m.HasPendingUploads())
	assert.Empty(t, dev.Submits)

	RegisterUploadPass(m, g, host.frame)
	assert.False(t, m.HasPendingUploads())
	require.Equal(t, 1, g.PassCount())
	assert.Equal(t, UploadPassName, g.PassName(0))

	require.True(t, g.Compile())
	cmd := dev.NewCmd()
	g.Execute(cmd)

	copies := cmd.Find(gputest.OpCopyBuffer)
	require.Len(t, copies, 2)
	vertexSize := uint64(len(vertices) * math.VertexSize)
	assert.Equal(t, mesh.Vertex, copies[0].Dst)
	assert.Equal(t, vertexSize, copies[0].BufferCopies[0].Size)
	assert.Equal(t, mesh.Index, copies[1].Dst)
	assert.Equal(t, vertexSize, copies[1].BufferCopies[0].SrcOffset)
	assert.Equal(t, uint64(len(indices)*4), copies[1].BufferCopies[0].Size)

	staging := dev.Buffers[2]
	assert.Equal(t, 0, staging.DestroyCount)
	host.frame.Deletion.Flush()
	assert.Equal(t, 1, staging.DestroyCount)
}

func TestDeferredMipmappedImageUpload(t *testing.T) {
	m, dev := newManager(t, UploadDeferred)
	g, host := newUploadGraph(t, dev)

	data := make([]byte, 64*64*4)
	img, err := m.CreateImageData(data, gpu.Extent3D{Width: 64, Height: 64}, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, true)
	require.NoError(t, err)
	assert.EqualValues(t, 7, img.Levels())
	assert.NotZero(t, img.Usage()&gpu.ImageUsageTransferSrc)

	RegisterUploadPass(m, g, host.frame)
	require.True(t, g.Compile())

	imgBarriers, _ := g.PassBarriers(0)
	require.Len(t, imgBarriers, 1)
	assert.Equal(t, gpu.LayoutUndefined, imgBarriers[0].OldLayout)
	assert.Equal(t, gpu.LayoutTransferDst, imgBarriers[0].NewLayout)

	cmd := dev.NewCmd()
	g.Execute(cmd)

	require.Len(t, cmd.Find(gputest.OpCopyToImage), 1)
	blits := cmd.Find(gputest.OpBlit)
	require.Len(t, blits, 6)
	last := blits[5].Blits[0]
	assert.EqualValues(t, 6, last.DstLevel)
	assert.Equal(t, gpu.Offset3D{X: 1, Y: 1, Z: 1}, last.DstOffset[1])

	barriers := cmd.ImageBarriers()
	require.Len(t, barriers, 9)
	final := barriers[len(barriers)-1]
	assert.Equal(t, gpu.LayoutTransferSrc, final.OldLayout)
	assert.Equal(t, gpu.LayoutShaderReadOnly, final.NewLayout)
}

func TestImmediateCompressedUploadCopiesEveryLevel(t *testing.T) {
	m, dev := newManager(t, UploadImmediate)

	data := make([]byte, 40)
	img, err := m.CreateImageCompressed(data, gpu.FormatBC1RGBAUnorm, []MipLevelCopy{
		{Offset: 0, Length: 32, Width: 8, Height: 8},
		{Offset: 32, Length: 8, Width: 4, Height: 4},
	}, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, img.Levels())
	assert.NotZero(t, img.Usage()&gpu.ImageUsageSampled)

	require.Len(t, dev.Submits, 1)
	cmd := dev.Submits[0].Cmds[0].(*gputest.CmdBuffer)
	copies := cmd.Find(gputest.OpCopyToImage)
	require.Len(t, copies, 1)
	require.Len(t, copies[0].ImageCopies, 2)
	assert.EqualValues(t, 32, copies[0].ImageCopies[1].BufferOffset)
	assert.EqualValues(t, 1, copies[0].ImageCopies[1].Level)
	assert.Empty(t, cmd.Find(gputest.OpBlit))

	barriers := cmd.ImageBarriers()
	require.Len(t, barriers, 2)
	assert.Equal(t, gpu.LayoutShaderReadOnly, barriers[1].NewLayout)
	assert.Equal(t, 1, dev.Buffers[0].DestroyCount)
}

func TestUploadValidation(t *testing.T) {
	m, dev := newManager(t, UploadDeferred)

	_, err := m.CreateImageData(make([]byte, 10), gpu.Extent3D{Width: 4, Height: 4}, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false)
	assert.Error(t, err)

	_, err = m.UploadMesh(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = m.CreateImageCompressed(make([]byte, 8), gpu.FormatBC1RGBAUnorm, []MipLevelCopy{{Offset: 4, Length: 8, Width: 4, Height: 4}}, 0)
	assert.Error(t, err)

	assert.Empty(t, dev.Buffers)
	assert.False(t, m.HasPendingUploads())
}

func TestPendingQueueHandling(t *testing.T) {
	m, dev := newManager(t, UploadDeferred)

	require.NoError(t, m.ProcessQueuedUploadsImmediate())
	assert.Empty(t, dev.Submits)

	_, err := m.CreateBufferData([]byte{1, 2, 3, 4}, gpu.BufferUsageStorage, gpu.MemoryGPUOnly)
	require.NoError(t, err)
	assert.True(t, m.HasPendingUploads())

	m.ClearPendingUploads()
	assert.False(t, m.HasPendingUploads())
	assert.Equal(t, 1, dev.Buffers[1].DestroyCount)
	assert.Empty(t, dev.Submits)

	g, host := newUploadGraph(t, dev)
	RegisterUploadPass(m, g, host.frame)
	assert.Zero(t, g.PassCount())
}

func TestDeferredUploadFlushesOnModeSwitch(t *testing.T) {
	m, dev := newManager(t, UploadDeferred)

	dst, err := m.CreateBuffer(4, gpu.BufferUsageStorage, gpu.MemoryCPUToGPU)
	require.NoError(t, err)
	require.NoError(t, m.UploadBuffer([]byte{9, 8, 7, 6}, dst, 0))
	assert.Empty(t, dev.Submits)

	m.SetUploadMode(UploadImmediate)
	require.NoError(t, m.ProcessQueuedUploadsImmediate())
	assert.Equal(t, []byte{9, 8, 7, 6}, dst.Bytes())
	assert.Equal(t, "immediate", m.UploadMode().String())
}
