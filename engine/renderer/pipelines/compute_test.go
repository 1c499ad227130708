package pipelines

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/resources"
)

func newComputeManager(t *testing.T) (*Manager, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	res, err := resources.NewManager(dev, resources.UploadImmediate)
	require.NoError(t, err)
	dir := t.TempDir()
	writeShader(t, dir, "blur.comp.spv", "comp")
	m, err := NewManager(dev, res, core.PipelineSettings{ShaderDir: dir})
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	require.NoError(t, m.CreateCompute("blur", ComputeSpec{
		Shader:           "blur.comp.spv",
		Bindings:         []gpu.DescriptorType{gpu.DescriptorStorageImage, gpu.DescriptorStorageBuffer},
		PushConstantSize: 16,
		Specialization:   []uint32{8, 8},
	}))
	return m, dev
}

func TestDispatchGroups(t *testing.T) {
	assert.EqualValues(t, 120, DispatchGroups(1920, 16))
	assert.EqualValues(t, 68, DispatchGroups(1080, 16))
	assert.EqualValues(t, 5, DispatchGroups(5, 0))

	info := Dispatch2D(1920, 1080, 16, 16)
	assert.Equal(t, [3]uint32{120, 68, 1}, [3]uint32{info.GroupsX, info.GroupsY, info.GroupsZ})
	info = Dispatch3D(64, 64, 9, 8, 8, 8)
	assert.Equal(t, [3]uint32{8, 8, 2}, [3]uint32{info.GroupsX, info.GroupsY, info.GroupsZ})
}

func TestCreateComputeBuildsLayouts(t *testing.T) {
	m, dev := newComputeManager(t)

	require.Len(t, dev.Pipelines, 1)
	p := dev.Pipelines[0]
	assert.Equal(t, gpu.BindCompute, p.BindPoint())
	require.NotNil(t, p.Compute)
	assert.Equal(t, []uint32{8, 8}, p.Compute.Specialization)

	layout := p.Compute.Layout.(*gputest.PipelineLayout)
	require.Len(t, layout.Sets, 1)
	assert.Len(t, layout.Sets[0].Bindings(), 2)
	assert.Equal(t, []gpu.PushConstantRange{{Stages: gpu.ShaderStageCompute, Size: 16}}, layout.PushConstants)

	assert.ErrorIs(t, m.CreateCompute("blur", ComputeSpec{Shader: "blur.comp.spv"}), core.ErrAlreadyExists)
	assert.Equal(t, []string{"blur"}, m.ComputeNames())
}

func TestDispatchRecordsBindingsAndBarriers(t *testing.T) {
	m, dev := newComputeManager(t)
	img, err := dev.NewImage(gpu.ImageDesc{Format: gpu.FormatR16G16B16A16Sfloat, Extent: gpu.Extent3D{Width: 64, Height: 64}, Usage: gpu.ImageUsageStorage})
	require.NoError(t, err)
	buf, err := dev.NewBuffer(256, gpu.BufferUsageStorage, gpu.MemoryGPUOnly)
	require.NoError(t, err)

	info := Dispatch2D(64, 64, 8, 8)
	info.Bindings = []Binding{StorageImage(0, img.View()), StorageBuffer(1, buf, 0, 0)}
	info.PushConstants = make([]byte, 16)
	info.BufferBarriers = []gpu.BufferBarrier{{Buffer: buf, SrcStage: gpu.StageTransfer, SrcAccess: gpu.AccessTransferWrite, DstStage: gpu.StageComputeShader, DstAccess: gpu.AccessShaderStorageRead}}
	info.After = []gpu.MemoryBarrier{{SrcStage: gpu.StageComputeShader, SrcAccess: gpu.AccessShaderStorageWrite, DstStage: gpu.StageFragmentShader, DstAccess: gpu.AccessShaderSampledRead}}

	cmd := dev.NewCmd()
	require.NoError(t, m.Dispatch(cmd, "blur", info))
	assert.Equal(t, []gputest.Op{
		gputest.OpBindPipeline, gputest.OpBindSets, gputest.OpPushConstants,
		gputest.OpBarrier, gputest.OpDispatch, gputest.OpBarrier,
	}, cmd.Ops())

	sets := cmd.Find(gputest.OpBindSets)[0].Sets
	require.Len(t, sets, 1)
	set := sets[0].(*gputest.DescriptorSet)
	w, ok := set.Write(0)
	require.True(t, ok)
	assert.Equal(t, gpu.LayoutGeneral, w.Layout)
	w, ok = set.Write(1)
	require.True(t, ok)
	assert.Equal(t, gpu.WholeSize, w.Size)

	barriers := cmd.BufferBarriers()
	require.Len(t, barriers, 1)
	assert.Equal(t, gpu.WholeSize, barriers[0].Size)
	assert.Equal(t, [3]uint32{8, 8, 1}, cmd.Find(gputest.OpDispatch)[0].Groups)

	assert.ErrorIs(t, m.Dispatch(cmd, "missing", info), core.ErrNotFound)
}

func TestDispatchImmediateSubmits(t *testing.T) {
	m, dev := newComputeManager(t)

	require.NoError(t, m.DispatchImmediate("blur", DispatchInfo{GroupsX: 4}))
	require.Len(t, dev.Submits, 1)
	cmd := dev.Submits[0].Cmds[0].(*gputest.CmdBuffer)
	dispatches := cmd.Find(gputest.OpDispatch)
	require.Len(t, dispatches, 1)
	assert.Equal(t, [3]uint32{4, 1, 1}, dispatches[0].Groups)

	assert.ErrorIs(t, m.DispatchImmediate("missing", DispatchInfo{}), core.ErrNotFound)
}

func TestComputeInstanceLifecycle(t *testing.T) {
	m, dev := newComputeManager(t)
	ring, err := frame.NewRing(dev, 2, nil)
	require.NoError(t, err)
	m.SetFrameSource(ring.Current)

	name, err := m.CreateInstance("", "blur")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "blur."))
	assert.True(t, m.HasInstance(name))

	_, err = m.CreateInstance(name, "blur")
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
	_, err = m.CreateInstance("other", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	first, err := m.CreateAndBindStorageImage(name, 0, gpu.Extent3D{Width: 32, Height: 32, Depth: 1}, gpu.FormatR16G16B16A16Sfloat, 0)
	require.NoError(t, err)
	second, err := m.CreateAndBindStorageImage(name, 0, gpu.Extent3D{Width: 16, Height: 16, Depth: 1}, gpu.FormatR16G16B16A16Sfloat, 0)
	require.NoError(t, err)
	_, err = m.CreateAndBindStorageBuffer(name, 1, 1024, 0)
	require.NoError(t, err)

	cmd := dev.NewCmd()
	require.NoError(t, m.DispatchInstance(cmd, name, Dispatch2D(16, 16, 8, 8)))
	set := cmd.Find(gputest.OpBindSets)[0].Sets[0].(*gputest.DescriptorSet)
	assert.Equal(t, second, set.Image(0))
	w, ok := set.Write(1)
	require.True(t, ok)
	assert.EqualValues(t, 1024, w.Size)

	m.DestroyInstance(name)
	assert.False(t, m.HasInstance(name))
	assert.Equal(t, 1, first.(*gputest.Image).DestroyCount)
	assert.Equal(t, 1, second.(*gputest.Image).DestroyCount)
	assert.ErrorIs(t, m.DispatchInstance(cmd, name, DispatchInfo{}), core.ErrNotFound)
}
