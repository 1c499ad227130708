package pipelines

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu/gputest"
)

func writeShader(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

func touch(t *testing.T, path string, offset time.Duration) {
	t.Helper()
	stamp := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func newTestManager(t *testing.T, dev *gputest.Device) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	writeShader(t, dir, "mesh.vert.spv", "vert")
	writeShader(t, dir, "mesh.frag.spv", "frag")
	m, err := NewManager(dev, nil, core.PipelineSettings{ShaderDir: dir, HotReload: true})
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m, dir
}

var meshSpec = GraphicsSpec{
	VertexShader:   "mesh.vert.spv",
	FragmentShader: "mesh.frag.spv",
	PushConstants:  []gpu.PushConstantRange{{Stages: gpu.ShaderStageVertex, Size: 64}},
	Configure: func(desc *gpu.GraphicsPipelineDesc) {
		desc.ColorFormats = []gpu.Format{gpu.FormatR16G16B16A16Sfloat}
		desc.DepthFormat = gpu.FormatD32Sfloat
		desc.DepthTest = true
		desc.DepthWrite = true
	},
}

func completedJobs(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed)
}

func pipelineID(p gpu.Pipeline) int {
	return p.(*gputest.Pipeline).ID
}

func TestRegisterGraphicsAndLookup(t *testing.T) {
	dev := gputest.NewDevice()
	m, _ := newTestManager(t, dev)

	require.NoError(t, m.RegisterGraphics("mesh", meshSpec))
	p, layout, ok := m.GetGraphics("mesh")
	require.True(t, ok)
	assert.NotNil(t, layout)
	require.Len(t, dev.Pipelines, 1)
	assert.Equal(t, dev.Pipelines[0].ID, pipelineID(p))

	desc := dev.Pipelines[0].Graphics
	assert.NotNil(t, desc.VertexShader)
	assert.NotNil(t, desc.FragmentShader)
	assert.Equal(t, []gpu.Format{gpu.FormatR16G16B16A16Sfloat}, desc.ColorFormats)
	assert.Equal(t, gpu.CompareGreaterOrEqual, desc.DepthCompare)
	assert.Equal(t, layout, desc.Layout)

	err := m.RegisterGraphics("mesh", meshSpec)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
	assert.Len(t, dev.Pipelines, 1)

	info := m.DebugGraphics()
	require.Len(t, info, 1)
	assert.Equal(t, "mesh", info[0].Name)
	assert.True(t, info[0].Valid)

	m.Unregister("mesh")
	_, _, ok = m.GetGraphics("mesh")
	assert.False(t, ok)
	assert.Equal(t, 1, dev.Pipelines[0].DestroyCount)
}

func TestRegisterGraphicsMissingShader(t *testing.T) {
	dev := gputest.NewDevice()
	m, _ := newTestManager(t, dev)

	err := m.RegisterGraphics("broken", GraphicsSpec{VertexShader: "missing.vert.spv"})
	require.Error(t, err)
	assert.False(t, m.HasGraphics("broken"))
	assert.Empty(t, dev.Pipelines)
}

func TestHotReloadQueuesOneRebuildPerPipeline(t *testing.T) {
	dev := gputest.NewDevice()
	m, dir := newTestManager(t, dev)

	require.NoError(t, m.RegisterGraphics("P", meshSpec))
	old := dev.Pipelines[0]

	touch(t, filepath.Join(dir, "mesh.frag.spv"), time.Hour)
	m.HotReloadChanged()
	m.HotReloadChanged()
	assert.True(t, m.Reloading("P"))

	require.Eventually(t, func() bool { return completedJobs(m) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, old.DestroyCount)

	m.PumpMainThread()
	require.Len(t, dev.Pipelines, 2)
	assert.Equal(t, 1, old.DestroyCount)
	assert.Equal(t, 0, dev.Pipelines[1].DestroyCount)
	assert.False(t, m.Reloading("P"))

	p, _, ok := m.GetGraphics("P")
	require.True(t, ok)
	assert.Equal(t, dev.Pipelines[1].ID, pipelineID(p))

	// The fresh record carries the new stamp.
	m.HotReloadChanged()
	assert.False(t, m.Reloading("P"))
}

func TestHotReloadIgnoresUnchangedShaders(t *testing.T) {
	dev := gputest.NewDevice()
	m, _ := newTestManager(t, dev)

	require.NoError(t, m.RegisterGraphics("P", meshSpec))
	m.HotReloadChanged()
	assert.False(t, m.Reloading("P"))
	m.PumpMainThread()
	assert.Len(t, dev.Pipelines, 1)
}

func TestHotReloadFailureKeepsOldPipeline(t *testing.T) {
	dev := gputest.NewDevice()
	dev.ShaderError = func(code []byte) error {
		if string(code) == "broken" {
			return errors.New("syntax error")
		}
		return nil
	}
	m, dir := newTestManager(t, dev)
	require.NoError(t, m.RegisterGraphics("P", meshSpec))

	frag := writeShader(t, dir, "mesh.frag.spv", "broken")
	touch(t, frag, time.Hour)
	m.HotReloadChanged()
	require.Eventually(t, func() bool { return !m.Reloading("P") }, 2*time.Second, time.Millisecond)

	m.PumpMainThread()
	p, _, ok := m.GetGraphics("P")
	require.True(t, ok)
	assert.Equal(t, dev.Pipelines[0].ID, pipelineID(p))
	assert.Equal(t, 0, dev.Pipelines[0].DestroyCount)

	writeShader(t, dir, "mesh.frag.spv", "fixed")
	touch(t, frag, 2*time.Hour)
	m.HotReloadChanged()
	require.Eventually(t, func() bool { return completedJobs(m) == 1 }, 2*time.Second, time.Millisecond)
	m.PumpMainThread()

	p, _, ok = m.GetGraphics("P")
	require.True(t, ok)
	assert.NotEqual(t, dev.Pipelines[0].ID, pipelineID(p))
	assert.Equal(t, 1, dev.Pipelines[0].DestroyCount)
}

func TestUnregisterDuringRebuildDiscardsResult(t *testing.T) {
	dev := gputest.NewDevice()
	m, dir := newTestManager(t, dev)
	require.NoError(t, m.RegisterGraphics("P", meshSpec))

	touch(t, filepath.Join(dir, "mesh.vert.spv"), time.Hour)
	m.HotReloadChanged()
	require.Eventually(t, func() bool { return completedJobs(m) == 1 }, 2*time.Second, time.Millisecond)

	m.Unregister("P")
	m.PumpMainThread()

	require.Len(t, dev.Pipelines, 2)
	assert.Equal(t, 1, dev.Pipelines[0].DestroyCount)
	assert.Equal(t, 1, dev.Pipelines[1].DestroyCount)
	assert.False(t, m.HasGraphics("P"))
	assert.False(t, m.Reloading("P"))
}

func TestShutdownDestroysFinishedRebuilds(t *testing.T) {
	dev := gputest.NewDevice()
	dir := t.TempDir()
	writeShader(t, dir, "mesh.vert.spv", "vert")
	writeShader(t, dir, "mesh.frag.spv", "frag")
	m, err := NewManager(dev, nil, core.PipelineSettings{ShaderDir: dir})
	require.NoError(t, err)

	require.NoError(t, m.RegisterGraphics("P", meshSpec))
	touch(t, filepath.Join(dir, "mesh.frag.spv"), time.Hour)
	m.HotReloadChanged()
	require.Eventually(t, func() bool { return completedJobs(m) == 1 }, 2*time.Second, time.Millisecond)

	m.Shutdown()
	require.Len(t, dev.Pipelines, 2)
	for _, p := range dev.Pipelines {
		assert.Equal(t, 1, p.DestroyCount)
	}

	// Stopped managers queue nothing.
	m.HotReloadChanged()
	assert.False(t, m.Reloading("P"))
}

func TestShaderPathResolution(t *testing.T) {
	m := &Manager{shaderDir: "shaders"}
	assert.Equal(t, filepath.Join("shaders", "a.spv"), m.ShaderPath("a.spv"))
	assert.Equal(t, "/abs/a.spv", m.ShaderPath("/abs/a.spv"))
	assert.Equal(t, "", m.ShaderPath(""))
}
