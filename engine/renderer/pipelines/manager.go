// Package pipelines keeps graphics and compute pipelines by name. Graphics
// pipelines are rebuilt on a background goroutine when their shader files
// change and swapped in on the main thread.
package pipelines

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// Resources is the part of the resource manager compute instances and
// immediate dispatches need.
type Resources interface {
	ImmediateSubmit(fn func(cmd gpu.CmdBuffer)) error
	CreateImage(extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool) (gpu.Image, error)
	CreateBuffer(size uint64, usage gpu.BufferUsage, mem gpu.MemoryUsage) (gpu.Buffer, error)
}

// computeRatios sizes the manager's own descriptor pools.
var computeRatios = []gpu.PoolRatio{
	{Type: gpu.DescriptorStorageImage, Ratio: 2},
	{Type: gpu.DescriptorStorageBuffer, Ratio: 2},
	{Type: gpu.DescriptorUniformBuffer, Ratio: 1},
	{Type: gpu.DescriptorCombinedImageSampler, Ratio: 2},
}

type Manager struct {
	device    gpu.Device
	resources Resources
	shaderDir string

	// Main thread only.
	graphics  map[string]*graphicsRecord
	compute   map[string]*computeRecord
	instances map[string]*computeInstance

	descriptors  *frame.DescriptorAllocator
	currentFrame func() *frame.Frame

	// Guards the rebuild queues shared with the worker.
	mu        sync.Mutex
	cond      *sync.Cond
	running   bool
	pending   []reloadJob
	completed []reloadJob
	inflight  map[string]struct{}
	done      chan struct{}
}

func NewManager(device gpu.Device, res Resources, settings core.PipelineSettings) (*Manager, error) {
	descriptors, err := frame.NewDescriptorAllocator(device, 64, computeRatios)
	if err != nil {
		err = fmt.Errorf("failed to create compute descriptor allocator: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	m := &Manager{
		device:      device,
		resources:   res,
		shaderDir:   settings.ShaderDir,
		graphics:    make(map[string]*graphicsRecord),
		compute:     make(map[string]*computeRecord),
		instances:   make(map[string]*computeInstance),
		descriptors: descriptors,
		inflight:    make(map[string]struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	m.startWorker()
	return m, nil
}

// SetFrameSource tells the manager where to allocate per-frame descriptor
// sets for compute dispatches.
func (m *Manager) SetFrameSource(fn func() *frame.Frame) {
	m.currentFrame = fn
}

// Shutdown stops the rebuild worker, then destroys every pipeline and instance.
func (m *Manager) Shutdown() {
	m.stopWorker()

	for name := range m.instances {
		m.DestroyInstance(name)
	}
	for name, rec := range m.graphics {
		rec.destroy()
		delete(m.graphics, name)
	}
	for name := range m.compute {
		m.DestroyCompute(name)
	}
	if m.descriptors != nil {
		m.descriptors.Destroy()
		m.descriptors = nil
	}
}

// ShaderPath resolves a shader name against the configured shader directory.
func (m *Manager) ShaderPath(name string) string {
	if name == "" || filepath.IsAbs(name) || m.shaderDir == "" {
		return name
	}
	return filepath.Join(m.shaderDir, name)
}

func readShader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (m *Manager) loadShader(name string) (gpu.ShaderModule, error) {
	path := m.ShaderPath(name)
	code, err := readShader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader %s: %w", path, err)
	}
	mod, err := m.device.NewShaderModule(code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader %s: %w", path, err)
	}
	return mod, nil
}

// modTime returns the zero time when the file cannot be stat'ed.
func (m *Manager) modTime(name string) time.Time {
	if name == "" {
		return time.Time{}
	}
	fi, err := os.Stat(m.ShaderPath(name))
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// GraphicsInfo describes one registered graphics pipeline for debug views.
type GraphicsInfo struct {
	Name           string
	VertexShader   string
	FragmentShader string
	Valid          bool
	Reloading      bool
}

// DebugGraphics lists the graphics pipelines sorted by name.
func (m *Manager) DebugGraphics() []GraphicsInfo {
	names := maps.Keys(m.graphics)
	slices.Sort(names)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GraphicsInfo, 0, len(names))
	for _, name := range names {
		rec := m.graphics[name]
		_, reloading := m.inflight[name]
		out = append(out, GraphicsInfo{
			Name:           name,
			VertexShader:   rec.spec.VertexShader,
			FragmentShader: rec.spec.FragmentShader,
			Valid:          rec.pipeline != nil && rec.layout != nil,
			Reloading:      reloading,
		})
	}
	return out
}

// ComputeNames lists the compute pipelines sorted by name.
func (m *Manager) ComputeNames() []string {
	names := maps.Keys(m.compute)
	slices.Sort(names)
	return names
}
