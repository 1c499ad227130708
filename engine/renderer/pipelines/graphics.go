package pipelines

import (
	"fmt"
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// GraphicsSpec describes a graphics pipeline. Shader names are resolved
// against the shader directory. Configure sets topology, raster, depth, blend
// and attachment formats; the manager fills in shaders and layout.
type GraphicsSpec struct {
	VertexShader   string
	FragmentShader string
	SetLayouts     []gpu.DescriptorSetLayout
	PushConstants  []gpu.PushConstantRange
	Configure      func(desc *gpu.GraphicsPipelineDesc)
}

type graphicsRecord struct {
	spec     GraphicsSpec
	pipeline gpu.Pipeline
	layout   gpu.PipelineLayout
	vertTime time.Time
	fragTime time.Time
}

func (r *graphicsRecord) destroy() {
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	if r.layout != nil {
		r.layout.Destroy()
		r.layout = nil
	}
}

// buildGraphics compiles spec into a fresh record. It only touches the
// device, so the rebuild worker may call it.
func (m *Manager) buildGraphics(spec GraphicsSpec) (*graphicsRecord, error) {
	var vert, frag gpu.ShaderModule
	var err error
	if spec.VertexShader != "" {
		if vert, err = m.loadShader(spec.VertexShader); err != nil {
			return nil, err
		}
		defer vert.Destroy()
	}
	if spec.FragmentShader != "" {
		if frag, err = m.loadShader(spec.FragmentShader); err != nil {
			return nil, err
		}
		defer frag.Destroy()
	}

	layout, err := m.device.NewPipelineLayout(spec.SetLayouts, spec.PushConstants)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}

	desc := &gpu.GraphicsPipelineDesc{
		Topology:     gpu.TopologyTriangleList,
		Cull:         gpu.CullNone,
		DepthCompare: gpu.CompareGreaterOrEqual,
		Blend:        gpu.BlendDisabled,
	}
	if spec.Configure != nil {
		spec.Configure(desc)
	}
	desc.VertexShader = vert
	desc.FragmentShader = frag
	desc.Layout = layout

	pipeline, err := m.device.NewGraphicsPipeline(desc)
	if err != nil {
		layout.Destroy()
		return nil, fmt.Errorf("failed to create graphics pipeline: %w", err)
	}

	return &graphicsRecord{
		spec:     spec,
		pipeline: pipeline,
		layout:   layout,
		vertTime: m.modTime(spec.VertexShader),
		fragTime: m.modTime(spec.FragmentShader),
	}, nil
}

// RegisterGraphics builds and stores a graphics pipeline under name.
func (m *Manager) RegisterGraphics(name string, spec GraphicsSpec) error {
	if _, exists := m.graphics[name]; exists {
		err := fmt.Errorf("graphics pipeline %q: %w", name, core.ErrAlreadyExists)
		core.LogWarn(err.Error())
		return err
	}
	rec, err := m.buildGraphics(spec)
	if err != nil {
		err = fmt.Errorf("graphics pipeline %q: %w", name, err)
		core.LogError(err.Error())
		return err
	}
	m.graphics[name] = rec
	return nil
}

// Unregister destroys the graphics pipeline name. A rebuild still in flight
// is discarded when it completes.
func (m *Manager) Unregister(name string) {
	rec, ok := m.graphics[name]
	if !ok {
		return
	}
	rec.destroy()
	delete(m.graphics, name)
}

// GetGraphics returns the pipeline and layout currently published under name.
func (m *Manager) GetGraphics(name string) (gpu.Pipeline, gpu.PipelineLayout, bool) {
	rec, ok := m.graphics[name]
	if !ok || rec.pipeline == nil || rec.layout == nil {
		return nil, nil, false
	}
	return rec.pipeline, rec.layout, true
}

func (m *Manager) HasGraphics(name string) bool {
	_, ok := m.graphics[name]
	return ok
}
