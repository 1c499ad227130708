package testbed

import (
	"encoding/binary"
	stdmath "math"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/math"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/graph"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/pipelines"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/swapchain"
)

const (
	gradientPipeline = "gradient"
	trianglePipeline = "triangle"

	gradientShader       = "gradient.comp.spv"
	triangleVertexShader = "triangle.vert.spv"
	triangleFragShader   = "triangle.frag.spv"

	gradientLocalSize = 16
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	time   float64
	width  uint32
	height uint32

	gradient bool
	triangle bool
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				StartPosX:    100,
				StartPosY:    100,
				StartWidth:   1280,
				StartHeight:  720,
				Name:         "Quaternion Engine",
				LogLevel:     core.DebugLevel,
				SettingsPath: "settings.toml",
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize registers the demo pipelines. A missing shader only disables
// the pass that needs it.
func (g *TestGame) Initialize(r *renderer.Renderer) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()

	err := r.Pipelines.CreateCompute(gradientPipeline, pipelines.ComputeSpec{
		Shader:           gradientShader,
		Bindings:         []gpu.DescriptorType{gpu.DescriptorStorageImage},
		PushConstantSize: 32,
	})
	if err != nil {
		core.LogWarn("gradient pass disabled: %s", err)
	}
	state.gradient = err == nil

	err = r.Pipelines.RegisterGraphics(trianglePipeline, pipelines.GraphicsSpec{
		VertexShader:   triangleVertexShader,
		FragmentShader: triangleFragShader,
		PushConstants: []gpu.PushConstantRange{
			{Stages: gpu.ShaderStageVertex, Size: 64},
		},
		Configure: func(desc *gpu.GraphicsPipelineDesc) {
			desc.Topology = gpu.TopologyTriangleList
			desc.Cull = gpu.CullNone
			desc.Blend = gpu.BlendAlpha
			desc.ColorFormats = []gpu.Format{swapchain.DrawFormat}
		},
	})
	if err != nil {
		core.LogWarn("triangle pass disabled: %s", err)
	}
	state.triangle = err == nil
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().time += deltaTime
	return nil
}

// Render appends the demo passes: a compute gradient into the draw image,
// then a spinning triangle on top.
func (g *TestGame) Render(r *renderer.Renderer, rg *graph.Graph[*renderer.Renderer], draw graph.ImageHandle) {
	state := g.state()
	t := float32(state.time)

	if state.gradient {
		rg.AddPass("background.gradient", graph.PassCompute,
			func(b *graph.Builder, ctx *renderer.Renderer) {
				b.Write(draw, graph.ImageComputeWrite)
			},
			func(cmd gpu.CmdBuffer, res *graph.PassResources, ctx *renderer.Renderer) {
				extent := res.Extent(draw)
				info := pipelines.Dispatch2D(extent.Width, extent.Height, gradientLocalSize, gradientLocalSize)
				info.Bindings = []pipelines.Binding{pipelines.StorageImage(0, res.ImageView(draw))}
				info.PushConstants = packFloats(
					0.05, 0.08, 0.15+0.05*ksin(t*0.5), 1,
					0.35, 0.15, 0.45, 1,
				)
				if err := ctx.Pipelines.Dispatch(cmd, gradientPipeline, info); err != nil {
					core.LogError("gradient dispatch: %s", err)
				}
			})
	}

	if state.triangle {
		rg.AddPass("geometry.triangle", graph.PassGraphics,
			func(b *graph.Builder, ctx *renderer.Renderer) {
				// Keep the gradient underneath when it ran.
				b.WriteColor(draw, !state.gradient, gpu.ClearColor{0.1, 0.1, 0.1, 1})
			},
			func(cmd gpu.CmdBuffer, res *graph.PassResources, ctx *renderer.Renderer) {
				pipeline, layout, ok := ctx.Pipelines.GetGraphics(trianglePipeline)
				if !ok {
					return
				}
				extent := res.Extent(draw)
				aspect := float32(extent.Width) / float32(max(extent.Height, 1))
				proj := math.NewMat4Perspective(math.DegToRad(60), aspect, 0.1, 100)
				view := math.NewMat4LookAt(math.NewVec3(0, 0, 2.5), math.NewVec3Zero(), math.NewVec3Up())
				mvp := proj.Mul(view).Mul(math.NewMat4EulerY(t))

				cmd.BindPipeline(pipeline)
				cmd.PushConstants(layout, gpu.ShaderStageVertex, 0, packFloats(mvp.Data[:]...))
				cmd.SetViewport(gpu.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1})
				cmd.SetScissor(gpu.Rect2D{Extent: extent})
				cmd.Draw(3, 1, 0, 0)
			})
	}
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed after %.1fs", g.state().time)
	return nil
}

// packFloats lays values out as tightly packed little-endian float32s.
func packFloats(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], stdmath.Float32bits(v))
	}
	return out
}

func ksin(x float32) float32 { return float32(stdmath.Sin(float64(x))) }
