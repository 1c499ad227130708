// Package renderer owns the engine context handed to every render graph pass
// and drives the per-frame loop: wait, acquire, build, compile, execute,
// submit, present.
package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/frame"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/graph"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/pipelines"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/raytracing"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/resources"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/swapchain"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/textures"
)

// Renderer is the engine context. Passes read everything they need from it.
type Renderer struct {
	ID uuid.UUID

	device   gpu.Device
	settings *core.Settings

	ring      *frame.Ring
	swapchain *swapchain.Swapchain

	Resources  *resources.Manager
	Pipelines  *pipelines.Manager
	Textures   *textures.Cache
	RayTracing *raytracing.Manager // nil without device support
	Layouts    *DescriptorLayouts
	Samplers   *Samplers
	Defaults   *DefaultImages
	Graph      *graph.Graph[*Renderer]

	// Scene is the draw list of the frame being built.
	Scene *raytracing.DrawContext

	frame      *frame.Frame
	imageIndex int
	drawExtent gpu.Extent2D
	executed   bool
	letterbox  bool
}

// New creates every manager on top of device. size reports the drawable size
// the swapchain is created with.
func New(device gpu.Device, size swapchain.SizeFunc, settings *core.Settings) (*Renderer, error) {
	if settings == nil {
		settings = core.DefaultSettings()
	}
	r := &Renderer{ID: uuid.New(), device: device, settings: settings}

	var err error
	if r.ring, err = frame.NewRing(device, settings.Engine.FramesInFlight, nil); err != nil {
		return nil, err
	}
	if r.swapchain, err = swapchain.New(device, size, true); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.Resources, err = resources.NewManager(device, resources.UploadDeferred); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.Pipelines, err = pipelines.NewManager(device, r.Resources, settings.Pipelines); err != nil {
		r.Shutdown()
		return nil, err
	}
	r.Pipelines.SetFrameSource(r.CurrentFrame)
	if r.Textures, err = textures.New(settings.Textures); err != nil {
		r.Shutdown()
		return nil, err
	}
	r.RayTracing, err = raytracing.New(r.Resources, settings.Engine.FramesInFlight)
	if errors.Is(err, core.ErrUnsupported) {
		core.LogInfo("device has no acceleration structures, ray queries disabled")
	} else if err != nil {
		r.Shutdown()
		return nil, err
	}

	if r.Layouts, err = newDescriptorLayouts(device, r.RayTracing != nil); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.Samplers, err = newSamplers(device); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.Defaults, err = newDefaultImages(r.Resources); err != nil {
		r.Shutdown()
		return nil, err
	}

	r.Graph = graph.New(r)
	r.Graph.SetTimestamps(settings.Graph.Timestamps)
	r.updateDrawExtent()
	r.letterbox = r.registerLetterbox()

	core.LogInfo("renderer %s ready: %d frames in flight, draw extent %dx%d",
		r.ID, r.ring.Len(), r.drawExtent.Width, r.drawExtent.Height)
	return r, nil
}

// Shutdown waits for the device and releases everything New created.
func (r *Renderer) Shutdown() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogWarn("wait idle before renderer shutdown: %v", err)
	}
	if r.Graph != nil {
		r.Graph.Shutdown()
		r.Graph = nil
	}
	if r.Pipelines != nil {
		r.Pipelines.Shutdown()
		r.Pipelines = nil
	}
	if r.RayTracing != nil {
		r.RayTracing.Shutdown()
		r.RayTracing = nil
	}
	if r.Textures != nil {
		r.Textures.Shutdown()
		r.Textures = nil
	}
	if r.ring != nil {
		r.ring.Destroy()
		r.ring = nil
	}
	if r.Defaults != nil {
		r.Defaults.destroy()
		r.Defaults = nil
	}
	if r.Resources != nil {
		r.Resources.Shutdown()
		r.Resources = nil
	}
	if r.Samplers != nil {
		r.Samplers.destroy()
		r.Samplers = nil
	}
	if r.Layouts != nil {
		r.Layouts.destroy()
		r.Layouts = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	r.frame = nil
}

func (r *Renderer) Device() gpu.Device              { return r.device }
func (r *Renderer) CurrentFrame() *frame.Frame      { return r.frame }
func (r *Renderer) DrawExtent() gpu.Extent2D        { return r.drawExtent }
func (r *Renderer) Swapchain() *swapchain.Swapchain { return r.swapchain }
func (r *Renderer) Settings() *core.Settings        { return r.settings }
func (r *Renderer) FrameNumber() uint64             { return r.ring.FrameNumber() }
func (r *Renderer) SwapchainImageIndex() int        { return r.imageIndex }

// FrameIndex is the ring slot of the current frame.
func (r *Renderer) FrameIndex() int {
	return int(r.ring.FrameNumber() % uint64(r.ring.Len()))
}

// SetScene publishes the draw list the next frames trace against.
func (r *Renderer) SetScene(scene *raytracing.DrawContext) {
	r.Scene = scene
}

// updateDrawExtent scales the swapchain extent by the render scale and
// clamps it to the draw image.
func (r *Renderer) updateDrawExtent() {
	sc := r.swapchain.Extent()
	scale := r.settings.Engine.RenderScale
	if scale <= 0 {
		scale = 1
	}
	w := uint32(float32(sc.Width) * scale)
	h := uint32(float32(sc.Height) * scale)
	if img := r.swapchain.DrawImage(); img != nil {
		w = min(w, img.Extent().Width)
		h = min(h, img.Extent().Height)
	}
	r.drawExtent = gpu.Extent2D{Width: max(w, 1), Height: max(h, 1)}
}

func (r *Renderer) fenceTimeout() time.Duration {
	return time.Duration(r.settings.Engine.FenceTimeoutMS) * time.Millisecond
}

// Resize recreates the swapchain and its render targets at the current
// drawable size.
func (r *Renderer) Resize() error {
	if err := r.swapchain.Resize(); err != nil {
		return err
	}
	r.updateDrawExtent()
	core.LogInfo("renderer resized, draw extent %dx%d", r.drawExtent.Width, r.drawExtent.Height)
	return nil
}

// FrameFunc appends the passes of one frame. draw is the HDR draw image the
// present chain letterboxes onto the swapchain.
type FrameFunc func(r *Renderer, g *graph.Graph[*Renderer], draw graph.ImageHandle)

// DrawFrame renders one frame. A frame skipped because the swapchain is out
// of date is not an error; device loss is.
func (r *Renderer) DrawFrame(build FrameFunc) error {
	if r.swapchain.ResizeRequested {
		if err := r.Resize(); err != nil {
			if errors.Is(err, core.ErrSwapchainBooting) {
				return nil
			}
			return err
		}
	}

	fr, err := r.ring.Wait(r.fenceTimeout())
	if err != nil {
		return err
	}
	r.frame = fr
	if r.executed {
		r.Graph.ResolveTimings()
	}
	if r.RayTracing != nil {
		r.RayTracing.FlushPendingDeletes(fr.Number)
	}

	index, err := r.swapchain.Acquire(fr.ImageAvailable, r.fenceTimeout())
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogDebug("swapchain out of date on acquire, skipping frame %d", fr.Number)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire swapchain image: %w", err)
	}
	r.imageIndex = index

	if err := fr.BeginCommands(); err != nil {
		return fmt.Errorf("begin frame commands: %w", err)
	}
	swap := r.buildGraph(fr, build)

	g := r.Graph
	if g.Compile() {
		g.ApplyOverrides(r.settings.Graph.PassOverrides)
		g.Execute(fr.Cmd)
		r.executed = true
		if swap.Valid() {
			r.swapchain.SetImageLayout(index, g.FinalLayout(swap))
		}
	}
	if err := fr.Cmd.End(); err != nil {
		return fmt.Errorf("end frame commands: %w", err)
	}

	if err := r.device.Submit(gpu.SubmitInfo{
		Cmds:       []gpu.CmdBuffer{fr.Cmd},
		Wait:       []gpu.Semaphore{fr.ImageAvailable},
		WaitStages: []gpu.Stage{gpu.StageColorAttachmentOutput},
		Signal:     []gpu.Semaphore{fr.RenderFinished},
		Fence:      fr.Fence,
	}); err != nil {
		return fmt.Errorf("submit frame %d: %w", fr.Number, err)
	}

	err = r.swapchain.Present(index, fr.RenderFinished)
	if err != nil && !errors.Is(err, core.ErrSwapchainOutOfDate) {
		return fmt.Errorf("present frame %d: %w", fr.Number, err)
	}

	r.Pipelines.PumpMainThread()
	r.ring.Advance()
	return nil
}

// buildGraph registers the passes of fr: pending uploads first, then the
// caller's passes, then the present chain. It returns the swapchain image.
func (r *Renderer) buildGraph(fr *frame.Frame, build FrameFunc) graph.ImageHandle {
	g := r.Graph
	g.Clear()

	r.Textures.PumpLoads(r.Resources, fr)
	if budget := r.settings.Textures.GPUBudget; budget > 0 {
		r.Textures.EvictToBudget(budget)
	}
	if r.RayTracing != nil {
		r.RayTracing.PumpBLASBuilds(r.settings.RayTracing.BLASBuildsPerFrame)
		r.RayTracing.BuildTLASFromDrawContext(r.Scene, &fr.Deletion)
	}

	resources.RegisterUploadPass(r.Resources, g, fr)

	draw := g.ImportDrawImage()
	swap := g.ImportSwapchainImage(r.imageIndex)
	if build != nil {
		build(r, g, draw)
	}
	g.AddPresentChain(draw, swap, nil)
	return swap
}
