package engine

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/assets"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/platform"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const targetFrameSeconds float64 = 1.0 / 60.0

// windowHost is the part of the window the run loop drives.
type windowHost interface {
	PumpMessages() bool
	Minimized() bool
	WaitEvents()
	Sleep(ms float64)
	AbsoluteTime() float64
}

// frameDrawer records, submits and presents one frame.
type frameDrawer interface {
	DrawFrame(build renderer.FrameFunc) error
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool
	platform     *platform.Platform
	window       windowHost
	frames       frameDrawer
	device       *vulkan.Device
	renderer     *renderer.Renderer
	watcher      *assets.ShaderWatcher
	settings     *core.Settings
	width        uint32
	height       uint32
	clock        *core.Clock
	lastTime     float64
	lastReport   float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("game and application config are required")
	}
	if g.FnRender == nil {
		return nil, errors.New("game has no render function")
	}
	core.SetLogLevel(g.ApplicationConfig.LogLevel)

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
		platform:     platform.New(),
		settings:     core.DefaultSettings(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}
	e.window = e.platform
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	config := e.gameInstance.ApplicationConfig

	settings, err := core.LoadSettings(config.SettingsPath)
	if err != nil {
		return err
	}
	if settings.Engine.LogLevel != "" {
		core.SetLogLevel(core.ParseLogLevel(settings.Engine.LogLevel))
	}
	e.settings = settings

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, e.onShaderChanged)

	if err := e.platform.Startup(config.Name, config.StartPosX, config.StartPosY, config.StartWidth, config.StartHeight); err != nil {
		return err
	}
	e.width, e.height = e.platform.FramebufferSize()

	if e.device, err = vulkan.New(e.platform.Window, vulkan.Config{AppName: config.Name, Validation: config.Validation}); err != nil {
		return fmt.Errorf("failed to create vulkan device: %w", err)
	}
	if e.renderer, err = renderer.New(e.device, e.platform.FramebufferSize, settings); err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	e.frames = e.renderer

	if settings.Pipelines.HotReload {
		e.startShaderWatcher(settings.Pipelines.ShaderDir)
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.renderer); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// startShaderWatcher logs and carries on when the directory cannot be
// watched; hot reload is a development aid.
func (e *Engine) startShaderWatcher(dir string) {
	if _, err := os.Stat(dir); err != nil {
		core.LogWarn("shader hot reload disabled: %s", err)
		return
	}
	w, err := assets.NewShaderWatcher(dir)
	if err != nil {
		core.LogWarn("shader hot reload disabled: %s", err)
		return
	}
	if err := w.Start(); err != nil {
		core.LogWarn("shader hot reload disabled: %s", err)
		_ = w.Close()
		return
	}
	e.watcher = w
}

func (e *Engine) Run() error {
	if e.frames == nil {
		return errors.New("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()

	e.lastTime = e.clock.Elapsed()
	core.MetricsReset()

	for e.isRunning.Load() {
		if !e.window.PumpMessages() {
			e.isRunning.Store(false)
		}
		// Callbacks only queue; handle them here on the main thread.
		core.EventDispatchPending()
		if !e.isRunning.Load() {
			break
		}

		if e.isSuspended || e.window.Minimized() {
			e.window.WaitEvents()
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.window.AbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.frames.DrawFrame(e.gameInstance.FnRender); err != nil {
			core.LogError("draw frame failed, shutting down: %s", err)
			return err
		}

		// Figure out how long the frame took and, if below the target, give
		// the rest back to the OS.
		frameElapsedTime := e.window.AbsoluteTime() - frameStartTime
		core.MetricsUpdate(frameElapsedTime)
		if remaining := targetFrameSeconds - frameElapsedTime; remaining > 0 && e.settings.Engine.LimitFrames {
			e.window.Sleep(remaining*1000 - 1)
		}

		if currentTime-e.lastReport >= 5.0 {
			stats := core.MetricsFrame()
			core.LogDebug("fps %.0f, frame %.2fms, %d frames", stats.FPS, stats.FrameTimeMS, stats.Frames)
			e.lastReport = currentTime
		}

		e.lastTime = currentTime
	}

	e.clock.Stop()
	return nil
}

// Quit asks the run loop to stop. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

// Shutdown releases everything in reverse creation order. Call it after Run
// returned, on the same goroutine.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
		e.renderer = nil
		e.frames = nil
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	if e.platform.Window != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	errs = append(errs, core.EventSystemShutdown())
	return errors.Join(errs...)
}

func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	width := se.WindowWidth
	height := se.WindowHeight
	if width == e.width && height == e.height && !e.isSuspended {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	// The swapchain is recreated at the start of the next frame.
	if e.renderer != nil {
		e.renderer.Swapchain().ResizeRequested = true
	}
}

func (e *Engine) onShaderChanged(context core.EventContext) {
	path, _ := context.Data.(string)
	core.LogInfo("shader changed on disk: %s", path)
	if e.renderer != nil && e.renderer.Pipelines != nil {
		e.renderer.Pipelines.HotReloadChanged()
	}
}
