package engine

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          renderer.FrameFunc
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the renderer exists, before the first frame.
type Initialize func(r *renderer.Renderer) error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
