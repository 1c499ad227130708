package engine

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel core.LogLevel
	// TOML settings file. Missing keys and a missing file fall back to defaults.
	SettingsPath string
	// Enables the Vulkan validation layer.
	Validation bool
}
