package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	KiB = 1 << 10
	MiB = 1 << 20
)

type ShadowMode int

const (
	ShadowModeClipmap ShadowMode = iota
	ShadowModeHybridRayQuery
	ShadowModeRayQueryOnly
)

type ReflectionMode int

const (
	ReflectionModeSSR ReflectionMode = iota
	ReflectionModeSSRRayQueryFallback
	ReflectionModeRayQueryOnly
)

type EngineSettings struct {
	FramesInFlight int     `toml:"frames_in_flight"`
	FenceTimeoutMS int     `toml:"fence_timeout_ms"`
	RenderScale    float32 `toml:"render_scale"`
	LogLevel       string  `toml:"log_level"`
	LimitFrames    bool    `toml:"limit_frames"`
}

type GraphSettings struct {
	Timestamps bool `toml:"timestamps"`
	// Per-pass enable overrides applied after compile.
	PassOverrides map[string]bool `toml:"pass_overrides"`
}

type TextureSettings struct {
	MaxLoadsPerPump      int    `toml:"max_loads_per_pump"`
	MaxBytesPerPump      uint64 `toml:"max_bytes_per_pump"`
	MaxUploadDimension   uint32 `toml:"max_upload_dimension"`
	KeepSourceBytes      bool   `toml:"keep_source_bytes"`
	CPUSourceBudget      uint64 `toml:"cpu_source_budget"`
	GPUBudget            uint64 `toml:"gpu_budget"` // 0 = unlimited
	ReloadCooldownFrames uint32 `toml:"reload_cooldown_frames"`
	DecodeWorkers        int    `toml:"decode_workers"`
}

type PipelineSettings struct {
	ShaderDir string `toml:"shader_dir"`
	HotReload bool   `toml:"hot_reload"`
}

type RayTracingSettings struct {
	BLASBuildsPerFrame int `toml:"blas_builds_per_frame"`
}

type LightingSettings struct {
	ShadowMode        ShadowMode     `toml:"shadow_mode"`
	ReflectionMode    ReflectionMode `toml:"reflection_mode"`
	HybridCascadeMask uint32         `toml:"hybrid_cascade_mask"`
	NDotLThreshold    float32        `toml:"n_dot_l_threshold"`
}

// Settings is the single block passes read through the engine context.
type Settings struct {
	Engine     EngineSettings     `toml:"engine"`
	Graph      GraphSettings      `toml:"graph"`
	Textures   TextureSettings    `toml:"textures"`
	Pipelines  PipelineSettings   `toml:"pipelines"`
	RayTracing RayTracingSettings `toml:"raytracing"`
	Lighting   LightingSettings   `toml:"lighting"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Engine: EngineSettings{
			FramesInFlight: 2,
			FenceTimeoutMS: 1000,
			RenderScale:    1.0,
			LogLevel:       "info",
		},
		Graph: GraphSettings{
			Timestamps:    true,
			PassOverrides: map[string]bool{},
		},
		Textures: TextureSettings{
			MaxLoadsPerPump:      4,
			MaxBytesPerPump:      128 * MiB,
			MaxUploadDimension:   4096,
			CPUSourceBudget:      64 * MiB,
			ReloadCooldownFrames: 2,
			DecodeWorkers:        2,
		},
		Pipelines: PipelineSettings{
			ShaderDir: "shaders",
			HotReload: true,
		},
		RayTracing: RayTracingSettings{
			BLASBuildsPerFrame: 2,
		},
		Lighting: LightingSettings{
			ShadowMode:        ShadowModeClipmap,
			ReflectionMode:    ReflectionModeSSR,
			HybridCascadeMask: 0b0011,
			NDotLThreshold:    0.3,
		},
	}
}

// LoadSettings reads a TOML file on top of the defaults. A missing file is not an error.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			LogInfo("settings file %s not found, using defaults", path)
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	if err := ParseSettings(b, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return s, nil
}

// ParseSettings decodes TOML into s, keeping the current value of absent keys.
func ParseSettings(b []byte, s *Settings) error {
	if err := toml.Unmarshal(b, s); err != nil {
		return err
	}
	s.sanitize()
	return nil
}

func (s *Settings) sanitize() {
	if s.Engine.FramesInFlight < 1 {
		s.Engine.FramesInFlight = 1
	}
	if s.Engine.FenceTimeoutMS <= 0 {
		s.Engine.FenceTimeoutMS = 1000
	}
	if s.Engine.RenderScale <= 0 {
		s.Engine.RenderScale = 1.0
	}
	if s.Engine.RenderScale > 1 {
		s.Engine.RenderScale = 1
	}
	if s.Graph.PassOverrides == nil {
		s.Graph.PassOverrides = map[string]bool{}
	}
	if s.Textures.MaxLoadsPerPump < 1 {
		s.Textures.MaxLoadsPerPump = 1
	}
	if s.Textures.DecodeWorkers < 1 {
		s.Textures.DecodeWorkers = 1
	}
	if s.RayTracing.BLASBuildsPerFrame < 1 {
		s.RayTracing.BLASBuildsPerFrame = 1
	}
}

// Encode renders the settings back to TOML.
func (s *Settings) Encode() ([]byte, error) {
	return toml.Marshal(s)
}
