package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Window is the part of the platform window the backend needs. *glfw.Window
// satisfies it.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

type Config struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its
	// reports to the engine log.
	Validation bool
}

// instanceContext owns the instance-level objects.
type instanceContext struct {
	handle  vk.Instance
	surface vk.Surface
	debug   vk.DebugReportCallback
	layers  []string
}

func loadLoader() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("vkGetInstanceProcAddr unavailable: %w", core.ErrUnsupported)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vulkan loader: %w", err)
	}
	return nil
}

func createInstance(window Window, cfg Config) (*instanceContext, error) {
	ic := &instanceContext{}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(cfg.AppName),
		PEngineName:        safeString("QuaternionEngine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	if cfg.Validation {
		available, err := instanceLayers()
		if err != nil {
			return nil, err
		}
		if _, ok := available[validationLayer]; ok {
			ic.layers = []string{validationLayer}
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("validation requested but %s is not installed", validationLayer)
		}
	}
	core.LogDebug("instance extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(ic.layers))
	createInfo.PpEnabledLayerNames = safeStrings(ic.layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &ic.handle)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(ic.handle); err != nil {
		vk.DestroyInstance(ic.handle, nil)
		return nil, err
	}

	if len(ic.layers) > 0 {
		debugInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}
		if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(ic.handle, &debugInfo, nil, &ic.debug)); err != nil {
			core.LogWarn("validation output disabled: %v", err)
		}
	}

	surface, err := window.CreateWindowSurface(ic.handle, nil)
	if err != nil {
		ic.destroy()
		return nil, fmt.Errorf("failed to create window surface: %w", err)
	}
	ic.surface = vk.SurfaceFromPointer(surface)
	return ic, nil
}

func instanceLayers() (map[string]struct{}, error) {
	var count uint32
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].LayerName[:])] = struct{}{}
	}
	return out, nil
}

func (ic *instanceContext) destroy() {
	if ic.surface != vk.NullSurface {
		vk.DestroySurface(ic.handle, ic.surface, nil)
		ic.surface = vk.NullSurface
	}
	if ic.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(ic.handle, ic.debug, nil)
		ic.debug = vk.NullDebugReportCallback
	}
	if ic.handle != nil {
		vk.DestroyInstance(ic.handle, nil)
		ic.handle = nil
	}
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] performance, code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
