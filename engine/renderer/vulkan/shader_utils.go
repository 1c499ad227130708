package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

const spirvMagic = 0x07230203

type shaderModule struct {
	device *Device
	handle vk.ShaderModule
}

// spirvWords reinterprets SPIR-V bytes as words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spir-v size %d is not a multiple of 4: %w", len(code), core.ErrUnsupported)
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("missing spir-v magic number: %w", core.ErrUnsupported)
	}
	return words, nil
}

func (d *Device) NewShaderModule(code []byte) (gpu.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return nil, err
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	m := &shaderModule{device: d}
	err = d.locks.SafeCall(PipelineCreation, func() error {
		return resultError("vkCreateShaderModule", vk.CreateShaderModule(d.handle, &info, nil, &m.handle))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *shaderModule) Destroy() {
	if m.handle != nil {
		vk.DestroyShaderModule(m.device.handle, m.handle, nil)
		m.handle = nil
	}
}

func shaderStage(stage vk.ShaderStageFlagBits, module gpu.ShaderModule) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module.(*shaderModule).handle,
		PName:  safeString("main"),
	}
}
