package renderer

import (
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/resources"
)

// DescriptorLayouts are the set layouts shared by the built-in passes.
type DescriptorLayouts struct {
	// SingleImage is one combined image sampler read by the fragment stage.
	SingleImage gpu.DescriptorSetLayout
	// Material is the material constants followed by color and
	// metal-roughness textures.
	Material gpu.DescriptorSetLayout
	// Scene is the per-frame scene uniforms, followed by the top level
	// structure when ray queries are available.
	Scene gpu.DescriptorSetLayout
}

func newDescriptorLayouts(device gpu.Device, rayQueries bool) (*DescriptorLayouts, error) {
	l := &DescriptorLayouts{}
	var err error
	l.SingleImage, err = device.NewDescriptorSetLayout([]gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create single image layout: %w", err)
	}
	l.Material, err = device.NewDescriptorSetLayout([]gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.ShaderStageAllGraphics},
		{Binding: 1, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment},
		{Binding: 2, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment},
	})
	if err != nil {
		l.destroy()
		return nil, fmt.Errorf("failed to create material layout: %w", err)
	}
	scene := []gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.ShaderStageAllGraphics | gpu.ShaderStageCompute},
	}
	if rayQueries {
		scene = append(scene, gpu.DescriptorBinding{Binding: 1, Type: gpu.DescriptorAccelerationStructure, Count: 1, Stages: gpu.ShaderStageFragment | gpu.ShaderStageCompute})
	}
	l.Scene, err = device.NewDescriptorSetLayout(scene)
	if err != nil {
		l.destroy()
		return nil, fmt.Errorf("failed to create scene layout: %w", err)
	}
	return l, nil
}

func (l *DescriptorLayouts) destroy() {
	for _, layout := range []gpu.DescriptorSetLayout{l.SingleImage, l.Material, l.Scene} {
		if layout != nil {
			layout.Destroy()
		}
	}
	*l = DescriptorLayouts{}
}

type Samplers struct {
	Linear      gpu.Sampler
	Nearest     gpu.Sampler
	LinearClamp gpu.Sampler
}

func newSamplers(device gpu.Device) (*Samplers, error) {
	descs := []struct {
		dst  *gpu.Sampler
		desc gpu.SamplerDesc
	}{
		{nil, gpu.SamplerDesc{MagFilter: gpu.FilterLinear, MinFilter: gpu.FilterLinear, MipFilter: gpu.FilterLinear, AddressMode: gpu.AddressRepeat, MaxLOD: 16, Anisotropy: 8}},
		{nil, gpu.SamplerDesc{MagFilter: gpu.FilterNearest, MinFilter: gpu.FilterNearest, MipFilter: gpu.FilterNearest, AddressMode: gpu.AddressRepeat, MaxLOD: 16}},
		{nil, gpu.SamplerDesc{MagFilter: gpu.FilterLinear, MinFilter: gpu.FilterLinear, MipFilter: gpu.FilterLinear, AddressMode: gpu.AddressClampToEdge, MaxLOD: 16}},
	}
	s := &Samplers{}
	descs[0].dst, descs[1].dst, descs[2].dst = &s.Linear, &s.Nearest, &s.LinearClamp
	for _, d := range descs {
		sampler, err := device.NewSampler(d.desc)
		if err != nil {
			s.destroy()
			return nil, fmt.Errorf("failed to create sampler: %w", err)
		}
		*d.dst = sampler
	}
	return s, nil
}

func (s *Samplers) destroy() {
	for _, sampler := range []gpu.Sampler{s.Linear, s.Nearest, s.LinearClamp} {
		if sampler != nil {
			sampler.Destroy()
		}
	}
	*s = Samplers{}
}

// DefaultImages are small constant textures. Error is the fallback bound in
// place of textures that are not resident.
type DefaultImages struct {
	White gpu.Image
	Black gpu.Image
	Grey  gpu.Image
	Error gpu.Image
}

const errorImageSize = 16

func solid(r, g, b, a byte) []byte {
	return []byte{r, g, b, a}
}

// checkerboard is magenta and black in 1 texel squares.
func checkerboard(size int) []byte {
	pixels := make([]byte, 0, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x+y)%2 == 0 {
				pixels = append(pixels, 0xFF, 0x00, 0xFF, 0xFF)
			} else {
				pixels = append(pixels, 0x00, 0x00, 0x00, 0xFF)
			}
		}
	}
	return pixels
}

func newDefaultImages(res *resources.Manager) (*DefaultImages, error) {
	d := &DefaultImages{}
	one := gpu.Extent3D{Width: 1, Height: 1, Depth: 1}
	images := []struct {
		dst    *gpu.Image
		pixels []byte
		extent gpu.Extent3D
	}{
		{&d.White, solid(0xFF, 0xFF, 0xFF, 0xFF), one},
		{&d.Black, solid(0x00, 0x00, 0x00, 0xFF), one},
		{&d.Grey, solid(0xAA, 0xAA, 0xAA, 0xFF), one},
		{&d.Error, checkerboard(errorImageSize), gpu.Extent3D{Width: errorImageSize, Height: errorImageSize, Depth: 1}},
	}
	for _, img := range images {
		created, err := res.CreateImageData(img.pixels, img.extent, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false)
		if err != nil {
			d.destroy()
			return nil, fmt.Errorf("failed to create default image: %w", err)
		}
		*img.dst = created
	}
	return d, nil
}

func (d *DefaultImages) destroy() {
	for _, img := range []gpu.Image{d.White, d.Black, d.Grey, d.Error} {
		if img != nil {
			img.Destroy()
		}
	}
	*d = DefaultImages{}
}
