package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type image struct {
	device *Device
	handle vk.Image
	mem    *allocation
	view   *imageView
	format gpu.Format
	extent gpu.Extent3D
	levels uint32
	usage  gpu.ImageUsage
	// Swapchain images are owned by the swapchain, only the view is ours.
	borrowed bool
}

type imageView struct {
	img    *image
	handle vk.ImageView
}

func (v *imageView) Image() gpu.Image { return v.img }

func (d *Device) NewImage(desc gpu.ImageDesc) (gpu.Image, error) {
	levels := max(desc.Levels, 1)
	info := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        toVkFormat(desc.Format),
		Extent:        toVkExtent3D(desc.Extent),
		MipLevels:     levels,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toVkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	img := &image{
		device: d,
		format: desc.Format,
		extent: desc.Extent,
		levels: levels,
		usage:  desc.Usage,
	}
	if err := resultError("vkCreateImage", vk.CreateImage(d.handle, &info, nil, &img.handle)); err != nil {
		return nil, fmt.Errorf("image %s %dx%d: %w", desc.Format, desc.Extent.Width, desc.Extent.Height, err)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img.handle, &reqs)
	a, err := d.allocate(reqs, desc.Memory)
	if err != nil {
		vk.DestroyImage(d.handle, img.handle, nil)
		return nil, err
	}
	img.mem = a
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(d.handle, img.handle, a.memory, 0)); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.createView(); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// wrapSwapchainImage adopts an image owned by a swapchain.
func (d *Device) wrapSwapchainImage(handle vk.Image, format gpu.Format, extent gpu.Extent2D) (*image, error) {
	img := &image{
		device:   d,
		handle:   handle,
		format:   format,
		extent:   extent.Extent3D(),
		levels:   1,
		usage:    gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
		borrowed: true,
	}
	if err := img.createView(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *image) createView() error {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   toVkFormat(img.format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectOf(img.format),
			BaseMipLevel:   0,
			LevelCount:     img.levels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	view := &imageView{img: img}
	if err := resultError("vkCreateImageView", vk.CreateImageView(img.device.handle, &info, nil, &view.handle)); err != nil {
		return err
	}
	img.view = view
	return nil
}

func (img *image) Format() gpu.Format    { return img.format }
func (img *image) Extent() gpu.Extent3D  { return img.extent }
func (img *image) Levels() uint32        { return img.levels }
func (img *image) Usage() gpu.ImageUsage { return img.usage }
func (img *image) View() gpu.ImageView   { return img.view }

func (img *image) Destroy() {
	d := img.device
	if img.view != nil {
		vk.DestroyImageView(d.handle, img.view.handle, nil)
		img.view = nil
	}
	if !img.borrowed && img.handle != nil {
		vk.DestroyImage(d.handle, img.handle, nil)
	}
	img.handle = nil
	d.free(img.mem)
	img.mem = nil
}

type sampler struct {
	device *Device
	handle vk.Sampler
}

func (d *Device) NewSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	address := toVkAddressMode(desc.AddressMode)
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    toVkFilter(desc.MagFilter),
		MinFilter:    toVkFilter(desc.MinFilter),
		MipmapMode:   toVkMipmapMode(desc.MipFilter),
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		MinLod:       0,
		MaxLod:       desc.MaxLOD,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}
	if desc.Anisotropy > 1 && d.physical.features.SamplerAnisotropy == vk.True {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = min(desc.Anisotropy, d.physical.properties.Limits.MaxSamplerAnisotropy)
	}
	s := &sampler{device: d}
	if err := resultError("vkCreateSampler", vk.CreateSampler(d.handle, &info, nil, &s.handle)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sampler) Destroy() {
	if s.handle != nil {
		vk.DestroySampler(s.device.handle, s.handle, nil)
		s.handle = nil
	}
}
