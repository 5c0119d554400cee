package webgpu

import (
	"cmp"

	"github.com/cogentcore/webgpu/wgpu"
)

// SamplerStagingData holds the configuration of the texture array sampler.
// Zero fields fall back to linear filtering and repeat addressing.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV specify the addressing mode outside the [0, 1] range.
	AddressModeU, AddressModeV wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MaxAnisotropy specifies the maximum anisotropy level.
	MaxAnisotropy uint16
}

func (s SamplerStagingData) descriptor() *wgpu.SamplerDescriptor {
	return &wgpu.SamplerDescriptor{
		Label:         "Texture Array Sampler",
		AddressModeU:  cmp.Or(s.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  cmp.Or(s.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     cmp.Or(s.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     cmp.Or(s.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: cmp.Or(s.MaxAnisotropy, 1),
	}
}
