package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/texture"
)

// textureArray is the device texture_2d_array bound at group 1, one layer per registered image.
type textureArray struct {
	b         *backend
	texture   *wgpu.Texture
	view      *wgpu.TextureView
	sampler   *wgpu.Sampler
	bindGroup *wgpu.BindGroup
	capacity  int
	layerSize int
}

var _ texture.Binder = &textureArray{}

// newTextureArray creates the array, its view, sampler and bind group. Caller must hold b.mu.
func newTextureArray(b *backend, capacity, layerSize int) (*textureArray, error) {
	a := &textureArray{b: b, capacity: capacity, layerSize: layerSize}

	var err error
	a.texture, err = b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     "Texture Array",
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(layerSize),
			Height:             uint32(layerSize),
			DepthOrArrayLayers: uint32(capacity),
		},
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture array: %w", err)
	}

	a.view, err = a.texture.CreateView(&wgpu.TextureViewDescriptor{
		Label:           "Texture Array View",
		Format:          wgpu.TextureFormatRGBA8Unorm,
		Dimension:       wgpu.TextureViewDimension2DArray,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: uint32(capacity),
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		a.release()
		return nil, fmt.Errorf("create texture array view: %w", err)
	}

	a.sampler, err = b.device.CreateSampler(b.sampler.descriptor())
	if err != nil {
		a.release()
		return nil, fmt.Errorf("create texture array sampler: %w", err)
	}

	a.bindGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Texture Array Bind Group",
		Layout: b.textureGroup,
		Entries: []wgpu.BindGroupEntry{
			{Binding: pipeline.TextureBinding, TextureView: a.view},
			{Binding: pipeline.SamplerBinding, Sampler: a.sampler},
		},
	})
	if err != nil {
		a.release()
		return nil, fmt.Errorf("create texture array bind group: %w", err)
	}
	return a, nil
}

// BindLayer uploads one layer. Layers already in use by a submitted frame are never rewritten
// because the array only appends.
func (a *textureArray) BindLayer(index uint32, layer common.TextureStagingData) error {
	if int(index) >= a.capacity {
		return fmt.Errorf("bind layer %d of %d: %w", index, a.capacity, texture.ErrArrayFull)
	}
	if layer.Width != uint32(a.layerSize) || layer.Height != uint32(a.layerSize) {
		return fmt.Errorf("bind layer %d: %dx%d image, layers are %dx%d", index, layer.Width, layer.Height, a.layerSize, a.layerSize)
	}

	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	a.b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  a.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: index},
			Aspect:   wgpu.TextureAspectAll,
		},
		layer.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  layer.Width * 4,
			RowsPerImage: layer.Height,
		},
		&wgpu.Extent3D{
			Width:              layer.Width,
			Height:             layer.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (a *textureArray) release() {
	if a.bindGroup != nil {
		a.bindGroup.Release()
	}
	if a.sampler != nil {
		a.sampler.Release()
	}
	if a.view != nil {
		a.view.Release()
	}
	if a.texture != nil {
		a.texture.Release()
	}
}
