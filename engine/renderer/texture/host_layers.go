package texture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-bindless/common"
)

// ErrUnboundLayer is returned when sampling a slot nothing was bound to.
var ErrUnboundLayer = errors.New("texture layer is not bound")

// HostLayers keeps the array's layers in process memory. It binds layers for the software
// device and samples them with linear filtering and repeat addressing.
type HostLayers struct {
	mu     *sync.RWMutex
	size   int
	layers map[uint32][]byte
}

// NewHostLayers creates an empty host layer store for layers of size x size pixels.
func NewHostLayers(size int) *HostLayers {
	return &HostLayers{
		mu:     &sync.RWMutex{},
		size:   size,
		layers: make(map[uint32][]byte),
	}
}

// BindLayer stores a copy of the layer pixels.
func (h *HostLayers) BindLayer(index uint32, layer common.TextureStagingData) error {
	if int(layer.Width) != h.size || int(layer.Height) != h.size || len(layer.Pixels) != h.size*h.size*4 {
		return fmt.Errorf("layer %d is %dx%d, want %dx%d", index, layer.Width, layer.Height, h.size, h.size)
	}
	pix := make([]byte, len(layer.Pixels))
	copy(pix, layer.Pixels)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.layers[index] = pix
	return nil
}

// Sample returns the bilinearly filtered texel at uv. Coordinates wrap outside [0, 1].
//
// Parameters:
//   - layer: the slot
//   - uv: the texture coordinate, origin at the top-left
//
// Returns:
//   - [4]float32: RGBA in [0, 1]
//   - error: ErrUnboundLayer
func (h *HostLayers) Sample(layer uint32, uv [2]float32) ([4]float32, error) {
	h.mu.RLock()
	pix, ok := h.layers[layer]
	h.mu.RUnlock()
	if !ok {
		return [4]float32{}, fmt.Errorf("sample layer %d: %w", layer, ErrUnboundLayer)
	}

	n := float32(h.size)
	x := uv[0]*n - 0.5
	y := uv[1]*n - 0.5
	x0, y0 := math32.Floor(x), math32.Floor(y)
	fx, fy := x-x0, y-y0

	c00 := h.texel(pix, int(x0), int(y0))
	c10 := h.texel(pix, int(x0)+1, int(y0))
	c01 := h.texel(pix, int(x0), int(y0)+1)
	c11 := h.texel(pix, int(x0)+1, int(y0)+1)

	var out [4]float32
	for i := range 4 {
		top := c00[i]*(1-fx) + c10[i]*fx
		bottom := c01[i]*(1-fx) + c11[i]*fx
		out[i] = top*(1-fy) + bottom*fy
	}
	return out, nil
}

// Len returns the number of bound layers.
func (h *HostLayers) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.layers)
}

func (h *HostLayers) texel(pix []byte, x, y int) [4]float32 {
	x = wrap(x, h.size)
	y = wrap(y, h.size)
	i := (y*h.size + x) * 4
	return [4]float32{
		float32(pix[i]) / 255,
		float32(pix[i+1]) / 255,
		float32(pix[i+2]) / 255,
		float32(pix[i+3]) / 255,
	}
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
