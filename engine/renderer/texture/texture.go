// Package texture manages the engine's single texture array. Slots are appended and never
// reused, so an index handed to an instance record stays valid for the process lifetime.
package texture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"golang.org/x/image/draw"

	"github.com/Carmen-Shannon/oxy-bindless/common"
)

// ErrArrayFull is returned when every slot of the array is taken.
var ErrArrayFull = errors.New("texture array is full")

const (
	// DefaultCapacity is the number of layers of a new array.
	DefaultCapacity = 1000

	// DefaultLayerSize is the width and height of every layer in pixels.
	DefaultLayerSize = 256
)

// Binder uploads one layer of the array to the device.
type Binder interface {
	// BindLayer writes an RGBA layer of LayerSize x LayerSize pixels into slot index.
	//
	// Parameters:
	//   - index: the slot
	//   - layer: the tightly packed RGBA pixels
	//
	// Returns:
	//   - error: if the upload fails
	BindLayer(index uint32, layer common.TextureStagingData) error
}

// array is the implementation of the Array interface.
type array struct {
	mu        *sync.Mutex
	binder    Binder
	capacity  int
	layerSize int
	logger    *slog.Logger

	next uint32
}

// Array is an append-only registry of texture layers.
type Array interface {
	// Register resizes an image to the layer size, binds it and returns its stable index.
	//
	// Parameters:
	//   - img: the image
	//
	// Returns:
	//   - uint32: the slot index
	//   - error: ErrArrayFull, or the binder error
	Register(img image.Image) (uint32, error)

	// RegisterFile decodes a PNG or JPEG file and registers it.
	//
	// Parameters:
	//   - path: the image file
	//
	// Returns:
	//   - uint32: the slot index
	//   - error: a decode error, ErrArrayFull, or the binder error
	RegisterFile(path string) (uint32, error)

	// RegisterSource decodes embedded or on-disk image bytes and registers them.
	RegisterSource(src common.TextureSource) (uint32, error)

	// Len returns the number of registered layers.
	Len() int

	// Capacity returns the number of slots.
	Capacity() int

	// LayerSize returns the width and height of every layer.
	LayerSize() int
}

var _ Array = &array{}

// NewArray creates an empty texture array bound through binder.
//
// Parameters:
//   - binder: the backend that receives layer uploads
//   - options: functional options to configure the array
//
// Returns:
//   - Array: the array
func NewArray(binder Binder, options ...ArrayBuilderOption) Array {
	a := &array{
		mu:        &sync.Mutex{},
		binder:    binder,
		capacity:  DefaultCapacity,
		layerSize: DefaultLayerSize,
	}
	for _, option := range options {
		option(a)
	}
	if a.logger == nil {
		a.logger = common.Logger()
	}
	return a
}

func (a *array) Register(img image.Image) (uint32, error) {
	staging := Fit(img, a.layerSize)

	a.mu.Lock()
	defer a.mu.Unlock()
	if int(a.next) >= a.capacity {
		return 0, fmt.Errorf("register texture: %w (%d slots)", ErrArrayFull, a.capacity)
	}

	index := a.next
	if err := a.binder.BindLayer(index, staging); err != nil {
		return 0, fmt.Errorf("bind texture layer %d: %w", index, err)
	}
	a.next++
	a.logger.Debug("texture registered", "index", index, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return index, nil
}

func (a *array) RegisterFile(path string) (uint32, error) {
	return a.RegisterSource(common.TextureSource{Name: path, Path: path})
}

func (a *array) RegisterSource(src common.TextureSource) (uint32, error) {
	img, err := src.Decode()
	if err != nil {
		return 0, err
	}
	return a.Register(img)
}

func (a *array) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.next)
}

func (a *array) Capacity() int  { return a.capacity }
func (a *array) LayerSize() int { return a.layerSize }

// Fit scales an image to size x size with Catmull-Rom filtering and returns it as RGBA
// staging data.
//
// Parameters:
//   - img: the source image
//   - size: the layer width and height
//
// Returns:
//   - common.TextureStagingData: the packed pixels
func Fit(img image.Image, size int) common.TextureStagingData {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return common.ToStaging(img)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return common.ToStaging(dst)
}
