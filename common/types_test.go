package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 1, color.RGBA{0, 0, 255, 255})
	return img
}

func TestTextureSourceDecode(t *testing.T) {
	var bmpData bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpData, testImage()))

	dir := t.TempDir()
	path := filepath.Join(dir, "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, testImage()))
	require.NoError(t, f.Close())

	tests := []struct {
		name string
		src  *TextureSource
	}{
		{"embedded bmp", &TextureSource{Name: "bmp", Data: bmpData.Bytes()}},
		{"png file", &TextureSource{Name: "png", Path: path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := tt.src.Decode()
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
			assert.Equal(t, color.RGBA{255, 0, 0, 255}, color.RGBAModel.Convert(img.At(0, 0)))
			assert.Equal(t, color.RGBA{0, 0, 255, 255}, color.RGBAModel.Convert(img.At(1, 1)))
		})
	}

	var nilSource *TextureSource
	_, err = nilSource.Decode()
	assert.Error(t, err)
	_, err = (&TextureSource{Name: "empty"}).Decode()
	assert.Error(t, err)
	_, err = (&TextureSource{Name: "garbage", Data: []byte("not an image")}).Decode()
	assert.Error(t, err)
}

func TestToStagingRebasesSubImages(t *testing.T) {
	sub := testImage().SubImage(image.Rect(1, 1, 2, 2))
	staging := ToStaging(sub)
	assert.Equal(t, uint32(1), staging.Width)
	assert.Equal(t, uint32(1), staging.Height)
	assert.Equal(t, []byte{0, 0, 255, 255}, staging.Pixels)
}
