package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
)

const tomlConfig = `
[renderer]
in_flight_frames = 3
clear_color = [0.1, 0.2, 0.3, 1.0]
strict_lifetime = true
present_mode = "uncapped"
msaa = 4

[shading]
ambient = 0.25

[shaders]
directory = "shaders"
hot_reload = true

[[windows]]
title = "left"
width = 640
height = 480

[[windows]]
title = "right"
width = 320
height = 240
`

const yamlConfig = `
renderer:
  in_flight_frames: 3
  clear_color: [0.1, 0.2, 0.3, 1.0]
  strict_lifetime: true
  present_mode: uncapped
  msaa: 4
shading:
  ambient: 0.25
shaders:
  directory: shaders
  hot_reload: true
windows:
  - title: left
    width: 640
    height: 480
  - title: right
    width: 320
    height: 240
`

func TestParseFormatsAgree(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatTOML, tomlConfig},
		{FormatYAML, yamlConfig},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			cfg, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)

			assert.Equal(t, 3, cfg.Renderer.InFlightFrames)
			assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, cfg.Renderer.ClearColor)
			assert.True(t, cfg.Renderer.StrictLifetime)
			assert.Equal(t, "uncapped", cfg.Renderer.PresentMode)
			assert.Equal(t, 4, cfg.Renderer.MSAA)
			assert.Equal(t, float32(0.25), cfg.Shading.Ambient)
			assert.True(t, cfg.Shaders.HotReload)
			require.Len(t, cfg.Windows, 2)
			assert.Equal(t, WindowConfig{Title: "right", Width: 320, Height: 240}, cfg.Windows[1])

			// Keys absent from the file keep their defaults.
			def := Default()
			assert.Equal(t, def.Renderer.HeapSize, cfg.Renderer.HeapSize)
			assert.Equal(t, def.Shading.SunDirection, cfg.Shading.SunDirection)
			assert.Equal(t, def.Shading.SpecularExponent, cfg.Shading.SpecularExponent)
			assert.True(t, cfg.Shaders.Validate)
		})
	}
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		cfg, err := Parse(nil, format)
		require.NoError(t, err, format)
		assert.Equal(t, Default(), cfg, format)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[renderer]\nframes_in_flight = 3\n"), FormatTOML)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Parse([]byte("renderer:\n  frames_in_flight: 3\n"), FormatYAML)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no frames", func(c *Config) { c.Renderer.InFlightFrames = 0 }},
		{"bad msaa", func(c *Config) { c.Renderer.MSAA = 2 }},
		{"bad present mode", func(c *Config) { c.Renderer.PresentMode = "fifo" }},
		{"zero sun", func(c *Config) { c.Shading.SunDirection = [3]float32{} }},
		{"ambient above one", func(c *Config) { c.Shading.Ambient = 2 }},
		{"hot reload without directory", func(c *Config) { c.Shaders.HotReload = true }},
		{"zero window", func(c *Config) { c.Windows[0].Width = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{"engine.toml": tomlConfig, "engine.yml": yamlConfig} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, 3, cfg.Renderer.InFlightFrames, name)
	}

	_, err := Load(filepath.Join(dir, "engine.json"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Renderer.InFlightFrames = 3
	for _, format := range []Format{FormatTOML, FormatYAML} {
		var buf bytes.Buffer
		require.NoError(t, cfg.Encode(&buf, format))
		got, err := Parse(buf.Bytes(), format)
		require.NoError(t, err, format)
		assert.Equal(t, cfg, got, format)
	}
}

func TestRendererOptionsBuildRenderer(t *testing.T) {
	cfg := Default()
	cfg.Renderer.MaxTextures = 4
	cfg.Renderer.TextureSize = 8
	r, err := renderer.NewRenderer(renderer.NewSoftwareBackend(), cfg.RendererOptions()...)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 4, r.Textures().Capacity())
	assert.Equal(t, 8, r.Textures().LayerSize())
}
