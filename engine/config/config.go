// Package config loads engine settings from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/texture"
)

// Format is a configuration file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// maxConfigSize bounds the files Load will read.
const maxConfigSize = 1 << 20

// Config is the complete engine configuration.
type Config struct {
	Renderer RendererConfig `toml:"renderer" yaml:"renderer"`
	Shading  ShadingConfig  `toml:"shading" yaml:"shading"`
	Shaders  ShadersConfig  `toml:"shaders" yaml:"shaders"`
	Engine   EngineConfig   `toml:"engine" yaml:"engine"`
	Windows  []WindowConfig `toml:"windows" yaml:"windows"`
}

// RendererConfig configures the frame renderer and its backend.
type RendererConfig struct {
	InFlightFrames int        `toml:"in_flight_frames" yaml:"in_flight_frames"`
	ClearColor     [4]float32 `toml:"clear_color" yaml:"clear_color"`
	HeapSize       uint64     `toml:"heap_size" yaml:"heap_size"`
	MaxTextures    int        `toml:"max_textures" yaml:"max_textures"`
	TextureSize    int        `toml:"texture_size" yaml:"texture_size"`
	StrictLifetime bool       `toml:"strict_lifetime" yaml:"strict_lifetime"`
	Workers        int        `toml:"workers" yaml:"workers"`

	// PresentMode is one of "vsync", "uncapped" or "triple".
	PresentMode string `toml:"present_mode" yaml:"present_mode"`

	// MSAA is the sample count, 1 or 4.
	MSAA int `toml:"msaa" yaml:"msaa"`
}

// ShadingConfig holds the lighting constants of the lit variants.
type ShadingConfig struct {
	SunDirection     [3]float32 `toml:"sun_direction" yaml:"sun_direction"`
	Ambient          float32    `toml:"ambient" yaml:"ambient"`
	SpecularStrength float32    `toml:"specular_strength" yaml:"specular_strength"`
	SpecularExponent float32    `toml:"specular_exponent" yaml:"specular_exponent"`
}

// ShadersConfig configures shader overrides and validation.
type ShadersConfig struct {
	// Directory holds <variant>.<vert|frag>.wgsl overrides. Empty disables overrides.
	Directory string `toml:"directory" yaml:"directory"`
	HotReload bool   `toml:"hot_reload" yaml:"hot_reload"`
	Validate  bool   `toml:"validate" yaml:"validate"`
}

// EngineConfig configures the run loop.
type EngineConfig struct {
	TickRate   float64 `toml:"tick_rate" yaml:"tick_rate"`
	FrameLimit float64 `toml:"frame_limit" yaml:"frame_limit"`
	Profiling  bool    `toml:"profiling" yaml:"profiling"`
}

// WindowConfig describes one window.
type WindowConfig struct {
	Title  string `toml:"title" yaml:"title"`
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	shading := pipeline.DefaultShadingConfig()
	return Config{
		Renderer: RendererConfig{
			InFlightFrames: 2,
			ClearColor:     [4]float32{0, 0, 0, 1},
			HeapSize:       renderer.DefaultHeapCapacity,
			MaxTextures:    texture.DefaultCapacity,
			TextureSize:    texture.DefaultLayerSize,
			Workers:        4,
			PresentMode:    "vsync",
			MSAA:           1,
		},
		Shading: ShadingConfig{
			SunDirection:     shading.SunDirection,
			Ambient:          shading.Ambient,
			SpecularStrength: shading.SpecularStrength,
			SpecularExponent: shading.SpecularExponent,
		},
		Shaders: ShadersConfig{Validate: true},
		Engine:  EngineConfig{TickRate: 60},
		Windows: []WindowConfig{{Title: "oxy", Width: 1280, Height: 720}},
	}
}

// Load reads a configuration file. The format follows the extension: .toml, .yaml or .yml.
// Keys missing from the file keep their Default values; unknown keys are rejected.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the configuration
//   - error: read, decode or validation failures
func Load(path string) (Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if info.Size() > maxConfigSize {
		return Config{}, fmt.Errorf("load config %s: %d bytes exceeds %d: %w", path, info.Size(), maxConfigSize, ErrInvalidConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("config %s: unsupported extension: %w", path, ErrInvalidConfig)
	}
}

// Parse decodes data over Default and validates the result.
//
// Parameters:
//   - data: the encoded configuration
//   - format: the encoding
//
// Returns:
//   - Config: the configuration
//   - error: decode or validation failures
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()
	// A file that lists windows replaces the default window instead of merging into it.
	cfg.Windows = nil

	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var missing *toml.StrictMissingError
			if errors.As(err, &missing) {
				return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, missing.String())
			}
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("format %q: %w", format, ErrInvalidConfig)
	}

	if len(cfg.Windows) == 0 {
		cfg.Windows = Default().Windows
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	r := c.Renderer
	check(r.InFlightFrames >= 1, "renderer.in_flight_frames must be at least 1, got %d", r.InFlightFrames)
	check(r.HeapSize > 0, "renderer.heap_size must be positive")
	check(r.MaxTextures >= 1, "renderer.max_textures must be at least 1, got %d", r.MaxTextures)
	check(r.TextureSize >= 1, "renderer.texture_size must be at least 1, got %d", r.TextureSize)
	check(r.Workers >= 1, "renderer.workers must be at least 1, got %d", r.Workers)
	check(r.MSAA == 1 || r.MSAA == 4, "renderer.msaa must be 1 or 4, got %d", r.MSAA)
	switch r.PresentMode {
	case "vsync", "uncapped", "triple":
	default:
		check(false, "renderer.present_mode %q is not vsync, uncapped or triple", r.PresentMode)
	}

	s := c.Shading
	check(s.SunDirection != [3]float32{}, "shading.sun_direction must be non-zero")
	check(s.Ambient >= 0 && s.Ambient <= 1, "shading.ambient must be in [0, 1], got %g", s.Ambient)
	check(s.SpecularExponent > 0, "shading.specular_exponent must be positive, got %g", s.SpecularExponent)

	check(!c.Shaders.HotReload || c.Shaders.Directory != "", "shaders.hot_reload needs shaders.directory")
	check(c.Engine.TickRate >= 0, "engine.tick_rate must not be negative")
	check(c.Engine.FrameLimit >= 0, "engine.frame_limit must not be negative")

	for i, w := range c.Windows {
		check(w.Width > 0 && w.Height > 0, "windows[%d] size %dx%d must be positive", i, w.Width, w.Height)
	}
	return errors.Join(errs...)
}

// ShadingConfig returns the lighting constants for the pipeline variants.
func (c Config) ShadingConfig() pipeline.ShadingConfig {
	return pipeline.ShadingConfig{
		SunDirection:     c.Shading.SunDirection,
		Ambient:          c.Shading.Ambient,
		SpecularStrength: c.Shading.SpecularStrength,
		SpecularExponent: c.Shading.SpecularExponent,
	}
}

// RendererOptions converts the renderer, shading and shader sections into renderer options.
//
// Returns:
//   - []renderer.RendererBuilderOption: options for renderer.NewRenderer
func (c Config) RendererOptions() []renderer.RendererBuilderOption {
	return []renderer.RendererBuilderOption{
		renderer.WithInFlightFrames(c.Renderer.InFlightFrames),
		renderer.WithClearColor(c.Renderer.ClearColor),
		renderer.WithShading(c.ShadingConfig()),
		renderer.WithWorkers(c.Renderer.Workers),
		renderer.WithStrictLifetime(c.Renderer.StrictLifetime),
		renderer.WithNagaValidation(c.Shaders.Validate),
		renderer.WithTextureArray(c.Renderer.MaxTextures, c.Renderer.TextureSize),
	}
}

// Encode writes the configuration in the given format.
//
// Parameters:
//   - w: the destination
//   - format: the encoding
//
// Returns:
//   - error: encode failures
func (c Config) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(c)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q: %w", format, ErrInvalidConfig)
	}
}
