// Command oxy-headless renders a grid of spinning cubes on the software backend and writes the
// last frame to a PNG file. It exercises the same engine, scene and renderer path as a windowed
// run without needing a GPU.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/config"
	"github.com/Carmen-Shannon/oxy-bindless/engine/game_object"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/model"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bindless/engine/scene"
)

// offscreenWindow is an always-running window of fixed size.
type offscreenWindow struct {
	width  int
	height int
}

func (w *offscreenWindow) Width() int                                { return w.width }
func (w *offscreenWindow) Height() int                               { return w.height }
func (w *offscreenWindow) IsRunning() bool                           { return true }
func (w *offscreenWindow) Close() error                              { return nil }
func (w *offscreenWindow) SetResizeCallback(func(width, height int)) {}

type headless struct {
	configPath string
	frames     int
	grid       int
	variant    string
	texture    string
	out        string
	verbose    bool
}

func (h *headless) parse() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&h.configPath, "config", "", "a .toml or .yaml engine configuration")
	fs.IntVar(&h.frames, "frames", 60, "the number of frames to render")
	fs.IntVar(&h.grid, "grid", 4, "cubes per side of the grid")
	fs.StringVar(&h.variant, "variant", string(pipeline.VariantLit), "the pipeline variant: unlit, lit or lit_textured")
	fs.StringVar(&h.texture, "texture", "", "an image file for lit_textured (a checkerboard when empty)")
	fs.StringVar(&h.out, "out", "frame.png", "where to write the last frame")
	fs.BoolVar(&h.verbose, "v", false, "log at debug level")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	if h.frames < 1 || h.grid < 1 {
		return fmt.Errorf("frames and grid must be positive")
	}
	return nil
}

func (h *headless) loadConfig() (config.Config, error) {
	if h.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(h.configPath)
}

// mesh uploads the cube for the chosen variant.
func (h *headless) mesh(r renderer.Renderer) (address.Source, error) {
	switch pipeline.VariantKind(h.variant) {
	case pipeline.VariantUnlit:
		m := model.ColorCube(1, [6][3]float32{
			{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {0, 1, 1}, {1, 0, 1},
		})
		return upload(r, model.ColorVertexLayout, m.Vertices)
	case pipeline.VariantLit:
		return upload(r, model.LitVertexLayout, model.LitCube(1).Vertices)
	case pipeline.VariantLitTextured:
		return upload(r, model.TexturedVertexLayout, model.TexturedCube(1).Vertices)
	default:
		return nil, fmt.Errorf("unknown variant %q", h.variant)
	}
}

func upload[V any](r renderer.Renderer, contract layout.Struct, vertices []V) (address.Source, error) {
	buf, err := renderer.NewBuffer[V](r, contract, len(vertices))
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex buffer: %w", err)
	}
	if err := buf.WriteRange(context.Background(), 0, vertices); err != nil {
		return nil, fmt.Errorf("failed to upload vertices: %w", err)
	}
	return buf, nil
}

func (h *headless) textureIndex(r renderer.Renderer) (uint32, error) {
	if h.texture != "" {
		return r.Textures().RegisterFile(h.texture)
	}
	return r.Textures().Register(checkerboard(64, 8))
}

func checkerboard(size, cells int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	step := size / cells
	for y := range size {
		for x := range size {
			c := color.RGBA{230, 230, 230, 255}
			if (x/step+y/step)%2 == 1 {
				c = color.RGBA{40, 90, 200, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func (h *headless) run(ctx context.Context) error {
	if err := h.parse(); err != nil {
		return err
	}
	level := slog.LevelInfo
	if h.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	common.SetLogger(logger)

	cfg, err := h.loadConfig()
	if err != nil {
		return err
	}
	win := cfg.Windows[0]

	r, err := renderer.NewRenderer(
		renderer.NewSoftwareBackend(renderer.WithHeapCapacity(cfg.Renderer.HeapSize)),
		cfg.RendererOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	defer r.Close()
	if err := r.RegisterBuiltins(); err != nil {
		return fmt.Errorf("failed to register variants: %w", err)
	}

	e := engine.NewEngine(r, append(engine.FromConfig(cfg), engine.WithLogger(logger))...)
	id, err := e.AddWindow(&offscreenWindow{width: win.Width, height: win.Height}, renderer.OffscreenTarget{})
	if err != nil {
		return fmt.Errorf("failed to add window: %w", err)
	}

	ctrl := camera.NewController(camera.WithRadius(float32(h.grid)*2.5), camera.WithAngles(0.6, 0.5))
	s, err := scene.NewScene("cubes", camera.NewCamera(camera.WithController(ctrl)), r,
		scene.WithActive(true),
		scene.WithWorkers(cfg.Renderer.Workers),
		scene.WithInstanceCapacity(h.grid*h.grid),
		scene.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer s.Release()

	vertices, err := h.mesh(r)
	if err != nil {
		return err
	}
	meshID, err := s.AddMesh(h.variant, vertices)
	if err != nil {
		return fmt.Errorf("failed to add mesh: %w", err)
	}

	var layer uint32
	if pipeline.VariantKind(h.variant) == pipeline.VariantLitTextured {
		if layer, err = h.textureIndex(r); err != nil {
			return fmt.Errorf("failed to load texture: %w", err)
		}
	}

	offset := float32(h.grid-1) * 1.5 / 2
	for i := range h.grid * h.grid {
		pos := [3]float32{float32(i%h.grid)*1.5 - offset, 0, float32(i/h.grid)*1.5 - offset}
		if _, err := s.Add(meshID, game_object.NewGameObject(
			game_object.WithPosition(pos),
			game_object.WithRotationSpeed([3]float32{0, 1 + float32(i%3), 0}),
			game_object.WithTextureIndex(layer),
			game_object.WithBounds(0.87),
		)); err != nil {
			return err
		}
	}
	if err := e.AddScene(id, 0, s); err != nil {
		return err
	}

	pb := progressbar.Default(int64(h.frames), "rendering")
	defer pb.Close()

	const dt = float32(1.0 / 60)
	start := time.Now()
	for range h.frames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ctrl.Orbit(0.5, 0)
		if err := e.RenderOnce(ctx, dt)[id]; err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		pb.Add(1)
	}
	if err := r.WaitIdle(ctx); err != nil {
		return err
	}
	logger.Info("rendered", "frames", h.frames, "elapsed", time.Since(start), "variant", h.variant)

	wr, _ := r.Window(id)
	img, ok := wr.Snapshot()
	if !ok {
		return fmt.Errorf("backend %s has no readback", r.Backend().Name())
	}
	return writePNG(h.out, img)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h := headless{}
	if err := h.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run oxy-headless: %v\n", err)
		os.Exit(1)
	}
}
