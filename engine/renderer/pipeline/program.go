package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bindless/common"
	"github.com/Carmen-Shannon/oxy-bindless/engine/address"
	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/gpumem"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
)

// ErrNoSampler is returned when a textured program runs its fragment stage without a sampler.
var ErrNoSampler = errors.New("textured variant needs a texture sampler")

// Fetcher reads bytes from device memory by address. gpumem.HostMemory satisfies it.
type Fetcher interface {
	Read(addr gpumem.Address, size uint64) ([]byte, error)
}

// TextureSampler samples a layer of the bound texture array.
type TextureSampler interface {
	// Sample returns the filtered RGBA texel at uv of the given layer.
	Sample(layer uint32, uv [2]float32) ([4]float32, error)
}

// Varyings is the vertex stage output. Fields a variant does not write stay zero.
type Varyings struct {
	// Position is the clip-space position.
	Position [4]float32

	Color         [3]float32
	WorldPosition [3]float32
	Normal        [3]float32
	TexCoord      [2]float32

	// TextureIndex is flat: it is never interpolated.
	TextureIndex uint32
}

// Interpolate blends three vertex outputs with barycentric weights. Flat fields come from
// the first (provoking) vertex.
//
// Parameters:
//   - a, b, c: the triangle's vertex outputs
//   - w: the barycentric weights of a, b and c
//
// Returns:
//   - Varyings: the blended fragment input
func Interpolate(a, b, c Varyings, w [3]float32) Varyings {
	out := Varyings{TextureIndex: a.TextureIndex}
	for i := range 4 {
		out.Position[i] = a.Position[i]*w[0] + b.Position[i]*w[1] + c.Position[i]*w[2]
	}
	for i := range 3 {
		out.Color[i] = a.Color[i]*w[0] + b.Color[i]*w[1] + c.Color[i]*w[2]
		out.WorldPosition[i] = a.WorldPosition[i]*w[0] + b.WorldPosition[i]*w[1] + c.WorldPosition[i]*w[2]
		out.Normal[i] = a.Normal[i]*w[0] + b.Normal[i]*w[1] + c.Normal[i]*w[2]
	}
	for i := range 2 {
		out.TexCoord[i] = a.TexCoord[i]*w[0] + b.TexCoord[i]*w[1] + c.TexCoord[i]*w[2]
	}
	return out
}

// offsets are the contract field offsets a program reads, resolved once at compile time.
type offsets struct {
	position uint64
	color    uint64
	normal   uint64
	texCoord uint64

	model        uint64
	textureIndex uint64

	viewProjection uint64
	view           uint64
	projection     uint64
	cameraPosition uint64
}

// program is the implementation of the Program interface.
type program struct {
	key         string
	kind        VariantKind
	generation  uint64
	contract    Contract
	shading     ShadingConfig
	rasterState RasterState

	vertexShader   shader.Shader
	fragmentShader shader.Shader

	offsets offsets
}

// Program is a compiled variant. It carries the processed shaders for device backends and
// executes the variant's stages on the host for the software backend.
type Program interface {
	// Key returns the variant key.
	Key() string

	// Kind returns the variant kind.
	Kind() VariantKind

	// Generation returns the variant generation the program was compiled from.
	Generation() uint64

	// Contract returns the variant contract.
	Contract() Contract

	// Shading returns the compiled-in shading constants.
	Shading() ShadingConfig

	// RasterState returns the fixed-function state.
	RasterState() RasterState

	// VertexShader returns the processed vertex stage.
	VertexShader() shader.Shader

	// FragmentShader returns the processed fragment stage.
	FragmentShader() shader.Shader

	// Bind reads the camera record of a table once and returns an invocation that runs
	// both stages against it.
	//
	// Parameters:
	//   - fetch: the device memory reader
	//   - table: the pushed address table
	//
	// Returns:
	//   - Invocation: the bound stages
	//   - error: gpumem.ErrInvalidAddress for null or unallocated addresses
	Bind(fetch Fetcher, table address.Table) (Invocation, error)

	// Vertex binds the table and runs the vertex stage for one vertex.
	Vertex(fetch Fetcher, table address.Table, vertexIndex, instanceIndex uint32) (Varyings, error)

	// Fragment binds the table and runs the fragment stage for one fragment.
	Fragment(in Varyings, fetch Fetcher, table address.Table, sampler TextureSampler) ([4]float32, error)
}

// Invocation is a program bound to one address table.
type Invocation interface {
	// Vertex fetches a vertex and an instance record by index and transforms them.
	Vertex(vertexIndex, instanceIndex uint32) (Varyings, error)

	// Fragment shades one fragment. sampler may be nil for variants that do not sample.
	Fragment(in Varyings, sampler TextureSampler) ([4]float32, error)

	// CameraPosition returns the eye position as the fragment stage sees it.
	CameraPosition() [3]float32
}

var _ Program = &program{}

func (p *program) Key() string                   { return p.key }
func (p *program) Kind() VariantKind             { return p.kind }
func (p *program) Generation() uint64            { return p.generation }
func (p *program) Contract() Contract            { return p.contract }
func (p *program) Shading() ShadingConfig        { return p.shading }
func (p *program) RasterState() RasterState      { return p.rasterState }
func (p *program) VertexShader() shader.Shader   { return p.vertexShader }
func (p *program) FragmentShader() shader.Shader { return p.fragmentShader }

func (p *program) Bind(fetch Fetcher, table address.Table) (Invocation, error) {
	if table.Vertex == gpumem.NullAddress || table.Instance == gpumem.NullAddress || table.Camera == gpumem.NullAddress {
		return nil, fmt.Errorf("bind %s: null address in table: %w", p.key, gpumem.ErrInvalidAddress)
	}
	cam, err := fetch.Read(table.Camera, p.contract.Camera.Size())
	if err != nil {
		return nil, fmt.Errorf("bind %s: read camera: %w", p.key, err)
	}

	inv := &invocation{program: p, fetch: fetch, table: table}
	o := p.offsets
	switch p.contract.CameraConvention {
	case camera.ConventionViewProjection:
		inv.viewProjection = layout.ReadMat4(cam, o.viewProjection)
	default:
		view := layout.ReadMat4(cam, o.view)
		proj := layout.ReadMat4(cam, o.projection)
		common.Mul4(inv.viewProjection[:], proj[:], view[:])
		if p.contract.CameraConvention == camera.ConventionDecomposed {
			inv.cameraPosition = layout.ReadVec3(cam, o.cameraPosition)
		} else {
			inv.cameraPosition = derivedEye(view)
		}
	}
	return inv, nil
}

func (p *program) Vertex(fetch Fetcher, table address.Table, vertexIndex, instanceIndex uint32) (Varyings, error) {
	inv, err := p.Bind(fetch, table)
	if err != nil {
		return Varyings{}, err
	}
	return inv.Vertex(vertexIndex, instanceIndex)
}

func (p *program) Fragment(in Varyings, fetch Fetcher, table address.Table, sampler TextureSampler) ([4]float32, error) {
	inv, err := p.Bind(fetch, table)
	if err != nil {
		return [4]float32{}, err
	}
	return inv.Fragment(in, sampler)
}

// derivedEye recovers the eye position from a rigid view matrix as -R^T * t.
func derivedEye(view [16]float32) [3]float32 {
	t := [3]float32{view[12], view[13], view[14]}
	var eye [3]float32
	for c := range 3 {
		col := [3]float32{view[c*4], view[c*4+1], view[c*4+2]}
		eye[c] = -common.Dot3(col, t)
	}
	return eye
}

type invocation struct {
	program *program
	fetch   Fetcher
	table   address.Table

	viewProjection [16]float32
	cameraPosition [3]float32
}

func (inv *invocation) CameraPosition() [3]float32 { return inv.cameraPosition }

func (inv *invocation) Vertex(vertexIndex, instanceIndex uint32) (Varyings, error) {
	p := inv.program
	c := p.contract
	o := p.offsets

	vb, err := inv.fetch.Read(element(inv.table.Vertex, vertexIndex, c.Vertex.Size()), c.Vertex.Size())
	if err != nil {
		return Varyings{}, fmt.Errorf("%s vertex %d: %w", p.key, vertexIndex, err)
	}
	ib, err := inv.fetch.Read(element(inv.table.Instance, instanceIndex, c.Instance.Size()), c.Instance.Size())
	if err != nil {
		return Varyings{}, fmt.Errorf("%s instance %d: %w", p.key, instanceIndex, err)
	}

	model := layout.ReadMat4(ib, o.model)
	pos := layout.ReadVec3(vb, o.position)
	world := common.Mul4Vec4(model[:], [4]float32{pos[0], pos[1], pos[2], 1})

	out := Varyings{
		Position:      common.Mul4Vec4(inv.viewProjection[:], world),
		WorldPosition: [3]float32{world[0], world[1], world[2]},
	}
	if p.kind == VariantUnlit {
		out.Color = layout.ReadVec3(vb, o.color)
		return out, nil
	}

	n := layout.ReadVec3(vb, o.normal)
	nw := common.Mul4Vec4(model[:], [4]float32{n[0], n[1], n[2], 0})
	out.Normal = [3]float32{nw[0], nw[1], nw[2]}

	if c.SamplesTextures {
		out.TexCoord = layout.ReadVec2(vb, o.texCoord)
		switch c.TextureIndexSource {
		case TextureIndexPerInstance:
			out.TextureIndex = layout.ReadUint32(ib, o.textureIndex)
		case TextureIndexFixed:
			out.TextureIndex = c.FixedTextureIndex
		}
	}
	return out, nil
}

func (inv *invocation) Fragment(in Varyings, sampler TextureSampler) ([4]float32, error) {
	p := inv.program
	switch p.kind {
	case VariantUnlit:
		return [4]float32{in.Color[0], in.Color[1], in.Color[2], 1}, nil
	case VariantLitTextured:
		if sampler == nil {
			return [4]float32{}, fmt.Errorf("%s: %w", p.key, ErrNoSampler)
		}
		texel, err := sampler.Sample(in.TextureIndex, in.TexCoord)
		if err != nil {
			return [4]float32{}, fmt.Errorf("%s: sample layer %d: %w", p.key, in.TextureIndex, err)
		}
		return ShadeLitTextured(p.shading, texel, in.Normal, in.WorldPosition, inv.cameraPosition), nil
	}
	return ShadeLit(p.shading, in.Normal, in.WorldPosition, inv.cameraPosition), nil
}

// element returns the address of record index in an array starting at base.
func element(base gpumem.Address, index uint32, stride uint64) gpumem.Address {
	return base + gpumem.Address(uint64(index)*stride)
}
