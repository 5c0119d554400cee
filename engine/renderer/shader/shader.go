package shader

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoEntryPoint is returned when a stage source has no entry point for its stage.
var ErrNoEntryPoint = errors.New("shader has no entry point")

// shader is the implementation of the Shader interface.
type shader struct {
	key          string
	stage        Stage
	source       string
	entryPoint   string
	bindings     []Binding
	declarations []Annotation
}

// Shader is one pre-processed WGSL stage together with the metadata the device needs to build
// a pipeline for it.
type Shader interface {
	// Key returns the shader key, e.g. "lit.vert".
	Key() string

	// Stage returns the pipeline stage.
	Stage() Stage

	// Source returns the pre-processed WGSL.
	Source() string

	// EntryPoint returns the entry point function name.
	EntryPoint() string

	// Bindings returns the @group/@binding declarations of the processed source.
	Bindings() []Binding

	// Declarations returns the group annotations that generated bindings.
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader pre-processes raw WGSL for a stage and extracts its entry point and bindings.
//
// Parameters:
//   - key: a unique identifier for logs and errors
//   - stage: the stage the source is written for
//   - raw: the annotated WGSL source
//   - pp: the pre-processor holding the include registry
//
// Returns:
//   - Shader: the processed shader
//   - error: a pre-processing error or ErrNoEntryPoint
func NewShader(key string, stage Stage, raw string, pp PreProcessor) (Shader, error) {
	source, err := pp.Process(raw)
	if err != nil {
		return nil, fmt.Errorf("pre-process %s: %w", key, err)
	}
	entry := ParseEntryPoint(source, stage)
	if entry == "" {
		return nil, fmt.Errorf("%s: %w for stage %s", key, ErrNoEntryPoint, stage)
	}
	return &shader{
		key:          key,
		stage:        stage,
		source:       source,
		entryPoint:   entry,
		bindings:     ParseBindings(source),
		declarations: pp.Declarations(),
	}, nil
}

func (s *shader) Key() string                { return s.key }
func (s *shader) Stage() Stage               { return s.stage }
func (s *shader) Source() string             { return s.source }
func (s *shader) EntryPoint() string         { return s.entryPoint }
func (s *shader) Bindings() []Binding        { return slices.Clone(s.bindings) }
func (s *shader) Declarations() []Annotation { return slices.Clone(s.declarations) }
