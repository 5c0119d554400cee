// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader source for
// @oxy: annotations, replaces them with registered WGSL or generated binding declarations, and
// collects the binding declarations so the device can build matching bind group layouts.
package shader

import (
	"fmt"
	"slices"
	"strings"
)

// registryEntry pairs the WGSL spliced in by an include with the type name used when the
// key appears as the type of a group annotation.
type registryEntry struct {
	// Source is the WGSL text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations (e.g. "PushConstants").
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps include keys to their WGSL source and type name.
	structRegistry map[AnnotationArg]registryEntry

	// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group annotations during a Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations.
type PreProcessor interface {
	// Process replaces every annotation in source with its WGSL output. Include annotations
	// are replaced by the registered source; group annotations by a generated @group/@binding
	// declaration, which is also recorded in Declarations.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//
	// Returns:
	//   - string: the processed WGSL
	//   - error: if an annotation is malformed or references an unregistered key
	Process(source string) (string, error)

	// Declarations returns the group annotations collected by the most recent Process call,
	// in source order.
	Declarations() []Annotation

	// Keys returns the registered include keys, sorted.
	Keys() []AnnotationArg
}

var _ PreProcessor = &preProcessor{}

// PreProcessorOption is a functional option for configuring a PreProcessor.
type PreProcessorOption func(*preProcessor)

// WithInclude registers WGSL for an include key.
//
// Parameters:
//   - key: the include key
//   - source: the WGSL spliced in place of the annotation
//   - typeName: the WGSL type name the key resolves to in group annotations, or "" if none
//
// Returns:
//   - PreProcessorOption: option function to apply
func WithInclude(key AnnotationArg, source, typeName string) PreProcessorOption {
	return func(p *preProcessor) {
		p.structRegistry[key] = registryEntry{Source: source, Type: typeName}
	}
}

// NewPreProcessor creates a PreProcessor with the given include registrations.
//
// Parameters:
//   - options: variadic list of PreProcessorOption functions
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(options ...PreProcessorOption) PreProcessor {
	p := &preProcessor{
		structRegistry: make(map[AnnotationArg]registryEntry),
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
			annotationArgHandle:               "var",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include key %q", a.Line, a.Args[0])
			}
			// a key included twice would redeclare its struct
			if included[a.Args[0]] {
				continue
			}
			included[a.Args[0]] = true
			out = append(out, strings.TrimRight(entry.Source, "\n"))
		case AnnotationTypeBindingGroup:
			wgslType := string(a.Args[2])
			if !slices.Contains(resourceTypes, wgslType) {
				entry, ok := p.structRegistry[a.Args[2]]
				if !ok || entry.Type == "" {
					return "", fmt.Errorf("line %d: unknown type %q in @oxy group annotation", a.Line, a.Args[2])
				}
				wgslType = entry.Type
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, p.addressSpaceRegistry[a.Args[0]], a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return slices.Clone(p.declarations)
}

func (p *preProcessor) Keys() []AnnotationArg {
	keys := make([]AnnotationArg, 0, len(p.structRegistry))
	for k := range p.structRegistry {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
