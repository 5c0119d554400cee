// annotations.go defines the annotation syntax of the Oxy WGSL pre-processor. Annotations are
// single-line WGSL comments prefixed with @oxy: that either splice generated WGSL into the
// shader (include) or declare a resource binding (group). Generated record declarations and
// their heap loaders come from the same layout contracts the host uses, so shader sources never
// spell out a record layout by hand.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude replaces the annotation line with the registered WGSL for a key.
	//
	// Syntax: //@oxy:include <key>
	//
	// Example: //@oxy:include camera
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration and records it
	// in the pre-processor's declarations list, from which the device builds bind group layouts.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 0 storage_read heap array<u32>
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation is a single parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments:
	//   - include: [0] = key
	//   - group:   [0] = address space, [1] = var name, [2] = type (registered key or resource type)
	Args []AnnotationArg

	// Line is the 1-based source line of the annotation.
	Line int

	// Group is the @group index for group annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group annotations. Nil for include annotations.
	Binding *int
}

// AnnotationArg is a typed string used as an annotation argument.
type AnnotationArg string

// Include keys understood by the pipeline variants. The pre-processor only resolves keys that
// were registered on it, see WithInclude.
const (
	// AnnotationArgHeap injects the heap accessor functions used by every loader.
	AnnotationArgHeap AnnotationArg = "heap"

	// AnnotationArgPush injects the PushConstants declaration (the address table).
	AnnotationArgPush AnnotationArg = "push"

	// AnnotationArgVertex injects the Vertex declaration and load_vertex.
	AnnotationArgVertex AnnotationArg = "vertex"

	// AnnotationArgInstance injects the Instance declaration, load_instance and, for textured
	// variants, the texture_index selector.
	AnnotationArgInstance AnnotationArg = "instance"

	// AnnotationArgCamera injects the Camera declaration, load_camera and camera_position.
	AnnotationArgCamera AnnotationArg = "camera"

	// AnnotationArgShading injects the shading constants.
	AnnotationArgShading AnnotationArg = "shading"
)

// Address space arguments of group annotations.
const (
	annotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"

	// annotationArgHandle declares textures and samplers, which have no address space.
	annotationArgHandle AnnotationArg = "handle"
)

var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
	annotationArgHandle,
}

// resourceTypes are group annotation types that are emitted verbatim instead of being
// resolved through the include registry.
var resourceTypes = []string{
	"array<u32>",
	"texture_2d<f32>",
	"texture_2d_array<f32>",
	"sampler",
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires five arguments (group, binding, address space, name, type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation: %w", lineNum, args[1], err)
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation: %w", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		isHandle := AnnotationArg(args[3]) == annotationArgHandle
		isTexture := strings.HasPrefix(args[5], "texture_") || args[5] == "sampler"
		if isHandle != isTexture {
			return nil, fmt.Errorf("line %d: type %q cannot be declared in address space %q", lineNum, args[5], args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
