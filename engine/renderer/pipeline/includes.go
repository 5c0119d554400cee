package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bindless/engine/camera"
	"github.com/Carmen-Shannon/oxy-bindless/engine/layout"
	"github.com/Carmen-Shannon/oxy-bindless/engine/renderer/shader"
)

// includes returns the include registry for a contract. Every record declaration spliced
// into a shader is generated from the same layout the host writes with.
func includes(c Contract, s ShadingConfig) []shader.PreProcessorOption {
	return []shader.PreProcessorOption{
		shader.WithInclude(shader.AnnotationArgHeap, layout.HeapAccessors(), ""),
		shader.WithInclude(shader.AnnotationArgPush, c.Push.WGSLDecl(), c.Push.Name()),
		shader.WithInclude(shader.AnnotationArgVertex, c.Vertex.WGSL(), c.Vertex.Name()),
		shader.WithInclude(shader.AnnotationArgInstance, instanceWGSL(c), c.Instance.Name()),
		shader.WithInclude(shader.AnnotationArgCamera, cameraWGSL(c), c.Camera.Name()),
		shader.WithInclude(shader.AnnotationArgShading, s.WGSL(), ""),
	}
}

func instanceWGSL(c Contract) string {
	src := c.Instance.WGSL()
	switch c.TextureIndexSource {
	case TextureIndexPerInstance:
		src += fmt.Sprintf("\nfn texture_index(inst: %s) -> u32 {\n    return inst.texture_index;\n}\n", c.Instance.Name())
	case TextureIndexFixed:
		src += fmt.Sprintf("\nfn texture_index(inst: %s) -> u32 {\n    return %du;\n}\n", c.Instance.Name(), c.FixedTextureIndex)
	}
	return src
}

func cameraWGSL(c Contract) string {
	src := c.Camera.WGSL()
	switch c.CameraConvention {
	case camera.ConventionDecomposed:
		src += fmt.Sprintf("\nfn camera_position(cam: %s) -> vec3<f32> {\n    return cam.position;\n}\n", c.Camera.Name())
	case camera.ConventionDecomposedDerived:
		// the view matrix is rigid, so the eye is -R^T * t
		src += fmt.Sprintf(`
fn camera_position(cam: %s) -> vec3<f32> {
    let r = mat3x3<f32>(cam.view[0].xyz, cam.view[1].xyz, cam.view[2].xyz);
    return -(transpose(r) * cam.view[3].xyz);
}
`, c.Camera.Name())
	}
	return src
}
