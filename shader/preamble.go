package shader

import "strings"

// Preamble is the synthesized prologue prepended to every shader's source
// before compilation (§4.4): a #version line, stage-required extensions,
// then one #define per preprocessor define.
type Preamble struct {
	Version    string
	Extensions []string
	Defines    []string
}

// stageExtensions lists the fixed extension set §4.4 requires per stage.
func stageExtensions(stage Stage) []string {
	switch stage {
	case StageTask, StageMesh:
		return []string{"GL_NV_mesh_shader"}
	case StageRayGen:
		return []string{"GL_NV_ray_tracing"}
	default:
		return nil
	}
}

// BuildPreamble synthesizes the preamble for stage with the given defines.
func BuildPreamble(stage Stage, defines []string) Preamble {
	return Preamble{
		Version:    "#version 460 core",
		Extensions: stageExtensions(stage),
		Defines:    SortDefines(defines),
	}
}

// Source renders the preamble as GLSL source text.
func (p Preamble) Source() string {
	var b strings.Builder
	b.WriteString(p.Version)
	b.WriteByte('\n')
	for _, ext := range p.Extensions {
		b.WriteString("#extension ")
		b.WriteString(ext)
		b.WriteString(" : require\n")
	}
	for _, d := range p.Defines {
		b.WriteString("#define ")
		b.WriteString(d)
		b.WriteByte('\n')
	}
	return b.String()
}

// LineCount returns the number of lines the preamble occupies, used to
// translate a compiler-reported line number back to the user's source
// (§4.4 error reporting: "source-index:line" correlated against the
// preamble offset).
func (p Preamble) LineCount() int {
	return strings.Count(p.Source(), "\n")
}

// TargetVersion is the (Vulkan environment, SPIR-V target version) pair
// ResolveTargetVersion returns for a spirv_version.
type TargetVersion struct {
	VulkanEnv   string
	SpirvTarget string
}

// ResolveTargetVersion maps spirvVersion in {100,110,120,130,140,150} to its
// (Vulkan environment, SPIR-V target version) pair.
func ResolveTargetVersion(spirvVersion int) (TargetVersion, error) {
	switch spirvVersion {
	case 100:
		return TargetVersion{"vulkan1.0", "spv1.0"}, nil
	case 110:
		return TargetVersion{"vulkan1.0", "spv1.3"}, nil
	case 120:
		return TargetVersion{"vulkan1.1", "spv1.3"}, nil
	case 130:
		return TargetVersion{"vulkan1.1", "spv1.3"}, nil
	case 140:
		return TargetVersion{"vulkan1.1", "spv1.4"}, nil
	case 150:
		return TargetVersion{"vulkan1.2", "spv1.5"}, nil
	default:
		return TargetVersion{}, ErrUnsupportedFeature
	}
}
